package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"zpbitrix/internal/core/integration"
	"zpbitrix/platform/logger"
)

type integrationRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

func NewIntegrationRepository(db *sqlx.DB, logger *logger.Logger) integration.Repository {
	return &integrationRepository{
		db:     db,
		logger: logger,
	}
}

type integrationModel struct {
	ID                    string     `db:"id"`
	WorkspaceID           string     `db:"workspaceId"`
	Platform              string     `db:"platform"`
	Domain                string     `db:"domain"`
	MemberID              string     `db:"memberId"`
	AccessToken           string     `db:"accessToken"`
	RefreshToken          string     `db:"refreshToken"`
	TokenExpiresAt        *time.Time `db:"tokenExpiresAt"`
	TokenRefreshFailed    bool       `db:"tokenRefreshFailed"`
	ConnectorID           string     `db:"connectorId"`
	Registered            bool       `db:"registered"`
	Activated             bool       `db:"activated"`
	BotID                 string     `db:"botId"`
	BotEnabled            bool       `db:"botEnabled"`
	BotPersonaID          string     `db:"botPersonaId"`
	BotWelcomeMessage     string     `db:"botWelcomeMessage"`
	RobotRegistered       bool       `db:"robotRegistered"`
	SMSProviderRegistered bool       `db:"smsProviderRegistered"`
	WebhookURL            string     `db:"webhookUrl"`
	Active                bool       `db:"active"`
	LastSyncAt            *time.Time `db:"lastSyncAt"`
	Metadata              []byte     `db:"metadata"`
	Version               int        `db:"version"`
	CreatedAt             time.Time  `db:"createdAt"`
	UpdatedAt             time.Time  `db:"updatedAt"`
}

const integrationColumns = `
	id, "workspaceId", platform, domain, "memberId",
	"accessToken", "refreshToken", "tokenExpiresAt", "tokenRefreshFailed",
	"connectorId", registered, activated,
	"botId", "botEnabled", "botPersonaId", "botWelcomeMessage",
	"robotRegistered", "smsProviderRegistered",
	"webhookUrl", active, "lastSyncAt", metadata, version,
	"createdAt", "updatedAt"
`

func (r *integrationRepository) Create(ctx context.Context, integ *integration.Integration) error {
	r.logger.InfoWithFields("Creating integration", map[string]interface{}{
		"integration_id": integ.ID.String(),
		"workspace_id":   integ.WorkspaceID,
	})

	model, err := r.toModel(integ)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO "zbIntegrations" (` + integrationColumns + `)
		VALUES (
			:id, :workspaceId, :platform, :domain, :memberId,
			:accessToken, :refreshToken, :tokenExpiresAt, :tokenRefreshFailed,
			:connectorId, :registered, :activated,
			:botId, :botEnabled, :botPersonaId, :botWelcomeMessage,
			:robotRegistered, :smsProviderRegistered,
			:webhookUrl, :active, :lastSyncAt, :metadata, :version,
			:createdAt, :updatedAt
		)
	`

	_, err = r.db.NamedExecContext(ctx, query, model)
	if err != nil {
		r.logger.ErrorWithFields("Failed to create integration", map[string]interface{}{
			"integration_id": integ.ID.String(),
			"error":          err.Error(),
		})
		return fmt.Errorf("failed to create integration: %w", err)
	}

	return nil
}

func (r *integrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*integration.Integration, error) {
	var model integrationModel
	query := `SELECT ` + integrationColumns + ` FROM "zbIntegrations" WHERE id = $1`

	err := r.db.GetContext(ctx, &model, query, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, integration.ErrIntegrationNotFound
		}
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}

	return r.fromModel(&model)
}

func (r *integrationRepository) GetByWorkspace(ctx context.Context, workspaceID, platform string) (*integration.Integration, error) {
	var model integrationModel
	query := `SELECT ` + integrationColumns + ` FROM "zbIntegrations" WHERE "workspaceId" = $1 AND platform = $2`

	err := r.db.GetContext(ctx, &model, query, workspaceID, platform)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, integration.ErrIntegrationNotFound
		}
		return nil, fmt.Errorf("failed to get integration by workspace: %w", err)
	}

	return r.fromModel(&model)
}

func (r *integrationRepository) GetByMemberID(ctx context.Context, memberID string) (*integration.Integration, error) {
	var model integrationModel
	query := `SELECT ` + integrationColumns + ` FROM "zbIntegrations" WHERE "memberId" = $1`

	err := r.db.GetContext(ctx, &model, query, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, integration.ErrIntegrationNotFound
		}
		return nil, fmt.Errorf("failed to get integration by member id: %w", err)
	}

	return r.fromModel(&model)
}

func (r *integrationRepository) ListByDomain(ctx context.Context, domain string) ([]*integration.Integration, error) {
	var models []integrationModel
	query := `SELECT ` + integrationColumns + ` FROM "zbIntegrations" WHERE domain = $1 ORDER BY "createdAt"`

	err := r.db.SelectContext(ctx, &models, query, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations by domain: %w", err)
	}

	integrations := make([]*integration.Integration, 0, len(models))
	for i := range models {
		integ, err := r.fromModel(&models[i])
		if err != nil {
			return nil, err
		}
		integrations = append(integrations, integ)
	}

	return integrations, nil
}

// Update persists the record guarded by the version counter. A row whose
// version moved since the caller loaded it is not touched and the caller
// gets ErrStaleWrite back.
func (r *integrationRepository) Update(ctx context.Context, integ *integration.Integration) error {
	model, err := r.toModel(integ)
	if err != nil {
		return err
	}

	query := `
		UPDATE "zbIntegrations" SET
			domain = :domain,
			"memberId" = :memberId,
			"accessToken" = :accessToken,
			"refreshToken" = :refreshToken,
			"tokenExpiresAt" = :tokenExpiresAt,
			"tokenRefreshFailed" = :tokenRefreshFailed,
			"connectorId" = :connectorId,
			registered = :registered,
			activated = :activated,
			"botId" = :botId,
			"botEnabled" = :botEnabled,
			"botPersonaId" = :botPersonaId,
			"botWelcomeMessage" = :botWelcomeMessage,
			"robotRegistered" = :robotRegistered,
			"smsProviderRegistered" = :smsProviderRegistered,
			"webhookUrl" = :webhookUrl,
			active = :active,
			"lastSyncAt" = :lastSyncAt,
			metadata = :metadata,
			version = version + 1,
			"updatedAt" = :updatedAt
		WHERE id = :id AND version = :version
	`

	result, err := r.db.NamedExecContext(ctx, query, model)
	if err != nil {
		r.logger.ErrorWithFields("Failed to update integration", map[string]interface{}{
			"integration_id": integ.ID.String(),
			"error":          err.Error(),
		})
		return fmt.Errorf("failed to update integration: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows == 0 {
		return integration.ErrStaleWrite
	}

	integ.Version++
	return nil
}

func (r *integrationRepository) toModel(integ *integration.Integration) (*integrationModel, error) {
	metadata := integ.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal integration metadata: %w", err)
	}

	return &integrationModel{
		ID:                    integ.ID.String(),
		WorkspaceID:           integ.WorkspaceID,
		Platform:              integ.Platform,
		Domain:                integ.Domain,
		MemberID:              integ.MemberID,
		AccessToken:           integ.AccessToken,
		RefreshToken:          integ.RefreshToken,
		TokenExpiresAt:        integ.TokenExpiresAt,
		TokenRefreshFailed:    integ.TokenRefreshFailed,
		ConnectorID:           integ.ConnectorID,
		Registered:            integ.Registered,
		Activated:             integ.Activated,
		BotID:                 integ.BotID,
		BotEnabled:            integ.BotEnabled,
		BotPersonaID:          integ.BotPersonaID,
		BotWelcomeMessage:     integ.BotWelcomeMessage,
		RobotRegistered:       integ.RobotRegistered,
		SMSProviderRegistered: integ.SMSProviderRegistered,
		WebhookURL:            integ.WebhookURL,
		Active:                integ.Active,
		LastSyncAt:            integ.LastSyncAt,
		Metadata:              metadataJSON,
		Version:               integ.Version,
		CreatedAt:             integ.CreatedAt,
		UpdatedAt:             integ.UpdatedAt,
	}, nil
}

func (r *integrationRepository) fromModel(model *integrationModel) (*integration.Integration, error) {
	id, err := uuid.Parse(model.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid integration id %q: %w", model.ID, err)
	}

	metadata := map[string]string{}
	if len(model.Metadata) > 0 {
		if err := json.Unmarshal(model.Metadata, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal integration metadata: %w", err)
		}
	}

	return &integration.Integration{
		ID:                    id,
		WorkspaceID:           model.WorkspaceID,
		Platform:              model.Platform,
		Domain:                model.Domain,
		MemberID:              model.MemberID,
		AccessToken:           model.AccessToken,
		RefreshToken:          model.RefreshToken,
		TokenExpiresAt:        model.TokenExpiresAt,
		TokenRefreshFailed:    model.TokenRefreshFailed,
		ConnectorID:           model.ConnectorID,
		Registered:            model.Registered,
		Activated:             model.Activated,
		BotID:                 model.BotID,
		BotEnabled:            model.BotEnabled,
		BotPersonaID:          model.BotPersonaID,
		BotWelcomeMessage:     model.BotWelcomeMessage,
		RobotRegistered:       model.RobotRegistered,
		SMSProviderRegistered: model.SMSProviderRegistered,
		WebhookURL:            model.WebhookURL,
		Active:                model.Active,
		LastSyncAt:            model.LastSyncAt,
		Metadata:              metadata,
		Version:               model.Version,
		CreatedAt:             model.CreatedAt,
		UpdatedAt:             model.UpdatedAt,
	}, nil
}
