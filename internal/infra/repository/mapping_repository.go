package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"zpbitrix/internal/core/channel"
	"zpbitrix/platform/logger"
)

type mappingRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

func NewMappingRepository(db *sqlx.DB, logger *logger.Logger) channel.Repository {
	return &mappingRepository{
		db:     db,
		logger: logger,
	}
}

type mappingModel struct {
	ID            string    `db:"id"`
	IntegrationID string    `db:"integrationId"`
	InstanceID    string    `db:"instanceId"`
	LineID        string    `db:"lineId"`
	LineName      string    `db:"lineName"`
	Active        bool      `db:"active"`
	CreatedAt     time.Time `db:"createdAt"`
}

// Create stores a mapping after checking both exclusivity rules. Callers hold
// the integration lock, so check-then-insert cannot race with itself; the
// partial unique indexes stay as the database-level backstop.
func (r *mappingRepository) Create(ctx context.Context, mapping *channel.Mapping) error {
	var count int
	conflictQuery := `
		SELECT COUNT(*) FROM "zbChannelMappings"
		WHERE active AND ("instanceId" = $1 OR ("integrationId" = $2 AND "lineId" = $3))
	`
	err := r.db.GetContext(ctx, &count, conflictQuery, mapping.InstanceID, mapping.IntegrationID.String(), mapping.LineID)
	if err != nil {
		return fmt.Errorf("failed to check mapping conflicts: %w", err)
	}
	if count > 0 {
		return channel.ErrMappingConflict
	}

	model := &mappingModel{
		ID:            mapping.ID.String(),
		IntegrationID: mapping.IntegrationID.String(),
		InstanceID:    mapping.InstanceID,
		LineID:        mapping.LineID,
		LineName:      mapping.LineName,
		Active:        mapping.Active,
		CreatedAt:     mapping.CreatedAt,
	}

	query := `
		INSERT INTO "zbChannelMappings" (id, "integrationId", "instanceId", "lineId", "lineName", active, "createdAt")
		VALUES (:id, :integrationId, :instanceId, :lineId, :lineName, :active, :createdAt)
	`

	_, err = r.db.NamedExecContext(ctx, query, model)
	if err != nil {
		r.logger.ErrorWithFields("Failed to create channel mapping", map[string]interface{}{
			"integration_id": mapping.IntegrationID.String(),
			"instance_id":    mapping.InstanceID,
			"error":          err.Error(),
		})
		return fmt.Errorf("failed to create channel mapping: %w", err)
	}

	return nil
}

func (r *mappingRepository) GetByID(ctx context.Context, id uuid.UUID) (*channel.Mapping, error) {
	var model mappingModel
	query := `SELECT id, "integrationId", "instanceId", "lineId", "lineName", active, "createdAt" FROM "zbChannelMappings" WHERE id = $1`

	err := r.db.GetContext(ctx, &model, query, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, channel.ErrMappingNotFound
		}
		return nil, fmt.Errorf("failed to get channel mapping: %w", err)
	}

	return r.fromModel(&model)
}

func (r *mappingRepository) GetActiveByInstance(ctx context.Context, instanceID string) (*channel.Mapping, error) {
	var model mappingModel
	query := `SELECT id, "integrationId", "instanceId", "lineId", "lineName", active, "createdAt" FROM "zbChannelMappings" WHERE "instanceId" = $1 AND active`

	err := r.db.GetContext(ctx, &model, query, instanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, channel.ErrMappingNotFound
		}
		return nil, fmt.Errorf("failed to get mapping by instance: %w", err)
	}

	return r.fromModel(&model)
}

func (r *mappingRepository) ListByIntegration(ctx context.Context, integrationID uuid.UUID) ([]*channel.Mapping, error) {
	var models []mappingModel
	query := `SELECT id, "integrationId", "instanceId", "lineId", "lineName", active, "createdAt" FROM "zbChannelMappings" WHERE "integrationId" = $1 ORDER BY "createdAt"`

	err := r.db.SelectContext(ctx, &models, query, integrationID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list channel mappings: %w", err)
	}

	mappings := make([]*channel.Mapping, 0, len(models))
	for i := range models {
		mapping, err := r.fromModel(&models[i])
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, mapping)
	}

	return mappings, nil
}

func (r *mappingRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE "zbChannelMappings" SET active = FALSE WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return fmt.Errorf("failed to deactivate channel mapping: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read deactivate result: %w", err)
	}
	if rows == 0 {
		return channel.ErrMappingNotFound
	}

	return nil
}

func (r *mappingRepository) fromModel(model *mappingModel) (*channel.Mapping, error) {
	id, err := uuid.Parse(model.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid mapping id %q: %w", model.ID, err)
	}
	integrationID, err := uuid.Parse(model.IntegrationID)
	if err != nil {
		return nil, fmt.Errorf("invalid integration id %q: %w", model.IntegrationID, err)
	}

	return &channel.Mapping{
		ID:            id,
		IntegrationID: integrationID,
		InstanceID:    model.InstanceID,
		LineID:        model.LineID,
		LineName:      model.LineName,
		Active:        model.Active,
		CreatedAt:     model.CreatedAt,
	}, nil
}
