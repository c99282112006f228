package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"zpbitrix/internal/core/integration"
	"zpbitrix/platform/logger"
)

type linkTokenRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

func NewLinkTokenRepository(db *sqlx.DB, logger *logger.Logger) integration.LinkTokenRepository {
	return &linkTokenRepository{
		db:     db,
		logger: logger,
	}
}

type linkTokenModel struct {
	ID          string    `db:"id"`
	Token       string    `db:"token"`
	WorkspaceID string    `db:"workspaceId"`
	Platform    string    `db:"platform"`
	Used        bool      `db:"used"`
	ExpiresAt   time.Time `db:"expiresAt"`
	CreatedAt   time.Time `db:"createdAt"`
}

func (r *linkTokenRepository) Create(ctx context.Context, token *integration.LinkToken) error {
	model := &linkTokenModel{
		ID:          token.ID.String(),
		Token:       token.Token,
		WorkspaceID: token.WorkspaceID,
		Platform:    token.Platform,
		Used:        token.Used,
		ExpiresAt:   token.ExpiresAt,
		CreatedAt:   token.CreatedAt,
	}

	query := `
		INSERT INTO "zbLinkTokens" (id, token, "workspaceId", platform, used, "expiresAt", "createdAt")
		VALUES (:id, :token, :workspaceId, :platform, :used, :expiresAt, :createdAt)
	`

	_, err := r.db.NamedExecContext(ctx, query, model)
	if err != nil {
		r.logger.ErrorWithFields("Failed to create link token", map[string]interface{}{
			"workspace_id": token.WorkspaceID,
			"error":        err.Error(),
		})
		return fmt.Errorf("failed to create link token: %w", err)
	}

	return nil
}

func (r *linkTokenRepository) GetByToken(ctx context.Context, tokenValue string) (*integration.LinkToken, error) {
	var model linkTokenModel
	query := `SELECT id, token, "workspaceId", platform, used, "expiresAt", "createdAt" FROM "zbLinkTokens" WHERE token = $1`

	err := r.db.GetContext(ctx, &model, query, tokenValue)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, integration.ErrLinkTokenInvalid
		}
		return nil, fmt.Errorf("failed to get link token: %w", err)
	}

	id, err := uuid.Parse(model.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid link token id %q: %w", model.ID, err)
	}

	return &integration.LinkToken{
		ID:          id,
		Token:       model.Token,
		WorkspaceID: model.WorkspaceID,
		Platform:    model.Platform,
		Used:        model.Used,
		ExpiresAt:   model.ExpiresAt,
		CreatedAt:   model.CreatedAt,
	}, nil
}

// MarkUsed consumes the token. The WHERE clause on used makes consumption
// first-writer-wins: a second concurrent redeem finds zero rows.
func (r *linkTokenRepository) MarkUsed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE "zbLinkTokens" SET used = TRUE WHERE id = $1 AND used = FALSE`

	result, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return fmt.Errorf("failed to mark link token used: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read mark result: %w", err)
	}
	if rows == 0 {
		return integration.ErrLinkTokenInvalid
	}

	return nil
}

func (r *linkTokenRepository) InvalidateForWorkspace(ctx context.Context, workspaceID, platform string) error {
	query := `UPDATE "zbLinkTokens" SET used = TRUE WHERE "workspaceId" = $1 AND platform = $2 AND used = FALSE`

	_, err := r.db.ExecContext(ctx, query, workspaceID, platform)
	if err != nil {
		return fmt.Errorf("failed to invalidate link tokens: %w", err)
	}

	return nil
}
