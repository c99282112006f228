package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"zpbitrix/internal/core/integration"
	"zpbitrix/platform/logger"
)

// instanceRepository reads connected WhatsApp numbers. The messaging side
// owns those rows; nothing here writes them.
type instanceRepository struct {
	db     *sqlx.DB
	logger *logger.Logger
}

func NewInstanceRepository(db *sqlx.DB, logger *logger.Logger) integration.InstanceRepository {
	return &instanceRepository{
		db:     db,
		logger: logger,
	}
}

type instanceModel struct {
	ID          string    `db:"id"`
	WorkspaceID string    `db:"workspaceId"`
	Name        string    `db:"name"`
	PhoneNumber string    `db:"phoneNumber"`
	Connected   bool      `db:"connected"`
	CreatedAt   time.Time `db:"createdAt"`
}

func (r *instanceRepository) GetByID(ctx context.Context, id string) (*integration.Instance, error) {
	var model instanceModel
	query := `SELECT id, "workspaceId", name, "phoneNumber", connected, "createdAt" FROM "zbInstances" WHERE id = $1`

	err := r.db.GetContext(ctx, &model, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("instance %s not found", id)
		}
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	return instanceFromModel(&model), nil
}

func (r *instanceRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*integration.Instance, error) {
	var models []instanceModel
	query := `SELECT id, "workspaceId", name, "phoneNumber", connected, "createdAt" FROM "zbInstances" WHERE "workspaceId" = $1 ORDER BY "createdAt"`

	err := r.db.SelectContext(ctx, &models, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	instances := make([]*integration.Instance, 0, len(models))
	for i := range models {
		instances = append(instances, instanceFromModel(&models[i]))
	}

	return instances, nil
}

func instanceFromModel(model *instanceModel) *integration.Instance {
	return &integration.Instance{
		ID:          model.ID,
		WorkspaceID: model.WorkspaceID,
		Name:        model.Name,
		PhoneNumber: model.PhoneNumber,
		Connected:   model.Connected,
		CreatedAt:   model.CreatedAt,
	}
}
