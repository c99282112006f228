package connector

import (
	"context"

	"zpbitrix/internal/core/integration"

	"github.com/google/uuid"
)

// IntegrationStore is the slice of the integration repository this package
// mutates: load by id, persist with the version check.
type IntegrationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*integration.Integration, error)
	Update(ctx context.Context, integ *integration.Integration) error
}

// TokenManager guarantees a usable access token before any portal call.
type TokenManager interface {
	EnsureFresh(ctx context.Context, integ *integration.Integration) error
}

// Locker serializes mutating operations per integration.
type Locker interface {
	WithLock(id uuid.UUID, fn func() error) error
}
