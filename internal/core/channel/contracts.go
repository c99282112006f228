package channel

import (
	"context"

	"zpbitrix/internal/core/integration"

	"github.com/google/uuid"
)

// Repository persists instance/line mappings. Create enforces the two
// exclusivity rules and returns ErrMappingConflict when either side of the
// new mapping is already taken by an active one.
type Repository interface {
	Create(ctx context.Context, mapping *Mapping) error
	GetByID(ctx context.Context, id uuid.UUID) (*Mapping, error)
	GetActiveByInstance(ctx context.Context, instanceID string) (*Mapping, error)
	ListByIntegration(ctx context.Context, integrationID uuid.UUID) ([]*Mapping, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// InstanceStore validates that an instance exists before mapping it.
type InstanceStore interface {
	GetByID(ctx context.Context, id string) (*integration.Instance, error)
}

// IntegrationStore loads the owning integration for validation.
type IntegrationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*integration.Integration, error)
}

// Locker serializes mapping mutations per integration.
type Locker interface {
	WithLock(id uuid.UUID, fn func() error) error
}
