package integration

import (
	"context"

	"github.com/google/uuid"
)

// Repository interface para persistência de integrações
type Repository interface {
	Create(ctx context.Context, integration *Integration) error
	GetByID(ctx context.Context, id uuid.UUID) (*Integration, error)
	GetByWorkspace(ctx context.Context, workspaceID, platform string) (*Integration, error)
	GetByMemberID(ctx context.Context, memberID string) (*Integration, error)
	// ListByDomain returns every integration bound to the given portal domain.
	ListByDomain(ctx context.Context, domain string) ([]*Integration, error)
	// Update persists the record with an optimistic version check and bumps
	// the version. Returns ErrStaleWrite when the stored version moved on.
	Update(ctx context.Context, integration *Integration) error
}

// LinkTokenRepository interface para persistência de tokens de vinculação
type LinkTokenRepository interface {
	Create(ctx context.Context, token *LinkToken) error
	GetByToken(ctx context.Context, token string) (*LinkToken, error)
	MarkUsed(ctx context.Context, id uuid.UUID) error
	// InvalidateForWorkspace burns every live token of the workspace so
	// that at most one usable token exists at a time.
	InvalidateForWorkspace(ctx context.Context, workspaceID, platform string) error
}

// InstanceRepository read-only view over the workspace's WhatsApp numbers.
type InstanceRepository interface {
	GetByID(ctx context.Context, id string) (*Instance, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*Instance, error)
}

// Locker serializes mutating operations against one integration record.
// Concurrent register/clean/refresh calls on the same integration interleave
// badly against the remote portal, so every mutating path runs under it.
type Locker interface {
	WithLock(id uuid.UUID, fn func() error) error
}
