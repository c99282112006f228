package integration

import (
	"context"
	"fmt"
	"time"

	"zpbitrix/internal/ports"
	"zpbitrix/platform/logger"

	"github.com/google/uuid"
)

// Service resolves portal identities and manages OAuth credentials for one
// platform type. All mutating paths are serialized per integration.
type Service struct {
	logger     *logger.Logger
	repository Repository
	tokens     LinkTokenRepository
	instances  InstanceRepository
	oauth      ports.OAuthGateway
	locker     Locker
	now        func() time.Time
}

func NewService(logger *logger.Logger, repository Repository, tokens LinkTokenRepository, instances InstanceRepository, oauth ports.OAuthGateway, locker Locker) *Service {
	return &Service{
		logger:     logger,
		repository: repository,
		tokens:     tokens,
		instances:  instances,
		oauth:      oauth,
		locker:     locker,
		now:        time.Now,
	}
}

// SetClock overrides the service clock. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ============================================================================
// IDENTITY RESOLUTION
// ============================================================================

// ResolveResult is what a successful identity resolution hands back to the
// caller: the bound integration and the workspace's instances.
type ResolveResult struct {
	Integration *Integration `json:"integration"`
	Instances   []*Instance  `json:"instances"`
}

// IssueLinkToken mints a fresh linking token for the workspace, burning any
// previous live one so exactly one usable token exists at a time.
func (s *Service) IssueLinkToken(ctx context.Context, workspaceID string) (*LinkToken, error) {
	if err := s.tokens.InvalidateForWorkspace(ctx, workspaceID, PlatformBitrix); err != nil {
		return nil, fmt.Errorf("failed to invalidate previous link tokens: %w", err)
	}

	token := NewLinkToken(workspaceID, DefaultLinkTokenTTL)
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to create link token: %w", err)
	}

	s.logger.InfoWithFields("Link token issued", map[string]interface{}{
		"workspace_id": workspaceID,
		"expires_at":   token.ExpiresAt,
	})

	return token, nil
}

// ResolveByToken redeems a linking token. The token becomes unusable the
// instant it is consumed; a second call with the same value fails.
func (s *Service) ResolveByToken(ctx context.Context, tokenValue string) (*ResolveResult, error) {
	token, err := s.tokens.GetByToken(ctx, tokenValue)
	if err != nil {
		return nil, ErrLinkTokenInvalid
	}

	if !token.IsUsable(s.now()) {
		s.logger.WarnWithFields("Rejected unusable link token", map[string]interface{}{
			"workspace_id": token.WorkspaceID,
			"used":         token.Used,
			"expires_at":   token.ExpiresAt,
		})
		return nil, ErrLinkTokenInvalid
	}

	if err := s.tokens.MarkUsed(ctx, token.ID); err != nil {
		return nil, fmt.Errorf("failed to consume link token: %w", err)
	}

	integ, err := s.findOrCreate(ctx, token.WorkspaceID)
	if err != nil {
		return nil, err
	}

	instances, err := s.instances.ListByWorkspace(ctx, token.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace instances: %w", err)
	}

	s.logger.InfoWithFields("Workspace bound via link token", map[string]interface{}{
		"workspace_id":   token.WorkspaceID,
		"integration_id": integ.ID.String(),
		"instances":      len(instances),
	})

	return &ResolveResult{Integration: integ, Instances: instances}, nil
}

// ResolveByDomain binds an already-installed portal, identified by domain, to
// a workspace the user chose explicitly. Any prior domain binding on that
// integration is overwritten.
func (s *Service) ResolveByDomain(ctx context.Context, domain, workspaceID string) (*Integration, error) {
	if domain == "" || workspaceID == "" {
		return nil, ErrIdentityNotFound
	}

	integ, err := s.findOrCreate(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	return integ, s.locker.WithLock(integ.ID, func() error {
		current, err := s.repository.GetByID(ctx, integ.ID)
		if err != nil {
			return err
		}
		current.Domain = domain
		current.UpdatedAt = s.now()
		if err := s.repository.Update(ctx, current); err != nil {
			return err
		}
		*integ = *current
		return nil
	})
}

// CallbackParams are the identity fields the portal supplies on its
// installation callback.
type CallbackParams struct {
	MemberID string `json:"memberId"`
	Domain   string `json:"domain"`
}

// ResolveByCallback resolves the integration an installation callback refers
// to. A member id is authoritative. A bare domain is accepted only when it
// matches exactly one integration still waiting for installation; anything
// else is rejected rather than silently guessed.
func (s *Service) ResolveByCallback(ctx context.Context, params CallbackParams) (*Integration, error) {
	if params.MemberID != "" {
		integ, err := s.repository.GetByMemberID(ctx, params.MemberID)
		if err == nil {
			return integ, nil
		}
		if params.Domain == "" {
			return nil, ErrIdentityNotFound
		}
	}

	if params.Domain == "" {
		return nil, ErrIdentityNotFound
	}

	candidates, err := s.repository.ListByDomain(ctx, params.Domain)
	if err != nil {
		return nil, fmt.Errorf("failed to look up domain %s: %w", params.Domain, err)
	}

	pending := candidates[:0:0]
	for _, c := range candidates {
		if c.MemberID == "" {
			pending = append(pending, c)
		}
	}

	switch len(pending) {
	case 0:
		return nil, ErrIdentityNotFound
	case 1:
	default:
		s.logger.WarnWithFields("Ambiguous installation callback", map[string]interface{}{
			"domain":     params.Domain,
			"candidates": len(pending),
		})
		return nil, ErrAmbiguousIdentity
	}

	integ := pending[0]
	if params.MemberID != "" {
		err = s.locker.WithLock(integ.ID, func() error {
			current, err := s.repository.GetByID(ctx, integ.ID)
			if err != nil {
				return err
			}
			current.MemberID = params.MemberID
			current.UpdatedAt = s.now()
			if err := s.repository.Update(ctx, current); err != nil {
				return err
			}
			*integ = *current
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return integ, nil
}

// ============================================================================
// OAUTH TOKEN MANAGEMENT
// ============================================================================

// Exchange swaps an authorization code for a token set and persists it on the
// integration. A successful exchange clears any sticky refresh failure.
func (s *Service) Exchange(ctx context.Context, integrationID uuid.UUID, code string) (*Integration, error) {
	tokens, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("authorization code exchange failed: %w", err)
	}

	var out *Integration
	err = s.locker.WithLock(integrationID, func() error {
		integ, err := s.repository.GetByID(ctx, integrationID)
		if err != nil {
			return err
		}
		s.applyTokens(integ, tokens)
		if err := s.repository.Update(ctx, integ); err != nil {
			return err
		}
		out = integ
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoWithFields("OAuth tokens stored", map[string]interface{}{
		"integration_id": integrationID.String(),
		"domain":         out.Domain,
		"expires_at":     out.TokenExpiresAt,
	})

	return out, nil
}

// IsExpired is the pure predicate every outbound call site checks first.
func (s *Service) IsExpired(integ *Integration) bool {
	return integ.IsTokenExpired(s.now())
}

// EnsureFresh refreshes the access token if and only if it is expired.
// A sticky refresh failure short-circuits: only re-authorization clears it.
func (s *Service) EnsureFresh(ctx context.Context, integ *Integration) error {
	if !integ.HasOAuth() {
		if integ.WebhookURL != "" {
			return nil
		}
		return ErrNotLinked
	}

	if integ.TokenRefreshFailed {
		return ErrTokenRefreshFailed
	}

	if !integ.IsTokenExpired(s.now()) {
		return nil
	}

	return s.Refresh(ctx, integ)
}

// Refresh forces a refresh-token grant. When the portal rejects the refresh
// token the failure is flagged on the record and surfaced until the user
// re-authorizes; transient transport errors are not sticky.
func (s *Service) Refresh(ctx context.Context, integ *Integration) error {
	return s.locker.WithLock(integ.ID, func() error {
		current, err := s.repository.GetByID(ctx, integ.ID)
		if err != nil {
			return err
		}

		// Another request may have refreshed while we waited for the lock.
		if current.Version != integ.Version && !current.IsTokenExpired(s.now()) {
			*integ = *current
			return nil
		}

		tokens, err := s.oauth.Refresh(ctx, current.RefreshToken)
		if err != nil {
			if ports.IsTokenError(err) {
				current.TokenRefreshFailed = true
				current.UpdatedAt = s.now()
				if updateErr := s.repository.Update(ctx, current); updateErr != nil {
					s.logger.ErrorWithFields("Failed to persist refresh failure flag", map[string]interface{}{
						"integration_id": current.ID.String(),
						"error":          updateErr.Error(),
					})
				}
				*integ = *current
				s.logger.WarnWithFields("Portal rejected refresh token", map[string]interface{}{
					"integration_id": current.ID.String(),
					"domain":         current.Domain,
				})
				return ErrTokenRefreshFailed
			}
			return fmt.Errorf("token refresh failed: %w", err)
		}

		s.applyTokens(current, tokens)
		if err := s.repository.Update(ctx, current); err != nil {
			return err
		}
		*integ = *current
		return nil
	})
}

// applyTokens overwrites the stored token set atomically with the new expiry
// and clears the sticky failure flag.
func (s *Service) applyTokens(integ *Integration, tokens *ports.OAuthTokens) {
	integ.AccessToken = tokens.AccessToken
	integ.RefreshToken = tokens.RefreshToken
	expiresAt := tokens.ExpiresAt
	integ.TokenExpiresAt = &expiresAt
	integ.TokenRefreshFailed = false
	if tokens.MemberID != "" {
		integ.MemberID = tokens.MemberID
	}
	if tokens.Domain != "" {
		integ.Domain = tokens.Domain
	}
	integ.UpdatedAt = s.now()
}

// ============================================================================
// STATIC WEBHOOK CREDENTIAL
// ============================================================================

// SaveWebhook stores an inbound webhook URL as the static-credential
// alternative to OAuth for the given workspace.
func (s *Service) SaveWebhook(ctx context.Context, workspaceID, domain, webhookURL string) (*Integration, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}

	integ, err := s.findOrCreate(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	err = s.locker.WithLock(integ.ID, func() error {
		current, err := s.repository.GetByID(ctx, integ.ID)
		if err != nil {
			return err
		}
		current.WebhookURL = webhookURL
		if domain != "" {
			current.Domain = domain
		}
		current.UpdatedAt = s.now()
		if err := s.repository.Update(ctx, current); err != nil {
			return err
		}
		*integ = *current
		return nil
	})
	if err != nil {
		return nil, err
	}

	return integ, nil
}

// ============================================================================
// LOOKUPS
// ============================================================================

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Integration, error) {
	return s.repository.GetByID(ctx, id)
}

func (s *Service) GetInstance(ctx context.Context, id string) (*Instance, error) {
	return s.instances.GetByID(ctx, id)
}

func (s *Service) ListInstances(ctx context.Context, workspaceID string) ([]*Instance, error) {
	return s.instances.ListByWorkspace(ctx, workspaceID)
}

// SetActive soft-disables or re-enables the integration. Records are never
// hard-deleted while mappings reference them.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.locker.WithLock(id, func() error {
		integ, err := s.repository.GetByID(ctx, id)
		if err != nil {
			return err
		}
		integ.Active = active
		integ.UpdatedAt = s.now()
		return s.repository.Update(ctx, integ)
	})
}

func (s *Service) findOrCreate(ctx context.Context, workspaceID string) (*Integration, error) {
	integ, err := s.repository.GetByWorkspace(ctx, workspaceID, PlatformBitrix)
	if err == nil {
		return integ, nil
	}

	integ = NewIntegration(workspaceID)
	if err := s.repository.Create(ctx, integ); err != nil {
		return nil, fmt.Errorf("failed to create integration for workspace %s: %w", workspaceID, err)
	}

	s.logger.InfoWithFields("Integration created", map[string]interface{}{
		"integration_id": integ.ID.String(),
		"workspace_id":   workspaceID,
	})

	return integ, nil
}
