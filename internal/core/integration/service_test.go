package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"zpbitrix/internal/ports"
	"zpbitrix/platform/logger"

	"github.com/google/uuid"
)

// ============================================================================
// FAKES
// ============================================================================

type fakeRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*Integration
	updates int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: map[uuid.UUID]*Integration{}}
}

func (r *fakeRepo) clone(i *Integration) *Integration {
	cp := *i
	return &cp
}

func (r *fakeRepo) Create(_ context.Context, integ *Integration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[integ.ID] = r.clone(integ)
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	integ, ok := r.byID[id]
	if !ok {
		return nil, ErrIntegrationNotFound
	}
	return r.clone(integ), nil
}

func (r *fakeRepo) GetByWorkspace(_ context.Context, workspaceID, platform string) (*Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, integ := range r.byID {
		if integ.WorkspaceID == workspaceID && integ.Platform == platform {
			return r.clone(integ), nil
		}
	}
	return nil, ErrIntegrationNotFound
}

func (r *fakeRepo) GetByMemberID(_ context.Context, memberID string) (*Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, integ := range r.byID {
		if integ.MemberID != "" && integ.MemberID == memberID {
			return r.clone(integ), nil
		}
	}
	return nil, ErrIntegrationNotFound
}

func (r *fakeRepo) ListByDomain(_ context.Context, domain string) ([]*Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Integration
	for _, integ := range r.byID {
		if integ.Domain == domain {
			out = append(out, r.clone(integ))
		}
	}
	return out, nil
}

func (r *fakeRepo) Update(_ context.Context, integ *Integration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[integ.ID]
	if !ok {
		return ErrIntegrationNotFound
	}
	if stored.Version != integ.Version {
		return ErrStaleWrite
	}
	integ.Version++
	r.byID[integ.ID] = r.clone(integ)
	r.updates++
	return nil
}

type fakeTokens struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*LinkToken
	burned int
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{byID: map[uuid.UUID]*LinkToken{}}
}

func (r *fakeTokens) Create(_ context.Context, token *LinkToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *token
	r.byID[token.ID] = &cp
	return nil
}

func (r *fakeTokens) GetByToken(_ context.Context, value string) (*LinkToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.byID {
		if t.Token == value {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrLinkTokenInvalid
}

func (r *fakeTokens) MarkUsed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok || t.Used {
		return ErrLinkTokenInvalid
	}
	t.Used = true
	return nil
}

func (r *fakeTokens) InvalidateForWorkspace(_ context.Context, workspaceID, platform string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.byID {
		if t.WorkspaceID == workspaceID && t.Platform == platform && !t.Used {
			t.Used = true
			r.burned++
		}
	}
	return nil
}

type fakeInstances struct {
	instances []*Instance
}

func (r *fakeInstances) GetByID(_ context.Context, id string) (*Instance, error) {
	for _, inst := range r.instances {
		if inst.ID == id {
			return inst, nil
		}
	}
	return nil, errors.New("instance not found")
}

func (r *fakeInstances) ListByWorkspace(_ context.Context, workspaceID string) ([]*Instance, error) {
	var out []*Instance
	for _, inst := range r.instances {
		if inst.WorkspaceID == workspaceID {
			out = append(out, inst)
		}
	}
	return out, nil
}

type fakeOAuth struct {
	exchangeTokens *ports.OAuthTokens
	exchangeErr    error
	refreshTokens  *ports.OAuthTokens
	refreshErr     error
	refreshCalls   int
}

func (g *fakeOAuth) Exchange(_ context.Context, _ string) (*ports.OAuthTokens, error) {
	if g.exchangeErr != nil {
		return nil, g.exchangeErr
	}
	return g.exchangeTokens, nil
}

func (g *fakeOAuth) Refresh(_ context.Context, _ string) (*ports.OAuthTokens, error) {
	g.refreshCalls++
	if g.refreshErr != nil {
		return nil, g.refreshErr
	}
	return g.refreshTokens, nil
}

type noopLocker struct{}

func (noopLocker) WithLock(_ uuid.UUID, fn func() error) error { return fn() }

// ============================================================================
// HELPERS
// ============================================================================

type env struct {
	svc       *Service
	repo      *fakeRepo
	tokens    *fakeTokens
	instances *fakeInstances
	oauth     *fakeOAuth
	now       time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		repo:      newFakeRepo(),
		tokens:    newFakeTokens(),
		instances: &fakeInstances{},
		oauth:     &fakeOAuth{},
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	log := logger.New(logger.TestConfig())
	e.svc = NewService(log, e.repo, e.tokens, e.instances, e.oauth, noopLocker{})
	e.svc.SetClock(func() time.Time { return e.now })
	return e
}

func (e *env) seedIntegration(t *testing.T, mutate func(*Integration)) *Integration {
	t.Helper()
	integ := NewIntegration("ws-1")
	if mutate != nil {
		mutate(integ)
	}
	if err := e.repo.Create(context.Background(), integ); err != nil {
		t.Fatalf("seed integration: %v", err)
	}
	return integ
}

// ============================================================================
// LINK TOKENS
// ============================================================================

func TestIssueLinkTokenBurnsPreviousToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.svc.IssueLinkToken(ctx, "ws-1")
	if err != nil {
		t.Fatalf("issue first token: %v", err)
	}
	second, err := e.svc.IssueLinkToken(ctx, "ws-1")
	if err != nil {
		t.Fatalf("issue second token: %v", err)
	}
	if first.Token == second.Token {
		t.Fatal("expected distinct token values")
	}

	if _, err := e.svc.ResolveByToken(ctx, first.Token); !errors.Is(err, ErrLinkTokenInvalid) {
		t.Fatalf("expected burned token to be rejected, got %v", err)
	}
	if _, err := e.svc.ResolveByToken(ctx, second.Token); err != nil {
		t.Fatalf("expected live token to resolve: %v", err)
	}
}

func TestResolveByTokenIsSingleUse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	token, err := e.svc.IssueLinkToken(ctx, "ws-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	res, err := e.svc.ResolveByToken(ctx, token.Token)
	if err != nil {
		t.Fatalf("first redemption: %v", err)
	}
	if res.Integration.WorkspaceID != "ws-1" {
		t.Fatalf("unexpected workspace %q", res.Integration.WorkspaceID)
	}

	if _, err := e.svc.ResolveByToken(ctx, token.Token); !errors.Is(err, ErrLinkTokenInvalid) {
		t.Fatalf("expected second redemption to fail, got %v", err)
	}
}

func TestResolveByTokenRejectsExpired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	token, err := e.svc.IssueLinkToken(ctx, "ws-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	e.now = token.ExpiresAt
	if _, err := e.svc.ResolveByToken(ctx, token.Token); !errors.Is(err, ErrLinkTokenInvalid) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestResolveByTokenReturnsWorkspaceInstances(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.instances.instances = []*Instance{
		{ID: "inst-1", WorkspaceID: "ws-1", Name: "main"},
		{ID: "inst-2", WorkspaceID: "ws-2", Name: "other"},
	}

	token, err := e.svc.IssueLinkToken(ctx, "ws-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	res, err := e.svc.ResolveByToken(ctx, token.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Instances) != 1 || res.Instances[0].ID != "inst-1" {
		t.Fatalf("expected only ws-1 instances, got %+v", res.Instances)
	}
}

// ============================================================================
// CALLBACK RESOLUTION
// ============================================================================

func TestResolveByCallbackMemberIDIsAuthoritative(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seeded := e.seedIntegration(t, func(i *Integration) {
		i.MemberID = "member-1"
		i.Domain = "old.bitrix24.com"
	})

	integ, err := e.svc.ResolveByCallback(ctx, CallbackParams{MemberID: "member-1", Domain: "renamed.bitrix24.com"})
	if err != nil {
		t.Fatalf("resolve by member id: %v", err)
	}
	if integ.ID != seeded.ID {
		t.Fatalf("resolved wrong integration: %s", integ.ID)
	}
}

func TestResolveByCallbackBindsMemberIDToPendingIntegration(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seeded := e.seedIntegration(t, func(i *Integration) {
		i.Domain = "acme.bitrix24.com"
	})

	integ, err := e.svc.ResolveByCallback(ctx, CallbackParams{MemberID: "member-9", Domain: "acme.bitrix24.com"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if integ.ID != seeded.ID {
		t.Fatalf("resolved wrong integration: %s", integ.ID)
	}
	if integ.MemberID != "member-9" {
		t.Fatalf("member id not bound, got %q", integ.MemberID)
	}

	stored, err := e.repo.GetByID(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.MemberID != "member-9" {
		t.Fatalf("member id not persisted, got %q", stored.MemberID)
	}
}

func TestResolveByCallbackRejectsAmbiguousDomain(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a := NewIntegration("ws-1")
	a.Domain = "acme.bitrix24.com"
	b := NewIntegration("ws-2")
	b.Domain = "acme.bitrix24.com"
	if err := e.repo.Create(ctx, a); err != nil {
		t.Fatalf("seed a: %v", err)
	}
	if err := e.repo.Create(ctx, b); err != nil {
		t.Fatalf("seed b: %v", err)
	}

	if _, err := e.svc.ResolveByCallback(ctx, CallbackParams{Domain: "acme.bitrix24.com"}); !errors.Is(err, ErrAmbiguousIdentity) {
		t.Fatalf("expected ambiguous identity, got %v", err)
	}
}

func TestResolveByCallbackIgnoresAlreadyBoundCandidates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	bound := NewIntegration("ws-1")
	bound.Domain = "acme.bitrix24.com"
	bound.MemberID = "member-1"
	pending := NewIntegration("ws-2")
	pending.Domain = "acme.bitrix24.com"
	if err := e.repo.Create(ctx, bound); err != nil {
		t.Fatalf("seed bound: %v", err)
	}
	if err := e.repo.Create(ctx, pending); err != nil {
		t.Fatalf("seed pending: %v", err)
	}

	integ, err := e.svc.ResolveByCallback(ctx, CallbackParams{Domain: "acme.bitrix24.com"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if integ.ID != pending.ID {
		t.Fatalf("expected the pending integration, got %s", integ.ID)
	}
}

func TestResolveByCallbackRequiresSomeIdentity(t *testing.T) {
	e := newEnv(t)
	if _, err := e.svc.ResolveByCallback(context.Background(), CallbackParams{}); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("expected identity not found, got %v", err)
	}
}

func TestResolveByDomainOverwritesDomain(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seeded := e.seedIntegration(t, func(i *Integration) {
		i.Domain = "old.bitrix24.com"
	})

	integ, err := e.svc.ResolveByDomain(ctx, "new.bitrix24.com", "ws-1")
	if err != nil {
		t.Fatalf("resolve by domain: %v", err)
	}
	if integ.ID != seeded.ID {
		t.Fatalf("expected existing integration to be reused, got %s", integ.ID)
	}
	if integ.Domain != "new.bitrix24.com" {
		t.Fatalf("domain not overwritten, got %q", integ.Domain)
	}
}

// ============================================================================
// TOKEN LIFECYCLE
// ============================================================================

func TestEnsureFreshExpiryBoundary(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	expiry := e.now

	e.oauth.refreshTokens = &ports.OAuthTokens{
		AccessToken:  "fresh-access",
		RefreshToken: "fresh-refresh",
		ExpiresAt:    e.now.Add(time.Hour),
	}

	integ := e.seedIntegration(t, func(i *Integration) {
		i.AccessToken = "stale-access"
		i.RefreshToken = "stale-refresh"
		i.TokenExpiresAt = &expiry
	})

	// Expiring exactly now counts as expired and triggers a refresh.
	if err := e.svc.EnsureFresh(ctx, integ); err != nil {
		t.Fatalf("ensure fresh at boundary: %v", err)
	}
	if e.oauth.refreshCalls != 1 {
		t.Fatalf("expected one refresh, got %d", e.oauth.refreshCalls)
	}
	if integ.AccessToken != "fresh-access" {
		t.Fatalf("token not applied, got %q", integ.AccessToken)
	}

	// Now the expiry sits in the future: no further refresh.
	if err := e.svc.EnsureFresh(ctx, integ); err != nil {
		t.Fatalf("ensure fresh with valid token: %v", err)
	}
	if e.oauth.refreshCalls != 1 {
		t.Fatalf("unexpected extra refresh, got %d calls", e.oauth.refreshCalls)
	}
}

func TestEnsureFreshWebhookOnlyIntegration(t *testing.T) {
	e := newEnv(t)
	integ := e.seedIntegration(t, func(i *Integration) {
		i.WebhookURL = "https://acme.bitrix24.com/rest/1/secret/"
	})
	if err := e.svc.EnsureFresh(context.Background(), integ); err != nil {
		t.Fatalf("webhook-only integration should pass: %v", err)
	}
}

func TestEnsureFreshUnlinkedIntegration(t *testing.T) {
	e := newEnv(t)
	integ := e.seedIntegration(t, nil)
	if err := e.svc.EnsureFresh(context.Background(), integ); !errors.Is(err, ErrNotLinked) {
		t.Fatalf("expected ErrNotLinked, got %v", err)
	}
}

func TestRefreshPortalRejectionIsSticky(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	expiry := e.now.Add(-time.Minute)

	e.oauth.refreshErr = &ports.PortalError{Code: ports.PortalErrInvalidGrant, HTTPStatus: 400}

	integ := e.seedIntegration(t, func(i *Integration) {
		i.AccessToken = "stale"
		i.RefreshToken = "revoked"
		i.TokenExpiresAt = &expiry
	})

	if err := e.svc.EnsureFresh(ctx, integ); !errors.Is(err, ErrTokenRefreshFailed) {
		t.Fatalf("expected ErrTokenRefreshFailed, got %v", err)
	}
	if !integ.TokenRefreshFailed {
		t.Fatal("expected sticky failure flag on the record")
	}

	stored, err := e.repo.GetByID(ctx, integ.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !stored.TokenRefreshFailed {
		t.Fatal("sticky failure flag not persisted")
	}

	// Subsequent calls short-circuit without touching the gateway again.
	calls := e.oauth.refreshCalls
	if err := e.svc.EnsureFresh(ctx, integ); !errors.Is(err, ErrTokenRefreshFailed) {
		t.Fatalf("expected short-circuit failure, got %v", err)
	}
	if e.oauth.refreshCalls != calls {
		t.Fatalf("gateway called again despite sticky flag: %d -> %d", calls, e.oauth.refreshCalls)
	}
}

func TestRefreshTransientErrorIsNotSticky(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	expiry := e.now.Add(-time.Minute)

	e.oauth.refreshErr = errors.New("dial tcp: connection refused")

	integ := e.seedIntegration(t, func(i *Integration) {
		i.AccessToken = "stale"
		i.RefreshToken = "still-good"
		i.TokenExpiresAt = &expiry
	})

	err := e.svc.EnsureFresh(ctx, integ)
	if err == nil || errors.Is(err, ErrTokenRefreshFailed) {
		t.Fatalf("expected a plain transport error, got %v", err)
	}
	if integ.TokenRefreshFailed {
		t.Fatal("transient error must not set the sticky flag")
	}

	// Once the network recovers the refresh succeeds normally.
	e.oauth.refreshErr = nil
	e.oauth.refreshTokens = &ports.OAuthTokens{
		AccessToken:  "fresh",
		RefreshToken: "rotated",
		ExpiresAt:    e.now.Add(time.Hour),
	}
	if err := e.svc.EnsureFresh(ctx, integ); err != nil {
		t.Fatalf("refresh after recovery: %v", err)
	}
	if integ.AccessToken != "fresh" {
		t.Fatalf("token not applied after recovery, got %q", integ.AccessToken)
	}
}

func TestExchangeClearsStickyFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.oauth.exchangeTokens = &ports.OAuthTokens{
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
		ExpiresAt:    e.now.Add(time.Hour),
		MemberID:     "member-1",
		Domain:       "acme.bitrix24.com",
	}

	integ := e.seedIntegration(t, func(i *Integration) {
		i.AccessToken = "dead"
		i.RefreshToken = "dead"
		i.TokenRefreshFailed = true
	})

	out, err := e.svc.Exchange(ctx, integ.ID, "auth-code")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if out.TokenRefreshFailed {
		t.Fatal("exchange must clear the sticky failure flag")
	}
	if out.AccessToken != "new-access" || out.RefreshToken != "new-refresh" {
		t.Fatalf("tokens not applied: %+v", out)
	}
	if out.MemberID != "member-1" || out.Domain != "acme.bitrix24.com" {
		t.Fatalf("portal identity echo not adopted: member=%q domain=%q", out.MemberID, out.Domain)
	}
}

func TestRefreshSkipsWhenAnotherRequestAlreadyRefreshed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	expiry := e.now.Add(-time.Minute)

	integ := e.seedIntegration(t, func(i *Integration) {
		i.AccessToken = "stale"
		i.RefreshToken = "stale-refresh"
		i.TokenExpiresAt = &expiry
	})

	// Simulate a concurrent refresh that already landed: the stored record
	// carries a newer version and a valid token.
	stored, err := e.repo.GetByID(ctx, integ.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	fresh := e.now.Add(time.Hour)
	stored.AccessToken = "already-fresh"
	stored.TokenExpiresAt = &fresh
	if err := e.repo.Update(ctx, stored); err != nil {
		t.Fatalf("simulate concurrent refresh: %v", err)
	}

	if err := e.svc.Refresh(ctx, integ); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if e.oauth.refreshCalls != 0 {
		t.Fatalf("gateway must not be called, got %d calls", e.oauth.refreshCalls)
	}
	if integ.AccessToken != "already-fresh" {
		t.Fatalf("expected the concurrent result to be adopted, got %q", integ.AccessToken)
	}
}

func TestSaveWebhookRequiresURL(t *testing.T) {
	e := newEnv(t)
	if _, err := e.svc.SaveWebhook(context.Background(), "ws-1", "", ""); err == nil {
		t.Fatal("expected error for empty webhook URL")
	}
}

func TestSetActive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	integ := e.seedIntegration(t, nil)

	if err := e.svc.SetActive(ctx, integ.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	stored, err := e.repo.GetByID(ctx, integ.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Active {
		t.Fatal("expected integration to be inactive")
	}
}
