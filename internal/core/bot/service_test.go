package bot

import (
	"context"
	"errors"
	"testing"

	"zpbitrix/internal/core/integration"
	"zpbitrix/internal/ports"
	"zpbitrix/platform/logger"

	"github.com/google/uuid"
)

// ============================================================================
// FAKES
// ============================================================================

type fakeStore struct {
	byID map[uuid.UUID]*integration.Integration
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: map[uuid.UUID]*integration.Integration{}}
}

func (s *fakeStore) put(integ *integration.Integration) {
	cp := *integ
	s.byID[integ.ID] = &cp
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*integration.Integration, error) {
	integ, ok := s.byID[id]
	if !ok {
		return nil, integration.ErrIntegrationNotFound
	}
	cp := *integ
	return &cp, nil
}

func (s *fakeStore) Update(_ context.Context, integ *integration.Integration) error {
	cp := *integ
	s.byID[integ.ID] = &cp
	return nil
}

type fakeTokenManager struct{ err error }

func (m *fakeTokenManager) EnsureFresh(_ context.Context, _ *integration.Integration) error {
	return m.err
}

type noopLocker struct{}

func (noopLocker) WithLock(_ uuid.UUID, fn func() error) error { return fn() }

type fakePortal struct {
	botID        string
	botErr       error
	botRequests  []ports.RegisterBotRequest
	unregistered []string

	robotRequests []ports.RegisterRobotRequest
	robotRemovals []string
	robotErr      error

	smsRequests []ports.RegisterSMSProviderRequest
	smsErr      error
}

func (p *fakePortal) RegisterBot(_ context.Context, req ports.RegisterBotRequest) (string, error) {
	if p.botErr != nil {
		return "", p.botErr
	}
	p.botRequests = append(p.botRequests, req)
	return p.botID, nil
}

func (p *fakePortal) UnregisterBot(_ context.Context, botID string) error {
	p.unregistered = append(p.unregistered, botID)
	return nil
}

func (p *fakePortal) RegisterRobot(_ context.Context, req ports.RegisterRobotRequest) error {
	if p.robotErr != nil {
		return p.robotErr
	}
	p.robotRequests = append(p.robotRequests, req)
	return nil
}

func (p *fakePortal) UnregisterRobot(_ context.Context, code string) error {
	p.robotRemovals = append(p.robotRemovals, code)
	return nil
}

func (p *fakePortal) RegisterSMSProvider(_ context.Context, req ports.RegisterSMSProviderRequest) error {
	if p.smsErr != nil {
		return p.smsErr
	}
	p.smsRequests = append(p.smsRequests, req)
	return nil
}

func (p *fakePortal) RegisterConnector(_ context.Context, _ ports.RegisterConnectorRequest) error {
	return nil
}
func (p *fakePortal) UnregisterConnector(_ context.Context, _ string) error { return nil }
func (p *fakePortal) ListConnectors(_ context.Context) ([]ports.PortalConnector, error) {
	return nil, nil
}
func (p *fakePortal) ActivateConnector(_ context.Context, _, _ string, _ bool) error { return nil }
func (p *fakePortal) ConnectorStatus(_ context.Context, _, _ string) (*ports.PortalConnectorStatus, error) {
	return nil, nil
}
func (p *fakePortal) ListLines(_ context.Context) ([]ports.PortalLine, error) { return nil, nil }
func (p *fakePortal) CreateLine(_ context.Context, _ string) (*ports.PortalLine, error) {
	return nil, nil
}
func (p *fakePortal) FirePlacement(_ context.Context, _ string, _ map[string]string) (*ports.PlacementResponse, error) {
	return nil, nil
}

type fakeFactory struct{ portal *fakePortal }

func (f *fakeFactory) ClientFor(_, _ string) ports.PortalClient { return f.portal }

// ============================================================================
// HELPERS
// ============================================================================

func newTestService(store *fakeStore, portal *fakePortal) *Service {
	log := logger.New(logger.TestConfig())
	return NewService(log, store, &fakeTokenManager{}, &fakeFactory{portal: portal}, noopLocker{}, "https://api.example.com/events/bot")
}

func seedLinked(store *fakeStore) *integration.Integration {
	integ := integration.NewIntegration("ws-1")
	integ.Domain = "acme.bitrix24.com"
	integ.AccessToken = "token"
	store.put(integ)
	return integ
}

// ============================================================================
// BOT
// ============================================================================

func TestRegisterBotAppliesDefaults(t *testing.T) {
	store := newFakeStore()
	integ := seedLinked(store)
	portal := &fakePortal{botID: "314"}
	svc := newTestService(store, portal)

	out, err := svc.RegisterBot(context.Background(), integ.ID, Options{})
	if err != nil {
		t.Fatalf("register bot: %v", err)
	}
	if out.BotID != "314" || !out.BotEnabled {
		t.Fatalf("bot state %+v", out)
	}
	if out.BotWelcomeMessage != DefaultWelcomeMessage {
		t.Fatalf("welcome message %q", out.BotWelcomeMessage)
	}
	if len(portal.botRequests) != 1 {
		t.Fatalf("portal requests %v", portal.botRequests)
	}
	req := portal.botRequests[0]
	if req.Name != DefaultBotName {
		t.Fatalf("bot name %q", req.Name)
	}
	if req.Code != "zb_bot_ws_1" {
		t.Fatalf("bot code %q", req.Code)
	}
}

func TestRegisterBotIsIdempotent(t *testing.T) {
	store := newFakeStore()
	integ := seedLinked(store)
	portal := &fakePortal{botID: "314"}
	svc := newTestService(store, portal)

	if _, err := svc.RegisterBot(context.Background(), integ.ID, Options{}); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	out, err := svc.RegisterBot(context.Background(), integ.ID, Options{Name: "Another"})
	if err != nil {
		t.Fatalf("second registration: %v", err)
	}
	if out.BotID != "314" {
		t.Fatalf("stored bot id lost, got %q", out.BotID)
	}
	if len(portal.botRequests) != 1 {
		t.Fatalf("a second remote registration happened: %v", portal.botRequests)
	}
}

func TestRegisterBotCustomOptions(t *testing.T) {
	store := newFakeStore()
	integ := seedLinked(store)
	portal := &fakePortal{botID: "9"}
	svc := newTestService(store, portal)

	out, err := svc.RegisterBot(context.Background(), integ.ID, Options{Name: "Atendimento", WelcomeMessage: "Bem-vindo!"})
	if err != nil {
		t.Fatalf("register bot: %v", err)
	}
	if portal.botRequests[0].Name != "Atendimento" {
		t.Fatalf("bot name %q", portal.botRequests[0].Name)
	}
	if out.BotWelcomeMessage != "Bem-vindo!" {
		t.Fatalf("welcome message %q", out.BotWelcomeMessage)
	}
}

func TestUnregisterBot(t *testing.T) {
	store := newFakeStore()
	integ := seedLinked(store)
	integ.BotID = "314"
	integ.BotEnabled = true
	integ.BotPersonaID = "persona-9"
	integ.BotWelcomeMessage = "Hi there"
	store.put(integ)
	portal := &fakePortal{}
	svc := newTestService(store, portal)

	if err := svc.UnregisterBot(context.Background(), integ.ID); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if len(portal.unregistered) != 1 || portal.unregistered[0] != "314" {
		t.Fatalf("portal removals %v", portal.unregistered)
	}
	stored, _ := store.GetByID(context.Background(), integ.ID)
	if stored.BotID != "" || stored.BotEnabled {
		t.Fatalf("bot fields not cleared: %+v", stored)
	}
	if stored.BotPersonaID != "" || stored.BotWelcomeMessage != "" {
		t.Fatalf("bot config must be fully cleared: %+v", stored)
	}

	// Without a stored id the call is a no-op.
	if err := svc.UnregisterBot(context.Background(), integ.ID); err != nil {
		t.Fatalf("repeated unregister: %v", err)
	}
	if len(portal.unregistered) != 1 {
		t.Fatalf("extra portal removal %v", portal.unregistered)
	}
}

func TestRegisterBotSurfacesPortalError(t *testing.T) {
	store := newFakeStore()
	integ := seedLinked(store)
	portal := &fakePortal{botErr: &ports.PortalError{Code: "some_error", HTTPStatus: 400}}
	svc := newTestService(store, portal)

	if _, err := svc.RegisterBot(context.Background(), integ.ID, Options{}); err == nil {
		t.Fatal("expected portal failure to surface")
	}
	stored, _ := store.GetByID(context.Background(), integ.ID)
	if stored.BotID != "" || stored.BotEnabled {
		t.Fatalf("failed registration must not mark the record: %+v", stored)
	}
}

// ============================================================================
// ROBOT AND SMS PROVIDER
// ============================================================================

func TestRegisterRobotIdempotentOnFlag(t *testing.T) {
	store := newFakeStore()
	integ := seedLinked(store)
	portal := &fakePortal{}
	svc := newTestService(store, portal)

	out, err := svc.RegisterRobot(context.Background(), integ.ID)
	if err != nil {
		t.Fatalf("register robot: %v", err)
	}
	if !out.RobotRegistered {
		t.Fatal("flag not set")
	}
	if portal.robotRequests[0].Code != "zb_robot_ws_1" {
		t.Fatalf("robot code %q", portal.robotRequests[0].Code)
	}

	if _, err := svc.RegisterRobot(context.Background(), integ.ID); err != nil {
		t.Fatalf("second registration: %v", err)
	}
	if len(portal.robotRequests) != 1 {
		t.Fatalf("remote registration repeated: %v", portal.robotRequests)
	}
}

func TestUnregisterRobot(t *testing.T) {
	store := newFakeStore()
	integ := seedLinked(store)
	integ.RobotRegistered = true
	store.put(integ)
	portal := &fakePortal{}
	svc := newTestService(store, portal)

	if err := svc.UnregisterRobot(context.Background(), integ.ID); err != nil {
		t.Fatalf("unregister robot: %v", err)
	}
	if len(portal.robotRemovals) != 1 || portal.robotRemovals[0] != "zb_robot_ws_1" {
		t.Fatalf("portal removals %v", portal.robotRemovals)
	}
	stored, _ := store.GetByID(context.Background(), integ.ID)
	if stored.RobotRegistered {
		t.Fatal("flag not cleared")
	}
}

func TestRegisterSMSProviderIdempotentOnFlag(t *testing.T) {
	store := newFakeStore()
	integ := seedLinked(store)
	portal := &fakePortal{}
	svc := newTestService(store, portal)

	out, err := svc.RegisterSMSProvider(context.Background(), integ.ID)
	if err != nil {
		t.Fatalf("register sms provider: %v", err)
	}
	if !out.SMSProviderRegistered {
		t.Fatal("flag not set")
	}
	if len(portal.smsRequests) != 1 || portal.smsRequests[0].Code != "zb_sms" {
		t.Fatalf("sms requests %v", portal.smsRequests)
	}

	if _, err := svc.RegisterSMSProvider(context.Background(), integ.ID); err != nil {
		t.Fatalf("second registration: %v", err)
	}
	if len(portal.smsRequests) != 1 {
		t.Fatalf("remote registration repeated: %v", portal.smsRequests)
	}
}

func TestRegisterRobotRequiresUsableToken(t *testing.T) {
	store := newFakeStore()
	integ := seedLinked(store)
	log := logger.New(logger.TestConfig())
	svc := NewService(log, store, &fakeTokenManager{err: integration.ErrTokenRefreshFailed}, &fakeFactory{portal: &fakePortal{}}, noopLocker{}, "https://api.example.com/events/bot")

	if _, err := svc.RegisterRobot(context.Background(), integ.ID); !errors.Is(err, integration.ErrTokenRefreshFailed) {
		t.Fatalf("expected token failure to surface, got %v", err)
	}
}
