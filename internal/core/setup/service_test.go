package setup

import (
	"context"
	"errors"
	"testing"

	"zpbitrix/internal/core/bot"
	"zpbitrix/internal/core/channel"
	"zpbitrix/internal/core/connector"
	"zpbitrix/internal/core/integration"
	"zpbitrix/internal/ports"
	"zpbitrix/platform/logger"

	"github.com/google/uuid"
)

// ============================================================================
// FAKES
// ============================================================================

type fakeConnectors struct {
	cleanErr       error
	activateErr    error
	activateErrFor map[string]error
	listErr        error
	lines          []connector.Channel
	createErr      error
	checkReport    *connector.StatusReport

	cleaned    int
	activated  []string
	created    []string
	checkCalls int
}

func (f *fakeConnectors) CleanDuplicates(_ context.Context, _ uuid.UUID, _ string) (*connector.CleanResult, error) {
	f.cleaned++
	if f.cleanErr != nil {
		return nil, f.cleanErr
	}
	return &connector.CleanResult{ConnectorID: "wa_ws_1"}, nil
}

func (f *fakeConnectors) Activate(_ context.Context, _ uuid.UUID, lineID string, _ bool) (*integration.Integration, error) {
	if f.activateErr != nil {
		return nil, f.activateErr
	}
	if err := f.activateErrFor[lineID]; err != nil {
		return nil, err
	}
	f.activated = append(f.activated, lineID)
	return &integration.Integration{}, nil
}

func (f *fakeConnectors) ListChannels(_ context.Context, _ uuid.UUID, _ bool) ([]connector.Channel, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.lines, nil
}

func (f *fakeConnectors) CreateChannel(_ context.Context, _ uuid.UUID, name string) (*connector.Channel, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, name)
	return &connector.Channel{ID: "42", Name: name, Active: true}, nil
}

func (f *fakeConnectors) Check(_ context.Context, _ uuid.UUID) (*connector.StatusReport, error) {
	f.checkCalls++
	return f.checkReport, nil
}

type fakeBots struct {
	botErr   error
	robotErr error
	smsErr   error

	botCalls   int
	robotCalls int
	smsCalls   int
}

func (f *fakeBots) RegisterBot(_ context.Context, _ uuid.UUID, _ bot.Options) (*integration.Integration, error) {
	f.botCalls++
	if f.botErr != nil {
		return nil, f.botErr
	}
	return &integration.Integration{}, nil
}

func (f *fakeBots) RegisterRobot(_ context.Context, _ uuid.UUID) (*integration.Integration, error) {
	f.robotCalls++
	if f.robotErr != nil {
		return nil, f.robotErr
	}
	return &integration.Integration{}, nil
}

func (f *fakeBots) RegisterSMSProvider(_ context.Context, _ uuid.UUID) (*integration.Integration, error) {
	f.smsCalls++
	if f.smsErr != nil {
		return nil, f.smsErr
	}
	return &integration.Integration{}, nil
}

type fakeMapper struct {
	err     error
	addedID uuid.UUID
}

func (f *fakeMapper) AddMapping(_ context.Context, integrationID uuid.UUID, instanceID, lineID, lineName string) (*channel.Mapping, error) {
	if f.err != nil {
		return nil, f.err
	}
	m := channel.NewMapping(integrationID, instanceID, lineID, lineName)
	f.addedID = m.ID
	return m, nil
}

type fakeResolver struct {
	integ      *integration.Integration
	err        error
	refreshErr error
}

func (f *fakeResolver) GetByID(_ context.Context, _ uuid.UUID) (*integration.Integration, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.integ, nil
}

func (f *fakeResolver) EnsureFresh(_ context.Context, _ *integration.Integration) error {
	return f.refreshErr
}

type fakePlacementClient struct {
	resp     *ports.PlacementResponse
	err      error
	options  map[string]string
	firedURL string
}

func (c *fakePlacementClient) FirePlacement(_ context.Context, handlerURL string, options map[string]string) (*ports.PlacementResponse, error) {
	c.firedURL = handlerURL
	c.options = options
	if c.err != nil {
		return nil, c.err
	}
	return c.resp, nil
}

func (c *fakePlacementClient) RegisterConnector(_ context.Context, _ ports.RegisterConnectorRequest) error {
	return nil
}
func (c *fakePlacementClient) UnregisterConnector(_ context.Context, _ string) error { return nil }
func (c *fakePlacementClient) ListConnectors(_ context.Context) ([]ports.PortalConnector, error) {
	return nil, nil
}
func (c *fakePlacementClient) ActivateConnector(_ context.Context, _, _ string, _ bool) error {
	return nil
}
func (c *fakePlacementClient) ConnectorStatus(_ context.Context, _, _ string) (*ports.PortalConnectorStatus, error) {
	return nil, nil
}
func (c *fakePlacementClient) ListLines(_ context.Context) ([]ports.PortalLine, error) {
	return nil, nil
}
func (c *fakePlacementClient) CreateLine(_ context.Context, _ string) (*ports.PortalLine, error) {
	return nil, nil
}
func (c *fakePlacementClient) RegisterBot(_ context.Context, _ ports.RegisterBotRequest) (string, error) {
	return "", nil
}
func (c *fakePlacementClient) UnregisterBot(_ context.Context, _ string) error    { return nil }
func (c *fakePlacementClient) RegisterRobot(_ context.Context, _ ports.RegisterRobotRequest) error {
	return nil
}
func (c *fakePlacementClient) UnregisterRobot(_ context.Context, _ string) error { return nil }
func (c *fakePlacementClient) RegisterSMSProvider(_ context.Context, _ ports.RegisterSMSProviderRequest) error {
	return nil
}

type fakeFactory struct {
	client ports.PortalClient
}

func (f *fakeFactory) ClientFor(_, _ string) ports.PortalClient { return f.client }

// ============================================================================
// HELPERS
// ============================================================================

type env struct {
	svc        *Service
	connectors *fakeConnectors
	bots       *fakeBots
	mapper     *fakeMapper
	resolver   *fakeResolver
	client     *fakePlacementClient
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		connectors: &fakeConnectors{},
		bots:       &fakeBots{},
		mapper:     &fakeMapper{},
		client:     &fakePlacementClient{resp: &ports.PlacementResponse{Reachable: true, StatusCode: 200, ElapsedMS: 12}},
	}
	integ := integration.NewIntegration("ws-1")
	integ.Domain = "acme.bitrix24.com"
	integ.MemberID = "member-1"
	integ.AccessToken = "token"
	e.resolver = &fakeResolver{integ: integ}
	log := logger.New(logger.TestConfig())
	e.svc = NewService(log, e.resolver, e.connectors, e.bots, e.mapper, &fakeFactory{client: e.client}, "https://api.example.com/placement")
	return e
}

// ============================================================================
// AUTO SETUP
// ============================================================================

func TestAutoSetupAllStepsSucceed(t *testing.T) {
	e := newEnv(t)
	e.connectors.lines = []connector.Channel{{ID: "5", Name: "Default", Active: true}}

	result, err := e.svc.AutoSetup(context.Background(), uuid.New(), AutoSetupRequest{WorkspaceName: "Acme"})
	if err != nil {
		t.Fatalf("auto setup: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.LineID != "5" {
		t.Fatalf("expected existing active line to be picked, got %q", result.LineID)
	}
	if result.ConnectorID != "wa_ws_1" {
		t.Fatalf("connector id missing from report: %+v", result)
	}
	if result.LinesActivated != 1 || result.LinesTotal != 1 {
		t.Fatalf("line counters %d/%d, want 1/1", result.LinesActivated, result.LinesTotal)
	}
}

func TestAutoSetupActivatesEveryActiveLine(t *testing.T) {
	e := newEnv(t)
	e.connectors.lines = []connector.Channel{
		{ID: "5", Name: "Default", Active: true},
		{ID: "6", Name: "Sales", Active: true},
		{ID: "7", Name: "Closed", Active: false},
	}

	result, err := e.svc.AutoSetup(context.Background(), uuid.New(), AutoSetupRequest{})
	if err != nil {
		t.Fatalf("auto setup: %v", err)
	}
	if result.LinesTotal != 2 || result.LinesActivated != 2 {
		t.Fatalf("line counters %d/%d, want 2/2", result.LinesActivated, result.LinesTotal)
	}
	if len(e.connectors.activated) != 2 {
		t.Fatalf("activation calls %v, want both active lines", e.connectors.activated)
	}
	if result.ConnectorActivated.Status != StepOK {
		t.Fatalf("activation step %+v", result.ConnectorActivated)
	}
}

func TestAutoSetupCountsPartialLineActivation(t *testing.T) {
	e := newEnv(t)
	e.connectors.lines = []connector.Channel{
		{ID: "5", Active: true},
		{ID: "6", Active: true},
	}
	e.connectors.activateErrFor = map[string]error{"6": errors.New("line 6 rejected")}

	result, err := e.svc.AutoSetup(context.Background(), uuid.New(), AutoSetupRequest{})
	if err != nil {
		t.Fatalf("auto setup: %v", err)
	}
	if result.LinesTotal != 2 || result.LinesActivated != 1 {
		t.Fatalf("line counters %d/%d, want 1/2", result.LinesActivated, result.LinesTotal)
	}
	if result.ConnectorActivated.Status != StepFailed {
		t.Fatalf("a failed line must fail the activation step, got %+v", result.ConnectorActivated)
	}
	if result.Success {
		t.Fatal("partial activation must not report overall success")
	}
	// The failure must not stop the registrars after it.
	if e.bots.botCalls != 1 || e.bots.smsCalls != 1 {
		t.Fatalf("later steps skipped: bot=%d sms=%d", e.bots.botCalls, e.bots.smsCalls)
	}
}

func TestAutoSetupRunsEveryStepDespiteFailures(t *testing.T) {
	e := newEnv(t)
	e.bots.robotErr = errors.New("robot registration rejected")
	e.connectors.lines = []connector.Channel{{ID: "5", Active: true}}

	result, err := e.svc.AutoSetup(context.Background(), uuid.New(), AutoSetupRequest{})
	if err != nil {
		t.Fatalf("auto setup: %v", err)
	}
	if result.Success {
		t.Fatal("a failed step must fail the run")
	}
	if result.RobotRegistered.Status != StepFailed {
		t.Fatalf("robot step %+v", result.RobotRegistered)
	}
	// The failure must not stop the steps after it.
	if result.SMSProviderRegistered.Status != StepOK {
		t.Fatalf("sms step %+v", result.SMSProviderRegistered)
	}
	if e.bots.smsCalls != 1 {
		t.Fatalf("sms registration not attempted, %d calls", e.bots.smsCalls)
	}
}

func TestAutoSetupSkipsActivationWhenConnectorFailed(t *testing.T) {
	e := newEnv(t)
	e.connectors.cleanErr = errors.New("portal unreachable")

	result, err := e.svc.AutoSetup(context.Background(), uuid.New(), AutoSetupRequest{})
	if err != nil {
		t.Fatalf("auto setup: %v", err)
	}
	if result.ConnectorRegistered.Status != StepFailed {
		t.Fatalf("connector step %+v", result.ConnectorRegistered)
	}
	if result.ConnectorActivated.Status != StepSkipped {
		t.Fatalf("activation without a connector must be skipped, got %+v", result.ConnectorActivated)
	}
	if len(e.connectors.activated) != 0 {
		t.Fatalf("unexpected activation calls %v", e.connectors.activated)
	}
	// Bot registration is independent of the connector.
	if result.BotRegistered.Status != StepOK {
		t.Fatalf("bot step %+v", result.BotRegistered)
	}
}

func TestAutoSetupCreatesLineWhenNoneActive(t *testing.T) {
	e := newEnv(t)
	e.connectors.lines = []connector.Channel{{ID: "3", Name: "Closed", Active: false}}

	result, err := e.svc.AutoSetup(context.Background(), uuid.New(), AutoSetupRequest{WorkspaceName: "Acme"})
	if err != nil {
		t.Fatalf("auto setup: %v", err)
	}
	if len(e.connectors.created) != 1 || e.connectors.created[0] != "WhatsApp - Acme" {
		t.Fatalf("created lines %v", e.connectors.created)
	}
	if result.LineID != "42" {
		t.Fatalf("expected the created line to be activated, got %q", result.LineID)
	}
}

func TestAutoSetupHonorsExplicitLine(t *testing.T) {
	e := newEnv(t)

	result, err := e.svc.AutoSetup(context.Background(), uuid.New(), AutoSetupRequest{LineID: "77"})
	if err != nil {
		t.Fatalf("auto setup: %v", err)
	}
	if result.LineID != "77" {
		t.Fatalf("explicit line ignored, got %q", result.LineID)
	}
	if len(e.connectors.created) != 0 {
		t.Fatalf("no line should be created, got %v", e.connectors.created)
	}
	if result.LinesTotal != 1 || result.LinesActivated != 1 {
		t.Fatalf("line counters %d/%d, want 1/1", result.LinesActivated, result.LinesTotal)
	}
}

func TestAutoSetupSkipFlags(t *testing.T) {
	e := newEnv(t)
	e.connectors.lines = []connector.Channel{{ID: "5", Active: true}}

	result, err := e.svc.AutoSetup(context.Background(), uuid.New(), AutoSetupRequest{SkipBot: true, SkipRobot: true, SkipSMS: true})
	if err != nil {
		t.Fatalf("auto setup: %v", err)
	}
	if !result.Success {
		t.Fatal("skipped steps must not fail the run")
	}
	if result.BotRegistered.Status != StepSkipped || result.RobotRegistered.Status != StepSkipped || result.SMSProviderRegistered.Status != StepSkipped {
		t.Fatalf("skip flags ignored: %+v", result)
	}
	if e.bots.botCalls+e.bots.robotCalls+e.bots.smsCalls != 0 {
		t.Fatal("skipped registrars must not be called")
	}
}

func TestAutoSetupUnknownIntegration(t *testing.T) {
	e := newEnv(t)
	e.resolver.err = integration.ErrIntegrationNotFound

	if _, err := e.svc.AutoSetup(context.Background(), uuid.New(), AutoSetupRequest{}); !errors.Is(err, integration.ErrIntegrationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// ============================================================================
// COMPLETE SETUP
// ============================================================================

func TestCompleteSetupBothHalvesSucceed(t *testing.T) {
	e := newEnv(t)

	result, err := e.svc.CompleteSetup(context.Background(), uuid.New(), CompleteSetupRequest{InstanceID: "inst-1", LineID: "5", LineName: "WhatsApp"})
	if err != nil {
		t.Fatalf("complete setup: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.MappingID != e.mapper.addedID.String() {
		t.Fatalf("mapping id %q", result.MappingID)
	}
}

func TestCompleteSetupHalvesAreIndependent(t *testing.T) {
	e := newEnv(t)
	e.connectors.activateErr = errors.New("activation rejected")

	result, err := e.svc.CompleteSetup(context.Background(), uuid.New(), CompleteSetupRequest{InstanceID: "inst-1", LineID: "5"})
	if err != nil {
		t.Fatalf("complete setup: %v", err)
	}
	if result.Success {
		t.Fatal("a failed half must fail the run")
	}
	if result.Activated.Status != StepFailed {
		t.Fatalf("activation step %+v", result.Activated)
	}
	// The mapping half still ran and succeeded.
	if result.MappingStored.Status != StepOK {
		t.Fatalf("mapping step %+v", result.MappingStored)
	}

	// And the other way round.
	e2 := newEnv(t)
	e2.mapper.err = channel.ErrMappingConflict
	result, err = e2.svc.CompleteSetup(context.Background(), uuid.New(), CompleteSetupRequest{InstanceID: "inst-1", LineID: "5"})
	if err != nil {
		t.Fatalf("complete setup: %v", err)
	}
	if result.Activated.Status != StepOK || result.MappingStored.Status != StepFailed {
		t.Fatalf("unexpected halves %+v", result)
	}
}

func TestCompleteSetupRequiresInstanceAndLine(t *testing.T) {
	e := newEnv(t)
	if _, err := e.svc.CompleteSetup(context.Background(), uuid.New(), CompleteSetupRequest{LineID: "5"}); err == nil {
		t.Fatal("expected error for missing instance id")
	}
	if _, err := e.svc.CompleteSetup(context.Background(), uuid.New(), CompleteSetupRequest{InstanceID: "inst-1"}); err == nil {
		t.Fatal("expected error for missing line id")
	}
}

// ============================================================================
// DIAGNOSTICS
// ============================================================================

func TestSimulatePlacementReportsReachability(t *testing.T) {
	e := newEnv(t)

	report, err := e.svc.SimulatePlacement(context.Background(), uuid.New(), "https://api.example.com/placement")
	if err != nil {
		t.Fatalf("simulate placement: %v", err)
	}
	if !report.Reachable || report.StatusCode != 200 {
		t.Fatalf("unexpected report %+v", report)
	}
	if e.client.options["PLACEMENT"] != "SETTING_CONNECTOR" {
		t.Fatalf("placement options %v", e.client.options)
	}
	if e.client.options["DOMAIN"] != "acme.bitrix24.com" || e.client.options["member_id"] != "member-1" {
		t.Fatalf("identity options %v", e.client.options)
	}
}

func TestSimulatePlacementDefaultsToConfiguredHandler(t *testing.T) {
	e := newEnv(t)

	report, err := e.svc.SimulatePlacement(context.Background(), uuid.New(), "")
	if err != nil {
		t.Fatalf("simulate placement: %v", err)
	}
	if e.client.firedURL != "https://api.example.com/placement" {
		t.Fatalf("expected the configured handler, fired at %q", e.client.firedURL)
	}
	if report.HandlerURL != "https://api.example.com/placement" {
		t.Fatalf("report names %q", report.HandlerURL)
	}
}

func TestSimulatePlacementTransportFailureIsAReport(t *testing.T) {
	e := newEnv(t)
	e.client.err = errors.New("dial tcp: connection refused")

	report, err := e.svc.SimulatePlacement(context.Background(), uuid.New(), "https://api.example.com/placement")
	if err != nil {
		t.Fatalf("transport failure must produce a report, got error %v", err)
	}
	if report.Reachable {
		t.Fatal("unreachable handler reported as reachable")
	}
	if report.Error == "" {
		t.Fatal("expected the transport error in the report")
	}
}

func TestCheckConnectorDelegates(t *testing.T) {
	e := newEnv(t)
	e.connectors.checkReport = &connector.StatusReport{ConnectorID: "wa_ws_1", Drift: true}

	report, err := e.svc.CheckConnector(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("check connector: %v", err)
	}
	if report.ConnectorID != "wa_ws_1" || !report.Drift {
		t.Fatalf("unexpected report %+v", report)
	}
	if e.connectors.checkCalls != 1 {
		t.Fatalf("check not delegated, %d calls", e.connectors.checkCalls)
	}
}
