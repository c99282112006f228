package setup

// StepStatus values for a single orchestration step.
const (
	StepOK      = "ok"
	StepFailed  = "failed"
	StepSkipped = "skipped"
)

// StepResult records one step's outcome. A failed step never hides the steps
// after it; every step reports independently.
type StepResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// AutoSetupResult is the full report of an automatic setup run.
type AutoSetupResult struct {
	ConnectorRegistered    StepResult `json:"connectorRegistered"`
	ConnectorActivated     StepResult `json:"connectorActivated"`
	BotRegistered          StepResult `json:"botRegistered"`
	RobotRegistered        StepResult `json:"robotRegistered"`
	SMSProviderRegistered  StepResult `json:"smsProviderRegistered"`
	LineID                 string     `json:"lineId,omitempty"`
	ConnectorID            string     `json:"connectorId,omitempty"`
	LinesActivated         int        `json:"linesActivated"`
	LinesTotal             int        `json:"linesTotal"`
	Success                bool       `json:"success"`
}

// CompleteSetupResult reports the two halves of finishing a channel: binding
// the connector to the line, and mapping the instance to it.
type CompleteSetupResult struct {
	Activated     StepResult `json:"activated"`
	MappingStored StepResult `json:"mappingStored"`
	MappingID     string     `json:"mappingId,omitempty"`
	Success       bool       `json:"success"`
}

// PlacementReport is the diagnostic result of firing a synthetic placement
// request at the configured handler.
type PlacementReport struct {
	HandlerURL string `json:"handlerUrl"`
	Reachable  bool   `json:"reachable"`
	StatusCode int    `json:"statusCode,omitempty"`
	ElapsedMS  int64  `json:"elapsedMs"`
	Body       string `json:"body,omitempty"`
	Error      string `json:"error,omitempty"`
}

func ok() StepResult { return StepResult{Status: StepOK} }

func failed(err error) StepResult { return StepResult{Status: StepFailed, Error: err.Error()} }

func skipped(reason string) StepResult { return StepResult{Status: StepSkipped, Error: reason} }
