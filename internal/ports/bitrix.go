package ports

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// OAuthTokens is the token set returned by the portal's OAuth endpoint.
// MemberID and Domain are echoed by the portal and feed identity resolution.
type OAuthTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	MemberID     string
	Domain       string
}

// OAuthGateway exchanges and refreshes portal OAuth credentials.
type OAuthGateway interface {
	Exchange(ctx context.Context, code string) (*OAuthTokens, error)
	Refresh(ctx context.Context, refreshToken string) (*OAuthTokens, error)
}

// PortalLine is an Open Line (conversation channel) on the portal side.
type PortalLine struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Line itself is enabled on the portal
	Active bool `json:"active"`
}

// PortalConnector is a messaging connector object in the portal's
// contact-center registry.
type PortalConnector struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PortalConnectorStatus is the per-line live status of a connector.
// Registration, line activation and callback reachability are three
// independent facts and stay separate.
type PortalConnectorStatus struct {
	Registered bool   `json:"registered"`
	Connection bool   `json:"connection"`
	Active     bool   `json:"active"`
	Error      string `json:"error,omitempty"`
}

type RegisterConnectorRequest struct {
	ID               string
	Name             string
	Icon             string
	PlacementHandler string
}

type RegisterBotRequest struct {
	Code           string
	Name           string
	HandlerURL     string
	WelcomeMessage string
}

type RegisterRobotRequest struct {
	Code       string
	Name       string
	HandlerURL string
}

type RegisterSMSProviderRequest struct {
	Code       string
	Name       string
	HandlerURL string
}

// PlacementResponse is what the placement handler answered when we fired a
// synthetic placement event at it.
type PlacementResponse struct {
	StatusCode int           `json:"statusCode"`
	Body       string        `json:"body,omitempty"`
	Reachable  bool          `json:"reachable"`
	Elapsed    time.Duration `json:"-"`
	ElapsedMS  int64         `json:"elapsedMs"`
}

// PortalClient is the REST surface of one authenticated portal.
// Implementations are bound to a (domain, access token) pair.
type PortalClient interface {
	RegisterConnector(ctx context.Context, req RegisterConnectorRequest) error
	UnregisterConnector(ctx context.Context, connectorID string) error
	ListConnectors(ctx context.Context) ([]PortalConnector, error)
	ActivateConnector(ctx context.Context, connectorID, lineID string, active bool) error
	// ConnectorStatus reads the connector's live state. A non-empty lineID
	// scopes the answer to that open line.
	ConnectorStatus(ctx context.Context, connectorID, lineID string) (*PortalConnectorStatus, error)

	ListLines(ctx context.Context) ([]PortalLine, error)
	CreateLine(ctx context.Context, name string) (*PortalLine, error)

	RegisterBot(ctx context.Context, req RegisterBotRequest) (string, error)
	UnregisterBot(ctx context.Context, botID string) error

	RegisterRobot(ctx context.Context, req RegisterRobotRequest) error
	UnregisterRobot(ctx context.Context, code string) error

	RegisterSMSProvider(ctx context.Context, req RegisterSMSProviderRequest) error

	FirePlacement(ctx context.Context, handlerURL string, options map[string]string) (*PlacementResponse, error)
}

// PortalClientFactory builds a client for an already-authenticated portal.
type PortalClientFactory interface {
	ClientFor(domain, accessToken string) PortalClient
}

// PortalError is a non-success answer from the portal REST API. The remote
// message is passed through to the operator untouched.
type PortalError struct {
	Code        string
	Description string
	HTTPStatus  int
}

func (e *PortalError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("portal error %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("portal error %s", e.Code)
}

// Token error codes the portal answers with when the access token is no
// longer usable.
const (
	PortalErrExpiredToken = "expired_token"
	PortalErrInvalidToken = "invalid_token"
	PortalErrInvalidGrant = "invalid_grant"
)

// IsTokenError reports whether err is a portal rejection of the credential
// itself, as opposed to a failing method call.
func IsTokenError(err error) bool {
	var pe *PortalError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Code {
	case PortalErrExpiredToken, PortalErrInvalidToken, PortalErrInvalidGrant:
		return true
	}
	return false
}

// AsPortalError unwraps err into a PortalError when possible.
func AsPortalError(err error) (*PortalError, bool) {
	var pe *PortalError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
