package integration

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlatformBitrix is the only platform type this service currently speaks.
const PlatformBitrix = "bitrix24"

// DefaultLinkTokenTTL is how long a linking token stays redeemable.
const DefaultLinkTokenTTL = 30 * time.Minute

// Integration is the single link between one workspace and one remote portal.
// At most one exists per (workspace, platform) pair. Tokens never cross the
// client boundary.
type Integration struct {
	ID          uuid.UUID `json:"id" db:"id"`
	WorkspaceID string    `json:"workspaceId" db:"workspaceId"`
	Platform    string    `json:"platform" db:"platform"`
	Domain      string    `json:"domain" db:"domain"`
	MemberID    string    `json:"memberId" db:"memberId"`

	AccessToken        string     `json:"-" db:"accessToken"`
	RefreshToken       string     `json:"-" db:"refreshToken"`
	TokenExpiresAt     *time.Time `json:"tokenExpiresAt,omitempty" db:"tokenExpiresAt"`
	TokenRefreshFailed bool       `json:"tokenRefreshFailed" db:"tokenRefreshFailed"`

	ConnectorID string `json:"connectorId" db:"connectorId"`
	Registered  bool   `json:"registered" db:"registered"`
	Activated   bool   `json:"activated" db:"activated"`

	BotID             string `json:"botId" db:"botId"`
	BotEnabled        bool   `json:"botEnabled" db:"botEnabled"`
	BotPersonaID      string `json:"botPersonaId" db:"botPersonaId"`
	BotWelcomeMessage string `json:"botWelcomeMessage" db:"botWelcomeMessage"`

	RobotRegistered       bool `json:"robotRegistered" db:"robotRegistered"`
	SMSProviderRegistered bool `json:"smsProviderRegistered" db:"smsProviderRegistered"`

	WebhookURL string     `json:"webhookUrl" db:"webhookUrl"`
	Active     bool       `json:"active" db:"active"`
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty" db:"lastSyncAt"`

	Metadata map[string]string `json:"metadata,omitempty" db:"-"`

	// Version is the optimistic lock counter, bumped by the repository on
	// every successful update.
	Version   int       `json:"-" db:"version"`
	CreatedAt time.Time `json:"createdAt" db:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" db:"updatedAt"`
}

// NewIntegration creates an unlinked integration for a workspace.
func NewIntegration(workspaceID string) *Integration {
	now := time.Now()
	return &Integration{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Platform:    PlatformBitrix,
		Active:      true,
		Metadata:    map[string]string{},
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsTokenExpired reports whether the access token needs a refresh at the
// given instant. A token expiring exactly now is expired; one second in the
// future is not.
func (i *Integration) IsTokenExpired(now time.Time) bool {
	if i.TokenExpiresAt == nil {
		return i.AccessToken == ""
	}
	return !now.Before(*i.TokenExpiresAt)
}

// HasOAuth reports whether the integration is linked via OAuth rather than a
// static inbound webhook credential.
func (i *Integration) HasOAuth() bool {
	return i.AccessToken != "" || i.RefreshToken != ""
}

// IsLinked reports whether the integration has any usable credential.
func (i *Integration) IsLinked() bool {
	return i.HasOAuth() || i.WebhookURL != ""
}

// ConnectorState is the explicit connector lifecycle position. Connection
// reachability is an orthogonal, re-checkable fact and is not part of it.
type ConnectorState string

const (
	StateUnregistered ConnectorState = "unregistered"
	StateRegistered   ConnectorState = "registered"
	StateActivated    ConnectorState = "activated"
)

// State derives the connector lifecycle position from the stored flags.
func (i *Integration) State() ConnectorState {
	switch {
	case !i.Registered || i.ConnectorID == "":
		return StateUnregistered
	case i.Activated:
		return StateActivated
	default:
		return StateRegistered
	}
}

// LinkToken is a short lived, single use credential binding a workspace to a
// future portal installation.
type LinkToken struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Token       string    `json:"token" db:"token"`
	WorkspaceID string    `json:"workspaceId" db:"workspaceId"`
	Platform    string    `json:"platform" db:"platform"`
	Used        bool      `json:"used" db:"used"`
	ExpiresAt   time.Time `json:"expiresAt" db:"expiresAt"`
	CreatedAt   time.Time `json:"createdAt" db:"createdAt"`
}

// NewLinkToken mints a token for a workspace with the given lifetime.
func NewLinkToken(workspaceID string, ttl time.Duration) *LinkToken {
	now := time.Now()
	return &LinkToken{
		ID:          uuid.New(),
		Token:       generateTokenValue(),
		WorkspaceID: workspaceID,
		Platform:    PlatformBitrix,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
}

// IsUsable reports whether the token can still be redeemed.
func (t *LinkToken) IsUsable(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}

func generateTokenValue() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to uuid
		return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
	}
	return strings.ToUpper(hex.EncodeToString(buf))
}

// Instance is a connected WhatsApp number owned by the messaging side.
// This subsystem only ever reads it.
type Instance struct {
	ID          string    `json:"id" db:"id"`
	WorkspaceID string    `json:"workspaceId" db:"workspaceId"`
	Name        string    `json:"name" db:"name"`
	PhoneNumber string    `json:"phoneNumber" db:"phoneNumber"`
	Connected   bool      `json:"connected" db:"connected"`
	CreatedAt   time.Time `json:"createdAt" db:"createdAt"`
}
