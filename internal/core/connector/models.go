package connector

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// ConnectorIDPrefix marks every connector this service owns on a portal.
	// Cleanup only ever touches connectors carrying it.
	ConnectorIDPrefix = "wa_"

	// MaxConnectorIDLength is the portal-side limit on connector identifiers.
	MaxConnectorIDLength = 50

	// DefaultConnectorIcon is a 1x1 transparent PNG, base64 data URI. The
	// portal requires an icon on registration even when the caller has none.
	DefaultConnectorIcon = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="
)

// DeriveConnectorID builds the deterministic connector identifier for a
// workspace/portal pair. The same inputs always produce the same id, which is
// what makes registration idempotent and duplicates detectable.
func DeriveConnectorID(workspaceID, memberID string) string {
	id := ConnectorIDPrefix + sanitize(workspaceID)
	if memberID != "" {
		id += "_" + sanitize(memberID)
	}
	if len(id) > MaxConnectorIDLength {
		id = id[:MaxConnectorIDLength]
	}
	return strings.TrimRight(id, "_")
}

// sanitize lowercases and keeps only [a-z0-9_], folding every other rune to
// underscore. Runs of underscores collapse to one.
func sanitize(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// DisplayName renders the human-facing connector name shown inside the
// portal's contact center.
func DisplayName(workspaceName string) string {
	name := strings.TrimSpace(workspaceName)
	if name == "" {
		return "WhatsApp"
	}
	title := cases.Title(language.Und, cases.NoLower)
	return "WhatsApp - " + title.String(name)
}

// StatusReport is the consolidated view of a connector's state on both sides:
// what the local record claims and what the portal answers right now.
type StatusReport struct {
	ConnectorID        string `json:"connectorId"`
	RegisteredLocally  bool   `json:"registeredLocally"`
	RegisteredRemotely bool   `json:"registeredRemotely"`
	ActivatedLocally   bool   `json:"activatedLocally"`
	ActiveRemotely     bool   `json:"activeRemotely"`
	ConnectionVerified bool   `json:"connectionVerified"`
	Drift              bool   `json:"drift"`
	RemoteError        string `json:"remoteError,omitempty"`
}

// CleanResult reports what a duplicate sweep did.
type CleanResult struct {
	ConnectorID  string   `json:"connectorId"`
	Removed      []string `json:"removed"`
	Reregistered bool     `json:"reregistered"`
}

// Channel is an open line on the portal, as exposed to API consumers.
type Channel struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	// Whether our connector is switched on for this line. Filled only when
	// the caller asked for connector status, hence the pointer.
	ConnectorActive *bool `json:"connectorActive,omitempty"`
}
