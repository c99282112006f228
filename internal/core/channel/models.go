package channel

import (
	"time"

	"github.com/google/uuid"
)

// Mapping links one local WhatsApp instance to one open line on a portal.
// While active, both sides of the link are exclusive: an instance routes to
// at most one line, and a line receives from at most one instance.
type Mapping struct {
	ID            uuid.UUID `json:"id" db:"id"`
	IntegrationID uuid.UUID `json:"integrationId" db:"integrationId"`
	InstanceID    string    `json:"instanceId" db:"instanceId"`
	LineID        string    `json:"lineId" db:"lineId"`
	LineName      string    `json:"lineName" db:"lineName"`
	Active        bool      `json:"active" db:"active"`
	CreatedAt     time.Time `json:"createdAt" db:"createdAt"`
}

// NewMapping builds an active mapping ready to persist.
func NewMapping(integrationID uuid.UUID, instanceID, lineID, lineName string) *Mapping {
	return &Mapping{
		ID:            uuid.New(),
		IntegrationID: integrationID,
		InstanceID:    instanceID,
		LineID:        lineID,
		LineName:      lineName,
		Active:        true,
		CreatedAt:     time.Now(),
	}
}
