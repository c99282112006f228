package setup

import (
	"context"
	"errors"

	"zpbitrix/internal/core/connector"

	"github.com/google/uuid"
)

var errMissingArgs = errors.New("instance id and line id are required")

// CheckConnector runs the deep connector diagnostic.
func (s *Service) CheckConnector(ctx context.Context, integrationID uuid.UUID) (*connector.StatusReport, error) {
	return s.connectors.Check(ctx, integrationID)
}

// SimulatePlacement fires a synthetic placement request at the handler the
// connector was registered with, reporting reachability, latency and the raw
// response. This answers "would the settings page load for a portal user"
// without opening the portal. An empty handlerURL targets the configured
// placement handler.
func (s *Service) SimulatePlacement(ctx context.Context, integrationID uuid.UUID, handlerURL string) (*PlacementReport, error) {
	if handlerURL == "" {
		handlerURL = s.placementHandler
	}

	integ, err := s.integrations.GetByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if err := s.integrations.EnsureFresh(ctx, integ); err != nil {
		return nil, err
	}

	client := s.portals.ClientFor(integ.Domain, integ.AccessToken)
	resp, err := client.FirePlacement(ctx, handlerURL, map[string]string{
		"DOMAIN":    integ.Domain,
		"member_id": integ.MemberID,
		"PLACEMENT": "SETTING_CONNECTOR",
	})
	if err != nil {
		return &PlacementReport{HandlerURL: handlerURL, Reachable: false, Error: err.Error()}, nil
	}

	return &PlacementReport{
		HandlerURL: handlerURL,
		Reachable:  resp.Reachable,
		StatusCode: resp.StatusCode,
		ElapsedMS:  resp.ElapsedMS,
		Body:       resp.Body,
	}, nil
}
