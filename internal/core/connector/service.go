package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zpbitrix/internal/core/integration"
	"zpbitrix/internal/ports"
	"zpbitrix/platform/logger"

	"github.com/google/uuid"
)

// Service registers and maintains the messaging connector on remote portals.
type Service struct {
	logger           *logger.Logger
	store            IntegrationStore
	tokens           TokenManager
	portals          ports.PortalClientFactory
	locker           Locker
	placementHandler string
	now              func() time.Time
}

// NewService wires the connector registrar. placementHandler is the absolute
// URL the portal will call when a user opens the connector's settings page.
func NewService(logger *logger.Logger, store IntegrationStore, tokens TokenManager, portals ports.PortalClientFactory, locker Locker, placementHandler string) *Service {
	return &Service{
		logger:           logger,
		store:            store,
		tokens:           tokens,
		portals:          portals,
		locker:           locker,
		placementHandler: placementHandler,
		now:              time.Now,
	}
}

// Register ensures the workspace's connector exists on the portal. Calling it
// again for the same integration is a no-op on the remote side: the connector
// id is derived, not generated, so the portal sees the same registration.
func (s *Service) Register(ctx context.Context, integrationID uuid.UUID, workspaceName string) (*integration.Integration, error) {
	var out *integration.Integration
	err := s.locker.WithLock(integrationID, func() error {
		integ, err := s.store.GetByID(ctx, integrationID)
		if err != nil {
			return err
		}
		if err := s.tokens.EnsureFresh(ctx, integ); err != nil {
			return err
		}

		connectorID := DeriveConnectorID(integ.WorkspaceID, integ.MemberID)
		client := s.portals.ClientFor(integ.Domain, integ.AccessToken)

		if err := client.RegisterConnector(ctx, ports.RegisterConnectorRequest{
			ID:               connectorID,
			Name:             DisplayName(workspaceName),
			Icon:             DefaultConnectorIcon,
			PlacementHandler: s.placementHandler,
		}); err != nil {
			return fmt.Errorf("connector registration failed: %w", err)
		}

		integ.ConnectorID = connectorID
		integ.Registered = true
		integ.UpdatedAt = s.now()
		if err := s.store.Update(ctx, integ); err != nil {
			return err
		}
		out = integ
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoWithFields("Connector registered", map[string]interface{}{
		"integration_id": integrationID.String(),
		"connector_id":   out.ConnectorID,
		"domain":         out.Domain,
	})

	return out, nil
}

// CleanDuplicates sweeps the portal for stale connectors from earlier
// registrations and removes every one except the canonical id, re-registering
// the canonical connector when the sweep finds it missing. Only connectors
// carrying our prefix are ever touched.
func (s *Service) CleanDuplicates(ctx context.Context, integrationID uuid.UUID, workspaceName string) (*CleanResult, error) {
	var result *CleanResult
	err := s.locker.WithLock(integrationID, func() error {
		integ, err := s.store.GetByID(ctx, integrationID)
		if err != nil {
			return err
		}
		if err := s.tokens.EnsureFresh(ctx, integ); err != nil {
			return err
		}

		canonical := DeriveConnectorID(integ.WorkspaceID, integ.MemberID)
		client := s.portals.ClientFor(integ.Domain, integ.AccessToken)

		remote, err := client.ListConnectors(ctx)
		if err != nil {
			return fmt.Errorf("failed to list connectors: %w", err)
		}

		result = &CleanResult{ConnectorID: canonical}
		canonicalPresent := false
		for _, c := range remote {
			if !strings.HasPrefix(c.ID, ConnectorIDPrefix) {
				continue
			}
			if c.ID == canonical {
				canonicalPresent = true
				continue
			}
			if err := client.UnregisterConnector(ctx, c.ID); err != nil {
				s.logger.WarnWithFields("Failed to remove duplicate connector", map[string]interface{}{
					"integration_id": integrationID.String(),
					"connector_id":   c.ID,
					"error":          err.Error(),
				})
				continue
			}
			result.Removed = append(result.Removed, c.ID)
		}

		if !canonicalPresent {
			if err := client.RegisterConnector(ctx, ports.RegisterConnectorRequest{
				ID:               canonical,
				Name:             DisplayName(workspaceName),
				Icon:             DefaultConnectorIcon,
				PlacementHandler: s.placementHandler,
			}); err != nil {
				return fmt.Errorf("canonical connector re-registration failed: %w", err)
			}
			result.Reregistered = true
		}

		if integ.ConnectorID != canonical || !integ.Registered {
			integ.ConnectorID = canonical
			integ.Registered = true
			integ.UpdatedAt = s.now()
			if err := s.store.Update(ctx, integ); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoWithFields("Duplicate connectors cleaned", map[string]interface{}{
		"integration_id": integrationID.String(),
		"connector_id":   result.ConnectorID,
		"removed":        len(result.Removed),
		"reregistered":   result.Reregistered,
	})

	return result, nil
}

// Reconfigure re-registers the connector in place, refreshing its name, icon
// and placement handler on the portal without changing its id.
func (s *Service) Reconfigure(ctx context.Context, integrationID uuid.UUID, workspaceName string) (*integration.Integration, error) {
	var out *integration.Integration
	err := s.locker.WithLock(integrationID, func() error {
		integ, err := s.store.GetByID(ctx, integrationID)
		if err != nil {
			return err
		}
		if integ.ConnectorID == "" {
			return integration.ErrNotLinked
		}
		if err := s.tokens.EnsureFresh(ctx, integ); err != nil {
			return err
		}

		client := s.portals.ClientFor(integ.Domain, integ.AccessToken)
		if err := client.UnregisterConnector(ctx, integ.ConnectorID); err != nil {
			// The connector may already be gone; registration below recreates it.
			s.logger.WarnWithFields("Unregister before reconfigure failed", map[string]interface{}{
				"integration_id": integrationID.String(),
				"connector_id":   integ.ConnectorID,
				"error":          err.Error(),
			})
		}
		if err := client.RegisterConnector(ctx, ports.RegisterConnectorRequest{
			ID:               integ.ConnectorID,
			Name:             DisplayName(workspaceName),
			Icon:             DefaultConnectorIcon,
			PlacementHandler: s.placementHandler,
		}); err != nil {
			return fmt.Errorf("connector re-registration failed: %w", err)
		}

		integ.Registered = true
		// Activation is line-bound; a fresh registration starts deactivated.
		integ.Activated = false
		integ.UpdatedAt = s.now()
		if err := s.store.Update(ctx, integ); err != nil {
			return err
		}
		out = integ
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Activate switches the connector on or off for one open line. Turning a line
// off only clears the local activated flag when no other line still carries
// the connector.
func (s *Service) Activate(ctx context.Context, integrationID uuid.UUID, lineID string, active bool) (*integration.Integration, error) {
	if lineID == "" {
		return nil, fmt.Errorf("line id is required")
	}

	var out *integration.Integration
	err := s.locker.WithLock(integrationID, func() error {
		integ, err := s.store.GetByID(ctx, integrationID)
		if err != nil {
			return err
		}
		if integ.ConnectorID == "" || !integ.Registered {
			return fmt.Errorf("connector is not registered yet")
		}
		if err := s.tokens.EnsureFresh(ctx, integ); err != nil {
			return err
		}

		client := s.portals.ClientFor(integ.Domain, integ.AccessToken)
		if err := client.ActivateConnector(ctx, integ.ConnectorID, lineID, active); err != nil {
			return fmt.Errorf("connector activation failed: %w", err)
		}

		if active {
			integ.Activated = true
		} else {
			stillActive, err := s.anyLineActive(ctx, client, integ.ConnectorID)
			if err != nil {
				// Unknown remote state; keep the flag rather than guess.
				s.logger.WarnWithFields("Could not verify remaining line activations", map[string]interface{}{
					"integration_id": integrationID.String(),
					"error":          err.Error(),
				})
			} else {
				integ.Activated = stillActive
			}
		}
		integ.UpdatedAt = s.now()
		if err := s.store.Update(ctx, integ); err != nil {
			return err
		}
		out = integ
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoWithFields("Connector activation changed", map[string]interface{}{
		"integration_id": integrationID.String(),
		"connector_id":   out.ConnectorID,
		"line_id":        lineID,
		"active":         active,
	})

	return out, nil
}

// anyLineActive reports whether the connector is still switched on for at
// least one open line. Per-line status failures skip that line.
func (s *Service) anyLineActive(ctx context.Context, client ports.PortalClient, connectorID string) (bool, error) {
	lines, err := client.ListLines(ctx)
	if err != nil {
		return false, err
	}
	for _, l := range lines {
		status, err := client.ConnectorStatus(ctx, connectorID, l.ID)
		if err != nil {
			continue
		}
		if status.Active {
			return true, nil
		}
	}
	return false, nil
}

// Status merges the locally recorded connector state with what the portal
// reports right now and flags any drift between the two. Read-only.
func (s *Service) Status(ctx context.Context, integrationID uuid.UUID) (*StatusReport, error) {
	integ, err := s.store.GetByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		ConnectorID:       integ.ConnectorID,
		RegisteredLocally: integ.Registered,
		ActivatedLocally:  integ.Activated,
	}

	if integ.ConnectorID == "" {
		return report, nil
	}
	if err := s.tokens.EnsureFresh(ctx, integ); err != nil {
		report.RemoteError = err.Error()
		return report, nil
	}

	client := s.portals.ClientFor(integ.Domain, integ.AccessToken)
	status, err := client.ConnectorStatus(ctx, integ.ConnectorID, "")
	if err != nil {
		report.RemoteError = err.Error()
		report.Drift = integ.Registered
		return report, nil
	}

	report.RegisteredRemotely = status.Registered
	report.ActiveRemotely = status.Active
	report.ConnectionVerified = status.Connection
	report.Drift = integ.Registered != status.Registered || integ.Activated != status.Active
	if status.Error != "" {
		report.RemoteError = status.Error
	}
	return report, nil
}

// Check is the deep diagnostic: it verifies registration via the portal's
// connector list in addition to the status call, so a connector the portal
// silently dropped shows up as drift.
func (s *Service) Check(ctx context.Context, integrationID uuid.UUID) (*StatusReport, error) {
	report, err := s.Status(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if report.ConnectorID == "" || report.RemoteError != "" {
		return report, nil
	}

	integ, err := s.store.GetByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	client := s.portals.ClientFor(integ.Domain, integ.AccessToken)
	remote, err := client.ListConnectors(ctx)
	if err != nil {
		report.RemoteError = err.Error()
		return report, nil
	}

	listed := false
	for _, c := range remote {
		if c.ID == report.ConnectorID {
			listed = true
			break
		}
	}
	if !listed {
		report.RegisteredRemotely = false
		report.Drift = report.Drift || report.RegisteredLocally
	}
	return report, nil
}

// ============================================================================
// OPEN LINES
// ============================================================================

// ListChannels returns the portal's open lines. With includeStatus set, each
// line is cross-referenced against the connector's per-line status so the
// caller sees which lines actually carry the connector. Read-only.
func (s *Service) ListChannels(ctx context.Context, integrationID uuid.UUID, includeStatus bool) ([]Channel, error) {
	integ, err := s.store.GetByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.EnsureFresh(ctx, integ); err != nil {
		return nil, err
	}

	client := s.portals.ClientFor(integ.Domain, integ.AccessToken)
	lines, err := client.ListLines(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open lines: %w", err)
	}

	channels := make([]Channel, 0, len(lines))
	for _, l := range lines {
		channels = append(channels, Channel{
			ID:     l.ID,
			Name:   l.Name,
			Active: l.Active,
		})
	}

	if includeStatus && integ.ConnectorID != "" {
		for i := range channels {
			status, err := client.ConnectorStatus(ctx, integ.ConnectorID, channels[i].ID)
			if err != nil {
				s.logger.WarnWithFields("Per-line connector status failed", map[string]interface{}{
					"integration_id": integrationID.String(),
					"line_id":        channels[i].ID,
					"error":          err.Error(),
				})
				continue
			}
			lineActive := status.Active
			channels[i].ConnectorActive = &lineActive
		}
	}

	return channels, nil
}

// CreateChannel creates a new open line on the portal and returns it.
func (s *Service) CreateChannel(ctx context.Context, integrationID uuid.UUID, name string) (*Channel, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("channel name is required")
	}

	var channel *Channel
	err := s.locker.WithLock(integrationID, func() error {
		integ, err := s.store.GetByID(ctx, integrationID)
		if err != nil {
			return err
		}
		if err := s.tokens.EnsureFresh(ctx, integ); err != nil {
			return err
		}

		client := s.portals.ClientFor(integ.Domain, integ.AccessToken)
		line, err := client.CreateLine(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to create open line: %w", err)
		}
		channel = &Channel{ID: line.ID, Name: line.Name, Active: line.Active}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoWithFields("Open line created", map[string]interface{}{
		"integration_id": integrationID.String(),
		"line_id":        channel.ID,
		"name":           channel.Name,
	})

	return channel, nil
}
