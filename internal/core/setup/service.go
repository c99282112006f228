package setup

import (
	"context"
	"strings"

	"zpbitrix/internal/core/bot"
	"zpbitrix/internal/ports"
	"zpbitrix/platform/logger"

	"github.com/google/uuid"
)

// DefaultLineName names the open line created when the portal has none.
const DefaultLineName = "WhatsApp"

// AutoSetupRequest carries the orchestrator's inputs. Everything except the
// integration id is optional.
type AutoSetupRequest struct {
	WorkspaceName  string `json:"workspaceName"`
	LineID         string `json:"lineId"`
	BotName        string `json:"botName"`
	WelcomeMessage string `json:"welcomeMessage"`
	SkipBot        bool   `json:"skipBot"`
	SkipRobot      bool   `json:"skipRobot"`
	SkipSMS        bool   `json:"skipSms"`
}

// CompleteSetupRequest finishes one channel: the connector gets bound to the
// line and the instance mapped to it.
type CompleteSetupRequest struct {
	InstanceID string `json:"instanceId"`
	LineID     string `json:"lineId"`
	LineName   string `json:"lineName"`
}

// Service orchestrates the full portal setup. Every step runs even when an
// earlier one failed, so a single run reports everything that needs fixing
// instead of stopping at the first obstacle.
type Service struct {
	logger           *logger.Logger
	integrations     IntegrationResolver
	connectors       ConnectorRegistrar
	bots             BotRegistrar
	channels         ChannelMapper
	portals          ports.PortalClientFactory
	placementHandler string
}

// NewService wires the orchestrator. placementHandler is the URL the
// connector was registered with; the placement diagnostic targets it when the
// caller names no other.
func NewService(logger *logger.Logger, integrations IntegrationResolver, connectors ConnectorRegistrar, bots BotRegistrar, channels ChannelMapper, portals ports.PortalClientFactory, placementHandler string) *Service {
	return &Service{
		logger:           logger,
		integrations:     integrations,
		connectors:       connectors,
		bots:             bots,
		channels:         channels,
		portals:          portals,
		placementHandler: placementHandler,
	}
}

// AutoSetup runs the whole registration sequence: connector (with duplicate
// sweep), activation of every active line, bot, robot, SMS provider. Success
// means every non-skipped step succeeded.
func (s *Service) AutoSetup(ctx context.Context, integrationID uuid.UUID, req AutoSetupRequest) (*AutoSetupResult, error) {
	if _, err := s.integrations.GetByID(ctx, integrationID); err != nil {
		return nil, err
	}

	result := &AutoSetupResult{}

	clean, err := s.connectors.CleanDuplicates(ctx, integrationID, req.WorkspaceName)
	if err != nil {
		result.ConnectorRegistered = failed(err)
	} else {
		result.ConnectorRegistered = ok()
		result.ConnectorID = clean.ConnectorID
	}

	if result.ConnectorRegistered.Status == StepOK {
		lineIDs := []string{req.LineID}
		if req.LineID == "" {
			lineIDs, err = s.collectLines(ctx, integrationID, req.WorkspaceName)
		}
		if err != nil {
			result.ConnectorActivated = failed(err)
		} else {
			result.LinesTotal = len(lineIDs)
			var firstErr error
			for _, lineID := range lineIDs {
				if _, err := s.connectors.Activate(ctx, integrationID, lineID, true); err != nil {
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				result.LinesActivated++
				if result.LineID == "" {
					result.LineID = lineID
				}
			}
			if firstErr != nil {
				result.ConnectorActivated = failed(firstErr)
			} else {
				result.ConnectorActivated = ok()
			}
		}
	} else {
		result.ConnectorActivated = skipped("connector registration failed")
	}

	if req.SkipBot {
		result.BotRegistered = skipped("disabled by request")
	} else if _, err := s.bots.RegisterBot(ctx, integrationID, bot.Options{Name: req.BotName, WelcomeMessage: req.WelcomeMessage}); err != nil {
		result.BotRegistered = failed(err)
	} else {
		result.BotRegistered = ok()
	}

	if req.SkipRobot {
		result.RobotRegistered = skipped("disabled by request")
	} else if _, err := s.bots.RegisterRobot(ctx, integrationID); err != nil {
		result.RobotRegistered = failed(err)
	} else {
		result.RobotRegistered = ok()
	}

	if req.SkipSMS {
		result.SMSProviderRegistered = skipped("disabled by request")
	} else if _, err := s.bots.RegisterSMSProvider(ctx, integrationID); err != nil {
		result.SMSProviderRegistered = failed(err)
	} else {
		result.SMSProviderRegistered = ok()
	}

	result.Success = allSettled(
		result.ConnectorRegistered,
		result.ConnectorActivated,
		result.BotRegistered,
		result.RobotRegistered,
		result.SMSProviderRegistered,
	)

	s.logger.InfoWithFields("Automatic setup finished", map[string]interface{}{
		"integration_id": integrationID.String(),
		"success":        result.Success,
		"connector":      result.ConnectorRegistered.Status,
		"activation":     result.ConnectorActivated.Status,
		"bot":            result.BotRegistered.Status,
		"robot":          result.RobotRegistered.Status,
		"sms":            result.SMSProviderRegistered.Status,
	})

	return result, nil
}

// CompleteSetup finishes one channel. The two halves report independently: a
// portal activation failure does not block storing the mapping, and vice
// versa, so the caller sees exactly which half needs a retry.
func (s *Service) CompleteSetup(ctx context.Context, integrationID uuid.UUID, req CompleteSetupRequest) (*CompleteSetupResult, error) {
	if _, err := s.integrations.GetByID(ctx, integrationID); err != nil {
		return nil, err
	}
	if req.InstanceID == "" || req.LineID == "" {
		return nil, errMissingArgs
	}

	result := &CompleteSetupResult{}

	if _, err := s.connectors.Activate(ctx, integrationID, req.LineID, true); err != nil {
		result.Activated = failed(err)
	} else {
		result.Activated = ok()
	}

	mapping, err := s.channels.AddMapping(ctx, integrationID, req.InstanceID, req.LineID, req.LineName)
	if err != nil {
		result.MappingStored = failed(err)
	} else {
		result.MappingStored = ok()
		result.MappingID = mapping.ID.String()
	}

	result.Success = result.Activated.Status == StepOK && result.MappingStored.Status == StepOK
	return result, nil
}

// collectLines returns every active open line, creating one when the portal
// has none.
func (s *Service) collectLines(ctx context.Context, integrationID uuid.UUID, workspaceName string) ([]string, error) {
	lines, err := s.connectors.ListChannels(ctx, integrationID, false)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Active {
			ids = append(ids, l.ID)
		}
	}
	if len(ids) > 0 {
		return ids, nil
	}

	name := DefaultLineName
	if n := strings.TrimSpace(workspaceName); n != "" {
		name = DefaultLineName + " - " + n
	}
	created, err := s.connectors.CreateChannel(ctx, integrationID, name)
	if err != nil {
		return nil, err
	}
	return []string{created.ID}, nil
}

func allSettled(steps ...StepResult) bool {
	for _, step := range steps {
		if step.Status == StepFailed {
			return false
		}
	}
	return true
}
