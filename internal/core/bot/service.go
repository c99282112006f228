package bot

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

const (
	// DefaultBotName is shown in the portal's chat list when the workspace
	// did not pick a name.
	DefaultBotName = "WhatsApp Assistant"

	// DefaultWelcomeMessage greets a contact on the first inbound message.
	DefaultWelcomeMessage = "Olá! Em que posso ajudar?"

	// robotCodePrefix namespaces automation-rule handlers per workspace.
	robotCodePrefix = "zb_robot_"

	// smsProviderCode identifies the SMS provider registration.
	smsProviderCode = "zb_sms"
)

// Options carries the caller-tunable bot settings.
type Options struct {
	Name           string `json:"name"`
	WelcomeMessage string `json:"welcomeMessage"`
}

// Service registers chat bots, automation-rule robots and the SMS provider on
// remote portals, keeping the local record as the idempotency guard.
type Service struct {
	logger     *logger.Logger
	store      IntegrationStore
	tokens     TokenManager
	portals    ports.PortalClientFactory
	locker     Locker
	handlerURL string
	now        func() time.Time
}

// NewService wires the registrar. handlerURL is the absolute URL the portal
// calls with bot events and robot executions.
func NewService(logger *logger.Logger, store IntegrationStore, tokens TokenManager, portals ports.PortalClientFactory, locker Locker, handlerURL string) *Service {
	return &Service{
		logger:     logger,
		store:      store,
		tokens:     tokens,
		portals:    portals,
		locker:     locker,
		handlerURL: handlerURL,
		now:        time.Now,
	}
}

// RegisterBot registers the chat bot on the portal. When the record already
// carries a bot id, the remote call is skipped and the stored id is kept:
// registering twice would create a second bot on the portal.
func (s *Service) RegisterBot(ctx context.Context, integrationID uuid.UUID, opts Options) (*integration.Integration, error) {
	var out *integration.Integration
	err := s.locker.WithLock(integrationID, func() error {
		integ, err := s.store.GetByID(ctx, integrationID)
		if err != nil {
			return err
		}
		if integ.BotID != "" {
			out = integ
			return nil
		}
		if err := s.tokens.EnsureFresh(ctx, integ); err != nil {
			return err
		}

		name := strings.TrimSpace(opts.Name)
		if name == "" {
			name = DefaultBotName
		}
		welcome := strings.TrimSpace(opts.WelcomeMessage)
		if welcome == "" {
			welcome = DefaultWelcomeMessage
		}

		client := s.portals.ClientFor(integ.Domain, integ.AccessToken)
		botID, err := client.RegisterBot(ctx, ports.RegisterBotRequest{
			Code:           botCode(integ.WorkspaceID),
			Name:           name,
			HandlerURL:     s.handlerURL,
			WelcomeMessage: welcome,
		})
		if err != nil {
			return fmt.Errorf("bot registration failed: %w", err)
		}

		integ.BotID = botID
		integ.BotEnabled = true
		integ.BotWelcomeMessage = welcome
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

	s.logger.InfoWithFields("Bot registered", map[string]interface{}{
		"integration_id": integrationID.String(),
		"bot_id":         out.BotID,
	})

	return out, nil
}

// UnregisterBot removes the chat bot from the portal and clears every stored
// bot setting. Without a stored id this is a no-op.
func (s *Service) UnregisterBot(ctx context.Context, integrationID uuid.UUID) error {
	return s.locker.WithLock(integrationID, func() error {
		integ, err := s.store.GetByID(ctx, integrationID)
		if err != nil {
			return err
		}
		if integ.BotID == "" {
			return nil
		}
		if err := s.tokens.EnsureFresh(ctx, integ); err != nil {
			return err
		}

		client := s.portals.ClientFor(integ.Domain, integ.AccessToken)
		if err := client.UnregisterBot(ctx, integ.BotID); err != nil {
			return fmt.Errorf("bot removal failed: %w", err)
		}

		integ.BotID = ""
		integ.BotEnabled = false
		integ.BotPersonaID = ""
		integ.BotWelcomeMessage = ""
		integ.UpdatedAt = s.now()
		return s.store.Update(ctx, integ)
	})
}

// RegisterRobot registers the automation-rule handler so portal workflows can
// send messages through the integration. Idempotent on the stored flag.
func (s *Service) RegisterRobot(ctx context.Context, integrationID uuid.UUID) (*integration.Integration, error) {
	var out *integration.Integration
	err := s.locker.WithLock(integrationID, func() error {
		integ, err := s.store.GetByID(ctx, integrationID)
		if err != nil {
			return err
		}
		if integ.RobotRegistered {
			out = integ
			return nil
		}
		if err := s.tokens.EnsureFresh(ctx, integ); err != nil {
			return err
		}

		client := s.portals.ClientFor(integ.Domain, integ.AccessToken)
		if err := client.RegisterRobot(ctx, ports.RegisterRobotRequest{
			Code:       robotCode(integ.WorkspaceID),
			Name:       "Enviar mensagem WhatsApp",
			HandlerURL: s.handlerURL,
		}); err != nil {
			return fmt.Errorf("robot registration failed: %w", err)
		}

		integ.RobotRegistered = true
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

	s.logger.InfoWithFields("Robot registered", map[string]interface{}{
		"integration_id": integrationID.String(),
	})

	return out, nil
}

// UnregisterRobot removes the automation-rule handler.
func (s *Service) UnregisterRobot(ctx context.Context, integrationID uuid.UUID) error {
	return s.locker.WithLock(integrationID, func() error {
		integ, err := s.store.GetByID(ctx, integrationID)
		if err != nil {
			return err
		}
		if !integ.RobotRegistered {
			return nil
		}
		if err := s.tokens.EnsureFresh(ctx, integ); err != nil {
			return err
		}

		client := s.portals.ClientFor(integ.Domain, integ.AccessToken)
		if err := client.UnregisterRobot(ctx, robotCode(integ.WorkspaceID)); err != nil {
			return fmt.Errorf("robot removal failed: %w", err)
		}

		integ.RobotRegistered = false
		integ.UpdatedAt = s.now()
		return s.store.Update(ctx, integ)
	})
}

// RegisterSMSProvider registers the integration as an SMS sender, which lets
// CRM entities message contacts outside an open chat window. Idempotent on
// the stored flag.
func (s *Service) RegisterSMSProvider(ctx context.Context, integrationID uuid.UUID) (*integration.Integration, error) {
	var out *integration.Integration
	err := s.locker.WithLock(integrationID, func() error {
		integ, err := s.store.GetByID(ctx, integrationID)
		if err != nil {
			return err
		}
		if integ.SMSProviderRegistered {
			out = integ
			return nil
		}
		if err := s.tokens.EnsureFresh(ctx, integ); err != nil {
			return err
		}

		client := s.portals.ClientFor(integ.Domain, integ.AccessToken)
		if err := client.RegisterSMSProvider(ctx, ports.RegisterSMSProviderRequest{
			Code:       smsProviderCode,
			Name:       "WhatsApp",
			HandlerURL: s.handlerURL,
		}); err != nil {
			return fmt.Errorf("sms provider registration failed: %w", err)
		}

		integ.SMSProviderRegistered = true
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

	s.logger.InfoWithFields("SMS provider registered", map[string]interface{}{
		"integration_id": integrationID.String(),
	})

	return out, nil
}

func botCode(workspaceID string) string {
	return "zb_bot_" + sanitizeCode(workspaceID)
}

func robotCode(workspaceID string) string {
	return robotCodePrefix + sanitizeCode(workspaceID)
}

func sanitizeCode(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
