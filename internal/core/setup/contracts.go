package setup

import (
	"context"

	"zpbitrix/internal/core/bot"
	"zpbitrix/internal/core/channel"
	"zpbitrix/internal/core/connector"
	"zpbitrix/internal/core/integration"

	"github.com/google/uuid"
)

// ConnectorRegistrar is the connector surface the orchestrator drives.
type ConnectorRegistrar interface {
	CleanDuplicates(ctx context.Context, integrationID uuid.UUID, workspaceName string) (*connector.CleanResult, error)
	Activate(ctx context.Context, integrationID uuid.UUID, lineID string, active bool) (*integration.Integration, error)
	ListChannels(ctx context.Context, integrationID uuid.UUID, includeStatus bool) ([]connector.Channel, error)
	CreateChannel(ctx context.Context, integrationID uuid.UUID, name string) (*connector.Channel, error)
	Check(ctx context.Context, integrationID uuid.UUID) (*connector.StatusReport, error)
}

// BotRegistrar is the bot/robot/SMS surface the orchestrator drives.
type BotRegistrar interface {
	RegisterBot(ctx context.Context, integrationID uuid.UUID, opts bot.Options) (*integration.Integration, error)
	RegisterRobot(ctx context.Context, integrationID uuid.UUID) (*integration.Integration, error)
	RegisterSMSProvider(ctx context.Context, integrationID uuid.UUID) (*integration.Integration, error)
}

// ChannelMapper stores instance/line mappings.
type ChannelMapper interface {
	AddMapping(ctx context.Context, integrationID uuid.UUID, instanceID, lineID, lineName string) (*channel.Mapping, error)
}

// IntegrationResolver loads integrations and keeps their tokens fresh for
// read-only diagnostics.
type IntegrationResolver interface {
	GetByID(ctx context.Context, id uuid.UUID) (*integration.Integration, error)
	EnsureFresh(ctx context.Context, integ *integration.Integration) error
}
