package container

import (
	"context"
	"fmt"
	"net/http"

	_ "github.com/lib/pq" // PostgreSQL driver

	// Core business logic
	"zpbitrix/internal/core/bot"
	"zpbitrix/internal/core/channel"
	"zpbitrix/internal/core/connector"
	"zpbitrix/internal/core/integration"
	"zpbitrix/internal/core/setup"

	// Adapters
	"zpbitrix/internal/infra/http/handlers"
	"zpbitrix/internal/infra/http/routers"
	"zpbitrix/internal/infra/integrations/bitrix"
	"zpbitrix/internal/infra/repository"

	// Platform
	"zpbitrix/platform/config"
	"zpbitrix/platform/database"
	"zpbitrix/platform/logger"
)

// Container é o container principal de Dependency Injection
type Container struct {
	// Platform dependencies
	config   *config.Config
	logger   *logger.Logger
	database *database.Database

	// Core services
	integrationService *integration.Service
	connectorService   *connector.Service
	channelService     *channel.Service
	botService         *bot.Service
	setupService       *setup.Service

	// Adapters
	integrationRepo integration.Repository
	linkTokenRepo   integration.LinkTokenRepository
	instanceRepo    integration.InstanceRepository
	mappingRepo     channel.Repository
	locker          *repository.KeyedLocker
	portalProvider  *bitrix.ClientProvider
	oauthGateway    *bitrix.OAuthGateway

	httpHandler http.Handler
}

// Config estrutura de configuração para o container
type Config struct {
	AppConfig *config.Config
	Logger    *logger.Logger
	Database  *database.Database
}

// New cria uma nova instância do container
func New(cfg *Config) (*Container, error) {
	container := &Container{
		config:   cfg.AppConfig,
		logger:   cfg.Logger,
		database: cfg.Database,
	}

	if err := container.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize container: %w", err)
	}

	cfg.Logger.Info("Dependency injection container initialized successfully")
	return container, nil
}

// initialize inicializa todos os componentes
func (c *Container) initialize() error {
	c.logger.Debug("Initializing container...")

	// 1. Database repositories
	c.integrationRepo = repository.NewIntegrationRepository(c.database.DB, c.logger)
	c.linkTokenRepo = repository.NewLinkTokenRepository(c.database.DB, c.logger)
	c.instanceRepo = repository.NewInstanceRepository(c.database.DB, c.logger)
	c.mappingRepo = repository.NewMappingRepository(c.database.DB, c.logger)
	c.locker = repository.NewKeyedLocker()

	// 2. Portal gateways
	c.portalProvider = bitrix.NewClientProvider(c.logger)
	c.oauthGateway = bitrix.NewOAuthGateway(
		c.config.Bitrix.ClientID,
		c.config.Bitrix.ClientSecret,
		c.config.Bitrix.OAuthURL,
		c.logger,
	)

	// 3. Core services
	publicURL := c.config.GetPublicURL()
	placementHandler := publicURL + "/integrations/bitrix/events/placement"
	botHandler := publicURL + "/integrations/bitrix/events/bot"

	c.integrationService = integration.NewService(
		c.logger,
		c.integrationRepo,
		c.linkTokenRepo,
		c.instanceRepo,
		c.oauthGateway,
		c.locker,
	)

	c.connectorService = connector.NewService(
		c.logger,
		c.integrationRepo,
		c.integrationService,
		c.portalProvider,
		c.locker,
		placementHandler,
	)

	c.channelService = channel.NewService(
		c.logger,
		c.mappingRepo,
		c.instanceRepo,
		c.integrationRepo,
		c.locker,
	)

	c.botService = bot.NewService(
		c.logger,
		c.integrationRepo,
		c.integrationService,
		c.portalProvider,
		c.locker,
		botHandler,
	)

	c.setupService = setup.NewService(
		c.logger,
		c.integrationService,
		c.connectorService,
		c.botService,
		c.channelService,
		c.portalProvider,
		placementHandler,
	)

	// 4. HTTP handlers e rotas
	c.httpHandler = routers.SetupRoutes(c.config, c.logger, &routers.Handlers{
		Health:      handlers.NewHealthHandler(c.database, c.logger),
		Integration: handlers.NewIntegrationHandler(c.integrationService, c.logger),
		Connector:   handlers.NewConnectorHandler(c.connectorService, c.logger),
		Channel:     handlers.NewChannelHandler(c.channelService, c.logger),
		Bot:         handlers.NewBotHandler(c.botService, c.logger),
		Setup:       handlers.NewSetupHandler(c.setupService, c.logger),
		Events:      handlers.NewEventsHandler(c.logger),
	})

	c.logger.Debug("Container initialized successfully")
	return nil
}

// ===== MÉTODOS PÚBLICOS =====

// GetConfig retorna a configuração da aplicação
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger retorna o logger da aplicação
func (c *Container) GetLogger() *logger.Logger {
	return c.logger
}

// GetDatabase retorna a instância do banco de dados
func (c *Container) GetDatabase() *database.Database {
	return c.database
}

// GetHTTPHandler retorna o handler HTTP raiz com todas as rotas
func (c *Container) GetHTTPHandler() http.Handler {
	return c.httpHandler
}

// GetIntegrationService retorna o service de integrações
func (c *Container) GetIntegrationService() *integration.Service {
	return c.integrationService
}

// GetConnectorService retorna o service de conectores
func (c *Container) GetConnectorService() *connector.Service {
	return c.connectorService
}

// GetChannelService retorna o service de canais
func (c *Container) GetChannelService() *channel.Service {
	return c.channelService
}

// GetBotService retorna o service de bots
func (c *Container) GetBotService() *bot.Service {
	return c.botService
}

// GetSetupService retorna o service de setup
func (c *Container) GetSetupService() *setup.Service {
	return c.setupService
}

// ===== LIFECYCLE METHODS =====

// Start roda as migrações pendentes antes de aceitar tráfego
func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("Starting container components...")

	if c.config.Database.AutoMigrate {
		migrator := database.NewMigrator(c.database, c.logger)
		if err := migrator.RunMigrations(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	c.logger.Info("Container components started successfully")
	return nil
}

// Stop para todos os componentes gracefully
func (c *Container) Stop(ctx context.Context) error {
	c.logger.Info("Stopping container components...")

	if err := c.database.Close(); err != nil {
		c.logger.ErrorWithFields("Failed to close database", map[string]interface{}{
			"error": err.Error(),
		})
	}

	c.logger.Info("Container components stopped")
	return nil
}
