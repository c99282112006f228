package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"zpbitrix/internal/infra/http/handlers"
	"zpbitrix/internal/infra/http/middleware"
	"zpbitrix/platform/config"
	"zpbitrix/platform/logger"
)

// Handlers agrupa todos os handlers HTTP da aplicação
type Handlers struct {
	Health      *handlers.HealthHandler
	Integration *handlers.IntegrationHandler
	Connector   *handlers.ConnectorHandler
	Channel     *handlers.ChannelHandler
	Bot         *handlers.BotHandler
	Setup       *handlers.SetupHandler
	Events      *handlers.EventsHandler
}

// SetupRoutes monta a árvore completa de rotas da API
func SetupRoutes(cfg *config.Config, appLogger *logger.Logger, h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID(appLogger))
	r.Use(middleware.HTTPLogger(appLogger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID", "X-Workspace-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.Metrics(appLogger))
	r.Use(middleware.APIKeyAuth(cfg, appLogger))

	// Health check endpoints
	r.Get("/health", h.Health.GetHealth)
	r.Get("/health/database", h.Health.GetDatabaseHealth)

	// Rotas de vinculação e callbacks do portal
	r.Route("/integrations/bitrix", func(r chi.Router) {
		r.Post("/link-token", h.Integration.IssueLinkToken)
		r.Post("/validate-token", h.Integration.ValidateToken)
		r.Post("/oauth/exchange", h.Integration.ExchangeOAuth)
		r.Post("/install", h.Integration.Install)
		r.Post("/webhook", h.Integration.SaveWebhook)

		// Chamadas que o portal faz de volta para nós
		r.Post("/events/placement", h.Events.Placement)
		r.Post("/events/bot", h.Events.BotEvent)
	})

	// Rotas de uma integração existente
	r.Route("/integrations/{integrationId}", func(r chi.Router) {
		r.Get("/", h.Integration.Get)
		r.Post("/token/refresh", h.Integration.RefreshToken)

		r.Route("/connector", func(r chi.Router) {
			r.Post("/clean", h.Connector.Clean)
			r.Post("/reconfigure", h.Connector.Reconfigure)
			r.Get("/status", h.Connector.Status)
			r.Get("/check", h.Connector.Check)
			r.Post("/activate", h.Connector.Activate)
		})

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", h.Connector.ListChannels)
			r.Post("/", h.Connector.CreateChannel)
		})

		r.Route("/mappings", func(r chi.Router) {
			r.Get("/", h.Channel.ListMappings)
			r.Post("/", h.Channel.AddMapping)
			r.Delete("/{mappingId}", h.Channel.RemoveMapping)
		})

		r.Route("/bot", func(r chi.Router) {
			r.Post("/register", h.Bot.RegisterBot)
			r.Post("/unregister", h.Bot.UnregisterBot)
		})

		r.Route("/robot", func(r chi.Router) {
			r.Post("/register", h.Bot.RegisterRobot)
			r.Post("/unregister", h.Bot.UnregisterRobot)
		})

		r.Post("/sms-provider/register", h.Bot.RegisterSMSProvider)

		r.Route("/setup", func(r chi.Router) {
			r.Post("/auto", h.Setup.AutoSetup)
			r.Post("/complete", h.Setup.CompleteSetup)
		})

		r.Post("/placement/simulate", h.Setup.SimulatePlacement)
	})

	return r
}
