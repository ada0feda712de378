package router

import (
	"github.com/gin-gonic/gin"

	"github.com/dtroode/mdpublish/internal/api/http/handler"
	"github.com/dtroode/mdpublish/internal/api/http/middleware"
	"github.com/dtroode/mdpublish/internal/logger"
)

// Router wires the webhook, authorization and health endpoints.
type Router struct {
	webhook *handler.Webhook
	auth    *handler.Auth
	health  *handler.Health
	logger  *logger.Logger
}

// New creates new HTTP Router instance.
//
// Parameters:
//   - webhook: change notification endpoints
//   - auth: OAuth login, callback and landing pages
//   - health: store liveness check
//   - logger: request logger
func New(
	webhook *handler.Webhook,
	auth *handler.Auth,
	health *handler.Health,
	logger *logger.Logger,
) *Router {
	return &Router{
		webhook: webhook,
		auth:    auth,
		health:  health,
		logger:  logger,
	}
}

// Register builds the gin engine with recovery and request logging.
func (r *Router) Register() *gin.Engine {
	logging := middleware.NewLogging(r.logger)

	e := gin.New()
	e.Use(gin.Recovery(), logging.HandleHTTP)

	e.GET("/healthz", r.health.Check)

	e.GET("/webhook", r.webhook.Challenge)
	e.POST("/webhook", r.webhook.Notify)

	e.GET("/", r.auth.Index)
	e.GET("/login", r.auth.Login)
	e.GET("/oauth_callback", r.auth.Callback)
	e.GET("/done", r.auth.Done)

	return e
}
