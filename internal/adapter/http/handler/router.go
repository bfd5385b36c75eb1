package handler

import (
	"webhook-delivery-gateway/internal/adapter/http/middleware"
	redisStore "webhook-delivery-gateway/internal/adapter/storage/redis"
	"webhook-delivery-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	RegistrationSvc  ports.RegistrationService
	DeliverySvc      ports.DeliveryService
	CredentialRepo   ports.CredentialRepository
	RegistrationRepo ports.RegistrationRepository
	EncSvc           ports.EncryptionService
	SigSvc           ports.SignatureService
	NonceStore       ports.NonceStore
	TokenSvc         ports.TokenService
	TriggerCache     ports.TriggerCache         // nil = idempotent replay disabled
	RateLimitStore   *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers   []ports.HealthChecker
	AuditSvc         ports.AuditService // nil = audit logging disabled
	Logger           zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- HMAC-authenticated routes (event producers) ---
	hmacAuth := middleware.HMACAuth(deps.CredentialRepo, deps.EncSvc, deps.SigSvc, deps.NonceStore, deps.Logger)
	eventHandler := NewEventHandler(deps.RegistrationRepo, deps.DeliverySvc, deps.TriggerCache, deps.Logger)
	events := v1.Group("/events", hmacAuth)
	{
		for category := range EventTypes {
			events.POST("/"+category, rl("events"), eventHandler.Trigger(category))
		}
	}

	// --- JWT-authenticated routes (dashboard) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	webhookHandler := NewWebhookHandler(deps.RegistrationSvc)
	webhooks := v1.Group("/webhooks", jwtAuth)
	{
		webhooks.POST("", rl("webhooks_write"), webhookHandler.Register)
		webhooks.GET("", rl("webhooks_read"), webhookHandler.List)
		webhooks.PUT("/:id", rl("webhooks_write"), webhookHandler.Update)
		webhooks.DELETE("/:id", rl("webhooks_write"), webhookHandler.Deactivate)
		webhooks.GET("/:id/deliveries", rl("webhooks_read"), webhookHandler.History)
	}

	return r
}
