package api

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	v1 "github.com/usageline/usageline/internal/api/v1"
	"github.com/usageline/usageline/internal/config"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/rest/middleware"
	"github.com/usageline/usageline/internal/service"
)

type Handlers struct {
	Events      *v1.EventsHandler
	Query       *v1.QueryHandler
	BillingRule *v1.BillingRuleHandler
	Alert       *v1.AlertHandler
	Tenant      *v1.TenantHandler
	Health      *v1.HealthHandler
}

func NewHandlers(
	eventService service.EventService,
	queryService service.QueryService,
	billingRuleService service.BillingRuleService,
	alertService service.AlertService,
	tenantService service.TenantService,
	healthService service.HealthService,
	log *logger.Logger,
) Handlers {
	return Handlers{
		Events:      v1.NewEventsHandler(eventService, log),
		Query:       v1.NewQueryHandler(queryService, log),
		BillingRule: v1.NewBillingRuleHandler(billingRuleService, log),
		Alert:       v1.NewAlertHandler(alertService, log),
		Tenant:      v1.NewTenantHandler(tenantService, log),
		Health:      v1.NewHealthHandler(healthService),
	}
}

func NewRouter(
	handlers Handlers,
	tenantService service.TenantService,
	redisClient *redis.Client,
	cfg *config.Configuration,
	log *logger.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.CORSMiddleware,
		middleware.RequestIDMiddleware,
		middleware.RequestLogger(log),
		middleware.ErrorHandler(),
	)

	// Health is unauthenticated and unmetered.
	router.GET("/health", handlers.Health.Health)

	v1Group := router.Group("/api/v1")
	v1Group.Use(
		middleware.AuthenticateMiddleware(tenantService, log),
		middleware.RateLimitMiddleware(redisClient, cfg, log),
	)
	registerV1Routes(v1Group, handlers)

	// Tenant provisioning sits outside api key auth; operators create
	// the first tenant before any key exists.
	admin := router.Group("/api/v1/tenants")
	admin.Use(middleware.RateLimitMiddleware(redisClient, cfg, log))
	{
		admin.POST("", handlers.Tenant.CreateTenant)
		admin.GET("/:id", handlers.Tenant.GetTenant)
	}

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	// Events routes
	events := router.Group("/events")
	{
		events.POST("", handlers.Events.IngestEvent)
		events.POST("/batch", handlers.Events.IngestBatch)
	}

	// Usage read routes
	usage := router.Group("/usage")
	{
		usage.GET("", handlers.Events.GetUsage)
		usage.GET("/aggregate", handlers.Query.GetAggregates)
		usage.GET("/by-service", handlers.Query.GetServiceBreakdown)
		usage.GET("/costs", handlers.Query.GetCostAnalysis)
	}

	// Analytics routes
	analytics := router.Group("/analytics")
	{
		analytics.GET("/trends", handlers.Query.GetTrends)
	}

	// Billing rule routes
	rules := router.Group("/billing-rules")
	{
		rules.POST("", handlers.BillingRule.CreateRule)
		rules.GET("", handlers.BillingRule.ListRules)
		rules.GET("/:id", handlers.BillingRule.GetRule)
		rules.PUT("/:id", handlers.BillingRule.UpdateRule)
	}

	// Alert routes
	alerts := router.Group("/alerts")
	{
		alerts.POST("/configs", handlers.Alert.CreateConfiguration)
		alerts.GET("/configs", handlers.Alert.ListConfigurations)
		alerts.GET("/instances", handlers.Alert.ListInstances)
		alerts.POST("/instances/:id/acknowledge", handlers.Alert.AcknowledgeInstance)
	}
}
