package main

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/usageline/usageline/internal/api"
	"github.com/usageline/usageline/internal/cache"
	"github.com/usageline/usageline/internal/config"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/postgres"
	"github.com/usageline/usageline/internal/queue"
	"github.com/usageline/usageline/internal/repository"
	"github.com/usageline/usageline/internal/service"
	"github.com/usageline/usageline/internal/types"
	"github.com/usageline/usageline/internal/validator"
	"github.com/usageline/usageline/internal/workers"
)

// @title Usageline API
// @version 1.0
// @description Multi-tenant usage tracking and billing pipeline
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Postgres
			postgres.NewDB,

			// Redis, queue, cache
			queue.NewRedisClient,
			queue.NewRedisQueue,
			provideCache,

			// Repositories
			repository.NewEventRepository,
			repository.NewAggregateRepository,
			repository.NewBillingRuleRepository,
			repository.NewTenantRepository,
			repository.NewRegistryRepository,
			repository.NewAlertRepository,
		),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewValidationService,
			service.NewPricingService,
			service.NewEventService,
			service.NewQueryService,
			service.NewTenantService,
			service.NewBillingRuleService,
			service.NewAlertService,
			provideHealthService,
		),
	)

	// Workers, API, and lifecycle
	opts = append(opts,
		fx.Provide(
			workers.NewProcessor,
			workers.NewAggregator,
			api.NewHandlers,
			provideRouter,
		),
		fx.Invoke(startServer),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideCache(client *redis.Client, log *logger.Logger) cache.Cache {
	return cache.NewRedisCache(client, log)
}

func provideHealthService(db *postgres.DB, q queue.Queue) service.HealthService {
	return service.NewHealthService(db, q)
}

func provideRouter(
	handlers api.Handlers,
	tenantService service.TenantService,
	redisClient *redis.Client,
	cfg *config.Configuration,
	log *logger.Logger,
) *gin.Engine {
	if cfg.Logging.Format == types.LogFormatJSON {
		gin.SetMode(gin.ReleaseMode)
	}
	return api.NewRouter(handlers, tenantService, redisClient, cfg, log)
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	processor *workers.Processor,
	aggregator *workers.Aggregator,
	db *postgres.DB,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		startAPIServer(lc, r, cfg, log)
		startProcessor(lc, processor, cfg, log)
		startAggregator(lc, aggregator, log)
	case types.ModeAPI:
		startAPIServer(lc, r, cfg, log)
	case types.ModeProcessor:
		startProcessor(lc, processor, cfg, log)
	case types.ModeAggregator:
		startAggregator(lc, aggregator, log)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			db.Close()
			return nil
		},
	})
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting API server", "address", cfg.Server.Address)
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return nil
		},
	})
}

func startProcessor(
	lc fx.Lifecycle,
	processor *workers.Processor,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	runCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	workerCount := cfg.Processor.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for i := 0; i < workerCount; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := processor.Run(runCtx); err != nil {
						log.Errorw("processor exited", "error", err)
					}
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func startAggregator(
	lc fx.Lifecycle,
	aggregator *workers.Aggregator,
	log *logger.Logger,
) {
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(done)
				if err := aggregator.Run(runCtx); err != nil {
					log.Errorw("aggregator exited", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
