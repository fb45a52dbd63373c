package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	appbilling "github.com/ecoapi/backend/internal/application/billing"
	"github.com/ecoapi/backend/internal/infrastructure/auth"
	infrabilling "github.com/ecoapi/backend/internal/infrastructure/billing"
	"github.com/ecoapi/backend/internal/infrastructure/cache"
	"github.com/ecoapi/backend/internal/infrastructure/config"
	"github.com/ecoapi/backend/internal/infrastructure/logger"
	"github.com/ecoapi/backend/internal/infrastructure/persistence"
	"github.com/ecoapi/backend/internal/infrastructure/scheduler"
	"github.com/ecoapi/backend/internal/infrastructure/telemetry"
	"github.com/ecoapi/backend/internal/interfaces/http/handler"
	"github.com/ecoapi/backend/internal/interfaces/http/middleware"
	"github.com/ecoapi/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting overage billing service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()

	// Database
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		if err := db.EnableTracing(); err != nil {
			log.Fatal("Failed to enable database tracing", zap.Error(err))
		}
	}
	log.Info("Database connected successfully")

	// Repositories
	periodRepo := persistence.NewGormUsagePeriodRepository(db.DB)
	subscriptionRepo := persistence.NewGormSubscriptionRepository(db.DB)

	// Stripe payment gateway
	gateway, err := infrabilling.NewStripeAdapter(&infrabilling.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		IsTestMode:    cfg.Stripe.IsTestMode,
		SubmitTimeout: cfg.Stripe.SubmitTimeout,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize Stripe", zap.Error(err))
	}

	// Summary cache: Redis when configured, in-process otherwise
	var summaryCache appbilling.SummaryCache
	if cfg.Redis.Host != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			_ = redisClient.Close()
		}()
		summaryCache = cache.NewRedisSummaryCache(redisClient, cfg.Overage.SummaryCacheTTL, log)
		log.Info("Using Redis summary cache")
	} else {
		summaryCache = cache.NewInMemorySummaryCache(cfg.Overage.SummaryCacheTTL, cfg.Overage.SummaryCacheSize)
		log.Info("Using in-process summary cache")
	}

	// Application services
	invoicer := appbilling.NewInvoicerService(periodRepo, gateway, cfg.Overage.ReviewThreshold, log)
	reconciler := appbilling.NewReconcileService(periodRepo, invoicer, log)
	summaries := appbilling.NewSummaryService(periodRepo, subscriptionRepo, summaryCache, log)

	// Auth
	jwtService := auth.NewJWTService(cfg.JWT)

	// Built-in scheduler, optional when an external cron drives the batch endpoint
	if cfg.Scheduler.Enabled {
		overageScheduler := scheduler.NewOverageScheduler(reconciler, cfg.Scheduler.RunHour, cfg.Scheduler.RunTimeout, log)
		overageScheduler.Start()
		defer overageScheduler.Stop()
	}

	// HTTP engine
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(logger.GinRecovery(log))
	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(log))
	if cfg.Telemetry.Enabled {
		engine.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	}

	engine.GET("/health", healthHandler(db))

	overageHandler := handler.NewOverageHandler(
		summaries,
		reconciler,
		middleware.JWTAuthMiddleware(jwtService),
		middleware.CronAuthMiddleware(cfg.Overage.CronSecret, log),
		log,
	)
	router.NewRouter(engine).Register(overageHandler).Setup()

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler reports liveness plus database reachability
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
