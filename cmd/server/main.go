package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"virkum-respond/internal/app"
	"virkum-respond/internal/config"
	dbmigrations "virkum-respond/internal/database"
	"virkum-respond/internal/handler"
	"virkum-respond/internal/messaging"
	"virkum-respond/internal/repository"
	"virkum-respond/internal/scraper"
	"virkum-respond/internal/service"
	"virkum-respond/pkg/logger"
	"virkum-respond/pkg/middleware"
	"virkum-respond/pkg/taskmanager"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	cleanupInterval    = 10 * time.Minute
	rabbitMQRetries    = 5
	rabbitMQRetryDelay = 5 * time.Second
)

func main() {
	// .env нужен только для локального запуска
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)
	setupZerolog(cfg.LogLevel)
	cfg.Log(log)

	if err := run(cfg, log); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("Server exiting")
}

// setupZerolog настраивает логгер, который pkg/ пакеты получают через log.Ctx.
func setupZerolog(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zl := zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &zl
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- External Connections ---
	db, err := app.ConnectDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := dbmigrations.NewMigrator(db.Pool).Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	redisClient, err := app.NewRedisClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	log.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))

	mqConn, err := app.ConnectRabbitMQ(ctx, cfg.RabbitMQURL, rabbitMQRetries, rabbitMQRetryDelay, log)
	if err != nil {
		return err
	}
	defer mqConn.Close()

	// --- Dependency Injection ---
	dispatcher, dispatcherMetrics, err := app.NewDispatcher(cfg, log)
	if err != nil {
		return err
	}
	companyRepo := repository.NewPgCompanyRepository(db.Pool, log)
	testRepo := repository.NewPgTestRepository(db.Pool, log)
	eventStore := repository.NewRedisEventStore(redisClient, cfg.EventTTL, log)
	publisher, err := messaging.NewRunEventPublisher(mqConn, cfg.RunEventsQueue, log)
	if err != nil {
		return fmt.Errorf("create run event publisher: %w", err)
	}

	runService := service.NewRunService(
		dispatcher, companyRepo, testRepo, eventStore, publisher,
		taskmanager.New(taskmanager.Config{MaxActive: cfg.MaxConcurrentRuns}),
		service.RunServiceConfig{
			MaxEmailsPerRun:     cfg.MaxEmailsPerRun,
			MaxConcurrencyLevel: cfg.MaxConcurrencyLevel,
			RunRetention:        cfg.RunRetention,
		},
		log,
	)

	apiHandler := handler.NewHandler(runService, companyRepo, testRepo, scraper.New(nil, log), log)
	var auth gin.HandlerFunc
	if cfg.JWTSecret != "" {
		verifier, err := handler.NewJWTVerifier(cfg.JWTSecret, log)
		if err != nil {
			return err
		}
		auth = handler.AuthMiddleware(verifier)
	} else {
		log.Warn("JWT_SECRET is not set, API authentication is disabled")
	}

	// --- HTTP Server Setup (Gin) ---
	router := newRouter(cfg, log, dispatcherMetrics.Registry)
	apiHandler.RegisterRoutes(router, auth)

	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Starting HTTP server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.ConsumerEnabled {
		consumer := messaging.NewRunRequestConsumer(mqConn, cfg.RunRequestQueue, runService, log)
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	g.Go(func() error {
		return runService.CleanupLoop(gctx, cleanupInterval)
	})

	// --- Graceful Shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server forced to shutdown", zap.Error(err))
		}
		if err := runService.Shutdown(shutdownCtx); err != nil {
			log.Warn("Active runs did not finish before shutdown timeout", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

func newRouter(cfg *config.Config, log *zap.Logger, dispatcherRegistry *prometheus.Registry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(middleware.ZapLoggingMiddlewareForGin(log))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Метрики запросов по шаблону маршрута, а не по фактическому пути с ID
	p := ginprometheus.NewPrometheus("gin")
	p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
		if path := c.FullPath(); path != "" {
			return path
		}
		return "unmatched"
	}
	router.Use(p.HandlerFunc())

	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer, dispatcherRegistry}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})))
	return router
}
