package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	platformhealth "github.com/hector-delgado/OrderManagementSystem/platform/health/http"
	platformlogging "github.com/hector-delgado/OrderManagementSystem/platform/logging"
	"github.com/hector-delgado/OrderManagementSystem/platform/observability"
	platformshutdown "github.com/hector-delgado/OrderManagementSystem/platform/shutdown"
	"github.com/hector-delgado/OrderManagementSystem/services/logging/internal/config"
	eventkafka "github.com/hector-delgado/OrderManagementSystem/services/logging/internal/event/kafka"
	"github.com/hector-delgado/OrderManagementSystem/services/logging/internal/repository/postgres"
	"github.com/hector-delgado/OrderManagementSystem/services/logging/internal/service"
)

// App содержит все зависимости для запуска и корректного shutdown Logging Service
type App struct {
	logger      *zap.Logger
	httpServer  *http.Server
	consumer    *eventkafka.OrderCreatedConsumer
	shutdownMgr *platformshutdown.Manager
	wg          sync.WaitGroup
}

// Build создаёт и настраивает все зависимости Logging Service
func Build(cfg config.Config) (*App, error) {
	const op = "app.Build"

	// Создаём logger
	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: "logging",
		Env:         string(cfg.AppEnv),
		Level:       os.Getenv("LOG_LEVEL"),
		Format:      os.Getenv("LOG_FORMAT"),
	})
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("op", op))
	logger.Info("Building Logging service", zap.String("http_addr", cfg.HTTPAddr))

	// Инициализируем OpenTelemetry (noop, если выключено)
	otelShutdown, err := observability.Init(context.Background(), observability.Config{
		Enabled:               cfg.OTelEnabled,
		OTLPEndpoint:          cfg.OTelEndpoint,
		SamplingRatio:         cfg.OTelSamplingRatio,
		ServiceName:           "logging",
		DeploymentEnvironment: string(cfg.AppEnv),
	})
	if err != nil {
		return nil, err
	}

	// Подключаемся к PostgreSQL
	logger.Info("Connecting to PostgreSQL")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("PostgreSQL connection established")

	// Применяем миграции
	logger.Info("Applying database migrations")
	db, err := goose.OpenDBWithDriver("pgx", cfg.PostgresDSN)
	if err != nil {
		pool.Close()
		return nil, err
	}
	defer db.Close()

	wd, err := os.Getwd()
	if err != nil {
		pool.Close()
		return nil, err
	}
	migrationsDir := filepath.Join(wd, "migrations")

	if err := goose.Up(db, migrationsDir); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("Database migrations applied successfully")

	auditRepo := postgres.NewRepository(pool)
	auditService := service.NewAuditService(logger, auditRepo)

	dlqPublisher := eventkafka.NewDLQPublisher(logger, cfg.KafkaBrokers, cfg.DLQTopic)
	consumer := eventkafka.NewOrderCreatedConsumer(
		logger,
		cfg.KafkaBrokers,
		cfg.ConsumerGroupID,
		cfg.OrderCreatedTopic,
		auditService,
		dlqPublisher,
		cfg.RetryMaxAttempts,
		cfg.RetryBackoffBase,
	)

	// Функция readiness для health check
	readiness := func() bool {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer pingCancel()
		return pool.Ping(pingCtx) == nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", platformhealth.Handler(readiness))

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Создаём shutdown manager
	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)

	// Регистрируем shutdown функции в обратном порядке выполнения
	shutdownMgr.Add("observability", otelShutdown)
	shutdownMgr.Add("postgres_pool", platformshutdown.ClosePool(pool))
	shutdownMgr.Add("dlq_publisher", platformshutdown.CloseWriter(dlqPublisher))
	shutdownMgr.Add("kafka_consumer", platformshutdown.CloseWriter(consumer))
	shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(httpServer))

	return &App{
		logger:      logger,
		httpServer:  httpServer,
		consumer:    consumer,
		shutdownMgr: shutdownMgr,
	}, nil
}

// Run запускает сервис и блокируется до получения сигнала shutdown
func (a *App) Run() error {
	defer platformlogging.Sync(a.logger)

	a.logger.Info("Starting Logging service", zap.String("addr", a.httpServer.Addr))
	a.logger.Info("Health check available", zap.String("url", "http://"+a.httpServer.Addr+"/health"))

	ctx, cancel := context.WithCancel(context.Background())

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.consumer.Start(ctx); err != nil {
			a.logger.Error("order created consumer error", zap.Error(err))
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Ожидаем сигнал и выполняем shutdown
	a.shutdownMgr.Wait()

	cancel()
	a.wg.Wait()
	a.logger.Info("Logging service stopped")
	return nil
}
