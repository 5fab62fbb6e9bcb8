package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	platformlogging "github.com/hector-delgado/OrderManagementSystem/platform/logging"
	"github.com/hector-delgado/OrderManagementSystem/platform/observability"
	platformrabbit "github.com/hector-delgado/OrderManagementSystem/platform/rabbitmq"
	platformshutdown "github.com/hector-delgado/OrderManagementSystem/platform/shutdown"
	httpapi "github.com/hector-delgado/OrderManagementSystem/services/order/internal/api/http"
	rabbitclient "github.com/hector-delgado/OrderManagementSystem/services/order/internal/client/rabbitmq"
	"github.com/hector-delgado/OrderManagementSystem/services/order/internal/config"
	eventkafka "github.com/hector-delgado/OrderManagementSystem/services/order/internal/event/kafka"
	"github.com/hector-delgado/OrderManagementSystem/services/order/internal/repository/postgres"
	"github.com/hector-delgado/OrderManagementSystem/services/order/internal/service"
	productv1 "github.com/hector-delgado/OrderManagementSystem/services/product/v1"
)

// App содержит все зависимости для запуска и корректного shutdown Order Service
type App struct {
	logger      *zap.Logger
	httpServer  *http.Server
	shutdownMgr *platformshutdown.Manager
}

// Build создаёт и настраивает все зависимости Order Service
func Build(cfg config.Config) (*App, error) {
	const op = "app.Build"

	// Создаём logger
	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: "order",
		Env:         string(cfg.AppEnv),
		Level:       os.Getenv("LOG_LEVEL"),
		Format:      os.Getenv("LOG_FORMAT"),
	})
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("op", op))
	logger.Info("Building Order service", zap.String("http_addr", cfg.HTTPAddr))

	// Инициализируем OpenTelemetry (noop, если выключено)
	otelShutdown, err := observability.Init(context.Background(), observability.Config{
		Enabled:               cfg.OTelEnabled,
		OTLPEndpoint:          cfg.OTelEndpoint,
		SamplingRatio:         cfg.OTelSamplingRatio,
		ServiceName:           "order",
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

	orderRepo := postgres.NewRepository(pool)

	// Подключаемся к RabbitMQ с ретраями: stock-check обязателен, без него
	// сервис не стартует
	conn, err := platformrabbit.Connect(context.Background(), platformrabbit.Config{
		URL:             cfg.RabbitMQURL,
		ConnectAttempts: cfg.RabbitMQConnectAttempts,
		ConnectDelay:    cfg.RabbitMQConnectDelay,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	stockClient, err := rabbitclient.NewStockCheckClient(
		logger,
		conn,
		productv1.StockCheckQueue,
		cfg.StockCheckTimeout,
	)
	if err != nil {
		conn.Close()
		pool.Close()
		return nil, err
	}

	// Kafka publisher для событий order.created
	publisher := eventkafka.NewOrderCreatedPublisher(logger, cfg.KafkaBrokers, cfg.OrderCreatedTopic)

	orderService := service.NewOrderService(logger, stockClient, orderRepo, publisher)
	handler := httpapi.NewHandler(logger, orderService)

	// Функция readiness для health check
	readiness := func() bool {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer pingCancel()
		if err := pool.Ping(pingCtx); err != nil {
			return false
		}
		return !conn.IsClosed()
	}

	router := httpapi.NewRouter(handler, readiness, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Создаём shutdown manager
	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)

	// Регистрируем shutdown функции в обратном порядке выполнения
	shutdownMgr.Add("observability", otelShutdown)
	shutdownMgr.Add("postgres_pool", platformshutdown.ClosePool(pool))
	shutdownMgr.Add("kafka_writer", platformshutdown.CloseWriter(publisher))
	shutdownMgr.Add("rabbitmq_conn", platformshutdown.CloseAMQPConnection(conn))
	shutdownMgr.Add("stock_check_client", platformshutdown.CloseWriter(stockClient))
	shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(httpServer))

	return &App{
		logger:      logger,
		httpServer:  httpServer,
		shutdownMgr: shutdownMgr,
	}, nil
}

// Run запускает сервис и блокируется до получения сигнала shutdown
func (a *App) Run() error {
	defer platformlogging.Sync(a.logger)

	a.logger.Info("Starting Order service", zap.String("addr", a.httpServer.Addr))
	a.logger.Info("Health check available", zap.String("url", "http://"+a.httpServer.Addr+"/health"))

	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Ожидаем сигнал и выполняем shutdown
	a.shutdownMgr.Wait()

	a.logger.Info("Order service stopped")
	return nil
}
