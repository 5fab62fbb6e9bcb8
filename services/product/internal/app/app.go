package app

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	platformhealth "github.com/hector-delgado/OrderManagementSystem/platform/health/http"
	platformlogging "github.com/hector-delgado/OrderManagementSystem/platform/logging"
	"github.com/hector-delgado/OrderManagementSystem/platform/observability"
	platformrabbit "github.com/hector-delgado/OrderManagementSystem/platform/rabbitmq"
	platformshutdown "github.com/hector-delgado/OrderManagementSystem/platform/shutdown"
	"github.com/hector-delgado/OrderManagementSystem/services/product/internal/config"
	eventrabbit "github.com/hector-delgado/OrderManagementSystem/services/product/internal/event/rabbitmq"
	mongorepo "github.com/hector-delgado/OrderManagementSystem/services/product/internal/repository/mongo"
	redisrepo "github.com/hector-delgado/OrderManagementSystem/services/product/internal/repository/redis"
	"github.com/hector-delgado/OrderManagementSystem/services/product/internal/service"
	productv1 "github.com/hector-delgado/OrderManagementSystem/services/product/v1"
)

// App содержит все зависимости для запуска и корректного shutdown Product Service
type App struct {
	logger      *zap.Logger
	httpServer  *http.Server
	consumer    *eventrabbit.StockCheckConsumer
	shutdownMgr *platformshutdown.Manager
	wg          sync.WaitGroup
}

// Build создаёт и настраивает все зависимости Product Service
func Build(cfg config.Config) (*App, error) {
	const op = "app.Build"

	// Создаём logger
	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: "product",
		Env:         string(cfg.AppEnv),
		Level:       os.Getenv("LOG_LEVEL"),
		Format:      os.Getenv("LOG_FORMAT"),
	})
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("op", op))
	logger.Info("Building Product service", zap.String("http_addr", cfg.HTTPAddr))

	// Инициализируем OpenTelemetry (noop, если выключено)
	otelShutdown, err := observability.Init(context.Background(), observability.Config{
		Enabled:               cfg.OTelEnabled,
		OTLPEndpoint:          cfg.OTelEndpoint,
		SamplingRatio:         cfg.OTelSamplingRatio,
		ServiceName:           "product",
		DeploymentEnvironment: string(cfg.AppEnv),
	})
	if err != nil {
		return nil, err
	}

	// Подключаемся к MongoDB
	logger.Info("Connecting to MongoDB")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	logger.Info("MongoDB connection established")

	productRepo := mongorepo.NewRepository(client, cfg.MongoDBName)
	stockService := service.NewStockService(logger, productRepo)

	// Кеш отправленных ответов: Redis в production, память для dev/test
	var replies service.ProcessedRepliesStore
	var redisClient *redis.Client
	if cfg.ReplyCache == config.ReplyCacheRedis {
		logger.Info("Connecting to Redis", zap.String("addr", cfg.RedisAddr))
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			client.Disconnect(ctx)
			return nil, err
		}
		replies = redisrepo.NewProcessedRepliesStore(redisClient, logger)
		logger.Info("Redis connection established")
	} else {
		replies = service.NewMemoryProcessedRepliesStore()
	}

	// Подключаемся к RabbitMQ с ретраями: брокер обязателен, без него
	// сервис не стартует
	conn, err := platformrabbit.Connect(context.Background(), platformrabbit.Config{
		URL:             cfg.RabbitMQURL,
		ConnectAttempts: cfg.RabbitMQConnectAttempts,
		ConnectDelay:    cfg.RabbitMQConnectDelay,
	}, logger)
	if err != nil {
		if redisClient != nil {
			redisClient.Close()
		}
		client.Disconnect(ctx)
		return nil, err
	}

	consumer, err := eventrabbit.NewStockCheckConsumer(
		logger,
		conn,
		productv1.StockCheckQueue,
		stockService,
		replies,
		cfg.ReplyTTL,
		cfg.ConsumerMaxAttempts,
		cfg.ConsumerBackoffBase,
	)
	if err != nil {
		conn.Close()
		if redisClient != nil {
			redisClient.Close()
		}
		client.Disconnect(ctx)
		return nil, err
	}

	// Функция readiness для health check
	readiness := func() bool {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer pingCancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			return false
		}
		return !conn.IsClosed()
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
	shutdownMgr.Add("mongodb", platformshutdown.DisconnectMongo(client))
	if redisClient != nil {
		shutdownMgr.Add("redis", platformshutdown.CloseWriter(redisClient))
	}
	shutdownMgr.Add("rabbitmq_conn", platformshutdown.CloseAMQPConnection(conn))
	shutdownMgr.Add("consumer_channel", platformshutdown.CloseWriter(consumer))
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

	a.logger.Info("Starting Product service", zap.String("addr", a.httpServer.Addr))
	a.logger.Info("Health check available", zap.String("url", "http://"+a.httpServer.Addr+"/health"))

	ctx, cancel := context.WithCancel(context.Background())

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.consumer.Start(ctx); err != nil {
			a.logger.Error("stock-check consumer error", zap.Error(err))
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
	a.logger.Info("Product service stopped")
	return nil
}
