package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/pushfleet/apnsd/internal/config"
	"github.com/pushfleet/apnsd/internal/consumer"
	"github.com/pushfleet/apnsd/internal/repository"
	"github.com/pushfleet/apnsd/internal/routes"
	"github.com/pushfleet/apnsd/internal/services"
	"github.com/pushfleet/apnsd/pkg/logger"
	"github.com/pushfleet/apnsd/pkg/metrics"
	"github.com/pushfleet/apnsd/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.LogLevel, os.Stdout)
	logr.Info("starting deliverer", slog.String("app", cfg.AppName))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCfg := retry.Config{
		MaxAttempts:    cfg.ConnectMaxAttempts,
		InitialBackoff: cfg.ConnectInitialBackoff,
		MaxBackoff:     cfg.ConnectMaxBackoff,
	}

	var db *gorm.DB
	connectCfg.OnRetry = func(attempt int, err error) {
		logr.Warn("database connection failed, retrying", slog.Int("attempt", attempt), slog.Any("error", err))
	}
	if err := retry.Do(ctx, connectCfg, func() error {
		db, err = gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		return err
	}); err != nil {
		logr.Error("failed to connect database", slog.Any("error", err))
		os.Exit(1)
	}

	var tokenCache *repository.TokenCache
	if cfg.RedisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		tokenCache = repository.NewTokenCache(rdb, cfg.TokenCacheTTL)
		defer tokenCache.Close()
	}

	notificationStore, err := repository.NewNotificationStore(db, cfg.NotificationTable)
	if err != nil {
		logr.Error("failed to prepare notification store", slog.Any("error", err))
		os.Exit(1)
	}
	deviceStore := repository.NewDeviceStore(db, cfg.DeviceTable)
	metricsCollector := metrics.New()

	gatewayDialer, err := services.NewGatewayDialer(
		cfg.GatewayAddr,
		cfg.GatewayCertFile,
		cfg.GatewayKeyFile,
		cfg.DialTimeout,
		cfg.WriteTimeout,
		logr,
	)
	if err != nil {
		logr.Error("failed to configure gateway dialer", slog.Any("error", err))
		os.Exit(1)
	}

	tokenResolver := services.NewTokenResolver(deviceStore, tokenCache, logr)
	recorder := services.NewDeliveryRecorder(notificationStore, logr)
	processor := services.NewBatchProcessor(
		notificationStore,
		recorder,
		tokenResolver,
		gatewayDialer,
		metricsCollector,
		logr,
		cfg.MaxDeliveryAttempts,
	)
	scheduler := services.NewScheduler(processor, cfg.BatchInterval, logr)

	var conn *amqp.Connection
	connectCfg.OnRetry = func(attempt int, err error) {
		logr.Warn("rabbitmq connection failed, retrying", slog.Int("attempt", attempt), slog.Any("error", err))
	}
	if err := retry.Do(ctx, connectCfg, func() error {
		conn, err = amqp.Dial(cfg.RabbitURL)
		return err
	}); err != nil {
		logr.Error("failed to connect rabbitmq", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	base := consumer.NewBaseConsumer(
		conn,
		cfg.IngestQueue,
		cfg.DeadLetterQueue,
		cfg.IngestExchange,
		cfg.IngestRoutingKey,
		cfg.PrefetchCount,
		cfg.WorkerCount,
		logr,
	)
	ingest := consumer.NewIngestConsumer(base, notificationStore, deviceStore, metricsCollector, logr, cfg.IngestMaxDeliveries)

	started := time.Now()
	httpSrv := startHTTPServer(cfg.HTTPPort, metricsCollector, logr, started)

	go func() {
		if err := ingest.Start(ctx); err != nil {
			logr.Error("ingest consumer exited", slog.Any("error", err))
			stop()
		}
	}()

	if err := scheduler.Run(ctx); err != nil {
		logr.Error("scheduler exited", slog.Any("error", err))
	}

	shutdownHTTP(httpSrv, logr)
	logr.Info("deliverer stopped")
}

func startHTTPServer(port string, metricsCollector *metrics.Metrics, logr *slog.Logger, started time.Time) *http.Server {
	if port == "" {
		port = "8083"
	}
	handler := routes.NewRouter(metricsCollector, started)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Error("http server error", slog.Any("error", err))
		}
	}()
	return srv
}

func shutdownHTTP(srv *http.Server, logr *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("failed to shutdown http server", slog.Any("error", err))
	}
}
