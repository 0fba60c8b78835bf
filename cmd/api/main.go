package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hazelbloom/storefront/internal/catalog"
	"github.com/hazelbloom/storefront/internal/checkout"
	"github.com/hazelbloom/storefront/internal/config"
	"github.com/hazelbloom/storefront/internal/fulfillment"
	"github.com/hazelbloom/storefront/internal/httpx"
	"github.com/hazelbloom/storefront/internal/identity"
	kafkax "github.com/hazelbloom/storefront/internal/kafka"
	"github.com/hazelbloom/storefront/internal/logx"
	"github.com/hazelbloom/storefront/internal/orders"
	"github.com/hazelbloom/storefront/internal/postgres"
	"github.com/hazelbloom/storefront/internal/ratelimit"
	"github.com/hazelbloom/storefront/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logx.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis: shared rate-limit counters so every instance sees the
	// same budget.
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	limiter := ratelimit.New(ratelimit.NewRedisStore(rdb, redisx.KeyRateLimitPrefix))

	// Kafka producers: one writer per topic
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPaid, 1024, logger)
	prod.Start(ctx)
	statusProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 256, logger)
	statusProd.Start(ctx)

	// Repos & services
	orderRepo := &orders.Repo{DB: db}
	catalogRepo := &catalog.Repo{DB: db}

	initiator := &checkout.Initiator{
		Catalog:   catalogRepo,
		Processor: checkout.NewStripeProcessor(cfg.StripeSecretKey),
		BaseURL:   cfg.BaseURL,
	}
	fulfillSvc := &fulfillment.Service{
		Orders:    orderRepo,
		Catalog:   catalogRepo,
		Identity:  &identity.Repo{DB: db},
		Publisher: prod,
		Producer:  cfg.ServiceName,
		Log:       logger,
	}

	router := httpx.NewRouter()
	(&httpx.CheckoutHandler{Initiator: initiator, Limiter: limiter, Log: logger}).Register(router)
	(&httpx.WebhookHandler{Fulfillment: fulfillSvc, WebhookSecret: cfg.StripeWebhookSecret, Log: logger}).Register(router)
	(&httpx.OrdersHandler{
		Store:     orderRepo,
		Limiter:   limiter,
		Log:       logger,
		Publisher: statusProd,
		Producer:  cfg.ServiceName,
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // close inboxes -> flush & close writers
	statusProd.Close()
	cancel() // stop producer loops
	prod.WaitClosed()
	statusProd.WaitClosed()
}
