// The notifier consumes order.paid events and triggers the
// order-confirmation side effects (customer email, ops feed). Event
// deliveries are at least once, so each event id is claimed in Redis
// before any side effect runs.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/hazelbloom/storefront/internal/config"
	kafkax "github.com/hazelbloom/storefront/internal/kafka"
	"github.com/hazelbloom/storefront/internal/logx"
	"github.com/hazelbloom/storefront/internal/orders"
	"github.com/hazelbloom/storefront/internal/redisx"
)

const service = "notifier"

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger, err := logx.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	consumer := kafkax.NewConsumer(cfg.KafkaBrokers, "notifier", orders.TopicOrderPaid, 4, logger)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("notifier consuming", zap.String("topic", orders.TopicOrderPaid))
	if err := consumer.Start(ctx, handle(rdb, logger)); err != nil {
		logger.Fatal("consumer", zap.Error(err))
	}
}

func handle(rdb *redis.Client, logger *zap.Logger) kafkax.Handler {
	return func(ctx context.Context, m kafkago.Message) error {
		var env orders.Envelope
		if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
			logger.Warn("dropping undecodable event", zap.Error(err))
			return nil // poison message; do not block the partition
		}
		if env.EventType != orders.EventOrderPaid {
			return nil
		}

		// Claim the event id; a lost race means another worker (or a
		// previous delivery) already handled it.
		dedupKey := fmt.Sprintf(redisx.KeyDedup, service, env.EventID)
		fresh, err := rdb.SetNX(ctx, dedupKey, 1, redisx.TTLDedup).Result()
		if err != nil {
			return err // retriable: leave the offset uncommitted
		}
		if !fresh {
			return nil
		}

		payload, err := kafkax.UnwrapPayload[orders.OrderPaidPayload](env.Payload)
		if err != nil {
			logger.Warn("dropping event with bad payload", zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}

		// Confirmation delivery itself is a stub; the pipeline's job
		// ends at producing exactly one notification intent per order.
		logger.Info("order confirmation queued",
			zap.String("order_id", payload.OrderID),
			zap.String("email", payload.Email),
			zap.Int64("amount_cents", payload.AmountCents),
			zap.Int("items", len(payload.Items)),
		)
		return nil
	}
}
