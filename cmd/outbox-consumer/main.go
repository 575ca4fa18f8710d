package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/infra"
	"github.com/palpitai/platform/internal/repository"
	"github.com/segmentio/kafka-go"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outbox consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.KafkaEnabled {
		return consumeKafka(ctx, cfg, logger)
	}
	return drainOutbox(ctx, cfg, logger)
}

// consumeKafka follows every aggregate topic the API relays to.
func consumeKafka(ctx context.Context, cfg *infra.Config, logger *slog.Logger) error {
	topics := []string{
		infra.TopicFor(cfg.KafkaTopicPrefix, domain.AggregateWallet),
		infra.TopicFor(cfg.KafkaTopicPrefix, domain.AggregatePayment),
		infra.TopicFor(cfg.KafkaTopicPrefix, domain.AggregateWithdrawal),
		infra.TopicFor(cfg.KafkaTopicPrefix, domain.AggregateRound),
		infra.TopicFor(cfg.KafkaTopicPrefix, domain.AggregateUser),
	}
	consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, topics, "palpitai-outbox-consumer", true, logger)
	defer consumer.Close()

	logger.Info("outbox-consumer reading kafka", "topics", topics)
	return consumer.Run(ctx, func(_ context.Context, msg kafka.Message) error {
		var env infra.OutboxMessage
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			return fmt.Errorf("decode envelope: %w", err)
		}
		logOutboxEvent(logger, env, msg.Topic)
		return nil
	})
}

// drainOutbox reads event_outbox directly when no broker is configured and
// marks each logged event as published.
func drainOutbox(ctx context.Context, cfg *infra.Config, logger *slog.Logger) error {
	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("outbox-consumer connected to postgres")

	source := repository.NewOutboxSource(repository.NewOutboxRepository(), pool)
	poller := infra.NewOutboxPoller(source, logPublisher{logger: logger}, cfg.KafkaTopicPrefix, nil, logger)
	poller.Start(ctx)

	<-ctx.Done()
	logger.Info("outbox-consumer shutting down")
	return nil
}

// logPublisher satisfies infra.Publisher by writing each event to the log.
type logPublisher struct {
	logger *slog.Logger
}

func (p logPublisher) Publish(_ context.Context, topic string, _, value []byte) error {
	var env infra.OutboxMessage
	if err := json.Unmarshal(value, &env); err != nil {
		return err
	}
	logOutboxEvent(p.logger, env, topic)
	return nil
}

func logOutboxEvent(logger *slog.Logger, env infra.OutboxMessage, topic string) {
	logger.Info("outbox event",
		"topic", topic,
		"event_id", env.EventID,
		"aggregate_type", env.AggregateType,
		"aggregate_id", env.AggregateID,
		"event_type", env.EventType,
		"occurred_at", env.OccurredAt,
	)
}
