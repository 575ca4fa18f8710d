package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/palpitai/platform/internal/domain"
)

// OutboxSource reads and acknowledges event_outbox rows.
type OutboxSource interface {
	FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxRow, error)
	MarkPublished(ctx context.Context, ids []int64) error
}

// Publisher is the sink outbox events are relayed to.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// OutboxPoller polls the event_outbox table and publishes events to Kafka.
type OutboxPoller struct {
	source      OutboxSource
	producer    Publisher
	topicPrefix string
	metrics     *Metrics
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(source OutboxSource, producer Publisher, topicPrefix string, metrics *Metrics, logger *slog.Logger) *OutboxPoller {
	return &OutboxPoller{
		source:      source,
		producer:    producer,
		topicPrefix: topicPrefix,
		metrics:     metrics,
		logger:      logger,
		interval:    500 * time.Millisecond,
		batchSize:   100,
	}
}

// TopicFor returns the topic an aggregate's events are published to.
func TopicFor(prefix string, aggregate domain.AggregateType) string {
	return prefix + "." + string(aggregate)
}

// OutboxMessage is the envelope written to Kafka.
type OutboxMessage struct {
	EventID       string          `json:"event_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Start begins polling in a goroutine. Stops when ctx is cancelled.
func (p *OutboxPoller) Start(ctx context.Context) {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("outbox poller stopped")
				return
			case <-ticker.C:
				if _, err := p.PollOnce(ctx); err != nil {
					p.logger.Error("outbox poll error", "error", err)
				}
			}
		}
	}()
}

// PollOnce relays one batch and returns how many events were marked published.
// Events stay unpublished when Kafka rejects them and are retried next tick.
func (p *OutboxPoller) PollOnce(ctx context.Context) (int, error) {
	events, err := p.source.FetchUnpublished(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	published := make([]int64, 0, len(events))
	for _, e := range events {
		msg, _ := json.Marshal(OutboxMessage{
			EventID:       e.EventID.String(),
			AggregateType: string(e.AggregateType),
			AggregateID:   e.AggregateID,
			EventType:     string(e.EventType),
			Payload:       e.Payload,
			OccurredAt:    e.OccurredAt,
		})

		if err := p.producer.Publish(ctx, TopicFor(p.topicPrefix, e.AggregateType), []byte(e.PartitionKey), msg); err != nil {
			p.logger.Error("kafka publish failed", "event_id", e.EventID, "error", err)
			p.metrics.OutboxEvent("failed")
			continue
		}
		published = append(published, e.SeqID)
		p.metrics.OutboxEvent("published")
	}

	if err := p.source.MarkPublished(ctx, published); err != nil {
		return 0, err
	}

	p.logger.Debug("outbox poll complete", "published", len(published), "fetched", len(events))
	return len(published), nil
}
