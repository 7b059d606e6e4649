package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

type KafkaConfig struct {
	Brokers     string // comma separated
	TopicPrefix string
}

// KafkaPublisher writes events asynchronously; delivery failures surface only in logs.
type KafkaPublisher struct {
	writer *kafka.Writer
	prefix string
	logger *slog.Logger
}

// NewPublisher returns a Kafka publisher, or a no-op one when no brokers are configured.
func NewPublisher(cfg KafkaConfig, logger *slog.Logger) Publisher {
	brokers := SplitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		logger.Warn("event publishing disabled (no kafka brokers configured)")
		return NopPublisher{}
	}
	return NewKafkaPublisher(brokers, cfg.TopicPrefix, logger)
}

func NewKafkaPublisher(brokers []string, prefix string, logger *slog.Logger) *KafkaPublisher {
	p := &KafkaPublisher{prefix: prefix, logger: logger}
	p.writer = &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		Async:                  true,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("kafka delivery failed", "messages", len(messages), "err", err)
			}
		},
	}
	return p
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	msg, err := p.message(ctx, ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", ev.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) message(ctx context.Context, ev Event) (kafka.Message, error) {
	body, err := json.Marshal(envelope{
		ID:          ev.ID.String(),
		Type:        ev.Type,
		AggregateID: ev.AggregateID.String(),
		OccurredAt:  ev.OccurredAt,
		Data:        ev.Payload,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s: %w", ev.Type, err)
	}

	headers := []kafka.Header{
		{Key: "event_id", Value: []byte(ev.ID.String())},
		{Key: "event_type", Value: []byte(ev.Type)},
	}
	carrier := headerCarrier{headers: &headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	return kafka.Message{
		Topic:   p.Topic(ev.Type),
		Key:     []byte(ev.AggregateID.String()),
		Value:   body,
		Headers: headers,
	}, nil
}

func (p *KafkaPublisher) Topic(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	return p.prefix + "." + eventType
}

// Close flushes pending async writes.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type envelope struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	AggregateID string         `json:"aggregate_id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Data        map[string]any `json:"data"`
}

// headerCarrier adapts kafka headers to the otel propagation carrier.
type headerCarrier struct {
	headers *[]kafka.Header
}

func (c headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func SplitBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
