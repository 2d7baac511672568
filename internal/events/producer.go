// Package events publishes generation outcomes for downstream payment and
// notification consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"dreamframe/internal/domain"
	"dreamframe/internal/infra"
)

const (
	TypeVideoReady  = "video.ready"
	TypeVideoFailed = "video.failed"
)

// Event is the JSON body of a result message. The message key is RequestID.
type Event struct {
	Type          string           `json:"type"`
	RequestID     string           `json:"request_id"`
	OrderID       string           `json:"order_id,omitempty"`
	ProviderUsed  string           `json:"provider_used,omitempty"`
	VideoLocation string           `json:"video_location,omitempty"`
	MIME          string           `json:"mime,omitempty"`
	ErrorDetail   string           `json:"error_detail,omitempty"`
	ElapsedMS     int64            `json:"elapsed_ms"`
	Attempts      []domain.Attempt `json:"attempts,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// NewResultEvent converts an orchestration result into an event.
func NewResultEvent(orderID string, result *domain.GenerationResult) Event {
	ev := Event{
		Type:          TypeVideoFailed,
		RequestID:     result.RequestID,
		OrderID:       orderID,
		ProviderUsed:  result.ProviderUsed,
		VideoLocation: result.VideoLocation,
		MIME:          result.MIME,
		ErrorDetail:   result.ErrorDetail,
		ElapsedMS:     result.Elapsed.Milliseconds(),
		Attempts:      result.Attempts,
		OccurredAt:    time.Now().UTC(),
	}
	if result.Success {
		ev.Type = TypeVideoReady
	}
	return ev
}

// Publisher delivers result events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer writes events to a Kafka topic.
type Producer struct {
	writer messageWriter
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(ev.RequestID),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// LogPublisher only logs events. Used when no brokers are configured.
type LogPublisher struct {
	Logger *infra.Logger
}

func (l LogPublisher) Publish(ctx context.Context, ev Event) error {
	logger := l.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	logger.Info().
		Str("type", ev.Type).
		Str("request_id", ev.RequestID).
		Str("provider", ev.ProviderUsed).
		Str("location", ev.VideoLocation).
		Msg("events: result (no broker configured)")
	return nil
}

func (LogPublisher) Close() error { return nil }

// NewPublisher returns a Kafka producer, or a LogPublisher when brokers is empty.
func NewPublisher(brokers []string, topic string, logger *infra.Logger) Publisher {
	if len(brokers) == 0 {
		return LogPublisher{Logger: logger}
	}
	return NewProducer(brokers, topic)
}
