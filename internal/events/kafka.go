package events

import (
	"context"
	"fmt"
	"time"

	"reservo/internal/config"
	"reservo/internal/logging"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the forwarder needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a writer for the configured topic.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// KafkaForwarder copies every bus event to a kafka topic. The event type is
// carried in a header and used as the message key.
type KafkaForwarder struct {
	writer  MessageWriter
	timeout time.Duration
	logger  zerolog.Logger
}

func NewKafkaForwarder(writer MessageWriter, logger *zerolog.Logger) *KafkaForwarder {
	return &KafkaForwarder{
		writer:  writer,
		timeout: 5 * time.Second,
		logger:  logging.Component(logger, "kafka-forwarder"),
	}
}

// Attach subscribes the forwarder to every event on the bus.
func (f *KafkaForwarder) Attach(bus *EventBus) {
	bus.SubscribeAll(f.Handle)
}

func (f *KafkaForwarder) Handle(event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.Type),
		Value: event.Payload,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		f.logger.Error().Err(err).Str("event_type", event.Type).Msg("Failed to forward event")
		return fmt.Errorf("forward %s: %w", event.Type, err)
	}
	return nil
}

func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}
