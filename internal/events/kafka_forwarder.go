package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafka.Writer the forwarder needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaForwarder publishes lifecycle events to a Kafka topic keyed by user
// ID, so every event for one attendee lands on the same partition.
type KafkaForwarder struct {
	writer  MessageWriter
	logger  *zap.Logger
	timeout time.Duration
}

// NewKafkaWriter builds a synchronous writer for topic.
func NewKafkaWriter(brokers []string, topic string, logger *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn("kafka writer", zap.String("detail", fmt.Sprintf(msg, args...)))
		}),
	}
}

// NewKafkaForwarder wraps writer.
func NewKafkaForwarder(writer MessageWriter, logger *zap.Logger) *KafkaForwarder {
	return &KafkaForwarder{writer: writer, logger: logger, timeout: 5 * time.Second}
}

// Handle is an EventHandler that forwards event.
func (f *KafkaForwarder) Handle(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	// Detached from request cancellation.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := f.writer.WriteMessages(writeCtx, msg); err != nil {
		return fmt.Errorf("forward %s event: %w", event.Type, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (f *KafkaForwarder) Close() error {
	if err := f.writer.Close(); err != nil {
		f.logger.Error("failed to close kafka writer", zap.Error(err))
		return err
	}
	return nil
}
