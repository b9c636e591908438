package events

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/albedosehen/certvault/internal/config"
	"github.com/albedosehen/certvault/internal/observability"
)

// maxHandleAttempts bounds in-place retries before a message is forwarded to
// the poison topic and committed.
const maxHandleAttempts = 3

// retryBackoff separates handler retry attempts.
const retryBackoff = 500 * time.Millisecond

// messageReader is the slice of kafka.Reader the consumer needs; tests
// substitute it.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaConsumer implements Consumer with a consumer-group reader. Handler
// outcomes never block the topic: a message either succeeds, or after
// bounded retries lands on the poison topic, and its offset is committed
// either way.
type kafkaConsumer struct {
	reader     messageReader
	poison     messageWriter
	dispatcher *Dispatcher
	logger     observability.Logger
	metrics    observability.MetricsCollector
}

// NewConsumer creates the consumer-group reader for the event topic.
func NewConsumer(
	cfg config.KafkaConfig,
	dispatcher *Dispatcher,
	logger observability.Logger,
	metrics observability.MetricsCollector,
) Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.ConsumerGroup,
		Topic:          cfg.EventTopic,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		CommitInterval: 0, // synchronous commits
	})

	var poison messageWriter
	if cfg.PoisonTopic != "" {
		poison = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.PoisonTopic,
			RequiredAcks: kafka.RequireOne,
		}
	}

	return &kafkaConsumer{
		reader:     reader,
		poison:     poison,
		dispatcher: dispatcher,
		logger:     logger.WithFields(observability.Component("consumer")),
		metrics:    metrics,
	}
}

func (c *kafkaConsumer) Run(ctx context.Context) error {
	c.logger.Info(ctx, "event consumer started",
		observability.Any("handled_types", c.dispatcher.Types()))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			c.logger.Error(ctx, err, "failed to fetch message")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
				continue
			}
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error(ctx, err, "failed to commit offset",
				observability.Int64("offset", msg.Offset))
		}
	}
}

func (c *kafkaConsumer) handle(ctx context.Context, msg kafka.Message) {
	eventType := typeOf(msg)
	start := time.Now()

	if eventType == "" {
		c.logger.Warn(ctx, "message without event_type header, forwarding to poison topic",
			observability.Int64("offset", msg.Offset))
		c.forwardPoison(ctx, msg)
		return
	}

	var err error
	for attempt := 1; attempt <= maxHandleAttempts; attempt++ {
		err = c.dispatcher.Dispatch(ctx, eventType, msg.Value)
		if err == nil {
			c.metrics.RecordEventConsumed(string(eventType), true, time.Since(start))
			return
		}

		c.logger.Error(ctx, err, "event handler failed",
			observability.EventType(string(eventType)),
			observability.Int("attempt", attempt))

		if attempt < maxHandleAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryBackoff):
			}
		}
	}

	c.metrics.RecordEventConsumed(string(eventType), false, time.Since(start))
	c.forwardPoison(ctx, msg)
}

// forwardPoison parks an unprocessable message on the poison topic so the
// main topic keeps moving. Without a poison topic the message is dropped
// after logging.
func (c *kafkaConsumer) forwardPoison(ctx context.Context, msg kafka.Message) {
	if c.poison == nil {
		return
	}

	out := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: msg.Headers}
	if err := c.poison.WriteMessages(ctx, out); err != nil && ctx.Err() == nil {
		c.logger.Error(ctx, err, "failed to forward message to poison topic",
			observability.Int64("offset", msg.Offset))
	}
}

func (c *kafkaConsumer) Close() error {
	err := c.reader.Close()
	if c.poison != nil {
		if perr := c.poison.Close(); err == nil {
			err = perr
		}
	}
	return err
}

func typeOf(msg kafka.Message) Type {
	for _, h := range msg.Headers {
		if h.Key == TypeHeader {
			return Type(h.Value)
		}
	}
	return ""
}
