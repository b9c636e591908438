package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/albedosehen/certvault/internal/certstore"
	"github.com/albedosehen/certvault/internal/config"
	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/observability"
)

// messageWriter is the slice of kafka.Writer the producer needs; tests
// substitute it.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaProducer implements Producer on a kafka-go writer.
type kafkaProducer struct {
	writer  messageWriter
	cfg     config.KafkaConfig
	logger  observability.Logger
	metrics observability.MetricsCollector
	now     func() time.Time
}

// NewProducer creates the event producer and ensures the topics exist.
func NewProducer(
	ctx context.Context,
	cfg config.KafkaConfig,
	logger observability.Logger,
	metrics observability.MetricsCollector,
) (Producer, error) {
	if err := EnsureTopics(ctx, cfg); err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.EventTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &kafkaProducer{
		writer:  writer,
		cfg:     cfg,
		logger:  logger.WithFields(observability.Component("events")),
		metrics: metrics,
		now:     time.Now,
	}, nil
}

// EnsureTopics creates the event and poison topics when they are missing.
func EnsureTopics(ctx context.Context, cfg config.KafkaConfig) error {
	client := &kafka.Client{Addr: kafka.TCP(cfg.Brokers...)}

	topics := []kafka.TopicConfig{
		{
			Topic:             cfg.EventTopic,
			NumPartitions:     cfg.Partitions,
			ReplicationFactor: cfg.ReplicationFactor,
		},
	}
	if cfg.PoisonTopic != "" {
		topics = append(topics, kafka.TopicConfig{
			Topic:             cfg.PoisonTopic,
			NumPartitions:     1,
			ReplicationFactor: cfg.ReplicationFactor,
		})
	}

	resp, err := client.CreateTopics(ctx, &kafka.CreateTopicsRequest{Topics: topics})
	if err != nil {
		return vaulterrors.NewEventError(vaulterrors.ErrCodeEventPublishFailed, "create_topics", err)
	}

	for topic, topicErr := range resp.Errors {
		if topicErr != nil && !errors.Is(topicErr, kafka.TopicAlreadyExists) {
			return vaulterrors.NewEventError(vaulterrors.ErrCodeEventPublishFailed, "create_topics",
				fmt.Errorf("topic %s: %w", topic, topicErr))
		}
	}

	return nil
}

func (p *kafkaProducer) PublishRefresh(ctx context.Context, store certstore.Store, trigger Trigger) error {
	return p.publish(ctx, TypeOperationRefresh, store.String(), &RefreshPayload{
		Store:     store.String(),
		Trigger:   trigger,
		Timestamp: stamp(p.now()),
	})
}

func (p *kafkaProducer) PublishCacheInvalidate(ctx context.Context, stores []certstore.Store, trigger Trigger) error {
	names := make([]string, len(stores))
	for i, s := range stores {
		names[i] = s.String()
	}
	return p.publish(ctx, TypeCacheInvalidate, "cache", &CacheInvalidatePayload{
		Stores:    names,
		Trigger:   trigger,
		Timestamp: stamp(p.now()),
	})
}

func (p *kafkaProducer) PublishParse(ctx context.Context, certificateID string) error {
	return p.publish(ctx, TypeCertificateParse, certificateID, &ParsePayload{
		CertificateID: certificateID,
		Timestamp:     stamp(p.now()),
	})
}

func (p *kafkaProducer) PublishFolderDelete(ctx context.Context, store certstore.Store, folderName string) error {
	return p.publish(ctx, TypeFolderDelete, folderName, &FolderDeletePayload{
		Store:      store.String(),
		FolderName: folderName,
		Timestamp:  stamp(p.now()),
	})
}

func (p *kafkaProducer) PublishFileOrFolderDelete(ctx context.Context, store certstore.Store, path string, itemType ItemType) error {
	return p.publish(ctx, TypeFileOrFolderDelete, store.String(), &FileOrFolderDeletePayload{
		Store:     store.String(),
		Path:      path,
		ItemType:  itemType,
		Timestamp: stamp(p.now()),
	})
}

func (p *kafkaProducer) PublishExport(ctx context.Context, certificateID string) error {
	return p.publish(ctx, TypeCertificateExport, certificateID, &ExportPayload{
		CertificateID: certificateID,
		Timestamp:     stamp(p.now()),
	})
}

func (p *kafkaProducer) publish(ctx context.Context, eventType Type, key string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		p.metrics.RecordEventPublished(string(eventType), false)
		return vaulterrors.NewEventError(vaulterrors.ErrCodeEventPublishFailed, string(eventType), err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: body,
		Headers: []kafka.Header{
			{Key: TypeHeader, Value: []byte(eventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.RecordEventPublished(string(eventType), false)
		return vaulterrors.NewEventError(vaulterrors.ErrCodeEventPublishFailed, string(eventType), err)
	}

	p.metrics.RecordEventPublished(string(eventType), true)
	p.logger.Debug(ctx, "event published",
		observability.EventType(string(eventType)),
		observability.String("key", key))
	return nil
}

func (p *kafkaProducer) Ping(ctx context.Context) error {
	if len(p.cfg.Brokers) == 0 {
		return vaulterrors.NewEventError(vaulterrors.ErrCodeEventPublishFailed, "ping",
			errors.New("no brokers configured"))
	}

	conn, err := kafka.DialContext(ctx, "tcp", p.cfg.Brokers[0])
	if err != nil {
		return vaulterrors.NewEventError(vaulterrors.ErrCodeEventPublishFailed, "ping", err)
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		return vaulterrors.NewEventError(vaulterrors.ErrCodeEventPublishFailed, "ping", err)
	}
	return nil
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}
