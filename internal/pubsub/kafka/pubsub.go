package kafka

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/invoicerecon/internal/config"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/logger"
	"github.com/flexprice/invoicerecon/internal/pubsub"
)

// PartitionKeyMetadata is the message metadata key used to pick the partition
const PartitionKeyMetadata = "partition_key"

type PubSub struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *logger.Logger
}

// NewPubSub creates a new kafka-based pubsub
func NewPubSub(cfg *config.Configuration, logger *logger.Logger) (pubsub.PubSub, error) {
	saramaConfig := GetSaramaConfig(cfg)

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers: cfg.Kafka.Brokers,
			Marshaler: kafka.NewWithPartitioningMarshaler(func(topic string, msg *message.Message) (string, error) {
				return msg.Metadata.Get(PartitionKeyMetadata), nil
			}),
			OverwriteSaramaConfig: saramaConfig,
		},
		watermill.NopLogger{},
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Could not create kafka publisher").
			WithReportableDetails(map[string]any{"brokers": cfg.Kafka.Brokers}).
			Mark(ierr.ErrSystem)
	}

	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               cfg.Kafka.Brokers,
			ConsumerGroup:         cfg.Kafka.ConsumerGroup,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaConfig,
		},
		watermill.NopLogger{},
	)
	if err != nil {
		_ = publisher.Close()
		return nil, ierr.WithError(err).
			WithHint("Could not create kafka subscriber").
			WithReportableDetails(map[string]any{"brokers": cfg.Kafka.Brokers}).
			Mark(ierr.ErrSystem)
	}

	logger.Infow("kafka pubsub ready",
		"brokers", cfg.Kafka.Brokers,
		"consumer_group", cfg.Kafka.ConsumerGroup,
	)
	return &PubSub{
		publisher:  publisher,
		subscriber: subscriber,
		logger:     logger,
	}, nil
}

// Publish publishes a message to topic
func (p *PubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	msg.SetContext(ctx)
	return p.publisher.Publish(topic, msg)
}

// Subscribe starts consuming messages of topic
func (p *PubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return p.subscriber.Subscribe(ctx, topic)
}

// Close closes the pubsub
func (p *PubSub) Close() error {
	if err := p.publisher.Close(); err != nil {
		p.logger.Errorw("failed to close kafka publisher", "error", err)
	}
	return p.subscriber.Close()
}
