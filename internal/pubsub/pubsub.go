package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Publisher publishes messages to a topic
type Publisher interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
	Close() error
}

// Subscriber consumes messages from a topic
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	Close() error
}

// PubSub combines both Publisher and Subscriber interfaces
type PubSub interface {
	Publisher
	Subscriber
}

// WatermillSubscriber adapts a Subscriber to watermill's own interface so it
// can be handed to a message router
func WatermillSubscriber(s Subscriber) message.Subscriber {
	return watermillSubscriber{s}
}

type watermillSubscriber struct {
	Subscriber
}

func (w watermillSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return w.Subscriber.Subscribe(ctx, topic)
}
