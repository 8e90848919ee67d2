package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/orderflow/pkg/outbox"
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherFactory func(topic string) publisher

// pubsubSink adapts Pub/Sub publishers to the outbox relay.
type pubsubSink struct {
	factory publisherFactory

	mu         sync.Mutex
	publishers map[string]publisher
}

func newPubSubSink(factory publisherFactory) (*pubsubSink, error) {
	if factory == nil {
		return nil, errors.New("publisher factory is required")
	}
	return &pubsubSink{factory: factory, publishers: map[string]publisher{}}, nil
}

func (s *pubsubSink) Send(ctx context.Context, msg outbox.Message) error {
	pub := s.publisherFor(msg.Topic)
	if pub == nil {
		return outbox.NonRetryableError{Err: fmt.Errorf("no publisher for topic %q", msg.Topic)}
	}
	result := pub.Publish(ctx, &gcppubsub.Message{Data: msg.Data, Attributes: msg.Attributes})
	if result == nil {
		return errors.New("publish returned no result")
	}
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Topic, err)
	}
	return nil
}

func (s *pubsubSink) publisherFor(topic string) publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pub, ok := s.publishers[topic]; ok {
		return pub
	}
	pub := s.factory(topic)
	if pub != nil {
		s.publishers[topic] = pub
	}
	return pub
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
