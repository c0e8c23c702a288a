package infrastructure

import (
	"context"

	"github.com/draftea/order-system/shared/events"
	"github.com/pkg/errors"
)

var _ events.Publisher = (*TopicPublisher)(nil)

// TopicPublisher sends each event to the publisher registered for its topic,
// falling back to a default one. Events are published in order.
type TopicPublisher struct {
	routes   map[events.Topic]events.Publisher
	fallback events.Publisher
}

func NewTopicPublisher(fallback events.Publisher) *TopicPublisher {
	return &TopicPublisher{
		routes:   make(map[events.Topic]events.Publisher),
		fallback: fallback,
	}
}

// Route registers the publisher for topic. Not safe for use after the first Publish.
func (p *TopicPublisher) Route(topic events.Topic, publisher events.Publisher) *TopicPublisher {
	p.routes[topic] = publisher
	return p
}

func (p *TopicPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	for _, evt := range evts {
		publisher, ok := p.routes[evt.Topic]
		if !ok {
			publisher = p.fallback
		}
		if publisher == nil {
			return errors.Wrapf(ErrNoRoute, "topic %s", evt.Topic)
		}
		if err := publisher.Publish(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}
