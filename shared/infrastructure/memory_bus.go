package infrastructure

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/resilience"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	_ events.Publisher  = (*MemoryBus)(nil)
	_ events.Requester  = (*MemoryBus)(nil)
	_ events.Subscriber = (*MemoryBus)(nil)
)

// publishedHistory bounds how many events Published can return
const publishedHistory = 256

// Responder answers a request on the in-process bus.
type Responder func(ctx context.Context, request *events.Event) (interface{}, error)

type memorySubscription struct {
	pattern events.Topic
	handler events.EventHandler
}

// MemoryBus is an in-process broker for local runs and tests. Payloads are
// round-tripped through JSON so handlers see what a real broker would deliver.
type MemoryBus struct {
	logger *zap.Logger

	mu         sync.RWMutex
	subs       []memorySubscription
	responders map[events.Topic]Responder
	published  []*events.Event
}

func NewMemoryBus(logger *zap.Logger) *MemoryBus {
	return &MemoryBus{
		logger:     logger.Named("memory_bus"),
		responders: make(map[events.Topic]Responder),
	}
}

// Respond registers the responder for a request topic
func (b *MemoryBus) Respond(topic events.Topic, responder Responder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responders[topic] = responder
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string, handler events.EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, memorySubscription{pattern: events.Topic(topic), handler: handler})
	return nil
}

// Publish records the events and delivers them synchronously to matching subscribers.
// Subscriber failures are logged, as a broker would not report them to the producer.
func (b *MemoryBus) Publish(ctx context.Context, evts ...*events.Event) error {
	for _, evt := range evts {
		if err := ctx.Err(); err != nil {
			return err
		}

		delivered, err := roundTrip(evt)
		if err != nil {
			return err
		}

		b.mu.Lock()
		if len(b.published) == publishedHistory {
			copy(b.published, b.published[1:])
			b.published = b.published[:publishedHistory-1]
		}
		b.published = append(b.published, delivered)
		subs := append([]memorySubscription(nil), b.subs...)
		b.mu.Unlock()

		for _, sub := range subs {
			if !evt.Topic.Matches(sub.pattern) {
				continue
			}
			if err := sub.handler.Handle(ctx, delivered.Clone()); err != nil {
				b.logger.Error("subscriber failed", zap.String("topic", evt.Topic.String()), zap.Error(err))
			}
		}
	}
	return nil
}

func (b *MemoryBus) Request(ctx context.Context, evt *events.Event) (*events.Event, error) {
	b.mu.RLock()
	responder, ok := b.responders[evt.Topic]
	b.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(events.ErrNoResponder, "topic %s", evt.Topic)
	}

	request, err := roundTrip(evt)
	if err != nil {
		return nil, err
	}

	type result struct {
		response interface{}
		err      error
	}
	done := make(chan result, 1)
	go func() {
		response, err := responder(ctx, request)
		done <- result{response: response, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "no reply for %s", evt.Topic)
	case res := <-done:
		if res.err != nil {
			remote := &events.RemoteError{Topic: evt.Topic, Message: res.err.Error()}
			if resilience.IsPermanent(res.err) {
				return nil, resilience.Permanent(remote)
			}
			return nil, remote
		}
		raw, err := json.Marshal(res.response)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal response")
		}
		reply := events.NewEvent(evt.AggregateID, evt.Topic, json.RawMessage(raw))
		reply.CorrelationID = request.ID.String()
		return reply, nil
	}
}

// Published returns a copy of the most recent published events, oldest first
func (b *MemoryBus) Published() []*events.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*events.Event(nil), b.published...)
}

func (b *MemoryBus) Close() error {
	return nil
}

func roundTrip(evt *events.Event) (*events.Event, error) {
	payload, err := evt.MarshalPayload()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal %s payload", evt.Topic)
	}
	delivered := evt.Clone()
	delivered.Data = payload
	return delivered, nil
}
