package infrastructure

import (
	"context"
	"sync"

	"github.com/draftea/order-system/shared/events"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var _ events.Subscriber = (*AMQPSubscriber)(nil)

// AMQPSubscriber consumes envelopes from one queue and dispatches those whose
// pattern matches the subscription.
type AMQPSubscriber struct {
	conn     *amqp.Connection
	queue    string
	prefetch int
	logger   *zap.Logger

	mu      sync.Mutex
	channel *amqp.Channel
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewAMQPSubscriber(conn *amqp.Connection, queue string, prefetch int, logger *zap.Logger) *AMQPSubscriber {
	if prefetch <= 0 {
		prefetch = 10
	}
	return &AMQPSubscriber{
		conn:     conn,
		queue:    queue,
		prefetch: prefetch,
		logger:   logger.Named("amqp_subscriber").With(zap.String("queue", queue)),
	}
}

// Subscribe starts consuming in the background and returns once the consumer is registered.
func (s *AMQPSubscriber) Subscribe(ctx context.Context, topic string, handler events.EventHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channel != nil {
		return errors.New("subscriber is already running")
	}

	ch, err := s.conn.Channel()
	if err != nil {
		return errors.Wrap(err, "failed to open channel")
	}
	if _, err := ch.QueueDeclare(s.queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return errors.Wrapf(err, "failed to declare queue %s", s.queue)
	}
	if err := ch.Qos(s.prefetch, 0, false); err != nil {
		ch.Close()
		return errors.Wrap(err, "failed to set qos")
	}

	deliveries, err := ch.Consume(s.queue, "order-service", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return errors.Wrapf(err, "failed to consume %s", s.queue)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.channel = ch
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.consume(ctx, events.Topic(topic), deliveries, handler)
	}()

	s.logger.Info("subscribed", zap.String("topic", topic))
	return nil
}

func (s *AMQPSubscriber) consume(ctx context.Context, pattern events.Topic, deliveries <-chan amqp.Delivery, handler events.EventHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			s.handle(ctx, pattern, d, handler)
		}
	}
}

func (s *AMQPSubscriber) handle(ctx context.Context, pattern events.Topic, d amqp.Delivery, handler events.EventHandler) {
	evt, requestID, err := DecodeEnvelope(d.Body)
	if err != nil {
		s.logger.Error("dropping malformed message", zap.Error(err), zap.ByteString("body", d.Body))
		_ = d.Nack(false, false)
		return
	}

	if !evt.Topic.Matches(pattern) {
		s.logger.Debug("ignoring unrelated pattern", zap.String("topic", evt.Topic.String()))
		_ = d.Ack(false)
		return
	}

	evt.WithMetadata(MessageIDKey, d.MessageId)
	if requestID != "" {
		evt.CorrelationID = requestID
		evt.WithMetadata(CorrelationIDKey, requestID)
		evt.WithMetadata(ReplyToKey, d.ReplyTo)
	}

	if err := handler.Handle(ctx, evt); err != nil {
		requeue := !d.Redelivered
		s.logger.Error("handler failed",
			zap.String("topic", evt.Topic.String()),
			zap.String("aggregate_id", evt.AggregateID.String()),
			zap.Bool("requeue", requeue),
			zap.Error(err),
		)
		_ = d.Nack(false, requeue)
		return
	}

	_ = d.Ack(false)
}

// Close stops consuming and waits for the in-flight message.
func (s *AMQPSubscriber) Close() error {
	s.mu.Lock()
	ch, cancel := s.channel, s.cancel
	s.channel, s.cancel = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	s.wg.Wait()

	if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return errors.Wrap(err, "failed to close channel")
	}
	return nil
}
