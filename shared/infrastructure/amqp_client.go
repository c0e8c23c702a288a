package infrastructure

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/draftea/order-system/shared/events"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var (
	_ events.Publisher = (*AMQPClient)(nil)
	_ events.Requester = (*AMQPClient)(nil)
)

// directReplyTo is RabbitMQ's pseudo queue for RPC replies.
const directReplyTo = "amq.rabbitmq.reply-to"

var ErrNoRoute = errors.New("no queue configured for topic")

// AMQPClient publishes events and performs request/reply over RabbitMQ using
// the envelope format expected by the collaborators. Routes map a topic to
// the queue its consumer listens on.
type AMQPClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	routes  map[events.Topic]string
	logger  *zap.Logger

	publishMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// DialAMQP connects, declares the routed queues and starts the reply consumer.
func DialAMQP(url string, routes map[events.Topic]string, logger *zap.Logger) (*AMQPClient, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Properties: amqp.Table{
			"connection_name": "order-service",
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to open channel")
	}

	for _, queue := range routes {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to declare queue %s", queue)
		}
	}

	replies, err := ch.Consume(directReplyTo, "", true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to consume direct reply-to")
	}

	c := &AMQPClient{
		conn:    conn,
		channel: ch,
		routes:  routes,
		logger:  logger.Named("amqp"),
		pending: make(map[string]chan []byte),
		done:    make(chan struct{}),
	}
	go c.dispatchReplies(replies)

	return c, nil
}

// Publish emits fire-and-forget events to their routed queues
func (c *AMQPClient) Publish(ctx context.Context, evts ...*events.Event) error {
	for _, evt := range evts {
		queue, ok := c.routes[evt.Topic]
		if !ok {
			return errors.Wrapf(ErrNoRoute, "topic %s", evt.Topic)
		}

		body, err := EncodeEnvelope(evt, "")
		if err != nil {
			return err
		}

		if err := c.publish(ctx, queue, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    evt.ID.String(),
			Timestamp:    evt.Timestamp,
			Body:         body,
		}); err != nil {
			return errors.Wrapf(err, "failed to publish %s", evt.Topic)
		}

		c.logger.Debug("event published",
			zap.String("topic", evt.Topic.String()),
			zap.String("queue", queue),
			zap.String("aggregate_id", evt.AggregateID.String()),
		)
	}
	return nil
}

// Request sends evt and blocks until the correlated reply arrives or ctx ends.
func (c *AMQPClient) Request(ctx context.Context, evt *events.Event) (*events.Event, error) {
	queue, ok := c.routes[evt.Topic]
	if !ok {
		return nil, errors.Wrapf(ErrNoRoute, "topic %s", evt.Topic)
	}

	correlationID := uuid.NewString()
	body, err := EncodeEnvelope(evt, correlationID)
	if err != nil {
		return nil, err
	}

	replyCh := make(chan []byte, 1)
	c.pendingMu.Lock()
	c.pending[correlationID] = replyCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, correlationID)
		c.pendingMu.Unlock()
	}()

	if err := c.publish(ctx, queue, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		ReplyTo:       directReplyTo,
		MessageId:     evt.ID.String(),
		Timestamp:     evt.Timestamp,
		Body:          body,
	}); err != nil {
		return nil, errors.Wrapf(err, "failed to send %s", evt.Topic)
	}

	select {
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "no reply for %s", evt.Topic)
	case <-c.done:
		return nil, errors.New("amqp client closed")
	case raw := <-replyCh:
		response, err := DecodeReply(evt.Topic, raw)
		if err != nil {
			return nil, err
		}
		reply := events.NewEvent(evt.AggregateID, evt.Topic, response)
		reply.CorrelationID = correlationID
		return reply, nil
	}
}

func (c *AMQPClient) publish(ctx context.Context, queue string, msg amqp.Publishing) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	return c.channel.PublishWithContext(ctx, "", queue, false, false, msg)
}

func (c *AMQPClient) dispatchReplies(replies <-chan amqp.Delivery) {
	for d := range replies {
		var probe replyEnvelope
		if err := json.Unmarshal(d.Body, &probe); err == nil && !probe.IsDisposed && len(probe.Response) == 0 {
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[d.CorrelationId]
		c.pendingMu.Unlock()
		if !ok {
			c.logger.Warn("dropping reply without waiter", zap.String("correlation_id", d.CorrelationId))
			continue
		}

		select {
		case ch <- d.Body:
		default:
		}
	}
}

// Close closes the channel and connection
func (c *AMQPClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if cerr := c.channel.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) {
			err = cerr
		}
		if cerr := c.conn.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) {
			err = cerr
		}
	})
	return err
}

// Connection exposes the underlying connection so subscribers can share it.
func (c *AMQPClient) Connection() *amqp.Connection {
	return c.conn
}
