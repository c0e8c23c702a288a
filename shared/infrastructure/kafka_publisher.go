package infrastructure

import (
	"context"
	"time"

	"github.com/draftea/order-system/shared/events"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var _ events.Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher writes each event to the topic named after its pattern with
// the JSON payload as value.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}

	return &KafkaPublisher{
		writer: writer,
		logger: logger.Named("kafka"),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	msgs, err := toKafkaMessages(evts)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("failed to publish", zap.Int("count", len(msgs)), zap.Error(err))
		return errors.Wrap(err, "failed to write kafka messages")
	}

	for _, evt := range evts {
		p.logger.Info("event published",
			zap.String("topic", evt.Topic.String()),
			zap.String("aggregate_id", evt.AggregateID.String()),
		)
	}
	return nil
}

func toKafkaMessages(evts []*events.Event) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(evts))
	for _, evt := range evts {
		payload, err := evt.MarshalPayload()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal %s payload", evt.Topic)
		}

		msgs = append(msgs, kafka.Message{
			Topic: evt.Topic.String(),
			Key:   []byte(evt.AggregateID.String()),
			Value: payload,
			Time:  evt.Timestamp,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(evt.ID.String())},
			},
		})
	}
	return msgs, nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
