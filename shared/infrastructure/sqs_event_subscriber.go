package infrastructure

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/draftea/order-system/shared/events"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var _ events.Subscriber = (*SQSEventSubscriber)(nil)

const SQSReceiptHandleKey = "sqs_receipt_handle"

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

type sqsMessage struct {
	message types.Message
	event   *events.Event
	err     error
}

type sqsSubscriberOptions struct {
	workers                    int
	readers                    int
	maxNumberOfMessages        int32
	waitTimeSeconds            int32
	visibilityTimeout          int32
	sleepTimeAfterEmptyReceive time.Duration
	sleepTimeAfterError        time.Duration
	receiveCountRange          int32
	visibilityTimeoutOffset    int32
	maxVisibilityTimeout       int32
}

type SQSSubscriberOption func(*sqsSubscriberOptions)

func WithWorkers(workers int) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.workers = workers
	}
}

func WithWaitTimeSeconds(seconds int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.waitTimeSeconds = seconds
	}
}

func WithSleepTimes(afterEmpty, afterError time.Duration) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.sleepTimeAfterEmptyReceive = afterEmpty
		o.sleepTimeAfterError = afterError
	}
}

// SQSEventSubscriber long-polls a queue fed by SNS (raw or wrapped delivery)
// and hands matching envelopes to a handler. Failed messages get their
// visibility extended with the receive count so retries back off.
type SQSEventSubscriber struct {
	client   sqsAPI
	queueURL string
	options  sqsSubscriberOptions
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSQSEventSubscriber(client sqsAPI, queueURL string, logger *zap.Logger, opts ...SQSSubscriberOption) *SQSEventSubscriber {
	options := sqsSubscriberOptions{
		workers:                    4,
		readers:                    1,
		maxNumberOfMessages:        5,
		waitTimeSeconds:            15,
		visibilityTimeout:          30,
		sleepTimeAfterEmptyReceive: time.Second,
		sleepTimeAfterError:        5 * time.Second,
		receiveCountRange:          3,
		visibilityTimeoutOffset:    30,
		maxVisibilityTimeout:       900,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &SQSEventSubscriber{
		client:   client,
		queueURL: queueURL,
		options:  options,
		logger:   logger.Named("sqs").With(zap.String("queue_url", queueURL)),
	}
}

// NewSQSEventSubscriberFromConfig builds the SQS client from the AWS default chain.
func NewSQSEventSubscriberFromConfig(ctx context.Context, awsOpts AWSOptions, queueURL string, logger *zap.Logger, opts ...SQSSubscriberOption) (*SQSEventSubscriber, error) {
	cfg, err := LoadAWSConfig(ctx, awsOpts)
	if err != nil {
		return nil, err
	}
	return NewSQSEventSubscriber(sqs.NewFromConfig(cfg), queueURL, logger, opts...), nil
}

// Subscribe starts readers and workers and returns immediately.
func (s *SQSEventSubscriber) Subscribe(ctx context.Context, topic string, handler events.EventHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("subscriber is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	inbound := make(chan *sqsMessage, s.options.workers)
	pattern := events.Topic(topic)

	var readers sync.WaitGroup
	for i := 0; i < s.options.readers; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			s.startReader(ctx, inbound)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		readers.Wait()
		close(inbound)
	}()

	for i := 0; i < s.options.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.startWorker(ctx, pattern, handler, inbound)
		}()
	}

	return nil
}

// Close stops polling and waits for workers to drain.
func (s *SQSEventSubscriber) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
	return nil
}

func (s *SQSEventSubscriber) startReader(ctx context.Context, inbound chan<- *sqsMessage) {
	for ctx.Err() == nil {
		n, err := s.read(ctx, inbound)
		switch {
		case err != nil && ctx.Err() == nil:
			s.logger.Error("receive failed", zap.Error(err))
			sleep(ctx, s.options.sleepTimeAfterError)
		case n == 0:
			sleep(ctx, s.options.sleepTimeAfterEmptyReceive)
		}
	}
}

func (s *SQSEventSubscriber) startWorker(ctx context.Context, pattern events.Topic, handler events.EventHandler, inbound <-chan *sqsMessage) {
	for message := range inbound {
		if !message.event.Topic.Matches(pattern) {
			s.ack(ctx, message)
			continue
		}

		message.err = handler.Handle(ctx, message.event)
		if message.err != nil {
			s.logger.Error("handler failed",
				zap.String("topic", message.event.Topic.String()),
				zap.String("aggregate_id", message.event.AggregateID.String()),
				zap.Error(message.err),
			)
			s.backoff(ctx, message)
			continue
		}
		s.ack(ctx, message)
	}
}

func (s *SQSEventSubscriber) read(ctx context.Context, inbound chan<- *sqsMessage) (int, error) {
	output, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(s.queueURL),
		MaxNumberOfMessages:         s.options.maxNumberOfMessages,
		WaitTimeSeconds:             s.options.waitTimeSeconds,
		VisibilityTimeout:           s.options.visibilityTimeout,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameApproximateReceiveCount},
		MessageAttributeNames:       []string{"All"},
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to receive message from SQS")
	}

	for _, message := range output.Messages {
		event, err := decodeSQSBody(aws.ToString(message.Body))
		if err != nil {
			s.logger.Error("dropping malformed message", zap.String("message_id", aws.ToString(message.MessageId)), zap.Error(err))
			s.ack(ctx, &sqsMessage{message: message})
			continue
		}

		event.WithMetadata(MessageIDKey, aws.ToString(message.MessageId))
		event.WithMetadata(SQSReceiptHandleKey, aws.ToString(message.ReceiptHandle))

		select {
		case inbound <- &sqsMessage{message: message, event: event}:
		case <-ctx.Done():
			return len(output.Messages), ctx.Err()
		}
	}

	return len(output.Messages), nil
}

// decodeSQSBody accepts a bare envelope or an SNS notification wrapping one.
func decodeSQSBody(body string) (*events.Event, error) {
	var notification struct {
		Type    string `json:"Type"`
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &notification); err == nil && notification.Type == "Notification" {
		body = notification.Message
	}

	event, _, err := DecodeEnvelope([]byte(body))
	return event, err
}

func (s *SQSEventSubscriber) ack(ctx context.Context, message *sqsMessage) {
	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: message.message.ReceiptHandle,
	})
	if err != nil {
		s.logger.Error("failed to delete message", zap.String("message_id", aws.ToString(message.message.MessageId)), zap.Error(err))
	}
}

func (s *SQSEventSubscriber) backoff(ctx context.Context, message *sqsMessage) {
	receiveCount, err := strconv.Atoi(message.message.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil {
		receiveCount = 1
	}

	visibility := s.options.visibilityTimeout + (int32(receiveCount)/s.options.receiveCountRange)*s.options.visibilityTimeoutOffset
	if visibility > s.options.maxVisibilityTimeout {
		visibility = s.options.maxVisibilityTimeout
	}

	_, err = s.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(s.queueURL),
		ReceiptHandle:     message.message.ReceiptHandle,
		VisibilityTimeout: visibility,
	})
	if err != nil {
		s.logger.Error("failed to extend visibility", zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
