package infrastructure

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/draftea/order-system/shared/events"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var _ events.Publisher = (*SNSEventPublisher)(nil)

const maxBatchSize = 10

// PatternAttribute carries the event pattern so SQS subscriptions can filter on it.
const PatternAttribute = "pattern"

type snsAPI interface {
	PublishBatch(ctx context.Context, params *sns.PublishBatchInput, optFns ...func(*sns.Options)) (*sns.PublishBatchOutput, error)
}

// AWSOptions selects the region and optional LocalStack endpoint
type AWSOptions struct {
	Region   string
	Endpoint string
}

// LoadAWSConfig loads the default credential chain for the given options.
func LoadAWSConfig(ctx context.Context, opts AWSOptions) (aws.Config, error) {
	var loaders []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loaders = append(loaders, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, errors.Wrap(err, "failed to load AWS config")
	}
	if opts.Endpoint != "" {
		cfg.BaseEndpoint = aws.String(opts.Endpoint)
	}
	return cfg, nil
}

// SNSEventPublisher publishes envelopes to a single SNS topic in batches
type SNSEventPublisher struct {
	client   snsAPI
	topicArn string
	logger   *zap.Logger
}

func NewSNSEventPublisher(client snsAPI, topicArn string, logger *zap.Logger) *SNSEventPublisher {
	return &SNSEventPublisher{
		client:   client,
		topicArn: topicArn,
		logger:   logger.Named("sns"),
	}
}

// NewSNSEventPublisherFromConfig builds the SNS client from the AWS default chain.
func NewSNSEventPublisherFromConfig(ctx context.Context, opts AWSOptions, topicArn string, logger *zap.Logger) (*SNSEventPublisher, error) {
	cfg, err := LoadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return NewSNSEventPublisher(sns.NewFromConfig(cfg), topicArn, logger), nil
}

func (p *SNSEventPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	gr, ctx := errgroup.WithContext(ctx)
	for _, batch := range splitToChunks(evts, maxBatchSize) {
		batch := batch
		gr.Go(func() error {
			return p.batchPublish(ctx, batch)
		})
	}
	return gr.Wait()
}

func (p *SNSEventPublisher) batchPublish(ctx context.Context, evts []*events.Event) error {
	entries, err := toSNSEntries(evts)
	if err != nil {
		return err
	}

	res, err := p.client.PublishBatch(ctx, &sns.PublishBatchInput{
		TopicArn:                   aws.String(p.topicArn),
		PublishBatchRequestEntries: entries,
	})
	if err != nil {
		return errors.Wrap(err, "failed to publish batch to SNS")
	}

	if len(res.Failed) > 0 {
		ids := make([]string, 0, len(res.Failed))
		for _, f := range res.Failed {
			ids = append(ids, aws.ToString(f.Id))
			p.logger.Error("sns entry rejected",
				zap.String("event_id", aws.ToString(f.Id)),
				zap.String("code", aws.ToString(f.Code)),
				zap.String("message", aws.ToString(f.Message)),
			)
		}
		return errors.Errorf("sns rejected %d entries: %s", len(ids), strings.Join(ids, ","))
	}

	return nil
}

func toSNSEntries(evts []*events.Event) ([]types.PublishBatchRequestEntry, error) {
	entries := make([]types.PublishBatchRequestEntry, len(evts))
	for i, evt := range evts {
		body, err := EncodeEnvelope(evt, "")
		if err != nil {
			return nil, err
		}

		attrs := map[string]types.MessageAttributeValue{
			PatternAttribute: {
				DataType:    aws.String("String"),
				StringValue: aws.String(evt.Topic.String()),
			},
		}
		for k, v := range evt.Metadata {
			if k == MessageIDKey || k == SQSReceiptHandleKey {
				continue
			}
			attrs[k] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}

		entries[i] = types.PublishBatchRequestEntry{
			Id:                aws.String(evt.ID.String()),
			Message:           aws.String(string(body)),
			MessageAttributes: attrs,
		}
	}
	return entries, nil
}

// splitToChunks splits slice into chunks of specified size
func splitToChunks[T any](slice []T, chunkSize int) [][]T {
	var chunks [][]T
	for i := 0; i < len(slice); i += chunkSize {
		end := i + chunkSize
		if end > len(slice) {
			end = len(slice)
		}
		chunks = append(chunks, slice[i:end])
	}
	return chunks
}
