package infrastructure

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSNS struct {
	mu      sync.Mutex
	inputs  []*sns.PublishBatchInput
	failIDs map[string]bool
}

func (f *fakeSNS) PublishBatch(_ context.Context, in *sns.PublishBatchInput, _ ...func(*sns.Options)) (*sns.PublishBatchOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)

	out := &sns.PublishBatchOutput{}
	for _, e := range in.PublishBatchRequestEntries {
		if f.failIDs[aws.ToString(e.Id)] {
			out.Failed = append(out.Failed, types.BatchResultErrorEntry{Id: e.Id, Code: aws.String("Internal")})
		}
	}
	return out, nil
}

func TestSNSEventPublisher_Publish(t *testing.T) {
	client := &fakeSNS{}
	publisher := NewSNSEventPublisher(client, "arn:aws:sns:us-east-1:000000000000:orders", zap.NewNop())

	evts := make([]*events.Event, 12)
	for i := range evts {
		evts[i] = events.NewEvent(models.GenerateUUID(), events.ProcessPaymentTopic, map[string]int{"quantity": i + 1})
	}

	require.NoError(t, publisher.Publish(context.Background(), evts...))

	require.Len(t, client.inputs, 2)
	total := 0
	for _, in := range client.inputs {
		total += len(in.PublishBatchRequestEntries)
		entry := in.PublishBatchRequestEntries[0]
		assert.Equal(t, "process_payment", aws.ToString(entry.MessageAttributes[PatternAttribute].StringValue))
		assert.Contains(t, aws.ToString(entry.Message), `"pattern":"process_payment"`)
	}
	assert.Equal(t, 12, total)
}

func TestSNSEventPublisher_PartialFailure(t *testing.T) {
	evt := events.NewEvent(models.GenerateUUID(), events.OrderConfirmedTopic, map[string]string{"status": "confirmed"})
	client := &fakeSNS{failIDs: map[string]bool{evt.ID.String(): true}}
	publisher := NewSNSEventPublisher(client, "arn", zap.NewNop())

	err := publisher.Publish(context.Background(), evt)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), evt.ID.String())
}

func TestSplitToChunks(t *testing.T) {
	chunks := splitToChunks([]int{1, 2, 3, 4, 5}, 2)
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, chunks)
	assert.Empty(t, splitToChunks([]int{}, 2))
}
