package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/esimrouter/internal/logging"
	"github.com/dmitrijs2005/esimrouter/internal/models"
)

type fakeSQS struct {
	batches [][]types.SendMessageBatchRequestEntry
	failIDs map[string]bool
	err     error
}

func (f *fakeSQS) SendMessageBatch(_ context.Context, in *sqs.SendMessageBatchInput, _ ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, in.Entries)
	out := &sqs.SendMessageBatchOutput{}
	for _, e := range in.Entries {
		if f.failIDs[*e.Id] {
			out.Failed = append(out.Failed, types.BatchResultErrorEntry{Id: e.Id, Code: aws.String("InternalError")})
		}
	}
	return out, nil
}

func notices(n int) []models.Notice {
	out := make([]models.Notice, n)
	for i := range out {
		out[i] = models.Notice{DonationID: string(rune('A' + i)), Contact: "d@example.org", Reasons: []string{"missing_qr"}}
	}
	return out
}

func TestNotify_BatchesOfTen(t *testing.T) {
	f := &fakeSQS{}
	n := &SQSNotifier{api: f, queueURL: "https://sqs/q", log: logging.NewNopLogger()}

	require.NoError(t, n.Notify(context.Background(), notices(23)))
	require.Len(t, f.batches, 3)
	assert.Len(t, f.batches[0], 10)
	assert.Len(t, f.batches[2], 3)

	var got models.Notice
	require.NoError(t, json.Unmarshal([]byte(*f.batches[1][0].MessageBody), &got))
	assert.Equal(t, "K", got.DonationID)
	assert.Equal(t, []string{"missing_qr"}, got.Reasons)
}

func TestNotify_PartialFailure(t *testing.T) {
	f := &fakeSQS{failIDs: map[string]bool{"1": true}}
	n := &SQSNotifier{api: f, queueURL: "q", log: logging.NewNopLogger()}

	err := n.Notify(context.Background(), notices(12))
	assert.EqualError(t, err, "2 of 12 notices not queued")
	assert.Len(t, f.batches, 2)
}

func TestNotify_SendError(t *testing.T) {
	n := &SQSNotifier{api: &fakeSQS{err: errors.New("denied")}, queueURL: "q", log: logging.NewNopLogger()}
	assert.ErrorContains(t, n.Notify(context.Background(), notices(1)), "denied")
}

func TestNotify_Empty(t *testing.T) {
	f := &fakeSQS{}
	n := &SQSNotifier{api: f, queueURL: "q", log: logging.NewNopLogger()}
	require.NoError(t, n.Notify(context.Background(), nil))
	assert.Empty(t, f.batches)
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Discard{Log: logging.NewNopLogger()}.Notify(context.Background(), notices(3)))
	assert.NoError(t, Discard{}.Notify(context.Background(), notices(1)))
}
