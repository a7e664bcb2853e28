// Package queue publishes donor notices to SQS. A mailer downstream turns
// them into error emails.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/dmitrijs2005/esimrouter/internal/logging"
	"github.com/dmitrijs2005/esimrouter/internal/models"
)

// maxBatchSize is the SQS limit on entries per SendMessageBatch.
const maxBatchSize = 10

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newSQSClientFromConfig = func(cfg aws.Config, optFns ...func(*sqs.Options)) messageAPI {
		return sqs.NewFromConfig(cfg, optFns...)
	}
)

type messageAPI interface {
	SendMessageBatch(ctx context.Context, in *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// Notifier accepts notices for donors.
type Notifier interface {
	Notify(ctx context.Context, notices []models.Notice) error
}

type SQSNotifier struct {
	api      messageAPI
	queueURL string
	log      logging.Logger
}

func NewSQSNotifier(ctx context.Context, region, queueURL string, log logging.Logger) (*SQSNotifier, error) {
	cfg, err := loadDefaultAWSConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SQSNotifier{api: newSQSClientFromConfig(cfg), queueURL: queueURL, log: log}, nil
}

// Notify sends notices in batches of ten. Entries SQS reports as failed
// are logged and returned as one error after every batch was attempted.
func (n *SQSNotifier) Notify(ctx context.Context, notices []models.Notice) error {
	failed := 0
	for i := 0; i < len(notices); i += maxBatchSize {
		end := min(i+maxBatchSize, len(notices))
		batch := notices[i:end]

		entries := make([]types.SendMessageBatchRequestEntry, 0, len(batch))
		for j, notice := range batch {
			body, err := json.Marshal(notice)
			if err != nil {
				return fmt.Errorf("marshal notice %s: %w", notice.DonationID, err)
			}
			entries = append(entries, types.SendMessageBatchRequestEntry{
				Id:          aws.String(strconv.Itoa(j)),
				MessageBody: aws.String(string(body)),
			})
		}

		out, err := n.api.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(n.queueURL),
			Entries:  entries,
		})
		if err != nil {
			return fmt.Errorf("send message batch: %w", err)
		}
		for _, f := range out.Failed {
			idx, _ := strconv.Atoi(aws.ToString(f.Id))
			n.log.Error(ctx, "notice not queued",
				"donation_id", batch[idx].DonationID, "code", aws.ToString(f.Code), "error", aws.ToString(f.Message))
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d notices not queued", failed, len(notices))
	}
	return nil
}

// Discard drops every notice. It stands in when no queue is configured.
type Discard struct {
	Log logging.Logger
}

func (d Discard) Notify(ctx context.Context, notices []models.Notice) error {
	if len(notices) > 0 && d.Log != nil {
		d.Log.Debug(ctx, "notices discarded, no queue configured", "count", len(notices))
	}
	return nil
}
