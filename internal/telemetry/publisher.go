package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"cropyield/internal/types"
)

// EventPredictionCreated is the type of the event sent after a prediction is stored.
const EventPredictionCreated = "prediction.created"

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// PredictionEvent is the message body. It carries a summary, not the full
// record; consumers fetch the prediction by id when they need more.
type PredictionEvent struct {
	Type              string    `json:"type"`
	PredictionID      string    `json:"predictionId"`
	UserID            string    `json:"userId"`
	CropType          string    `json:"cropType"`
	State             string    `json:"state"`
	District          string    `json:"district"`
	PredictedYieldKg  float64   `json:"predictedYieldKg"`
	YieldPerHectareKg float64   `json:"yieldPerHectareKg"`
	ConfidenceScore   float64   `json:"confidenceScore"`
	UsedExternalModel bool      `json:"usedExternalModel"`
	ModelVersion      string    `json:"modelVersion"`
	RequestID         string    `json:"requestId"`
	CreatedAt         time.Time `json:"createdAt"`
}

// PredictionPublisher sends prediction.created events to an SQS queue.
type PredictionPublisher struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
}

// NewPredictionPublisher creates a publisher targeting queueURL.
func NewPredictionPublisher(client SQSSender, queueURL string, logger types.Logger) *PredictionPublisher {
	return &PredictionPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// PublishPredictionCreated implements prediction.EventPublisher.
func (p *PredictionPublisher) PublishPredictionCreated(ctx context.Context, pred *types.YieldPrediction) error {
	event := PredictionEvent{
		Type:              EventPredictionCreated,
		PredictionID:      pred.ID,
		UserID:            pred.UserID,
		CropType:          pred.CropType,
		State:             pred.Location.State,
		District:          pred.Location.District,
		PredictedYieldKg:  pred.PredictedYieldKg,
		YieldPerHectareKg: pred.YieldPerHectareKg,
		ConfidenceScore:   pred.ConfidenceScore,
		UsedExternalModel: pred.UsedExternalModel,
		ModelVersion:      pred.ModelVersion,
		RequestID:         pred.Provenance.Processing.RequestID,
		CreatedAt:         pred.CreatedAt,
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("prediction publisher: failed to marshal event: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(EventPredictionCreated),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("prediction publisher: failed to send message to %s: %w", p.queueURL, err)
	}

	p.logger.Info("prediction event published",
		"prediction_id", pred.ID,
		"request_id", event.RequestID,
	)
	return nil
}

// NoopPublisher drops events. It is used when no queue is configured.
type NoopPublisher struct{}

// PublishPredictionCreated implements prediction.EventPublisher.
func (NoopPublisher) PublishPredictionCreated(context.Context, *types.YieldPrediction) error {
	return nil
}
