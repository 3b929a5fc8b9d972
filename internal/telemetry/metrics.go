// Package telemetry publishes operational signals: CloudWatch metrics for
// API latency and yield model outcomes, and prediction.created events on SQS.
// Publishing failures are logged and never surface to callers.
package telemetry

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"cropyield/internal/types"
)

// putTimeout bounds RecordRequest, which has no caller context.
const putTimeout = 2 * time.Second

// Result dimension values of YieldModelOutcome.
const (
	ResultModel    = "model"
	ResultFallback = "fallback"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics emits API and prediction metrics to CloudWatch.
//
// Metrics emitted:
//   - APILatency: Dims {Method, Endpoint, Status}
//   - APIRequestCount: Dims {Method, Endpoint, Status}
//   - YieldModelOutcome: Dims {Crop, Result}
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchMetrics creates metrics publishing to namespace. An empty
// namespace uses types.MetricNamespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordRequest implements core.MetricsCollector.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimMethod), Value: aws.String(method)},
		{Name: aws.String(types.DimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(types.DimStatus), Value: aws.String(status)},
	}
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricAPILatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims,
			},
			{
				MetricName: aws.String(types.MetricAPIRequestCount),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), putTimeout)
	defer cancel()
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record request metric",
			"error", err.Error(),
			"method", method,
			"endpoint", endpoint,
		)
	}
}

// RecordModelOutcome implements prediction.MetricsRecorder.
func (m *CloudWatchMetrics) RecordModelOutcome(ctx context.Context, crop string, usedModel bool) {
	result := ResultFallback
	if usedModel {
		result = ResultModel
	}
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricYieldModelOutcome),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(types.DimCrop), Value: aws.String(crop)},
					{Name: aws.String(types.DimResult), Value: aws.String(result)},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record model outcome metric",
			"error", err.Error(),
			"crop", crop,
			"result", result,
		)
	}
}

// NoopMetrics discards every metric. It is used when ENABLE_METRICS is off.
type NoopMetrics struct{}

// RecordRequest implements core.MetricsCollector.
func (NoopMetrics) RecordRequest(string, string, string, time.Duration) {}

// RecordModelOutcome implements prediction.MetricsRecorder.
func (NoopMetrics) RecordModelOutcome(context.Context, string, bool) {}
