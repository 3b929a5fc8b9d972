package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"cropyield/internal/types"
)

// DefaultModelConfidence applies when the model returns no usable interval.
const DefaultModelConfidence = 0.85

// Defaults substituted into the model payload for readings the user omitted.
const (
	defaultModelRainfallMM = 50.0
	defaultModelTempC      = 25.0
)

// YieldModelClient posts a payload to the external yield model.
// Errors carrying HTTP detail should be *types.AppError with "status_code"
// and "response_body" details.
type YieldModelClient interface {
	Predict(ctx context.Context, input types.ModelInput) (*types.ModelResponse, error)
	Endpoint() string
}

// ModelOutcome is the result of one model invocation. Exactly one of
// ErrorDetails and a usable yield is set, signalled by Used.
type ModelOutcome struct {
	Used              bool
	YieldPerHectareKg float64
	Confidence        float64
	ModelVersion      string
	Recommendations   []string
	Response          json.RawMessage
	ErrorDetails      *types.ModelErrorDetails
	Duration          time.Duration
}

// ModelInvoker calls the external yield model once and never fails.
type ModelInvoker struct {
	client YieldModelClient
	logger *slog.Logger
}

// NewModelInvoker creates a ModelInvoker. A nil client means the model is
// not configured and every invocation falls through.
func NewModelInvoker(client YieldModelClient, logger *slog.Logger) *ModelInvoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelInvoker{client: client, logger: logger}
}

// BuildModelInput assembles the stringly-typed payload the model expects.
func BuildModelInput(n Normalized, district string, landArea float64, weather types.WeatherObservation, plantingDate time.Time) types.ModelInput {
	rainfall := defaultModelRainfallMM
	if weather.Rainfall != nil {
		rainfall = *weather.Rainfall
	}
	temp := defaultModelTempC
	if weather.Temperature != nil {
		temp = *weather.Temperature
	}

	return types.ModelInput{
		Year:          strconv.Itoa(plantingDate.Year()),
		State:         n.State,
		District:      strings.ToLower(strings.TrimSpace(district)),
		AreaThousandH: strconv.FormatFloat(landArea, 'f', -1, 64),
		Crop:          n.Crop,
		AvgRainfallMM: strconv.FormatFloat(roundHalfUp(rainfall), 'f', -1, 64),
		AvgTempC:      strconv.FormatFloat(roundHalfUp(temp), 'f', -1, 64),
		SoilType:      n.SoilType,
	}
}

// Invoke posts input to the model. Any failure is captured in ErrorDetails.
func (m *ModelInvoker) Invoke(ctx context.Context, input types.ModelInput) ModelOutcome {
	if m.client == nil || m.client.Endpoint() == "" {
		return ModelOutcome{
			ErrorDetails: &types.ModelErrorDetails{
				Message: "external yield model is not configured",
			},
		}
	}

	start := time.Now()
	resp, err := m.client.Predict(ctx, input)
	elapsed := time.Since(start)

	if err != nil {
		m.logger.WarnContext(ctx, "yield model call failed",
			"endpoint", m.client.Endpoint(),
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return ModelOutcome{
			ErrorDetails: m.errorDetails(err),
			Duration:     elapsed,
		}
	}

	if resp == nil || resp.YieldKgHa == nil {
		var raw json.RawMessage
		if resp != nil {
			raw = resp.Raw
		}
		return ModelOutcome{
			Response: raw,
			ErrorDetails: &types.ModelErrorDetails{
				Message:      "yield model response did not include yield_kg_ha",
				APIURL:       m.client.Endpoint(),
				ResponseBody: string(raw),
			},
			Duration: elapsed,
		}
	}

	return ModelOutcome{
		Used:              true,
		YieldPerHectareKg: *resp.YieldKgHa,
		Confidence:        modelConfidence(resp.ConfidenceInterval),
		ModelVersion:      resp.ModelVersion,
		Recommendations:   resp.Recommendations,
		Response:          resp.Raw,
		Duration:          elapsed,
	}
}

func (m *ModelInvoker) errorDetails(err error) *types.ModelErrorDetails {
	details := &types.ModelErrorDetails{
		Message: err.Error(),
		APIURL:  m.client.Endpoint(),
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		if code, ok := appErr.Details["status_code"].(int); ok {
			details.StatusCode = code
		}
		if body, ok := appErr.Details["response_body"].(string); ok {
			details.ResponseBody = body
		}
	}
	return details
}

// modelConfidence derives a score from the width of the 95% interval
// relative to its midpoint, clamped to [0.5, 0.95]. The point yield plays
// no part.
func modelConfidence(interval []float64) float64 {
	if len(interval) != 2 {
		return DefaultModelConfidence
	}
	lower, upper := interval[0], interval[1]
	mean := (upper + lower) / 2
	if mean <= 0 {
		return DefaultModelConfidence
	}
	c := 1 - (upper-lower)/mean/2
	return math.Min(0.95, math.Max(0.5, c))
}

func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
