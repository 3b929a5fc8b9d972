// Package prediction implements the crop-yield prediction pipeline: weather
// and soil resolution, input normalization, the external model call with its
// analytical fallback, and the orchestration that persists the result.
package prediction

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"cropyield/internal/types"
)

// Confidence level labels.
const (
	ConfidenceHigh   = "High"
	ConfidenceMedium = "Medium"
	ConfidenceLow    = "Low"
)

// Validation messages returned in details.validation_errors.
const (
	MsgCropRequired     = "cropType is required"
	MsgFarmSizeRequired = "farmSize is required"
	MsgFarmSizePositive = "farmSize must be a positive number"
	MsgLocationRequired = "location with state and district is required"
)

// PredictionStore persists predictions. Implementations return a
// *types.AppError with ErrCodeNotFoundPrediction when an id is unknown.
type PredictionStore interface {
	Create(ctx context.Context, p *types.YieldPrediction) error
	GetByID(ctx context.Context, id string) (*types.YieldPrediction, error)
	ListByUser(ctx context.Context, userID string) ([]*types.YieldPrediction, error)
}

// MetricsRecorder receives the model-versus-fallback outcome of every prediction.
type MetricsRecorder interface {
	RecordModelOutcome(ctx context.Context, crop string, usedModel bool)
}

// EventPublisher announces newly stored predictions.
type EventPublisher interface {
	PublishPredictionCreated(ctx context.Context, p *types.YieldPrediction) error
}

// Request is a validated-at-service-boundary prediction request. Pointer
// fields distinguish "absent" from zero.
type Request struct {
	CropType          string
	LandArea          *float64
	Location          types.Location
	PlantingDate      *time.Time
	FetchExternalData bool

	// Used only when FetchExternalData is false.
	SoilType    string
	Temperature *float64
	Rainfall    *float64
	Humidity    *float64
}

// DataSources reports where soil and weather came from.
type DataSources struct {
	Soil    types.DataSource `json:"soil"`
	Weather types.DataSource `json:"weather"`
}

// Result is the response shape of CreatePrediction.
type Result struct {
	ID                string                   `json:"id"`
	CropType          string                   `json:"cropType"`
	PredictedYieldKg  float64                  `json:"predictedYieldKg"`
	YieldPerHectareKg float64                  `json:"yieldPerHectareKg"`
	ConfidenceScore   float64                  `json:"confidenceScore"`
	ConfidencePercent int                      `json:"confidencePercent"`
	ConfidenceLevel   string                   `json:"confidenceLevel"`
	UsedExternalModel bool                     `json:"usedExternalModel"`
	ModelVersion      string                   `json:"modelVersion"`
	DataSources       DataSources              `json:"dataSources"`
	SoilProfile       types.SoilProfile        `json:"soilProfile"`
	Weather           types.WeatherObservation `json:"weather"`
	Insights          []string                 `json:"insights"`
	ProcessingTimeMs  int64                    `json:"processingTimeMs"`
	RequestID         string                   `json:"requestId"`
	CreatedAt         time.Time                `json:"createdAt"`
}

// ServiceConfig wires the collaborators of Service. Metrics and Events are
// optional.
type ServiceConfig struct {
	Weather    *WeatherResolver
	Soil       *SoilResolver
	Normalizer *Normalizer
	Model      *ModelInvoker
	Store      PredictionStore
	Metrics    MetricsRecorder
	Events     EventPublisher
	Clock      types.Clock
	Logger     *slog.Logger

	// DebugErrors exposes persistence error causes in error details.
	DebugErrors bool
}

// Service orchestrates a prediction from request to stored record.
type Service struct {
	weather     *WeatherResolver
	soil        *SoilResolver
	normalizer  *Normalizer
	model       *ModelInvoker
	store       PredictionStore
	metrics     MetricsRecorder
	events      EventPublisher
	clock       types.Clock
	logger      *slog.Logger
	debugErrors bool
	newID       func() string
}

// NewService creates a Service from cfg.
func NewService(cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		weather:     cfg.Weather,
		soil:        cfg.Soil,
		normalizer:  cfg.Normalizer,
		model:       cfg.Model,
		store:       cfg.Store,
		metrics:     cfg.Metrics,
		events:      cfg.Events,
		clock:       clock,
		logger:      logger,
		debugErrors: cfg.DebugErrors,
		newID:       func() string { return uuid.NewString() },
	}
}

// ValidateRequest returns every problem with req, or nil.
func ValidateRequest(req Request) []string {
	var problems []string
	if strings.TrimSpace(req.CropType) == "" {
		problems = append(problems, MsgCropRequired)
	}
	switch {
	case req.LandArea == nil:
		problems = append(problems, MsgFarmSizeRequired)
	case math.IsNaN(*req.LandArea) || math.IsInf(*req.LandArea, 0) || *req.LandArea <= 0:
		problems = append(problems, MsgFarmSizePositive)
	}
	if strings.TrimSpace(req.Location.State) == "" || strings.TrimSpace(req.Location.District) == "" {
		problems = append(problems, MsgLocationRequired)
	}
	return problems
}

// CreatePrediction runs the pipeline for ownerID. Only validation and
// persistence failures return an error.
func (s *Service) CreatePrediction(ctx context.Context, ownerID string, req Request) (*Result, error) {
	startedAt := s.clock.Now()

	if problems := ValidateRequest(req); len(problems) > 0 {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationFailed,
			"Validation failed",
			nil,
			map[string]any{"validation_errors": problems},
		)
	}

	requestID := types.GetRequestID(ctx)
	if requestID == "" {
		requestID = s.newID()
	}

	state := strings.TrimSpace(req.Location.State)
	district := strings.TrimSpace(req.Location.District)
	landArea := *req.LandArea
	plantingDate := startedAt
	if req.PlantingDate != nil && !req.PlantingDate.IsZero() {
		plantingDate = req.PlantingDate.UTC()
	}

	location := types.Location{State: state, District: district, Coordinates: req.Location.Coordinates}

	var (
		weather types.WeatherObservation
		soil    types.SoilProfile
	)
	if req.FetchExternalData {
		weather = s.weather.Resolve(ctx, state, district, plantingDate)
		coords := &weather.Coordinates
		if weather.DataSource != types.SourceAPI && req.Location.Coordinates != nil {
			coords = req.Location.Coordinates
		}
		soil = s.soil.Resolve(state, district, coords)
		if location.Coordinates == nil && weather.DataSource == types.SourceAPI {
			c := weather.Coordinates
			location.Coordinates = &c
		}
	} else {
		weather = s.weather.FromUser(req.Temperature, req.Rainfall, req.Humidity, req.Location.Coordinates)
		soil = s.soil.FromUser(req.SoilType, state, district, req.Location.Coordinates)
	}

	norm := s.normalizer.Normalize(req.CropType, state, soil.SoilType)
	input := BuildModelInput(norm, district, landArea, weather, plantingDate)

	outcome := s.model.Invoke(ctx, input)

	var (
		yieldPerHa   float64
		confidence   float64
		modelVersion string
	)
	if outcome.Used {
		yieldPerHa = outcome.YieldPerHectareKg
		confidence = outcome.Confidence
		modelVersion = outcome.ModelVersion
	} else {
		// Priced on the pre-default values so unknown crops and soils take
		// the 3.0 t/ha base and the neutral soil multiplier.
		est := EstimateFallback(norm.MappedCrop, landArea, weather.Temperature, weather.Rainfall, norm.OriginalSoilType)
		yieldPerHa = est.YieldPerHectareKg
		confidence = est.Confidence
	}
	if modelVersion == "" {
		modelVersion = FallbackModelVersion
	}
	confidence = math.Min(1, math.Max(0, confidence))

	if s.metrics != nil {
		s.metrics.RecordModelOutcome(ctx, norm.Crop, outcome.Used)
	}

	now := s.clock.Now()
	pred := &types.YieldPrediction{
		ID:                      s.newID(),
		UserID:                  ownerID,
		CropType:                norm.Crop,
		SoilType:                soil.SoilType,
		SoilProfile:             soil,
		LandArea:                landArea,
		Location:                location,
		PlantingDate:            plantingDate,
		Weather:                 weather,
		ExternalModelInput:      input,
		ExternalModelResponse:   outcome.Response,
		ErrorDetails:            outcome.ErrorDetails,
		PredictedYieldKg:        round2(yieldPerHa * landArea),
		YieldPerHectareKg:       yieldPerHa,
		ConfidenceScore:         confidence,
		UsedExternalModel:       outcome.Used,
		FetchedFromExternalAPIs: req.FetchExternalData,
		ModelVersion:            modelVersion,
		Provenance: types.Provenance{
			Processing: types.ProcessingMetadata{
				RequestID:           requestID,
				StartedAt:           startedAt,
				ModelCallDurationMs: outcome.Duration.Milliseconds(),
				DataValidations:     norm.Validations(),
			},
			SoilSearch: types.SoilSearchMetadata{
				RequestedLocation: locationLabel(state, district),
				ActualSoilType:    soil.SoilType,
				DataAccuracy:      dataAccuracy(soil.DataSource),
				Timestamp:         now,
			},
			Weather: types.WeatherMetadata{
				RequestedLocation: locationLabel(state, district),
				RequestedDate:     plantingDate,
				DataTimestamp:     weather.ObservedAt,
				APICallSuccess:    weather.DataSource == types.SourceAPI,
			},
			Recommendations: outcome.Recommendations,
		},
		CreatedAt: now,
	}

	if err := s.store.Create(ctx, pred); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist prediction",
			"request_id", requestID,
			"user_id", ownerID,
			"error", err,
		)
		details := map[string]any{"request_id": requestID}
		if s.debugErrors {
			details["debug"] = err.Error()
		}
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeInternalDB,
			"Failed to save prediction",
			err,
			details,
		)
	}

	if s.events != nil {
		if err := s.events.PublishPredictionCreated(ctx, pred); err != nil {
			s.logger.WarnContext(ctx, "failed to publish prediction event",
				"prediction_id", pred.ID,
				"error", err,
			)
		}
	}

	elapsed := s.clock.Now().Sub(startedAt)
	s.logger.InfoContext(ctx, "prediction created",
		"request_id", requestID,
		"prediction_id", pred.ID,
		"crop", norm.Crop,
		"used_external_model", outcome.Used,
		"weather_source", string(weather.DataSource),
		"soil_source", string(soil.DataSource),
		"duration_ms", elapsed.Milliseconds(),
	)

	return s.buildResult(pred, outcome, requestID, elapsed), nil
}

// GetPrediction returns a prediction owned by actorID.
func (s *Service) GetPrediction(ctx context.Context, actorID, id string) (*types.YieldPrediction, error) {
	pred, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pred.UserID != actorID {
		return nil, types.NewAppError(types.ErrCodePermissionNotOwner, "prediction belongs to another user", nil)
	}
	return pred, nil
}

// ListPredictions returns ownerID's predictions, newest first. Only the owner
// may list them.
func (s *Service) ListPredictions(ctx context.Context, actorID, ownerID string) ([]*types.YieldPrediction, error) {
	if actorID != ownerID {
		return nil, types.NewAppError(types.ErrCodePermissionNotOwner, "cannot list another user's predictions", nil)
	}
	return s.store.ListByUser(ctx, ownerID)
}

func (s *Service) buildResult(p *types.YieldPrediction, outcome ModelOutcome, requestID string, elapsed time.Duration) *Result {
	level := ConfidenceLevel(p.ConfidenceScore)
	pct := int(math.Round(p.ConfidenceScore * 100))

	insights := outcome.Recommendations
	if len(insights) == 0 {
		insights = generateInsights(p, level, pct)
	}

	return &Result{
		ID:                p.ID,
		CropType:          p.CropType,
		PredictedYieldKg:  p.PredictedYieldKg,
		YieldPerHectareKg: round2(p.YieldPerHectareKg),
		ConfidenceScore:   p.ConfidenceScore,
		ConfidencePercent: pct,
		ConfidenceLevel:   level,
		UsedExternalModel: p.UsedExternalModel,
		ModelVersion:      p.ModelVersion,
		DataSources: DataSources{
			Soil:    p.SoilProfile.DataSource,
			Weather: p.Weather.DataSource,
		},
		SoilProfile:      p.SoilProfile,
		Weather:          p.Weather,
		Insights:         insights,
		ProcessingTimeMs: elapsed.Milliseconds(),
		RequestID:        requestID,
		CreatedAt:        p.CreatedAt,
	}
}

// ConfidenceLevel buckets a score into High, Medium or Low.
func ConfidenceLevel(score float64) string {
	switch {
	case score > 0.8:
		return ConfidenceHigh
	case score > 0.6:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func generateInsights(p *types.YieldPrediction, level string, pct int) []string {
	out := make([]string, 0, 4)

	out = append(out, fmt.Sprintf("Expected yield is %.0f kg/ha, about %.2f kg over %g ha",
		p.YieldPerHectareKg, p.PredictedYieldKg, p.LandArea))

	soilType := p.SoilProfile.SoilType
	if suited(p.SoilProfile.SuitableCrops, p.CropType) {
		out = append(out, fmt.Sprintf("%s soil is well suited for %s", soilType, strings.ToLower(p.CropType)))
	} else {
		out = append(out, fmt.Sprintf("%s soil is not a preferred match for %s; consider soil amendments", soilType, strings.ToLower(p.CropType)))
	}

	switch r := p.Weather.Rainfall; {
	case r == nil:
		out = append(out, "Rainfall was not provided; the estimate assumes typical conditions")
	case *r < 50:
		out = append(out, fmt.Sprintf("Low rainfall (%.0f mm) expected; plan supplementary irrigation", *r))
	case *r > 200:
		out = append(out, fmt.Sprintf("High rainfall (%.0f mm) expected; ensure good field drainage", *r))
	default:
		out = append(out, fmt.Sprintf("Rainfall of %.0f mm is within a workable range", *r))
	}

	source := "the analytical fallback model"
	if p.UsedExternalModel {
		source = "the yield model"
	}
	out = append(out, fmt.Sprintf("%s confidence (%d%%) from %s", level, pct, source))

	return out
}

func suited(crops []string, crop string) bool {
	for _, c := range crops {
		if strings.EqualFold(c, crop) {
			return true
		}
	}
	return false
}

func dataAccuracy(source types.DataSource) string {
	switch source {
	case types.SourceLocalDatabase, types.SourceUser:
		return "high"
	default:
		return "medium"
	}
}
