// Package handlers contains the HTTP handlers of the cropyield API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gocarina/gocsv"

	"cropyield/internal/core"
	"cropyield/internal/prediction"
	"cropyield/internal/types"
)

// PredictionService is the subset of prediction.Service the handler uses.
type PredictionService interface {
	CreatePrediction(ctx context.Context, ownerID string, req prediction.Request) (*prediction.Result, error)
	GetPrediction(ctx context.Context, actorID, id string) (*types.YieldPrediction, error)
	ListPredictions(ctx context.Context, actorID, ownerID string) ([]*types.YieldPrediction, error)
}

// PredictionHandler maps HTTP requests to PredictionService methods.
type PredictionHandler struct {
	service PredictionService
	logger  *slog.Logger
}

// NewPredictionHandler creates a PredictionHandler.
func NewPredictionHandler(svc PredictionService, logger *slog.Logger) *PredictionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictionHandler{service: svc, logger: logger}
}

// RegisterRoutes mounts the prediction endpoints. All routes assume the auth
// middleware is applied.
func (h *PredictionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/predict", h.HandleCreate)
	r.Get("/predictions", h.HandleListOwn)
	r.Get("/predictions/export", h.HandleExport)
	r.Get("/predictions/{id}", h.HandleGet)
	r.Get("/users/{userId}/predictions", h.HandleListByUser)
}

// weatherInput is the user-supplied weather block.
type weatherInput struct {
	Temperature *float64 `json:"temperature"`
	Rainfall    *float64 `json:"rainfall"`
	Humidity    *float64 `json:"humidity"`
}

// predictRequest is the wire shape of POST /v1/predict. Older clients send
// farmSize, fetchedFromAPIs or fetchData and flat weather fields.
type predictRequest struct {
	CropType     string         `json:"cropType"`
	LandArea     *float64       `json:"landArea"`
	FarmSize     *float64       `json:"farmSize"`
	Location     types.Location `json:"location"`
	PlantingDate string         `json:"plantingDate"`

	FetchExternalData *bool `json:"fetchExternalData"`
	FetchedFromAPIs   *bool `json:"fetchedFromAPIs"`
	FetchData         *bool `json:"fetchData"`

	SoilType    string        `json:"soilType"`
	Weather     *weatherInput `json:"weather"`
	Temperature *float64      `json:"temperature"`
	Rainfall    *float64      `json:"rainfall"`
	Humidity    *float64      `json:"humidity"`
}

// toServiceRequest resolves the wire aliases.
func (p predictRequest) toServiceRequest() (prediction.Request, error) {
	req := prediction.Request{
		CropType: strings.TrimSpace(p.CropType),
		LandArea: p.LandArea,
		Location: p.Location,
		SoilType: strings.TrimSpace(p.SoilType),
	}
	if req.LandArea == nil {
		req.LandArea = p.FarmSize
	}

	switch {
	case p.FetchExternalData != nil:
		req.FetchExternalData = *p.FetchExternalData
	case p.FetchedFromAPIs != nil:
		req.FetchExternalData = *p.FetchedFromAPIs
	case p.FetchData != nil:
		req.FetchExternalData = *p.FetchData
	}

	req.Temperature, req.Rainfall, req.Humidity = p.Temperature, p.Rainfall, p.Humidity
	if p.Weather != nil {
		req.Temperature, req.Rainfall, req.Humidity = p.Weather.Temperature, p.Weather.Rainfall, p.Weather.Humidity
	}

	if s := strings.TrimSpace(p.PlantingDate); s != "" {
		t, err := parseDate(s)
		if err != nil {
			// Report the date alongside every other problem in the body.
			problems := append(prediction.ValidateRequest(req), msgPlantingDateInvalid)
			return req, types.NewAppErrorWithDetails(
				types.ErrCodeValidationFailed,
				"Validation failed",
				err,
				map[string]any{"validation_errors": problems},
			)
		}
		req.PlantingDate = &t
	}
	return req, nil
}

const msgPlantingDateInvalid = "plantingDate must be a date (YYYY-MM-DD or RFC3339)"

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}

// HandleCreate handles POST /v1/predict.
func (h *PredictionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.RequireActor(w, r)
	if !ok {
		return
	}

	var body predictRequest
	if err := core.DecodeJSON(w, r, &body); err != nil {
		core.Error(w, r, err)
		return
	}

	req, err := body.toServiceRequest()
	if err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.service.CreatePrediction(r.Context(), actor.ID, req)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	w.Header().Set("Location", "/v1/predictions/"+result.ID)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: result})
}

// HandleGet handles GET /v1/predictions/{id}.
func (h *PredictionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.RequireActor(w, r)
	if !ok {
		return
	}

	pred, err := h.service.GetPrediction(r.Context(), actor.ID, chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: pred})
}

// HandleListOwn handles GET /v1/predictions.
func (h *PredictionHandler) HandleListOwn(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.RequireActor(w, r)
	if !ok {
		return
	}
	h.writeList(w, r, actor.ID, actor.ID)
}

// HandleListByUser handles GET /v1/users/{userId}/predictions.
func (h *PredictionHandler) HandleListByUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.RequireActor(w, r)
	if !ok {
		return
	}
	h.writeList(w, r, actor.ID, chi.URLParam(r, "userId"))
}

func (h *PredictionHandler) writeList(w http.ResponseWriter, r *http.Request, actorID, ownerID string) {
	preds, err := h.service.ListPredictions(r.Context(), actorID, ownerID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if preds == nil {
		preds = []*types.YieldPrediction{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: preds,
		Meta: &core.ResponseMeta{Count: len(preds)},
	})
}

// exportRow is one CSV line of GET /v1/predictions/export.
type exportRow struct {
	ID                string  `csv:"id"`
	CreatedAt         string  `csv:"created_at"`
	CropType          string  `csv:"crop_type"`
	State             string  `csv:"state"`
	District          string  `csv:"district"`
	SoilType          string  `csv:"soil_type"`
	LandArea          float64 `csv:"land_area_ha"`
	PlantingDate      string  `csv:"planting_date"`
	PredictedYieldKg  float64 `csv:"predicted_yield_kg"`
	YieldPerHectareKg float64 `csv:"yield_per_hectare_kg"`
	ConfidenceScore   float64 `csv:"confidence_score"`
	UsedExternalModel bool    `csv:"used_external_model"`
	ModelVersion      string  `csv:"model_version"`
	WeatherSource     string  `csv:"weather_source"`
	SoilSource        string  `csv:"soil_source"`
}

func toExportRow(p *types.YieldPrediction) exportRow {
	return exportRow{
		ID:                p.ID,
		CreatedAt:         p.CreatedAt.UTC().Format(time.RFC3339),
		CropType:          p.CropType,
		State:             p.Location.State,
		District:          p.Location.District,
		SoilType:          p.SoilType,
		LandArea:          p.LandArea,
		PlantingDate:      p.PlantingDate.UTC().Format(time.DateOnly),
		PredictedYieldKg:  p.PredictedYieldKg,
		YieldPerHectareKg: p.YieldPerHectareKg,
		ConfidenceScore:   p.ConfidenceScore,
		UsedExternalModel: p.UsedExternalModel,
		ModelVersion:      p.ModelVersion,
		WeatherSource:     string(p.Weather.DataSource),
		SoilSource:        string(p.SoilProfile.DataSource),
	}
}

// HandleExport handles GET /v1/predictions/export. The caller's predictions
// are written as CSV, newest first.
func (h *PredictionHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.RequireActor(w, r)
	if !ok {
		return
	}

	preds, err := h.service.ListPredictions(r.Context(), actor.ID, actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	rows := make([]exportRow, 0, len(preds))
	for _, p := range preds {
		rows = append(rows, toExportRow(p))
	}

	body, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to encode prediction export", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode export", err))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="predictions.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
