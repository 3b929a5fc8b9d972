package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cropyield/internal/core"
	"cropyield/internal/types"
)

// SoilLookup resolves a soil profile for a location. prediction.SoilResolver
// satisfies it.
type SoilLookup interface {
	Resolve(state, district string, coords *types.Coordinates) types.SoilProfile
}

// SoilHandler serves the public soil lookup.
type SoilHandler struct {
	soil      SoilLookup
	validator *core.Validator
	logger    *slog.Logger
}

// NewSoilHandler creates a SoilHandler.
func NewSoilHandler(soil SoilLookup, val *core.Validator, logger *slog.Logger) *SoilHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SoilHandler{soil: soil, validator: val, logger: logger}
}

// SoilDataPath is the public soil lookup route under /v1.
const SoilDataPath = "/soil-data"

// RegisterRoutes mounts POST /v1/soil-data.
func (h *SoilHandler) RegisterRoutes(r chi.Router) {
	r.Post(SoilDataPath, h.HandleSoilData)
}

type soilDataRequest struct {
	State       string            `json:"state" validate:"required"`
	District    string            `json:"district" validate:"required"`
	Coordinates *coordinatesInput `json:"coordinates,omitempty" validate:"omitempty"`
}

type coordinatesInput struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
}

// HandleSoilData handles POST /v1/soil-data.
func (h *SoilHandler) HandleSoilData(w http.ResponseWriter, r *http.Request) {
	var req soilDataRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	var coords *types.Coordinates
	if req.Coordinates != nil {
		coords = &types.Coordinates{Lat: req.Coordinates.Lat, Lon: req.Coordinates.Lon}
	}

	profile := h.soil.Resolve(req.State, req.District, coords)
	h.logger.InfoContext(r.Context(), "soil lookup",
		"state", req.State,
		"district", req.District,
		"soil_type", profile.SoilType,
		"source", profile.DataSource,
	)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: profile})
}
