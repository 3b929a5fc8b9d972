package prediction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cropyield/internal/types"
)

func TestEstimateFallback_MonsoonRainfallFloorsPenalty(t *testing.T) {
	est := EstimateFallback("RICE", 2.5, types.Float64(29), types.Float64(939), "Sandy")

	// 3.8 * 0.92 * 0.6 * 0.85
	assert.InDelta(t, 1.78296, est.TonsPerHectare, 1e-9)
	assert.InDelta(t, 1782.96, est.YieldPerHectareKg, 1e-6)
	assert.Equal(t, 4457.4, est.TotalKg)
	assert.Equal(t, FallbackConfidence, est.Confidence)
}

func TestEstimateFallback_OptimalConditions(t *testing.T) {
	est := EstimateFallback("WHEAT", 1, types.Float64(25), types.Float64(80), "Loamy")
	assert.InDelta(t, 3200, est.YieldPerHectareKg, 1e-9)
	assert.Equal(t, 3200.0, est.TotalKg)
}

func TestEstimateFallback_TemperaturePenaltyFloor(t *testing.T) {
	est := EstimateFallback("MAIZE", 1, types.Float64(60), types.Float64(80), "Loamy")
	assert.InDelta(t, 4.5*0.7*1000, est.YieldPerHectareKg, 1e-9)
}

func TestEstimateFallback_MissingReadingsSkipPenalties(t *testing.T) {
	est := EstimateFallback("GROUNDNUT", 2, nil, nil, "Alluvial")
	assert.InDelta(t, 1.8*1.15*1000, est.YieldPerHectareKg, 1e-9)
	assert.Equal(t, round2(1.8*1.15*1000*2), est.TotalKg)
}

func TestEstimateFallback_ZeroIsARealReading(t *testing.T) {
	withZero := EstimateFallback("RICE", 1, types.Float64(0), types.Float64(0), "Loamy")
	skipped := EstimateFallback("RICE", 1, nil, nil, "Loamy")
	assert.Less(t, withZero.YieldPerHectareKg, skipped.YieldPerHectareKg)
}

func TestEstimateFallback_UnknownCropAndSoil(t *testing.T) {
	est := EstimateFallback("BARLEY", 1, nil, nil, "Peat")
	assert.InDelta(t, 3000, est.YieldPerHectareKg, 1e-9)
}

func TestEstimateFallback_SoilMultipliers(t *testing.T) {
	tests := map[string]float64{
		"Alluvial":   1.15,
		"Black":      1.10,
		"Loamy":      1.00,
		"Red-Yellow": 0.98,
		"Red":        0.95,
		"Sandy":      0.85,
	}
	for soil, mult := range tests {
		est := EstimateFallback("SUGARCANE", 1, nil, nil, soil)
		assert.InDelta(t, 75*mult*1000, est.YieldPerHectareKg, 1e-6, soil)
	}
}

func TestEstimateFallback_Deterministic(t *testing.T) {
	a := EstimateFallback("RICE", 3.3, types.Float64(31.5), types.Float64(120), "Black")
	b := EstimateFallback("RICE", 3.3, types.Float64(31.5), types.Float64(120), "Black")
	assert.Equal(t, a, b)
}

func TestEstimateFallback_TotalMatchesPerHectare(t *testing.T) {
	areas := []float64{0.1, 0.75, 1.3, 2.5, 10, 123.45}
	for _, area := range areas {
		est := EstimateFallback("MAIZE", area, types.Float64(27), types.Float64(95), "Red")
		assert.Equal(t, round2(est.YieldPerHectareKg*area), est.TotalKg, "area %v", area)
	}
}
