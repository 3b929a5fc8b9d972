package prediction

import "math"

// FallbackConfidence is the fixed confidence of an analytical estimate. It is
// deliberately below any score the model path can produce.
const FallbackConfidence = 0.65

// FallbackModelVersion labels predictions produced by EstimateFallback.
const FallbackModelVersion = "fallback_v1.0"

var baseYieldTonsPerHa = map[string]float64{
	"RICE":      3.8,
	"WHEAT":     3.2,
	"MAIZE":     4.5,
	"SUGARCANE": 75.0,
	"GROUNDNUT": 1.8,
}

const defaultBaseYield = 3.0

var soilMultiplier = map[string]float64{
	"Alluvial":   1.15,
	"Black":      1.10,
	"Loamy":      1.00,
	"Red-Yellow": 0.98,
	"Red":        0.95,
	"Sandy":      0.85,
}

// Optimal growing conditions the penalties are measured against.
const (
	optimalTempC      = 25.0
	optimalRainfallMM = 80.0
)

// FallbackEstimate is the output of the analytical yield formula.
type FallbackEstimate struct {
	TonsPerHectare    float64
	YieldPerHectareKg float64
	TotalKg           float64
	Confidence        float64
}

// EstimateFallback computes a yield from crop base yield, weather penalties
// and a soil multiplier. A nil temperature or rainfall leaves that factor
// out. The function is pure.
func EstimateFallback(crop string, landArea float64, temp, rainfall *float64, soilType string) FallbackEstimate {
	tons, ok := baseYieldTonsPerHa[crop]
	if !ok {
		tons = defaultBaseYield
	}

	if temp != nil {
		tons *= math.Max(0.7, 1-math.Abs(*temp-optimalTempC)*0.02)
	}
	if rainfall != nil {
		tons *= math.Max(0.6, 1-math.Abs(*rainfall-optimalRainfallMM)*0.003)
	}
	if m, ok := soilMultiplier[soilType]; ok {
		tons *= m
	}

	perHa := tons * 1000
	return FallbackEstimate{
		TonsPerHectare:    tons,
		YieldPerHectareKg: perHa,
		TotalKg:           round2(perHa * landArea),
		Confidence:        FallbackConfidence,
	}
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
