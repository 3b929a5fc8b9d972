package prediction

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"cropyield/internal/types"
)

// Fixed observation returned when the provider cannot be used.
const (
	FallbackTemperatureC = 25.0
	FallbackRainfallMM   = 50.0
	FallbackHumidityPct  = 70.0
)

// WeatherProvider fetches current conditions for a "District, State" string.
type WeatherProvider interface {
	CurrentWeather(ctx context.Context, location string) (*types.WeatherObservation, error)
}

// WeatherResolver turns a location into a weather observation. Resolve never
// fails; provider errors produce the fixed fallback observation.
type WeatherResolver struct {
	provider WeatherProvider
	clock    types.Clock
	logger   *slog.Logger
}

// NewWeatherResolver creates a WeatherResolver. provider may be nil when no
// weather credential is configured.
func NewWeatherResolver(provider WeatherProvider, clock types.Clock, logger *slog.Logger) *WeatherResolver {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherResolver{provider: provider, clock: clock, logger: logger}
}

// Resolve returns current conditions for district in state. date is recorded
// in logs only; the provider serves current weather.
func (r *WeatherResolver) Resolve(ctx context.Context, state, district string, date time.Time) types.WeatherObservation {
	location := locationLabel(state, district)

	if r.provider == nil {
		return r.fallback("weather provider not configured")
	}

	obs, err := r.provider.CurrentWeather(ctx, location)
	if err != nil {
		r.logger.WarnContext(ctx, "weather lookup failed, using fallback",
			"location", location,
			"planting_date", date.Format(time.DateOnly),
			"error", err,
		)
		return r.fallback(err.Error())
	}
	if obs == nil || obs.Temperature == nil || obs.Rainfall == nil || obs.Humidity == nil {
		return r.fallback("weather provider returned an incomplete observation")
	}

	out := *obs
	out.DataSource = types.SourceAPI
	if out.ObservedAt.IsZero() {
		out.ObservedAt = r.clock.Now()
	}
	return out
}

// FromUser records user-supplied readings. Missing values stay nil.
func (r *WeatherResolver) FromUser(temperature, rainfall, humidity *float64, coords *types.Coordinates) types.WeatherObservation {
	obs := types.WeatherObservation{
		Temperature: temperature,
		Rainfall:    rainfall,
		Humidity:    humidity,
		DataSource:  types.SourceUser,
		ObservedAt:  r.clock.Now(),
	}
	if coords != nil {
		obs.Coordinates = *coords
	}
	return obs
}

func (r *WeatherResolver) fallback(reason string) types.WeatherObservation {
	raw, _ := json.Marshal(map[string]string{"error": reason})
	return types.WeatherObservation{
		Temperature: types.Float64(FallbackTemperatureC),
		Rainfall:    types.Float64(FallbackRainfallMM),
		Humidity:    types.Float64(FallbackHumidityPct),
		DataSource:  types.SourceFallback,
		ObservedAt:  r.clock.Now(),
		Raw:         raw,
	}
}
