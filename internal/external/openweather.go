package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cropyield/internal/types"
)

// openWeatherAPIBase is the default OpenWeather API base URL.
const openWeatherAPIBase = "https://api.openweathermap.org"

// maxWeatherBody bounds a decoded current-weather response.
const maxWeatherBody = 1 << 20

// OpenWeatherConfig holds the configuration for an OpenWeatherClient.
type OpenWeatherConfig struct {
	APIKey  string
	BaseURL string // Override for testing; defaults to openWeatherAPIBase
	Breaker BreakerSettings
	Logger  *slog.Logger
}

// owCurrentResponse is the subset of /data/2.5/weather the resolver uses.
type owCurrentResponse struct {
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Main *struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Rain *struct {
		OneHour   *float64 `json:"1h"`
		ThreeHour *float64 `json:"3h"`
	} `json:"rain"`
	Dt int64 `json:"dt"`
}

// OpenWeatherClient fetches current conditions from OpenWeather.
type OpenWeatherClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewOpenWeatherClient creates an OpenWeatherClient with its own breaker.
func NewOpenWeatherClient(httpClient *http.Client, cfg OpenWeatherConfig) *OpenWeatherClient {
	base := NewBaseClient(httpClient, "openweather", cfg.Breaker, userAgent)
	return NewOpenWeatherClientWithBase(base, cfg)
}

// NewOpenWeatherClientWithBase creates an OpenWeatherClient over a
// pre-configured BaseClient.
func NewOpenWeatherClientWithBase(base *BaseClient, cfg OpenWeatherConfig) *OpenWeatherClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openWeatherAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenWeatherClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// CurrentWeather returns current conditions for a free-text location such as
// "Ahmedabad, Gujarat". Rainfall is the 1h accumulation, else 3h, else 0.
func (c *OpenWeatherClient) CurrentWeather(ctx context.Context, location string) (*types.WeatherObservation, error) {
	if c.apiKey == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamNotConfig, "weather API key is not configured", nil)
	}

	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")
	endpoint := c.baseURL + "/data/2.5/weather?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create weather request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, wrapError("openweather", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, handleErrorResponse(c.logger, resp, "openweather", types.ErrCodeUpstreamWeather)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxWeatherBody))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamWeather, "failed to read weather response", err)
	}

	var body owCurrentResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamWeather, "failed to decode weather response", err)
	}
	if body.Main == nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamWeather, "weather response is missing main readings", nil)
	}

	rainfall := 0.0
	if body.Rain != nil {
		switch {
		case body.Rain.OneHour != nil:
			rainfall = *body.Rain.OneHour
		case body.Rain.ThreeHour != nil:
			rainfall = *body.Rain.ThreeHour
		}
	}

	obs := &types.WeatherObservation{
		Temperature: types.Float64(body.Main.Temp),
		Rainfall:    types.Float64(rainfall),
		Humidity:    types.Float64(body.Main.Humidity),
		Coordinates: types.Coordinates{Lat: body.Coord.Lat, Lon: body.Coord.Lon},
		DataSource:  types.SourceAPI,
		Raw:         json.RawMessage(raw),
	}
	if body.Dt > 0 {
		obs.ObservedAt = time.Unix(body.Dt, 0).UTC()
	}

	c.logger.DebugContext(ctx, "weather fetched",
		"location", location,
		"temperature", body.Main.Temp,
		"rainfall", rainfall,
	)
	return obs, nil
}

// handleErrorResponse reads the body of a 4xx response into an AppError of
// the given code, keeping status and body in Details.
func handleErrorResponse(logger *slog.Logger, resp *http.Response, provider string, code types.ErrorCode) *types.AppError {
	body := readErrorBody(resp)

	logger.Error("upstream API error",
		"provider", provider,
		"status_code", resp.StatusCode,
		"response_body", body,
	)

	return types.NewAppErrorWithDetails(
		code,
		fmt.Sprintf("%s returned %d", provider, resp.StatusCode),
		fmt.Errorf("%s returned %d: %s", provider, resp.StatusCode, body),
		map[string]any{"status_code": resp.StatusCode, "response_body": body},
	)
}

// wrapError prefixes BaseClient errors with the provider name, keeping the
// code and details.
func wrapError(provider string, err error) error {
	var appErr *types.AppError
	if isAppError(err, &appErr) {
		return &types.AppError{
			Code:    appErr.Code,
			Message: fmt.Sprintf("%s: %s", provider, appErr.Message),
			Err:     appErr.Err,
			Details: appErr.Details,
		}
	}
	return types.NewAppError(types.ErrCodeUpstreamUnavailable, provider+" request failed", err)
}

// isAppError checks if err is an *types.AppError and extracts it.
func isAppError(err error, target **types.AppError) bool {
	if appErr, ok := err.(*types.AppError); ok {
		*target = appErr
		return true
	}
	return false
}
