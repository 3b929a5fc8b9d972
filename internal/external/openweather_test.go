package external

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cropyield/internal/prediction"
	"cropyield/internal/types"
)

var _ prediction.WeatherProvider = (*OpenWeatherClient)(nil)

func newTestWeatherClient(serverURL, apiKey string) *OpenWeatherClient {
	return NewOpenWeatherClient(http.DefaultClient, OpenWeatherConfig{
		APIKey:  apiKey,
		BaseURL: serverURL,
	})
}

func TestOpenWeather_CurrentWeather(t *testing.T) {
	var gotQuery, gotKey, gotUnits, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.URL.Query().Get("appid")
		gotUnits = r.URL.Query().Get("units")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"coord": {"lon": 72.58, "lat": 23.03},
			"main": {"temp": 31.4, "humidity": 58},
			"rain": {"1h": 1.2, "3h": 4.8},
			"dt": 1750000000
		}`))
	}))
	defer server.Close()

	obs, err := newTestWeatherClient(server.URL, "secret").CurrentWeather(context.Background(), "Ahmedabad, Gujarat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/data/2.5/weather" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotQuery != "Ahmedabad, Gujarat" || gotKey != "secret" || gotUnits != "metric" {
		t.Errorf("unexpected query q=%q appid=%q units=%q", gotQuery, gotKey, gotUnits)
	}
	if *obs.Temperature != 31.4 || *obs.Humidity != 58 {
		t.Errorf("unexpected readings: temp=%v humidity=%v", *obs.Temperature, *obs.Humidity)
	}
	if *obs.Rainfall != 1.2 {
		t.Errorf("expected 1h rainfall 1.2, got %v", *obs.Rainfall)
	}
	if obs.Coordinates.Lat != 23.03 || obs.Coordinates.Lon != 72.58 {
		t.Errorf("unexpected coordinates %+v", obs.Coordinates)
	}
	if obs.DataSource != types.SourceAPI {
		t.Errorf("expected source api, got %s", obs.DataSource)
	}
	if obs.ObservedAt.Unix() != 1750000000 {
		t.Errorf("unexpected observedAt %v", obs.ObservedAt)
	}
	if len(obs.Raw) == 0 {
		t.Error("expected raw body to be kept")
	}
}

func TestOpenWeather_RainfallPreference(t *testing.T) {
	tests := []struct {
		name string
		body string
		want float64
	}{
		{"three hour only", `{"main":{"temp":25,"humidity":60},"rain":{"3h":4.5}}`, 4.5},
		{"no rain block", `{"main":{"temp":25,"humidity":60}}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			obs, err := newTestWeatherClient(server.URL, "k").CurrentWeather(context.Background(), "Patna, Bihar")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if *obs.Rainfall != tt.want {
				t.Errorf("expected rainfall %v, got %v", tt.want, *obs.Rainfall)
			}
		})
	}
}

func TestOpenWeather_MissingAPIKey(t *testing.T) {
	_, err := newTestWeatherClient("http://unused.invalid", "").CurrentWeather(context.Background(), "Patna, Bihar")

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamNotConfig {
		t.Fatalf("expected %s, got %v", types.ErrCodeUpstreamNotConfig, err)
	}
}

func TestOpenWeather_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"cod":"404","message":"city not found"}`))
	}))
	defer server.Close()

	_, err := newTestWeatherClient(server.URL, "k").CurrentWeather(context.Background(), "Nowhere, Atlantis")

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamWeather {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamWeather, appErr.Code)
	}
	if appErr.Details["status_code"] != http.StatusNotFound {
		t.Errorf("expected status_code 404, got %v", appErr.Details["status_code"])
	}
}

func TestOpenWeather_MalformedBody(t *testing.T) {
	tests := map[string]string{
		"not json":     `<html>oops</html>`,
		"missing main": `{"coord":{"lat":1,"lon":2}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer server.Close()

			_, err := newTestWeatherClient(server.URL, "k").CurrentWeather(context.Background(), "Patna, Bihar")
			var appErr *types.AppError
			if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamWeather {
				t.Errorf("expected %s, got %v", types.ErrCodeUpstreamWeather, err)
			}
		})
	}
}

func TestOpenWeather_NonSuccessRedirectStatusFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 300 has no Location, so the client hands it back unfollowed.
		w.WriteHeader(http.StatusMultipleChoices)
		w.Write([]byte(`{"main":{"temp":25,"humidity":60}}`))
	}))
	defer server.Close()

	_, err := newTestWeatherClient(server.URL, "k").CurrentWeather(context.Background(), "Patna, Bihar")

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %v", err)
	}
	if appErr.Code != types.ErrCodeUpstreamWeather {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamWeather, appErr.Code)
	}
	if appErr.Details["status_code"] != http.StatusMultipleChoices {
		t.Errorf("expected status_code 300, got %v", appErr.Details["status_code"])
	}
}
