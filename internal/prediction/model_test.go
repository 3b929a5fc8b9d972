package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropyield/internal/types"
)

type fakeModelClient struct {
	endpoint string
	resp     *types.ModelResponse
	err      error
	inputs   []types.ModelInput
}

func (f *fakeModelClient) Predict(_ context.Context, input types.ModelInput) (*types.ModelResponse, error) {
	f.inputs = append(f.inputs, input)
	return f.resp, f.err
}

func (f *fakeModelClient) Endpoint() string { return f.endpoint }

func TestBuildModelInput(t *testing.T) {
	n := Normalized{Crop: "RICE", State: "Gujarat", SoilType: "Sandy"}
	weather := types.WeatherObservation{
		Temperature: types.Float64(28.5),
		Rainfall:    types.Float64(938.4),
	}
	date := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	in := BuildModelInput(n, " Ahmedabad ", 2.5, weather, date)

	assert.Equal(t, types.ModelInput{
		Year:          "2025",
		State:         "Gujarat",
		District:      "ahmedabad",
		AreaThousandH: "2.5",
		Crop:          "RICE",
		AvgRainfallMM: "938",
		AvgTempC:      "29",
		SoilType:      "Sandy",
	}, in)
}

func TestBuildModelInput_MissingReadingsUseDefaults(t *testing.T) {
	n := Normalized{Crop: "WHEAT", State: "Punjab", SoilType: "Alluvial"}

	in := BuildModelInput(n, "Ludhiana", 10, types.WeatherObservation{}, testNow)

	assert.Equal(t, "50", in.AvgRainfallMM)
	assert.Equal(t, "25", in.AvgTempC)
	assert.Equal(t, "10", in.AreaThousandH)
}

func TestBuildModelInput_KeysAreStrings(t *testing.T) {
	in := BuildModelInput(Normalized{Crop: "RICE", State: "Bihar", SoilType: "Alluvial"}, "Patna", 1.25, types.WeatherObservation{}, testNow)

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Len(t, m, 8)
	for _, key := range []string{"Year", "State", "District", "Area_1000_ha", "Crop", "Avg_Rainfall_mm", "Avg_Temp_C", "Soil_Type"} {
		v, ok := m[key]
		require.True(t, ok, key)
		assert.IsType(t, "", v, key)
	}
}

func TestModelInvoker_Success(t *testing.T) {
	client := &fakeModelClient{
		endpoint: "http://model.local/predict",
		resp: &types.ModelResponse{
			YieldKgHa:          types.Float64(2400),
			ConfidenceInterval: []float64{2200, 2600},
			ModelVersion:       "rf-2024.1",
			Recommendations:    []string{"Irrigate weekly"},
			Raw:                json.RawMessage(`{"yield_kg_ha":2400}`),
		},
	}
	inv := NewModelInvoker(client, nil)

	out := inv.Invoke(context.Background(), types.ModelInput{Crop: "RICE"})

	require.True(t, out.Used)
	assert.Equal(t, 2400.0, out.YieldPerHectareKg)
	// 1 - 400/2400/2
	assert.InDelta(t, 0.91667, out.Confidence, 1e-4)
	assert.Equal(t, "rf-2024.1", out.ModelVersion)
	assert.Equal(t, []string{"Irrigate weekly"}, out.Recommendations)
	assert.Nil(t, out.ErrorDetails)
	assert.Len(t, client.inputs, 1)
}

func TestModelInvoker_NullYieldFails(t *testing.T) {
	client := &fakeModelClient{
		endpoint: "http://model.local/predict",
		resp:     &types.ModelResponse{Raw: json.RawMessage(`{"yield_kg_ha":null}`)},
	}

	out := NewModelInvoker(client, nil).Invoke(context.Background(), types.ModelInput{})

	assert.False(t, out.Used)
	require.NotNil(t, out.ErrorDetails)
	assert.Contains(t, out.ErrorDetails.Message, "yield_kg_ha")
	assert.Equal(t, `{"yield_kg_ha":null}`, out.ErrorDetails.ResponseBody)
}

func TestModelInvoker_HTTPErrorCapturesDetail(t *testing.T) {
	client := &fakeModelClient{
		endpoint: "http://model.local/predict",
		err: types.NewAppErrorWithDetails(types.ErrCodeUpstreamYieldModel, "yield model returned 422", nil,
			map[string]any{"status_code": 422, "response_body": `{"detail":"bad crop"}`}),
	}

	out := NewModelInvoker(client, nil).Invoke(context.Background(), types.ModelInput{})

	assert.False(t, out.Used)
	require.NotNil(t, out.ErrorDetails)
	assert.Equal(t, 422, out.ErrorDetails.StatusCode)
	assert.Equal(t, `{"detail":"bad crop"}`, out.ErrorDetails.ResponseBody)
	assert.Equal(t, "http://model.local/predict", out.ErrorDetails.APIURL)
}

func TestModelInvoker_TransportError(t *testing.T) {
	client := &fakeModelClient{endpoint: "http://model.local/predict", err: errors.New("connection refused")}

	out := NewModelInvoker(client, nil).Invoke(context.Background(), types.ModelInput{})

	assert.False(t, out.Used)
	assert.Contains(t, out.ErrorDetails.Message, "connection refused")
}

func TestModelInvoker_NotConfigured(t *testing.T) {
	out := NewModelInvoker(nil, nil).Invoke(context.Background(), types.ModelInput{})
	assert.False(t, out.Used)
	require.NotNil(t, out.ErrorDetails)

	client := &fakeModelClient{}
	out = NewModelInvoker(client, nil).Invoke(context.Background(), types.ModelInput{})
	assert.False(t, out.Used)
	assert.Empty(t, client.inputs)
}

func TestModelConfidence(t *testing.T) {
	tests := []struct {
		name     string
		interval []float64
		want     float64
	}{
		{"no interval", nil, 0.85},
		{"wrong length", []float64{1, 2, 3}, 0.85},
		{"non-positive midpoint", []float64{-10, 10}, 0.85},
		{"negative midpoint", []float64{-300, -100}, 0.85},
		{"narrow interval clamps high", []float64{1990, 2010}, 0.95},
		{"wide interval clamps low", []float64{0, 4000}, 0.5},
		{"in range", []float64{800, 1200}, 0.8},
		{"asymmetric around midpoint", []float64{2000, 3000}, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, modelConfidence(tt.interval), 1e-9)
		})
	}
}

func TestModelInvoker_ConfidenceUsesIntervalMidpoint(t *testing.T) {
	client := &fakeModelClient{
		endpoint: "http://model.local/predict",
		resp: &types.ModelResponse{
			YieldKgHa:          types.Float64(4000),
			ConfidenceInterval: []float64{2000, 3000},
		},
	}

	out := NewModelInvoker(client, nil).Invoke(context.Background(), types.ModelInput{Crop: "WHEAT"})

	require.True(t, out.Used)
	assert.Equal(t, 4000.0, out.YieldPerHectareKg)
	// 1 - 1000/2500/2, not measured against the 4000 point yield.
	assert.InDelta(t, 0.8, out.Confidence, 1e-9)
	assert.Equal(t, ConfidenceMedium, ConfidenceLevel(out.Confidence))
}
