package external

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"cropyield/internal/prediction"
	"cropyield/internal/types"
)

var _ prediction.YieldModelClient = (*YieldModelClient)(nil)

func sampleModelInput() types.ModelInput {
	return types.ModelInput{
		Year:          "2025",
		State:         "Gujarat",
		District:      "ahmedabad",
		AreaThousandH: "2.5",
		Crop:          "RICE",
		AvgRainfallMM: "939",
		AvgTempC:      "29",
		SoilType:      "Sandy",
	}
}

func TestYieldModel_Predict(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Write([]byte(`{"yield_kg_ha": 2450.5, "confidence_interval_95": [2200, 2700], "model_version": "rf-1.2", "recommendations": ["Irrigate at tillering"]}`))
	}))
	defer server.Close()

	client := NewYieldModelClient(nil, YieldModelConfig{URL: server.URL + "/predict"})

	resp, err := client.Predict(context.Background(), sampleModelInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got["Area_1000_ha"] != "2.5" || got["Avg_Temp_C"] != "29" || got["District"] != "ahmedabad" {
		t.Errorf("unexpected payload %v", got)
	}
	if resp.YieldKgHa == nil || *resp.YieldKgHa != 2450.5 {
		t.Fatalf("unexpected yield %v", resp.YieldKgHa)
	}
	if len(resp.ConfidenceInterval) != 2 || resp.ConfidenceInterval[1] != 2700 {
		t.Errorf("unexpected interval %v", resp.ConfidenceInterval)
	}
	if resp.ModelVersion != "rf-1.2" {
		t.Errorf("unexpected version %q", resp.ModelVersion)
	}
	if len(resp.Raw) == 0 {
		t.Error("expected raw response to be kept")
	}
	if client.Endpoint() != server.URL+"/predict" {
		t.Errorf("unexpected endpoint %q", client.Endpoint())
	}
}

func TestYieldModel_NullYieldIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"yield_kg_ha": null}`))
	}))
	defer server.Close()

	resp, err := NewYieldModelClient(nil, YieldModelConfig{URL: server.URL}).Predict(context.Background(), sampleModelInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.YieldKgHa != nil {
		t.Errorf("expected nil yield, got %v", *resp.YieldKgHa)
	}
}

func TestYieldModel_ClientErrorKeepsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"unknown district"}`))
	}))
	defer server.Close()

	_, err := NewYieldModelClient(nil, YieldModelConfig{URL: server.URL}).Predict(context.Background(), sampleModelInput())

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamYieldModel {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamYieldModel, appErr.Code)
	}
	if appErr.Details["status_code"] != http.StatusUnprocessableEntity {
		t.Errorf("unexpected status_code %v", appErr.Details["status_code"])
	}
	if appErr.Details["response_body"] != `{"detail":"unknown district"}` {
		t.Errorf("unexpected response_body %v", appErr.Details["response_body"])
	}
}

func TestYieldModel_ServerErrorIsSingleAttempt(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewYieldModelClient(nil, YieldModelConfig{URL: server.URL}).Predict(context.Background(), sampleModelInput())
	if err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected 1 call, got %d", n)
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Details["status_code"] != http.StatusBadGateway {
		t.Errorf("expected status_code 502 in details, got %v", appErr.Details["status_code"])
	}
}

func TestYieldModel_NotConfigured(t *testing.T) {
	client := NewYieldModelClient(nil, YieldModelConfig{})
	if client.Endpoint() != "" {
		t.Fatalf("expected empty endpoint")
	}
	_, err := client.Predict(context.Background(), sampleModelInput())
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamNotConfig {
		t.Errorf("expected %s, got %v", types.ErrCodeUpstreamNotConfig, err)
	}
}

func TestYieldModel_FeedsInvokerFallbackDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`model offline`))
	}))
	defer server.Close()

	inv := prediction.NewModelInvoker(NewYieldModelClient(nil, YieldModelConfig{URL: server.URL}), nil)
	out := inv.Invoke(context.Background(), sampleModelInput())

	if out.Used {
		t.Fatal("expected model to be unused")
	}
	if out.ErrorDetails.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", out.ErrorDetails.StatusCode)
	}
	if out.ErrorDetails.ResponseBody != "model offline" {
		t.Errorf("unexpected body %q", out.ErrorDetails.ResponseBody)
	}
	if out.ErrorDetails.APIURL != server.URL {
		t.Errorf("unexpected api url %q", out.ErrorDetails.APIURL)
	}
}
