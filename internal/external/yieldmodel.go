package external

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cropyield/internal/types"
)

// userAgent identifies this service to upstream APIs.
const userAgent = "CropYield/1.0"

// DefaultModelTimeout bounds one yield model call.
const DefaultModelTimeout = 15 * time.Second

const maxModelBody = 1 << 20

// YieldModelConfig holds the configuration for a YieldModelClient.
type YieldModelConfig struct {
	URL     string
	Breaker BreakerSettings
	Logger  *slog.Logger
}

// YieldModelClient posts prediction inputs to the external yield model.
type YieldModelClient struct {
	base   *BaseClient
	url    string
	logger *slog.Logger
}

// NewYieldModelClient creates a YieldModelClient. A nil httpClient gets
// DefaultModelTimeout.
func NewYieldModelClient(httpClient *http.Client, cfg YieldModelConfig) *YieldModelClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultModelTimeout}
	}
	base := NewBaseClient(httpClient, "yield-model", cfg.Breaker, userAgent)
	return NewYieldModelClientWithBase(base, cfg)
}

// NewYieldModelClientWithBase creates a YieldModelClient over a
// pre-configured BaseClient.
func NewYieldModelClientWithBase(base *BaseClient, cfg YieldModelConfig) *YieldModelClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &YieldModelClient{base: base, url: cfg.URL, logger: logger}
}

// Endpoint returns the configured model URL; empty means not configured.
func (c *YieldModelClient) Endpoint() string { return c.url }

// Predict posts input and decodes the model's reply. A reply without
// yield_kg_ha is not an error here; the caller decides what is usable.
func (c *YieldModelClient) Predict(ctx context.Context, input types.ModelInput) (*types.ModelResponse, error) {
	if c.url == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamNotConfig, "yield model URL is not configured", nil)
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize model input", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create model request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, wrapError("yield model", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, handleErrorResponse(c.logger, resp, "yield model", types.ErrCodeUpstreamYieldModel)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxModelBody))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamYieldModel, "failed to read model response", err)
	}

	var out types.ModelResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamYieldModel,
			"failed to decode model response",
			err,
			map[string]any{"status_code": resp.StatusCode, "response_body": truncate(string(raw), maxErrorBody)},
		)
	}
	out.Raw = json.RawMessage(raw)
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
