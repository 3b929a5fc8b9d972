package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// healthCheckTimeout bounds one GET /health. Probes still running at the
// deadline are reported as timed out.
const healthCheckTimeout = 2 * time.Second

// HealthProbe checks one dependency of the prediction pipeline, such as the
// prediction store or the weather cache.
type HealthProbe interface {
	Name() string
	// Check should honour ctx and return nil when the dependency is usable.
	Check(ctx context.Context) error
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// HandleHealth runs every registered probe concurrently and answers 200 when
// all of them pass, 503 otherwise. It is mounted at GET /health without
// authentication.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: statusHealthy}
	if s.Config != nil {
		resp.Version = s.Config.Build.Version
	}
	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	// Each probe reports on its own buffered channel so a probe that
	// outlives the deadline never blocks.
	outcomes := make([]chan error, len(s.HealthProbes))
	for i, probe := range s.HealthProbes {
		i, probe := i, probe // per-iteration copy (pre-Go 1.22 loop semantics)
		outcomes[i] = make(chan error, 1)
		go func() { outcomes[i] <- runProbe(ctx, probe) }()
	}

	resp.Components = make(map[string]componentStatus, len(s.HealthProbes))
	for i, probe := range s.HealthProbes {
		comp := componentStatus{Status: statusHealthy}
		if err := awaitProbe(ctx, outcomes[i]); err != nil {
			comp = componentStatus{Status: statusUnhealthy, Message: err.Error()}
			resp.Status = statusUnhealthy
		}
		resp.Components[probe.Name()] = comp
	}

	status := http.StatusOK
	if resp.Status != statusHealthy {
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, resp)
}

// awaitProbe waits for a probe result. A result that is already in wins over
// an expired deadline.
func awaitProbe(ctx context.Context, outcome <-chan error) error {
	select {
	case err := <-outcome:
		return err
	default:
	}
	select {
	case err := <-outcome:
		return err
	case <-ctx.Done():
		return errors.New("health check timed out")
	}
}

// runProbe calls probe.Check, turning a panic into an error.
func runProbe(ctx context.Context, probe HealthProbe) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("probe panicked: %v", rec)
		}
	}()
	return probe.Check(ctx)
}
