package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cropyield/internal/config"
)

func TestNewServer_Success(t *testing.T) {
	srv := newTestServer(t)
	if srv.Validator == nil {
		t.Error("expected validator to be initialized")
	}
	if srv.Router() == nil || srv.Handler() == nil {
		t.Error("expected router to be initialized")
	}
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	if _, err := NewServer(nil, discardLogger()); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewServer(&config.Config{}, nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestServer_HandlerServesRegisteredRoutes(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("expected 418, got %d", rec.Code)
	}
}

func TestServer_ShutdownRunsClosersInReverse(t *testing.T) {
	srv := newTestServer(t)
	var order []string
	srv.Closers = append(srv.Closers,
		func(context.Context) error { order = append(order, "database"); return nil },
		func(context.Context) error { order = append(order, "redis"); return nil },
	)

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(order, ",") != "redis,database" {
		t.Errorf("unexpected close order %v", order)
	}
}

func TestServer_ShutdownContinuesAfterFailure(t *testing.T) {
	srv := newTestServer(t)
	closed := false
	srv.Closers = append(srv.Closers,
		func(context.Context) error { closed = true; return nil },
		func(context.Context) error { return errors.New("redis: connection reset") },
	)

	err := srv.Shutdown(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("expected joined close error, got %v", err)
	}
	if !closed {
		t.Error("expected remaining closers to run")
	}
}
