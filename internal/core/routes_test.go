package core

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cropyield/internal/types"
)

// mountedServer registers a handful of /v1 routes and mounts the chain.
func mountedServer(t *testing.T) (*Server, *MockMetricsCollector) {
	t.Helper()
	srv := newTestServer(t)
	metrics := &MockMetricsCollector{}
	srv.Metrics = metrics
	srv.Authenticator = &MockAuthenticator{Actor: &types.Actor{ID: "farmer-1", Type: types.ActorTypeUser}}
	srv.PublicPaths = []string{"/v1/soil-data"}
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/predictions", func(w http.ResponseWriter, r *http.Request) {
			actor, ok := RequireActor(w, r)
			if !ok {
				return
			}
			JSON(w, r, http.StatusOK, APIResponse{Data: actor.ID})
		})
		r.Post("/soil-data", func(w http.ResponseWriter, r *http.Request) {
			JSON(w, r, http.StatusOK, APIResponse{Data: types.GetRequestID(r.Context())})
		})
		r.Get("/large", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte(strings.Repeat("paddy ", 2000)))
		})
	})
	srv.MountRoutes()
	return srv, metrics
}

func TestRoutes_HealthIsPublic(t *testing.T) {
	srv, _ := mountedServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on health response")
	}
}

func TestRoutes_RequestIDGenerated(t *testing.T) {
	srv, _ := mountedServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/soil-data", nil))

	id := rec.Header().Get("X-Request-Id")
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("expected generated UUID request id, got %q", id)
	}
	if !strings.Contains(rec.Body.String(), id) {
		t.Errorf("request id not visible to handler: %s", rec.Body.String())
	}
}

func TestRoutes_RequestIDPropagated(t *testing.T) {
	srv, _ := mountedServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/soil-data", nil)
	req.Header.Set("X-Request-Id", "upstream-trace-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-Id") != "upstream-trace-1" {
		t.Errorf("expected propagated id, got %q", rec.Header().Get("X-Request-Id"))
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/soil-data", nil)
	req.Header.Set("X-Request-Id", strings.Repeat("a", 200))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if len(rec.Header().Get("X-Request-Id")) != 36 {
		t.Errorf("expected oversized id to be replaced, got %q", rec.Header().Get("X-Request-Id"))
	}
}

func TestRoutes_AuthRequiredOnV1(t *testing.T) {
	srv, _ := mountedServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/predictions", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/predictions", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "farmer-1") {
		t.Errorf("expected 200 with actor, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestRoutes_GzipWhenAccepted(t *testing.T) {
	srv, _ := mountedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/large", nil)
	req.Header.Set("Authorization", "Bearer tok")
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, got headers %v", rec.Header())
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	body, _ := io.ReadAll(zr)
	if len(body) != len("paddy ")*2000 {
		t.Errorf("unexpected decompressed length %d", len(body))
	}
}

func TestRoutes_MetricsUseRoutePattern(t *testing.T) {
	srv, metrics := mountedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/predictions", nil)
	req.Header.Set("Authorization", "Bearer tok")
	srv.Handler().ServeHTTP(httptest.NewRecorder(), req)

	calls := metrics.Recorded()
	if len(calls) != 1 {
		t.Fatalf("expected 1 recorded request, got %d", len(calls))
	}
	if calls[0].Endpoint != "/v1/predictions" || calls[0].Status != "200" {
		t.Errorf("unexpected metrics call %+v", calls[0])
	}
}

func TestRoutes_RequestTimeoutDefault(t *testing.T) {
	srv := newTestServer(t)
	if srv.requestTimeout() != defaultRequestTimeout {
		t.Errorf("expected default timeout, got %v", srv.requestTimeout())
	}
	srv.Config.Server.RequestTimeout = 5 * time.Second
	if srv.requestTimeout() != 5*time.Second {
		t.Errorf("expected configured timeout, got %v", srv.requestTimeout())
	}
}
