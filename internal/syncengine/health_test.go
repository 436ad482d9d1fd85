package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(ctx context.Context) error {
	return p.err
}

// TestHealthCheckEndpoint_MethodNotAllowed verifies non-GET requests are rejected.
func TestHealthCheckEndpoint_MethodNotAllowed(t *testing.T) {
	server := NewHealthServer(":0", nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	w := httptest.NewRecorder()

	server.healthCheckHandler(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

// TestHealthCheckResponse verifies the JSON response structure.
func TestHealthCheckResponse(t *testing.T) {
	t.Run("healthy with running engine", func(t *testing.T) {
		ch := newFakeChannel("device-a", "device-b")
		e, _, _ := newTestEngine(t, ch, Options{})
		startEngine(t, e)

		server := NewHealthServer(":0", e, stubPinger{})

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()
		server.healthCheckHandler(w, req)

		var response HealthResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
		if response.Status != "healthy" {
			t.Errorf("Expected healthy status, got %s", response.Status)
		}
		if response.Redis != "connected" {
			t.Errorf("Expected redis=connected, got %s", response.Redis)
		}
		if response.Phase != string(PhaseConnected) {
			t.Errorf("Expected phase %s, got %s", PhaseConnected, response.Phase)
		}
		if len(response.Peers) != 1 || response.Peers[0] != "device-b" {
			t.Errorf("Expected peers [device-b], got %v", response.Peers)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected Content-Type application/json, got %s", ct)
		}
	})

	t.Run("unhealthy when Redis unavailable", func(t *testing.T) {
		ch := newFakeChannel("device-a")
		e, _, _ := newTestEngine(t, ch, Options{})
		startEngine(t, e)

		server := NewHealthServer(":0", e, stubPinger{err: errors.New("connection refused")})

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()
		server.healthCheckHandler(w, req)

		var response HealthResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Code)
		}
		if response.Status != "unhealthy" {
			t.Errorf("Expected unhealthy status, got %s", response.Status)
		}
		if response.Redis != "disconnected" {
			t.Errorf("Expected redis=disconnected, got %s", response.Redis)
		}
	})

	t.Run("unhealthy when engine stopped", func(t *testing.T) {
		ch := newFakeChannel("device-a")
		e, _, _ := newTestEngine(t, ch, Options{})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			e.Run(ctx)
		}()
		cancel()
		<-done

		server := NewHealthServer(":0", e, nil)

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		reqCtx, reqCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer reqCancel()
		req = req.WithContext(reqCtx)

		w := httptest.NewRecorder()
		server.healthCheckHandler(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Code)
		}
	})
}

// TestHealthServer_ShutdownWithoutStart verifies shutdown is safe before start.
func TestHealthServer_ShutdownWithoutStart(t *testing.T) {
	server := NewHealthServer(":0", nil, nil)
	if err := server.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
}
