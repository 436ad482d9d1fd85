package syncengine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Pinger checks transport connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer provides HTTP health check endpoints for a running peer.
type HealthServer struct {
	addr   string
	engine *Engine
	pinger Pinger
	server *http.Server
}

// NewHealthServer creates a new health check server. pinger may be nil.
func NewHealthServer(addr string, engine *Engine, pinger Pinger) *HealthServer {
	return &HealthServer{
		addr:   addr,
		engine: engine,
		pinger: pinger,
	}
}

// Start starts the HTTP health check server in the background.
func (h *HealthServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthCheckHandler)

	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Health server error: %v\n", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the health check server.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status       string   `json:"status"`
	Redis        string   `json:"redis,omitempty"`
	Phase        string   `json:"phase,omitempty"`
	MapAuthority string   `json:"map_authority,omitempty"`
	Peers        []string `json:"peers,omitempty"`
	Anchors      int      `json:"anchors"`
	Error        string   `json:"error,omitempty"`
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK if the engine answers and the transport is reachable, 503 otherwise.
func (h *HealthServer) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{Status: "healthy"}
	code := http.StatusOK

	if h.pinger != nil {
		if err := h.pinger.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Redis = "disconnected"
			response.Error = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			response.Redis = "connected"
		}
	}

	st, err := h.engine.State(ctx)
	if err != nil {
		response.Status = "unhealthy"
		response.Error = err.Error()
		code = http.StatusServiceUnavailable
	} else {
		response.Phase = string(st.Phase)
		response.MapAuthority = string(st.MapAuthority)
		response.Anchors = len(st.Anchors)
		for _, p := range st.Peers {
			response.Peers = append(response.Peers, string(p))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}
