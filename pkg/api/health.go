package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hutchlabs/hutch/pkg/metrics"
	"github.com/hutchlabs/hutch/pkg/runtime"
	"github.com/hutchlabs/hutch/pkg/storage"
)

// HealthServer provides the optional admin HTTP endpoints: liveness,
// readiness and Prometheus metrics. It listens on its own address; the MCP
// surface stays on stdio.
type HealthServer struct {
	store   storage.Store
	runtime runtime.Runtime
	version string
	mux     *http.ServeMux
	srv     *http.Server
}

// NewHealthServer creates the admin HTTP server.
func NewHealthServer(store storage.Store, rt runtime.Runtime, version string) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		store:   store,
		runtime: rt,
		version: version,
		mux:     mux,
	}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start starts the admin HTTP server. It blocks like ListenAndServe.
func (hs *HealthServer) Start(addr string) error {
	hs.srv = &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return hs.srv.ListenAndServe()
}

// Shutdown gracefully stops the admin HTTP server.
func (hs *HealthServer) Shutdown(ctx context.Context) error {
	if hs.srv == nil {
		return nil
	}
	return hs.srv.Shutdown(ctx)
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ReadyResponse is the /ready body.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler is a plain liveness check: 200 if the process is alive.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   hs.version,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// readyHandler checks the two dependencies a job start needs: the session
// store and the container engine.
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	if _, err := hs.store.ListSessions(); err != nil {
		checks["store"] = fmt.Sprintf("error: %v", err)
		ready = false
		message = "Session store unavailable"
	} else {
		checks["store"] = "ok"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := hs.runtime.Ping(ctx); err != nil {
		checks["runtime"] = fmt.Sprintf("error: %v", err)
		ready = false
		message = "Container engine unreachable"
	} else {
		checks["runtime"] = "ok"
	}

	response := ReadyResponse{
		Status:    "ready",
		Timestamp: time.Now().UTC(),
		Checks:    checks,
		Message:   message,
	}
	code := http.StatusOK
	if !ready {
		response.Status = "not ready"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(response)
}
