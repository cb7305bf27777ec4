// Package status serves the agent's local HTTP surface: health, metrics and
// an OpenAI-compatible completion endpoint backed by the credential pool.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhengjr9/hive-agent/internal/adapter/openai"
	"github.com/zhengjr9/hive-agent/internal/config"
)

// Server is the status HTTP server.
type Server struct {
	httpServer *http.Server
}

// New constructs a Server. running reports whether the agent scheduler is
// active and may be nil.
func New(cfg *config.Config, completer openai.Completer, running func() bool) *Server {
	if running == nil {
		running = func() bool { return false }
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthHandler(running)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(bearerMiddleware(cfg.ServerToken))
	v1.Handle("/chat/completions", openai.NewHandler(completer, cfg.LLMModel, cfg.RequestTimeout)).Methods(http.MethodPost)

	var handler http.Handler = r
	handler = loggingMiddleware(handler)
	handler = recoveryMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: cfg.RequestTimeout + 10*time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start begins listening and blocks until the server is stopped.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Handler returns the underlying http.Handler (for use in tests with httptest.NewServer).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type health struct {
	Status  string `json:"status"`
	Running bool   `json:"running"`
}

func healthHandler(running func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(health{Status: "ok", Running: running()})
	}
}
