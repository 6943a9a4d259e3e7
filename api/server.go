// Package api exposes the assistant over a JSON HTTP surface.
//
// Routing uses Go 1.22 method patterns on the standard mux. The
// middleware stack, outermost first, is recovery, request id, logging,
// rate limit. Health probes sit outside the stack so orchestration
// traffic never counts against rate budgets.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/batch"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/feedback"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/query"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/training"
)

// ServerConfig assembles the API server.
type ServerConfig struct {
	Logger   *slog.Logger
	Pipeline *query.Pipeline        // Required
	Training *training.Orchestrator // Required
	Batch    *batch.Processor       // Required
	Feedback *feedback.Collector    // Optional: nil disables the feedback route
	Pool     *pgxpool.Pool          // Optional: nil reports offline readiness

	TrustProxy bool    // Trust X-Real-IP/X-Forwarded-For from a reverse proxy
	RatePerSec float64 // Per-IP token refill rate (0 = default 5)
	RateBurst  int     // Per-IP burst size (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("query pipeline is required")
	}
	if cfg.Training == nil {
		return nil, errors.New("training orchestrator is required")
	}
	if cfg.Batch == nil {
		return nil, errors.New("batch processor is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	qh := &queryHandler{pipeline: cfg.Pipeline, logger: logger}
	mux.HandleFunc("POST /api/v1/query", qh.ask)

	th := &trainingHandler{orchestrator: cfg.Training, logger: logger}
	mux.HandleFunc("POST /api/v1/training/jobs", th.create)
	mux.HandleFunc("GET /api/v1/training/jobs", th.list)
	mux.HandleFunc("GET /api/v1/training/jobs/{id}", th.get)
	mux.HandleFunc("POST /api/v1/training/jobs/{id}/start", th.start)
	mux.HandleFunc("POST /api/v1/training/jobs/{id}/cancel", th.cancel)
	mux.HandleFunc("GET /api/v1/training/models", th.models)
	mux.HandleFunc("GET /api/v1/training/metrics", th.metrics)

	bh := &batchHandler{processor: cfg.Batch, logger: logger}
	mux.HandleFunc("POST /api/v1/batch", bh.submit)
	mux.HandleFunc("GET /api/v1/batch", bh.list)
	mux.HandleFunc("GET /api/v1/batch/{id}", bh.status)
	mux.HandleFunc("POST /api/v1/batch/{id}/cancel", bh.cancel)

	if cfg.Feedback != nil {
		fh := &feedbackHandler{collector: cfg.Feedback, logger: logger}
		mux.HandleFunc("POST /api/v1/feedback", fh.submit)
	}

	rate := cfg.RatePerSec
	if rate <= 0 {
		rate = 5
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(rate, burst)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
