package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"judgedescrow/gateway/middleware"
)

type Config struct {
	Escrow        EscrowService
	Events        EventArchive
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
	// Timeout bounds each engine call made by a handler.
	Timeout time.Duration
	// Stream, when set, serves live events over a websocket.
	Stream *EventHub
}

// New assembles the escrow HTTP API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Escrow == nil {
		return nil, fmt.Errorf("escrow service required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.Observability != nil {
		r.Use(cfg.Observability.Middleware)
	}
	r.Use(middleware.CORS(cfg.CORS))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Observability != nil {
		r.Handle("/metrics", cfg.Observability.MetricsHandler())
	}

	routes := &escrowRoutes{
		service: cfg.Escrow,
		events:  cfg.Events,
		stream:  cfg.Stream,
		logger:  logger,
		timeout: cfg.Timeout,
	}
	r.Route("/v1/escrow", func(sr chi.Router) {
		if cfg.RateLimiter != nil {
			sr.Use(cfg.RateLimiter.Middleware)
		}
		if cfg.Authenticator != nil {
			sr.Use(cfg.Authenticator.Middleware)
		}
		routes.mount(sr)
	})

	return r, nil
}
