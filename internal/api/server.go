// Package api exposes the protection pipeline over HTTP and websocket.
package api

import (
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"swap-guard/internal/notify"
	"swap-guard/internal/observability"
	"swap-guard/internal/pipeline"
)

// Options for creating Server.
type Options struct {
	Service *pipeline.Service
	Hub     *notify.Hub

	// RateLimit applies to every /api route. Zero disables limiting.
	RateLimit RateLimit

	// WSConfig tunes observers created for /ws connections.
	WSConfig *notify.WSConfig

	Logger *log.Logger
}

// Server holds the HTTP handlers of the protection service.
type Server struct {
	svc      *pipeline.Service
	hub      *notify.Hub
	limiter  *RateLimiter
	limit    RateLimit
	wsConfig *notify.WSConfig
	upgrader websocket.Upgrader
	logger   *log.Logger

	startedAt time.Time
	ready     atomic.Bool

	router http.Handler
}

// New creates a Server. The service and hub are required.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		svc:      opts.Service,
		hub:      opts.Hub,
		limit:    opts.RateLimit,
		wsConfig: opts.WSConfig,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:    logger,
		startedAt: time.Now(),
	}
	if opts.RateLimit.RequestsPerMinute > 0 {
		s.limiter = NewRateLimiter(logger)
	}
	s.ready.Store(true)
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetReady toggles the /health result. The server reports unavailable
// while shutting down.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", observability.Handler())
	r.Get("/ws", s.handleWS)

	r.Route("/api", func(api chi.Router) {
		if s.limiter != nil {
			api.Use(s.limiter.Middleware(s.limit))
		}

		api.Post("/protect/simulate", s.handleSimulate)
		api.Post("/protect/execute", s.handleExecute)

		api.Get("/transactions/{identity}", s.handleTransactions)
		api.Get("/transaction/{id}", s.handleTransaction)
		api.Get("/stats/{identity}", s.handleStats)

		api.Get("/proof/{transactionId}", s.handleProof)
		api.Get("/proof/{transactionId}/verify", s.handleVerifyProof)

		api.Get("/batches/{identity}", s.handleBatches)
		api.Get("/batch/current", s.handleCurrentBatch)
		api.Get("/batch/{batchId}", s.handleBatch)
		api.Post("/batch/{batchId}/cancel", s.handleCancelBatch)

		api.Get("/settings/{identity}", s.handleGetSettings)
		api.Put("/settings/{identity}", s.handlePutSettings)

		api.Get("/executions/{identity}", s.handleExecutions)
	})

	return r
}
