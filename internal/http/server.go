// Package http exposes the list service as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"budgetlist/internal/auth"
	"budgetlist/internal/log"
	"budgetlist/internal/metrics"
	"budgetlist/internal/middleware/ratelimit"
	"budgetlist/internal/middleware/security"
	"budgetlist/internal/middleware/trace"
	"budgetlist/internal/services"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 15 * time.Second
	defaultIdleTimeout  = 60 * time.Second
	readyTimeout        = 3 * time.Second
)

type Server struct {
	http.Server
	lists    *services.ListService
	auth     *auth.Service
	ready    func(context.Context) error
	metrics  *metrics.Metrics
	limiter  *ratelimit.Limiter
	detector *security.Detector
	logger   *log.Logger
	started  time.Time

	shutdownOnce sync.Once
}

// Options configures NewServer. Zero values pick defaults.
type Options struct {
	Addr               string
	RateLimitPerMinute int
	Metrics            *metrics.Metrics
	Logger             *log.Logger
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready func(context.Context) error
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(lists *services.ListService, authSvc *auth.Service, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}

	s := &Server{
		lists:    lists,
		auth:     authSvc,
		ready:    opts.Ready,
		metrics:  opts.Metrics,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector: security.NewDetector(),
		logger:   opts.Logger.WithComponent(log.ComponentHTTP),
		started:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	protected := auth.RequireAuth(authSvc.Tokens(), writeError)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, protected(h))
	}
	handle("GET /api/lists", s.handleListLists)
	handle("POST /api/lists", s.handleCreateList)
	handle("GET /api/lists/{id}", s.handleGetList)
	handle("PATCH /api/lists/{id}", s.handleUpdateList)
	handle("DELETE /api/lists/{id}", s.handleDeleteList)
	handle("GET /api/lists/{id}/export", s.handleExport)
	handle("POST /api/lists/{id}/items", s.handleAddItem)
	handle("PATCH /api/lists/{id}/items/{itemId}", s.handleUpdateItem)
	handle("DELETE /api/lists/{id}/items/{itemId}", s.handleDeleteItem)

	route := func(r *http.Request) string {
		_, pattern := mux.Handler(r)
		return pattern
	}
	tracer := trace.NewMiddleware(opts.Logger, s.metrics, s.detector.ClientIP, route)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.NewFields().WithClientIP(s.detector.ClientIP(r)).WithComponent(log.ComponentRateLimit).ToSlice()...)
		writeError(w, r, errRateLimited)
	})(handler)
	handler = s.detector.Middleware(opts.Logger)(handler)
	handler = tracer.Middleware(handler)
	handler = headers.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadTimeout:       defaultReadTimeout,
		ReadHeaderTimeout: defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
	return s
}

// Shutdown stops accepting requests, drains in-flight ones and stops the
// background goroutines. Only the first call has any effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
