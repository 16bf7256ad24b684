// Package http serves the analytical queries as a read-only JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"txnstats/internal/core"
	"txnstats/internal/log"
	"txnstats/internal/middleware/ratelimit"
	"txnstats/internal/middleware/security"
	"txnstats/internal/middleware/trace"
)

// Dataset supplies the records behind every query. Load never fails; an
// unreadable source yields an empty collection.
type Dataset interface {
	Load(ctx context.Context) []core.Transaction
	Invalidate()
	Source() string
	Cached() bool
}

// Options tunes a Server. Zero values fall back to defaults.
type Options struct {
	DefaultClient      string
	RateLimitPerMinute int

	// ReadyCheck probes the underlying source for /readyz. Nil means the
	// source is always considered ready.
	ReadyCheck func(ctx context.Context) error
	Logger     *log.Logger
}

type Server struct {
	http.Server
	dataset       Dataset
	defaultClient string
	readyCheck    func(ctx context.Context) error
	logger        *log.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	appMetrics   appMetrics
	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime        time.Time
	queries       atomic.Int64
	reports       atomic.Int64
	invalidations atomic.Int64
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, dataset Dataset, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	limiterCfg := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		limiterCfg.RequestsPerMinute = opts.RateLimitPerMinute
	}

	detector := security.NewDetector()
	s := &Server{
		dataset:          dataset,
		defaultClient:    opts.DefaultClient,
		readyCheck:       opts.ReadyCheck,
		logger:           logger,
		rateLimiter:      ratelimit.NewLimiter(limiterCfg),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, logger),
	}
	s.appMetrics.uptime = time.Now()

	api := http.NewServeMux()
	api.HandleFunc("GET /api/transactions/total", s.handleTotal)
	api.HandleFunc("GET /api/transactions/max", s.handleMax)
	api.HandleFunc("GET /api/transactions/top", s.handleTop)
	api.HandleFunc("GET /api/transactions/by-beneficiary", s.handleByBeneficiary)
	api.HandleFunc("GET /api/clients/count", s.handleUniqueClients)
	api.HandleFunc("GET /api/clients/top-sender", s.handleTopSender)
	api.HandleFunc("GET /api/clients/{name}/sent", s.handleSentBy)
	api.HandleFunc("GET /api/clients/{name}/open-issues", s.handleOpenIssues)
	api.HandleFunc("GET /api/issues/unsolved", s.handleUnsolvedIssues)
	api.HandleFunc("GET /api/issues/solved-messages", s.handleSolvedMessages)
	api.HandleFunc("GET /api/report", s.handleReport)
	api.HandleFunc("POST /api/cache/invalidate", s.handleInvalidate)

	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, detector.ExtractClientIP(r),
			log.FieldPath, r.URL.Path)
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metricsHandler())
	mux.Handle("/api/", limited(api))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var handler http.Handler = mux
	handler = detector.Middleware(logger)(handler)
	handler = headers.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and drains the HTTP server. Calling it more
// than once is safe.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
