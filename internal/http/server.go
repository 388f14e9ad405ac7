package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"moneyflow/internal/ledger"
	"moneyflow/internal/log"
	"moneyflow/internal/middleware/ratelimit"
	"moneyflow/internal/middleware/security"
	"moneyflow/internal/middleware/trace"
)

// Options configures a Server.
type Options struct {
	// UserIDHeader names the header carrying the authenticated user id.
	UserIDHeader string

	// RateLimitPerMinute caps state-changing requests per client IP.
	RateLimitPerMinute int

	// Ready is called by /readyz. Nil means always ready.
	Ready func(ctx context.Context) error

	Logger *log.Logger
}

// Server exposes the ledger service as a JSON API.
type Server struct {
	http.Server
	ledger       *ledger.Service
	userIDHeader string
	ready        func(ctx context.Context) error
	logger       *log.Logger

	rateLimiter     *ratelimit.Limiter
	securityHeaders *security.HeadersMiddleware
	detector        *security.Detector
	tracer          *trace.Middleware

	appMetrics   *appMetrics
	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime        time.Time
	ledgerWrites  int64
	rejectedCalls int64
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, svc *ledger.Service, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	header := opts.UserIDHeader
	if header == "" {
		header = "X-User-ID"
	}

	detector := security.NewDetector(logger)
	s := &Server{
		ledger:          svc,
		userIDHeader:    header,
		ready:           opts.Ready,
		logger:          logger,
		rateLimiter:     ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		securityHeaders: security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		detector:        detector,
		tracer:          trace.NewMiddleware(logger, detector.ExtractClientIP),
		appMetrics:      &appMetrics{uptime: time.Now()},
	}

	mux := http.NewServeMux()
	s.routes(mux)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.Handle("POST /api/ledger", s.ledgerHandler(s.handleOpen))
	mux.Handle("GET /api/ledger", s.ledgerHandler(s.handleGetAllInfo))
	mux.Handle("GET /api/ledger/audit", s.ledgerHandler(s.handleAudit))
	mux.Handle("POST /api/ledger/clear", s.ledgerHandler(s.handleClearAll))

	mux.Handle("POST /api/ledger/transactions", s.ledgerHandler(s.handleNewTransaction))
	mux.Handle("PATCH /api/ledger/transactions/{id}", s.ledgerHandler(s.handleUpdateTransaction))
	mux.Handle("DELETE /api/ledger/transactions/{id}", s.ledgerHandler(s.handleDeleteTransaction))

	mux.Handle("PUT /api/ledger/total-amount", s.ledgerHandler(s.scalarHandler(s.ledger.SetTotalAmount)))
	mux.Handle("PUT /api/ledger/next-month-total-amount", s.ledgerHandler(s.scalarHandler(s.ledger.SetNextMonthTotalAmount)))
	mux.Handle("PUT /api/ledger/percent", s.ledgerHandler(s.scalarHandler(s.ledger.SetPercent)))

	mux.Handle("PUT /api/ledger/essentials/{scope}", s.ledgerHandler(s.handleSetEssentials))
	mux.Handle("POST /api/ledger/essentials/{scope}", s.ledgerHandler(s.handleAddNewEssential))
	mux.Handle("PATCH /api/ledger/essentials/{scope}/{id}", s.ledgerHandler(s.handleSetEssentialChecked))
	mux.Handle("DELETE /api/ledger/essentials/{scope}/{id}", s.ledgerHandler(s.handleRemoveEssential))
}

// middleware wraps the mux, outermost first: context logger, request id,
// request-scoped logger, security headers, suspicious request detection and
// rate limiting of state-changing requests.
func (s *Server) middleware(mux http.Handler) http.Handler {
	limited := s.rateLimiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)(mux)
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isReadOnly(r) {
			mux.ServeHTTP(w, r)
			return
		}
		limited.ServeHTTP(w, r)
	})

	h = s.detector.Middleware(h)
	h = s.securityHeaders.Middleware(h)
	h = log.RequestIDMiddleware(trace.GetRequestIDFromRequest)(h)
	h = s.tracer.Middleware(h)
	h = log.Middleware(s.logger)(h)
	return h
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded", trace.GetRequestID(r.Context())).Write(w)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (m *appMetrics) recordWrite(err error) {
	if err == nil {
		atomic.AddInt64(&m.ledgerWrites, 1)
	} else if ledger.IsRejection(err) {
		atomic.AddInt64(&m.rejectedCalls, 1)
	}
}
