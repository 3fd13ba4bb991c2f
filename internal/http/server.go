package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"

	"github.com/shopspring/decimal"
)

// TransactionAPI is the part of services.TransactionService the handlers use.
type TransactionAPI interface {
	Submit(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	List(ctx context.Context, owner string, limit int) ([]core.Transaction, error)
	SubmitBulk(ctx context.Context, txs []core.Transaction) core.BulkResult
	Report(ctx context.Context, owner string, days int) (core.Report, error)
	Classify(description string, amount decimal.Decimal) core.ClassificationResult
	PreviewImport(ctx context.Context, owner string, r io.Reader) (services.ImportPreview, error)
	CreateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error)
	ListRules(ctx context.Context, owner string) ([]core.RecurringRule, error)
	Categories(ctx context.Context) ([]core.Category, error)
	Ready(ctx context.Context) error
}

type appMetrics struct {
	transactionsCreated int64
	bulkCommits         int64
	importsPreviewed    int64
	uptime              time.Time
}

// Server is the transaction service HTTP API.
type Server struct {
	http.Server
	svc          TransactionAPI
	logger       *log.Logger
	rateLimiter  *rateLimiter
	secMetrics   *securityMetrics
	appMetrics   *appMetrics
	shutdownOnce sync.Once
}

type ServerOption func(*Server)

func WithLogger(l *log.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithRateLimit sets the POST requests allowed per client per minute.
func WithRateLimit(perMinute int) ServerOption {
	return func(s *Server) {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		s.rateLimiter = newRateLimiter(perMinute)
	}
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc TransactionAPI, opts ...ServerOption) *Server {
	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		svc:        svc,
		secMetrics: &securityMetrics{},
		appMetrics: &appMetrics{uptime: time.Now()},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(log.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(log.ComponentHTTP)
	if s.rateLimiter == nil {
		s.rateLimiter = newRateLimiter(60)
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/transactions", s.handleTransactions)
	mux.HandleFunc("/transactions/commit-bulk", s.handleCommitBulk)
	mux.HandleFunc("/report", s.handleReport)
	mux.HandleFunc("/classify", s.handleClassify)
	mux.HandleFunc("/import-csv-smart", s.handleImportCSVSmart)
	mux.HandleFunc("/categories", s.handleCategories)
	mux.HandleFunc("/recurring", s.handleRecurring)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, "not found").Write(w)
	})

	s.Handler = log.Middleware(s.logger)(s.withRequestID(
		log.RequestIDMiddleware(requestIDFromContext)(s.withSecurity(mux))))
	return s
}

// Shutdown stops background goroutines and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

type requestIDKey struct{}

// withRequestID reuses a sane client X-Request-ID or generates one, and echoes it back.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if !validRequestID(id) {
			id = generateRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFromContext(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

// withSecurity adds security headers, POST rate limiting, the body cap and access logging.
func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		logger := log.FromContext(ctx)
		access := log.NewStructuredLogger(logger)
		clientIP := extractClientIP(r)

		access.LogHTTPStart(ctx, r, clientIP)
		setSecurityHeaders(w)
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		defer func() {
			access.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
		}()

		if detectSuspiciousRequest(r, s.secMetrics) {
			logger.WarnContext(ctx, "Suspicious request",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
		}

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP, s.secMetrics) {
			logger.WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			TooManyRequestsError().Write(rw)
			return
		}

		r.Body = http.MaxBytesReader(rw, r.Body, maxBodyBytes)
		next.ServeHTTP(rw, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready only while the storage backend answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.svc.Ready(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("storage unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleMetrics writes counters in Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	counters := []struct {
		name, help, kind string
		value            int64
	}{
		{"transactions_created_total", "Transactions committed through POST /transactions", "counter", atomic.LoadInt64(&s.appMetrics.transactionsCreated)},
		{"bulk_commits_total", "Bulk commit requests processed", "counter", atomic.LoadInt64(&s.appMetrics.bulkCommits)},
		{"imports_previewed_total", "CSV statements previewed", "counter", atomic.LoadInt64(&s.appMetrics.importsPreviewed)},
		{"rate_limit_hits_total", "Requests rejected by the rate limiter", "counter", atomic.LoadInt64(&s.secMetrics.rateLimitHits)},
		{"suspicious_requests_total", "Requests matching probing patterns", "counter", atomic.LoadInt64(&s.secMetrics.suspiciousRequests)},
		{"uptime_seconds", "Process uptime in seconds", "gauge", int64(time.Since(s.appMetrics.uptime).Seconds())},
	}
	for _, c := range counters {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %d\n\n", c.name, c.help, c.name, c.kind, c.name, c.value)
	}
}
