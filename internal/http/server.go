// Package http exposes the analysis pipeline over a small JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"spendscope/internal/cache"
	applog "spendscope/internal/log"
	"spendscope/internal/services"
	"spendscope/internal/storage"
)

// RunReader is the slice of the repository the report endpoint needs.
// Nil means report retrieval falls back to the session's last results.
type RunReader interface {
	GetRunByReportID(ctx context.Context, reportID string) (storage.Run, error)
}

type Server struct {
	http.Server
	service     *services.AnalyzerService
	runs        RunReader
	rateLimiter *rateLimiter

	// Rendered reports are immutable once written, so they cache well.
	reportCache  *cache.LRUCache[string]
	cacheManager *cache.Manager

	logger       *applog.Logger
	structured   *applog.StructuredLogger
	shutdownOnce sync.Once
}

// NewServer configures routes and returns a ready-to-run server. runs
// and logger may be nil.
func NewServer(addr string, service *services.AnalyzerService, runs RunReader, logger *applog.Logger) *Server {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		service:      service,
		runs:         runs,
		rateLimiter:  newRateLimiter(),
		reportCache:  cache.NewLRUCache[string](100, 5*time.Minute),
		cacheManager: cache.NewManager(),
		logger:       logger,
		structured:   applog.NewStructuredLogger(logger),
	}

	s.cacheManager.Register(s.reportCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)
	mux.HandleFunc("/analyze", s.withMiddleware(s.handleAnalyze))
	mux.HandleFunc("/query", s.withMiddleware(s.handleQuery))
	mux.HandleFunc("/budgets", s.withMiddleware(s.handleBudgets))
	mux.HandleFunc("/runs/", s.withMiddleware(s.handleRunReport))

	return s
}

// withMiddleware adds request IDs, security headers, rate limiting and
// request lifecycle logging around a handler.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		reqLogger := s.logger.With(applog.FieldRequestID, requestID)
		ctx := context.WithValue(r.Context(), applog.LoggerContextKey, reqLogger)
		r = r.WithContext(ctx)

		s.structured.LogHTTPStart(ctx, r, clientIP)

		// Mutating requests are rate limited per client.
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			reqLogger.WarnContext(ctx, "Rate limit exceeded",
				applog.FieldClientIP, clientIP, applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.structured.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
