package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jonathan/resume-render-api/internal/assistant"
	"github.com/jonathan/resume-render-api/internal/config"
	"github.com/jonathan/resume-render-api/internal/pipeline"
	"github.com/jonathan/resume-render-api/internal/server/middleware"
	"github.com/jonathan/resume-render-api/internal/server/ratelimit"
)

const (
	// maxBodyBytes bounds request bodies; a 5 MiB PDF is about 7 MiB in base64.
	maxBodyBytes = 16 << 20

	shutdownTimeout = 30 * time.Second
)

// Renderer runs the document-generation pipeline.
type Renderer interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Assistant runs the LLM-backed operations.
type Assistant interface {
	ParseResume(ctx context.Context, creds assistant.Credentials, resumeText string, private bool) (*assistant.ParsedResume, error)
	SearchQuery(ctx context.Context, creds assistant.Credentials, resumeJSON string) (string, error)
	AnalyzeJob(ctx context.Context, creds assistant.Credentials, req assistant.JobAnalysisRequest) (*assistant.JobAnalysis, error)
	CoverLetter(ctx context.Context, creds assistant.Credentials, req assistant.CoverLetterRequest) (string, error)
	Tailor(ctx context.Context, creds assistant.Credentials, req assistant.TailorRequest) (json.RawMessage, error)
}

// Deps are the collaborators the server hands requests to.
type Deps struct {
	Renderer  Renderer
	Assistant Assistant
	Logger    *slog.Logger
	// Limiter defaults to one built from RATE_LIMIT_* variables.
	Limiter *ratelimit.Limiter
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	auth        config.AuthConfig
	origins     []string
	logger      *slog.Logger
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	renderer    Renderer
	assistant   Assistant
}

// New creates a new server instance
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server config is nil")
	}
	if deps.Renderer == nil || deps.Assistant == nil {
		return nil, fmt.Errorf("server requires a renderer and an assistant")
	}
	if err := cfg.Auth.Validate(); err != nil {
		return nil, fmt.Errorf("invalid auth config: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.NewLimiter(ratelimit.LoadConfig())
	}

	s := &Server{
		auth:        cfg.Auth,
		origins:     cfg.Server.AllowedOrigins,
		logger:      logger,
		rateLimiter: limiter,
		jwtService:  NewJWTService(&cfg.Auth.JWT),
		renderer:    deps.Renderer,
		assistant:   deps.Assistant,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	protected := func(h http.HandlerFunc) http.Handler {
		return middleware.AuthMiddleware(s.jwtService.AsTokenValidator())(s.withRateLimit(h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("POST /authenticate", s.withRateLimit(http.HandlerFunc(s.handleAuthenticate)))

	mux.Handle("POST /get-resume-json", protected(s.handleGetResumeJSON))
	mux.Handle("POST /generate-search-query", protected(s.handleGenerateSearchQuery))
	mux.Handle("POST /analyze-job-posting", protected(s.handleAnalyzeJobPosting))
	mux.Handle("POST /generate-cover-letter", protected(s.handleGenerateCoverLetter))
	mux.Handle("POST /tailor-resume", protected(s.handleTailorResume))
	mux.Handle("POST /render-resume", protected(s.handleRenderResume))

	return s.withLogging(s.withCORS(mux))
}

// Start begins listening for requests and blocks until ctx is cancelled or
// the process receives SIGINT or SIGTERM.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.rateLimiter.Stop()
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Stop rate limiter cleanup goroutine
	s.rateLimiter.Stop()
	s.logger.Info("server stopped")
	return nil
}

// withCORS adds CORS headers. A "*" entry, or no entries, allows any origin.
func (s *Server) withCORS(next http.Handler) http.Handler {
	anyOrigin := len(s.origins) == 0 || slices.Contains(s.origins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case anyOrigin:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.origins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Expose-Headers",
			"Content-Disposition, X-Render-Pages, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware. Authenticated requests are
// keyed by token subject, others by client IP.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID, err := middleware.GetSubject(r)
		if err != nil {
			clientID = s.extractClientID(r)
		}

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// handleHome is the liveness banner the extension checks.
func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<h1>CV Generator is running!</h1>"))
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// failResponse maps err to a status and a caller-safe message and logs it.
func (s *Server) failResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		s.logger.Info("request rejected", "path", r.URL.Path, "status", status, "reason", ErrorMessage(err))
	}

	body := map[string]string{"error": ErrorMessage(err)}
	if kind := errorKind(err); kind != "" {
		body["kind"] = kind
	}
	s.jsonResponse(w, status, body)
}

// decodeJSON reads a bounded JSON body into v.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &ErrValidation{Field: "body", Message: "Request body is too large"}
		}
		return &ErrValidation{Field: "body", Message: "Invalid JSON body"}
	}
	return nil
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr; X-Forwarded-For is not trusted.
func (s *Server) extractClientID(r *http.Request) string {
	// Get IP from RemoteAddr (format: "IP:port")
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If parsing fails, use the whole RemoteAddr
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	if info.RetryAfter > 0 {
		// Round up so clients never retry a moment too early.
		seconds := int((info.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	s.logger.Warn("rate limit exceeded",
		"path", r.URL.Path,
		"limit", info.Limit,
		"reset", info.ResetTime.Format(time.RFC3339),
	)

	s.errorResponse(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
}

// isMissing reports whether a JSON value is absent or empty.
func isMissing(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", `""`, "{}", "[]":
		return true
	}
	return false
}
