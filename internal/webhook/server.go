package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/mattjoyce/launchkey/internal/apierr"
	"github.com/mattjoyce/launchkey/internal/callback"
	"github.com/mattjoyce/launchkey/internal/journal"
)

// Server represents the callback HTTP server.
type Server struct {
	config  Config
	handler CallbackHandler
	journal Journal
	limiter *rate.Limiter
	logger  *slog.Logger
	server  *http.Server

	inflight inflightSet
}

// inflightSet holds the digests of callbacks currently being verified, so
// that identical deliveries racing past the journal lookup are handled once.
type inflightSet struct {
	mu      sync.Mutex
	digests map[string]struct{}
}

func (s *inflightSet) claim(digest string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.digests[digest]; busy {
		return false
	}
	if s.digests == nil {
		s.digests = make(map[string]struct{})
	}
	s.digests[digest] = struct{}{}
	return true
}

func (s *inflightSet) release(digest string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.digests, digest)
}

// New creates a new callback server instance. j may be nil, which disables
// replay detection.
func New(config Config, handler CallbackHandler, j Journal, logger *slog.Logger) *Server {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if config.Path == "" {
		config.Path = DefaultPath
	}

	var limiter *rate.Limiter
	if config.RatePerSecond > 0 {
		burst := config.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), burst)
	}

	return &Server{
		config:  config,
		handler: handler,
		journal: j,
		limiter: limiter,
		logger:  logger,
	}
}

// Start starts the callback HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("callback server starting", "listen", s.config.Listen, "path", s.config.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("callback server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("callback server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("callback server error: %w", err)
	}
}

// Routes returns the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.rateLimitMiddleware)

	r.Get(s.config.Path, s.handleCallback)
	r.Post(s.config.Path, s.handleCallback)

	return r
}

// loggingMiddleware logs HTTP requests (excludes payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("callback request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			s.respondError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleCallback handles incoming callback requests.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetReqID(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	payload, err := parsePayload(r, body)
	if err != nil {
		s.logger.Warn("callback parameters rejected", "request_id", requestID, "error", err)
		s.respondError(w, http.StatusBadRequest, "malformed parameters")
		return
	}

	// Parameters outside the callback shape are not covered by verification
	// and must not change the digest.
	fields := callback.Fields(payload)
	digest := journal.Digest(fields)
	if fields != nil {
		if !s.inflight.claim(digest) {
			s.logger.Warn("concurrent callback delivery rejected", "request_id", requestID, "digest", digest[:16])
			s.respondError(w, http.StatusConflict, "callback already handled")
			return
		}
		defer s.inflight.release(digest)
	}

	if fields != nil && s.journal != nil {
		seen, err := s.journal.Seen(ctx, digest)
		if err != nil {
			s.logger.Error("callback journal lookup failed", "request_id", requestID, "error", err)
			s.respondError(w, http.StatusInternalServerError, "journal unavailable")
			return
		}
		if seen {
			s.logger.Warn("callback replay rejected", "request_id", requestID, "digest", digest[:16])
			s.respondError(w, http.StatusConflict, "callback already handled")
			return
		}
	}

	resp, err := s.handler.HandleCallback(ctx, payload)
	if err != nil {
		status, message := statusFor(err)
		s.logger.Warn("callback rejected",
			"request_id", requestID,
			"kind", apierr.KindOf(err).String(),
			"status", status,
			"error", err,
		)
		s.respondError(w, status, message)
		return
	}

	out, entry := describe(resp)
	entry.Digest = digest
	if s.journal != nil {
		id, err := s.journal.Record(ctx, entry)
		if errors.Is(err, journal.ErrDuplicate) {
			s.respondError(w, http.StatusConflict, "callback already handled")
			return
		}
		if err != nil {
			s.logger.Error("failed to record callback", "request_id", requestID, "error", err)
			s.respondError(w, http.StatusInternalServerError, "failed to record callback")
			return
		}
		out.JournalID = id
	}

	s.logger.Info("callback accepted",
		"request_id", requestID,
		"type", out.Type,
		"auth_request", out.AuthRequest,
		"journal_id", out.JournalID,
	)
	s.respondJSON(w, http.StatusOK, out)
}

// parsePayload merges form body and query parameters. Body values take
// precedence and only the first value of a repeated key is kept.
func parsePayload(r *http.Request, body []byte) (map[string]string, error) {
	query, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	var form url.Values
	if len(body) > 0 {
		if ct := r.Header.Get("Content-Type"); ct != "" {
			mediaType, _, err := mime.ParseMediaType(ct)
			if err != nil || mediaType != "application/x-www-form-urlencoded" {
				return nil, fmt.Errorf("unsupported content type %q", ct)
			}
		}
		form, err = url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("form: %w", err)
		}
	}

	payload := make(map[string]string, len(query)+len(form))
	for _, values := range []url.Values{form, query} {
		for k, v := range values {
			if _, ok := payload[k]; ok || len(v) == 0 {
				continue
			}
			payload[k] = v[0]
		}
	}
	return payload, nil
}

// statusFor maps a verification failure onto an HTTP status. Signature
// failures carry no detail.
func statusFor(err error) (int, string) {
	switch apierr.KindOf(err) {
	case apierr.KindInvalidSignature:
		return http.StatusForbidden, "forbidden"
	case apierr.KindInvalidCallback, apierr.KindInvalidResponse:
		return http.StatusBadRequest, "invalid callback"
	default:
		return http.StatusInternalServerError, "callback handling failed"
	}
}

func describe(resp callback.Response) (CallbackResponse, journal.Entry) {
	switch v := resp.(type) {
	case callback.AuthResponse:
		authorized := v.Authorized
		return CallbackResponse{
				Type:        string(callback.KindAuth),
				AuthRequest: v.AuthRequestID,
				Authorized:  &authorized,
				UserHash:    v.UserHash,
			}, journal.Entry{
				Kind:        string(callback.KindAuth),
				AuthRequest: v.AuthRequestID,
				UserHash:    v.UserHash,
				Authorized:  &authorized,
			}
	case callback.LogoutResponse:
		return CallbackResponse{
				Type:              string(callback.KindLogout),
				UserHash:          v.UserHash,
				LogoutRequestedAt: v.LogoutRequestedAt.Format(time.RFC3339),
			}, journal.Entry{
				Kind:     string(callback.KindLogout),
				UserHash: v.UserHash,
			}
	default:
		return CallbackResponse{Type: string(resp.Kind())}, journal.Entry{Kind: string(resp.Kind())}
	}
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
