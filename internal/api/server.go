// Package api serves the drive over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/bucketdrive/internal/auth"
	"github.com/fruitsalade/bucketdrive/internal/drive"
	"github.com/fruitsalade/bucketdrive/internal/events"
	"github.com/fruitsalade/bucketdrive/internal/logging"
	"github.com/fruitsalade/bucketdrive/internal/metrics"
)

const (
	defaultMaxUploadSize  = 100 << 20
	defaultRequestTimeout = 30 * time.Second
	multipartMemory       = 32 << 20
)

// Config holds the HTTP-level limits.
type Config struct {
	MaxUploadSize  int64
	RequestTimeout time.Duration
}

// Server is the HTTP API over a drive.Service.
type Server struct {
	drive       *drive.Service
	auth        *auth.Auth
	broadcaster *events.Broadcaster
	cfg         Config
}

// NewServer creates a new API server. broadcaster may be nil, in which
// case the event stream endpoint is not registered.
func NewServer(svc *drive.Service, a *auth.Auth, broadcaster *events.Broadcaster, cfg Config) *Server {
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = defaultMaxUploadSize
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if a == nil {
		a = auth.New("")
	}
	return &Server{
		drive:       svc,
		auth:        a,
		broadcaster: broadcaster,
		cfg:         cfg,
	}
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Files
	mux.HandleFunc("GET /api/v1/files", s.timed(s.handleList))
	mux.HandleFunc("POST /api/v1/files/upload", s.handleUpload)
	mux.HandleFunc("POST /api/v1/files/upload-url", s.timed(s.handleUploadURL))
	mux.HandleFunc("GET /api/v1/files/url/{key...}", s.timed(s.handleFileURL))
	mux.HandleFunc("DELETE /api/v1/files/{key...}", s.timed(s.handleDelete))
	mux.HandleFunc("POST /api/v1/files/bulk-delete", s.timed(s.handleBulkDelete))

	// Folders
	mux.HandleFunc("POST /api/v1/folders", s.timed(s.handleCreateFolder))
	mux.HandleFunc("GET /api/v1/folders/archive/{key...}", s.handleArchive)

	// Trash
	mux.HandleFunc("POST /api/v1/trash", s.timed(s.handleTrash))
	mux.HandleFunc("POST /api/v1/trash/restore", s.timed(s.handleRestore))

	// Stars, sharing and links
	mux.HandleFunc("GET /api/v1/stars", s.timed(s.handleStars))
	mux.HandleFunc("POST /api/v1/stars/toggle", s.timed(s.handleToggleStar))
	mux.HandleFunc("GET /api/v1/sharing/{key...}", s.timed(s.handleGetSharing))
	mux.HandleFunc("POST /api/v1/sharing", s.timed(s.handleUpdateSharing))
	mux.HandleFunc("POST /api/v1/links", s.timed(s.handleCreateLink))
	mux.HandleFunc("GET /api/v1/links/{id}", s.timed(s.handleResolveLink))

	// Usage
	mux.HandleFunc("GET /api/v1/usage", s.timed(s.handleUsage))
	mux.HandleFunc("GET /api/v1/dashboard", s.timed(s.handleDashboard))

	if s.broadcaster != nil {
		mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	}

	// metrics.Middleware must see the same *Request the mux routes so
	// that r.Pattern is populated.
	var handler http.Handler = metrics.Middleware(mux)
	handler = s.auth.Middleware(handler)
	handler = recoverMiddleware(handler)
	return logging.Middleware(handler)
}

// timed bounds a handler by the configured request timeout.
func (s *Server) timed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
		defer cancel()
		h(w, r.WithContext(ctx))
	}
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logging.WithContext(r.Context()).Error("handler panic",
				zap.Any("panic", rec),
				zap.String("path", r.URL.Path),
			)
			sendJSONError(w, http.StatusInternalServerError, "internal error", "")
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func sendJSONError(w http.ResponseWriter, code int, message, details string) {
	sendJSON(w, code, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	sendJSONError(w, code, message, "")
}

// errorStatus maps a drive error onto a status code and a generic message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, drive.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, drive.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, drive.ErrAccessDenied):
		return http.StatusForbidden, "access denied"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// sendDriveError renders err from a drive operation.
func (s *Server) sendDriveError(w http.ResponseWriter, r *http.Request, op string, err error) {
	code, message := errorStatus(err)
	logger := logging.WithContext(r.Context())
	if code >= http.StatusInternalServerError {
		logger.Error(op+" failed", logging.Err(err))
	} else {
		logger.Debug(op+" rejected", zap.Int("status", code), logging.Err(err))
	}
	sendJSONError(w, code, message, err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
