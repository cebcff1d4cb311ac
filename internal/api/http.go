package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/felixge/httpsnoop"
	"github.com/hashicorp/go-hclog"
	"github.com/heysubinoy/keygate/pkg/kv"
	"github.com/spaolacci/murmur3"
)

// Server holds the state shared by every request: the store handle and the
// write guard. It is built once at startup and never mutated afterwards.
type Server struct {
	store         kv.Store
	guard         Guard
	maxValueBytes int64
	metrics       http.Handler
	logger        hclog.Logger
}

// Options tune a Server. The zero value is usable.
type Options struct {
	// MaxValueBytes caps the size of a written value. Zero means no limit.
	MaxValueBytes int64
	// Metrics, if set, is served at GET /_/metrics.
	Metrics http.Handler
	Logger  hclog.Logger
}

// NewServer creates a server over store that authorizes writes with writeToken.
func NewServer(store kv.Store, writeToken string, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &Server{
		store:         store,
		guard:         NewGuard(writeToken),
		maxValueBytes: opts.MaxValueBytes,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}
}

// RegisterRoutes registers all HTTP handlers on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /{key}", s.handleGet)
	mux.HandleFunc("POST /{key}", s.handleSet)
	if s.metrics != nil {
		// Two segments, so it can never shadow a key.
		mux.Handle("GET /_/metrics", s.metrics)
	}
}

// Handler returns the routes wrapped with access logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.logRequests(mux)
}

// logRequests logs one line per request. Header values are never logged.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration,
		)
	})
}

// handleHealth reports liveness; it never touches the store.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "OK")
}

// handleGet handles GET /{key}.
// Returns the stored string as plain text.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	value, err := s.getEntry(r.Context(), r.PathValue("key"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("ETag", fmt.Sprintf(`"%016x"`, murmur3.Sum64([]byte(value))))
	io.WriteString(w, value)
}

// handleSet handles POST /{key}; the raw body is the value.
func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	credential, present := headerCredential(r.Header)
	if err := s.guard.Authorize(credential, present); err != nil {
		writeError(w, err)
		return
	}

	value, err := s.readValue(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.setEntry(r.Context(), r.PathValue("key"), value); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (s *Server) readValue(w http.ResponseWriter, r *http.Request) (string, error) {
	body := r.Body
	if s.maxValueBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.maxValueBytes)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", &apiError{kind: kindTooLarge, cause: err}
		}
		return "", &apiError{kind: kindBadRequest, cause: err}
	}
	if err := checkText(data); err != nil {
		return "", err
	}
	return string(data), nil
}

// checkText rejects values that some backend could not store as a JSON string.
// Bytes that are not UTF-8 would not survive the round trip, and postgres
// JSONB refuses the \u0000 escape.
func checkText(data []byte) error {
	if !utf8.Valid(data) {
		return &apiError{kind: kindBadRequest, cause: errors.New("value is not valid UTF-8")}
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return &apiError{kind: kindBadRequest, cause: errors.New("value contains a NUL byte")}
	}
	return nil
}

// getEntry looks key up. Absent keys and values that are not strings are
// both errNotFound, so callers cannot tell them apart.
func (s *Server) getEntry(ctx context.Context, key string) (string, error) {
	v, found, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Error("store get failed", "key", key, "error", err)
		return "", &apiError{kind: kindStoreFailure, cause: err}
	}
	if !found {
		return "", errNotFound
	}

	value, ok := v.Str()
	if !ok {
		s.logger.Debug("stored value is not a string", "key", key, "kind", v.Kind())
		return "", errNotFound
	}
	return value, nil
}

// setEntry persists value under key. Callers authorize first.
func (s *Server) setEntry(ctx context.Context, key, value string) error {
	if err := s.store.Set(ctx, key, value); err != nil {
		s.logger.Error("store set failed", "key", key, "error", err)
		return &apiError{kind: kindStoreFailure, cause: err}
	}
	return nil
}
