package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hirokts/enikki/internal/logging"
	"github.com/hirokts/enikki/pkg/domain"
	"github.com/hirokts/enikki/pkg/ports"
	"github.com/hirokts/enikki/pkg/runner"
)

const (
	defaultListLimit = 20
	maxBodySize      = 1 << 20
)

// Submitter starts runs in the background.
type Submitter interface {
	Submit(ctx context.Context, rec domain.ConversationRecord) (string, error)
}

// Server serves the diary API.
type Server struct {
	runs    Submitter
	store   ports.DiaryStore
	objects ports.ObjectReader
	streams *StreamManager
	metrics http.Handler
	logger  *slog.Logger
	apiKey  string
	version string
}

type Option func(*Server)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithObjects serves stored images under /assets/.
func WithObjects(objects ports.ObjectReader) Option {
	return func(s *Server) { s.objects = objects }
}

// WithStreams enables GET /diaries/{id}/events.
func WithStreams(streams *StreamManager) Option {
	return func(s *Server) { s.streams = streams }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithAPIKey requires the X-API-Key header on POST /diaries.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewHandler creates the HTTP handler. The embedded OpenAPI document is
// validated up front and used to check every described request.
func NewHandler(runs Submitter, store ports.DiaryStore, opts ...Option) (http.Handler, error) {
	s := &Server{
		runs:    runs,
		store:   store,
		logger:  logging.NewNop(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	doc, err := LoadSpec()
	if err != nil {
		return nil, err
	}
	v, err := newValidator(doc, s.apiKey)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(enableCORS)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerHTML))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	if s.objects != nil {
		r.Get("/assets/*", s.GetAsset)
	}

	r.Group(func(r chi.Router) {
		r.Use(v.middleware)
		r.Get("/health", s.GetHealth)
		r.Get("/info", s.GetInfo)
		r.Post("/diaries", s.CreateDiary)
		r.Get("/diaries", s.ListDiaries)
		r.Get("/diaries/{id}", s.GetDiary)
		r.Get("/diaries/{id}/events", s.SubscribeDiary)
	})

	return r, nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Enikki API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// CreateDiary handles POST /diaries.
func (s *Server) CreateDiary(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	rec, err := runner.DecodeRecordJSON(body)
	if err != nil {
		s.logger.WarnContext(r.Context(), "CreateDiary: invalid record", "error", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.runs.Submit(r.Context(), rec)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidRecord):
		writeError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, runner.ErrQueueFull), errors.Is(err, runner.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	default:
		s.logger.ErrorContext(r.Context(), "CreateDiary: submit failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     id,
		"status": string(domain.StatusPending),
	})
}

// ListDiaries handles GET /diaries.
func (s *Server) ListDiaries(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	ids, err := s.store.List(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "ListDiaries failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	docs := make([]domain.Document, 0, min(limit, len(ids)))
	for _, id := range ids {
		if len(docs) == limit {
			break
		}
		doc, err := s.store.Load(r.Context(), id)
		if err != nil {
			// Expired or deleted between List and Load.
			continue
		}
		docs = append(docs, doc)
	}
	writeJSON(w, http.StatusOK, map[string]any{"diaries": docs})
}

// GetDiary handles GET /diaries/{id}.
func (s *Server) GetDiary(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		s.logger.ErrorContext(r.Context(), "GetDiary failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// GetAsset handles GET /assets/*.
func (s *Server) GetAsset(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	obj, err := s.objects.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, ports.ErrObjectNotFound) {
			http.NotFound(w, r)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	_, _ = w.Write(obj.Data)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "enikki",
		"version": strings.TrimSpace(s.version),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
