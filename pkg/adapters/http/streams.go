package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/hirokts/enikki/internal/logging"
	"github.com/hirokts/enikki/pkg/domain"
)

// ProgressEvent is one server-sent update about a run.
type ProgressEvent struct {
	RunID      string        `json:"id"`
	Status     domain.Status `json:"status,omitempty"`
	Step       domain.Step   `json:"step,omitempty"`
	RetryCount int           `json:"retryCount"`
}

// Terminal reports whether the event closes the stream.
func (e ProgressEvent) Terminal() bool {
	return e.Status.Terminal()
}

// StreamManager fans progress events out to SSE subscribers of a run.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan ProgressEvent]struct{} // RunID -> Set of Channels
	logger      *slog.Logger
}

// NewStreamManager creates an empty manager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan ProgressEvent]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a channel for runID. The returned func unsubscribes.
func (sm *StreamManager) Subscribe(runID string) (<-chan ProgressEvent, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan ProgressEvent, 10)
	if _, ok := sm.subscribers[runID]; !ok {
		sm.subscribers[runID] = make(map[chan ProgressEvent]struct{})
	}
	sm.subscribers[runID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[runID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, runID)
				}
			}
		})
	}
}

// Broadcast delivers e to every subscriber of its run.
func (sm *StreamManager) Broadcast(e ProgressEvent) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[e.RunID] {
		select {
		case ch <- e:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: Client buffer full, dropping message", "run_id", e.RunID)
		}
	}
}

// Hooks publishes engine progress to subscribers.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			sm.Broadcast(ProgressEvent{
				RunID:      e.RunID,
				Status:     domain.StatusProcessing,
				Step:       e.Step,
				RetryCount: e.RetryCount,
			})
		},
		OnRunComplete: func(_ context.Context, e *domain.RunEvent) {
			sm.Broadcast(ProgressEvent{
				RunID:      e.RunID,
				Status:     e.Status,
				RetryCount: e.RetryCount,
			})
		},
	}
}

// SubscribeDiary handles GET /diaries/{id}/events (SSE). The current status
// is sent first; the stream ends once the run is terminal.
func (s *Server) SubscribeDiary(w http.ResponseWriter, r *http.Request) {
	if s.streams == nil {
		writeError(w, http.StatusNotImplemented, errors.New("progress streaming is disabled"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	runID := chi.URLParam(r, "id")
	ch, cancel := s.streams.Subscribe(runID)
	defer cancel()

	doc, err := s.store.Load(r.Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	first := ProgressEvent{RunID: runID, Status: doc.Status, RetryCount: doc.RetryCount}
	writeEvent(w, first)
	flusher.Flush()
	if first.Terminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE Client Disconnected", "run_id", runID)
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, e)
			flusher.Flush()
			if e.Terminal() {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, e ProgressEvent) {
	data, _ := json.Marshal(e)
	fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
}
