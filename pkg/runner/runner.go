package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hirokts/enikki/internal/logging"
	"github.com/hirokts/enikki/pkg/domain"
	"github.com/hirokts/enikki/pkg/ports"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

var (
	// ErrQueueFull is returned by Submit when no more runs can be accepted.
	ErrQueueFull = errors.New("run queue is full")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("runner is closed")
)

// Engine executes a single run to completion. createdAt is the creation time
// of the run's pending document and must survive into the stored result.
type Engine interface {
	RunAt(ctx context.Context, runID string, rec domain.ConversationRecord, createdAt time.Time) (domain.PipelineState, error)
}

type job struct {
	ctx context.Context
	id  string
	rec domain.ConversationRecord
	doc domain.Document
}

// Runner schedules runs on a bounded worker pool.
type Runner struct {
	engine Engine
	store  ports.DiaryStore
	logger *slog.Logger
	hooks  domain.LifecycleHooks

	maxConcurrent  int
	queueSize      int
	storageTimeout time.Duration
	newID          func() string
	now            func() time.Time

	queue    chan job
	workers  *pool.Pool
	done     chan struct{}
	mu       sync.RWMutex
	closed   bool
	closeOne sync.Once
}

// New creates a Runner and starts its dispatcher.
func New(engine Engine, store ports.DiaryStore, opts ...Option) *Runner {
	r := &Runner{
		engine:         engine,
		store:          store,
		logger:         logging.NewNop(),
		maxConcurrent:  4,
		queueSize:      DefaultQueueSize,
		storageTimeout: 15 * time.Second,
		newID:          func() string { return uuid.New().String() },
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.queue = make(chan job, r.queueSize)
	r.workers = pool.New().WithMaxGoroutines(r.maxConcurrent)
	r.done = make(chan struct{})
	go r.dispatch()

	return r
}

// Submit validates rec, stores the run as pending and queues it.
// It returns the new run id without waiting for the run.
func (r *Runner) Submit(ctx context.Context, rec domain.ConversationRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return "", ErrClosed
	}

	id := r.newID()
	doc := domain.NewPendingDocument(id, rec.Date, r.now())
	if err := r.save(ctx, doc); err != nil {
		return "", fmt.Errorf("record pending run: %w", err)
	}

	j := job{ctx: context.WithoutCancel(ctx), id: id, rec: rec.Clone(), doc: doc}
	select {
	case r.queue <- j:
		r.logger.InfoContext(ctx, "Run accepted", "run_id", id)
		return id, nil
	default:
		r.markFailed(j.ctx, doc, nil, ErrQueueFull)
		return "", ErrQueueFull
	}
}

// Close stops accepting runs and waits for every queued run to finish.
func (r *Runner) Close() {
	r.closeOne.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
		<-r.done
	})
}

func (r *Runner) dispatch() {
	defer close(r.done)
	for j := range r.queue {
		j := j
		r.workers.Go(func() { r.process(j) })
	}
	r.workers.Wait()
}

// process executes one run. It never panics: panics are recovered and the run
// is marked failed.
func (r *Runner) process(j job) {
	ctx := j.ctx
	logger := r.logger.With("run_id", j.id)

	processing := j.doc.WithStatus(domain.StatusProcessing, r.now())
	if err := r.save(ctx, processing); err != nil {
		logger.WarnContext(ctx, "Failed to mark run processing", "error", err)
	}

	var (
		state  domain.PipelineState
		runErr error
	)
	var catcher panics.Catcher
	catcher.Try(func() {
		state, runErr = r.engine.RunAt(ctx, j.id, j.rec, j.doc.CreatedAt)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		runErr = recovered.AsError()
		logger.ErrorContext(ctx, "Run panicked", "error", runErr)
	}

	if runErr == nil {
		return
	}

	var base *domain.PipelineState
	if state.RunID != "" {
		base = &state
	}
	r.markFailed(ctx, processing, base, runErr)
}

// markFailed records the failed status. When the engine returned a state, its
// content is kept so partial results stay visible.
//
// OnRunComplete fires unless the engine already reported the failure, so
// stream subscribers always see a terminal event.
func (r *Runner) markFailed(ctx context.Context, doc domain.Document, state *domain.PipelineState, cause error) {
	failed := doc.Failed(cause.Error(), r.now())
	reported := false
	if state != nil {
		failed = domain.DocumentFromState(*state)
		reported = failed.Status == domain.StatusFailed
		if !reported {
			failed = failed.WithStatus(domain.StatusProcessing, r.now()).Failed(cause.Error(), r.now())
		}
	}

	if err := r.save(ctx, failed); err != nil {
		r.logger.ErrorContext(ctx, "Failed to mark run failed", "run_id", doc.ID, "error", err, "cause", cause)
	} else {
		r.logger.WarnContext(ctx, "Run failed", "run_id", doc.ID, "error", cause)
	}

	if !reported && r.hooks.OnRunComplete != nil {
		r.hooks.OnRunComplete(ctx, &domain.RunEvent{
			EventBase:    domain.EventBase{Timestamp: r.now(), Type: domain.EventRunComplete, RunID: doc.ID},
			Status:       domain.StatusFailed,
			RetryCount:   failed.RetryCount,
			QualityScore: failed.QualityScore,
			Err:          cause,
		})
	}
}

func (r *Runner) save(ctx context.Context, doc domain.Document) error {
	ctx, cancel := context.WithTimeout(ctx, r.storageTimeout)
	defer cancel()
	return r.store.Save(ctx, doc.ID, doc)
}
