package runner

import (
	"log/slog"
	"time"

	"github.com/hirokts/enikki/pkg/domain"
)

// DefaultQueueSize is the default number of accepted runs waiting for a worker.
const DefaultQueueSize = 64

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithLifecycleHooks sets the hooks notified when the runner itself fails a
// run: queue overflow, a panic or an engine error the engine did not report.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Runner) {
		r.hooks = hooks
	}
}

// WithMaxConcurrent bounds the number of runs executing at once.
func WithMaxConcurrent(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxConcurrent = n
		}
	}
}

// WithQueueSize bounds the number of accepted runs waiting for a worker.
func WithQueueSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithStorageTimeout bounds each status write made by the runner.
func WithStorageTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.storageTimeout = d
		}
	}
}

// WithIDGenerator overrides the run id generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *Runner) {
		r.newID = fn
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}
