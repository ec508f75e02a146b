package runtime

import (
	"log/slog"
	"time"

	"github.com/hirokts/enikki/pkg/domain"
	"github.com/hirokts/enikki/pkg/ports"
)

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine and its nodes.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithRetryPolicy sets the quality threshold and the retry budget.
func WithRetryPolicy(policy domain.RetryPolicy) Option {
	return func(e *Engine) {
		e.policy = policy
	}
}

// WithNotifier sets the completion notification channel.
func WithNotifier(n ports.Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// Timeouts bounds each class of external call.
type Timeouts struct {
	Model   time.Duration
	Image   time.Duration
	Storage time.Duration
	Notify  time.Duration
}

// DefaultTimeouts returns the stock per-call bounds.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Model:   30 * time.Second,
		Image:   60 * time.Second,
		Storage: 15 * time.Second,
		Notify:  10 * time.Second,
	}
}

// WithTimeouts overrides the per-call bounds. Zero values keep the defaults.
func WithTimeouts(t Timeouts) Option {
	return func(e *Engine) {
		if t.Model > 0 {
			e.timeouts.Model = t.Model
		}
		if t.Image > 0 {
			e.timeouts.Image = t.Image
		}
		if t.Storage > 0 {
			e.timeouts.Storage = t.Storage
		}
		if t.Notify > 0 {
			e.timeouts.Notify = t.Notify
		}
	}
}

// WithFallbackQualityScore sets the score reported when quality cannot be assessed.
func WithFallbackQualityScore(score float64) Option {
	return func(e *Engine) {
		e.fallbackScore = score
	}
}

// WithPlaceholderURL sets the image URL used when no illustration is available.
func WithPlaceholderURL(url string) Option {
	return func(e *Engine) {
		e.placeholder = url
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator overrides the generator of image key suffixes.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}
