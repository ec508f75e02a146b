// Package generation implements the model-backed nodes of the diary pipeline.
//
// Every node wraps one or more calls to a ports.ModelClient and guarantees a
// usable value: when a call fails, times out or returns something that does not
// validate, the node substitutes a fixed fallback and reports the failure in an
// Outcome instead of returning an error.
package generation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hirokts/enikki/internal/logging"
	"github.com/hirokts/enikki/pkg/domain"
	"github.com/hirokts/enikki/pkg/ports"
)

// Outcome reports how one external call of a node went.
type Outcome struct {
	Stage    domain.Stage
	Duration time.Duration
	// Err is nil when the call's answer was used as-is.
	Err error
}

// Fallback reports whether the node substituted a default value.
func (o Outcome) Fallback() bool { return o.Err != nil }

type settings struct {
	model         ports.ModelClient
	logger        *slog.Logger
	timeout       time.Duration
	imageTimeout  time.Duration
	uploadTimeout time.Duration
	fallbackScore float64
	placeholder   string
	newID         func() string
}

// Option configures a node.
type Option func(*settings)

// WithLogger sets the logger used to report fallbacks.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithTimeout bounds every text call.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.timeout = d
	}
}

// WithImageTimeout bounds the image generation call.
func WithImageTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.imageTimeout = d
	}
}

// WithUploadTimeout bounds the object store upload.
func WithUploadTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.uploadTimeout = d
	}
}

// WithFallbackScore sets the score the quality gate reports when it cannot evaluate.
func WithFallbackScore(score float64) Option {
	return func(s *settings) {
		s.fallbackScore = score
	}
}

// WithPlaceholderURL sets the image URL used when no illustration is available.
func WithPlaceholderURL(url string) Option {
	return func(s *settings) {
		s.placeholder = url
	}
}

// WithIDGenerator overrides the generator of object key suffixes.
func WithIDGenerator(fn func() string) Option {
	return func(s *settings) {
		s.newID = fn
	}
}

func newSettings(model ports.ModelClient, opts []Option) settings {
	s := settings{
		model:         model,
		logger:        logging.NewNop(),
		timeout:       30 * time.Second,
		imageTimeout:  60 * time.Second,
		uploadTimeout: 15 * time.Second,
		fallbackScore: 0.8,
		placeholder:   domain.PlaceholderImageURL,
		newID:         func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// generate performs one bounded text call and normalizes failures into a ModelError.
func (s settings) generate(ctx context.Context, req ports.TextRequest) (string, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.model.GenerateText(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		return "", elapsed, &domain.ModelError{Stage: req.Stage, Err: err}
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", elapsed, &domain.ModelError{Stage: req.Stage, Err: domain.ErrEmptyGeneration}
	}
	return resp.Text, elapsed, nil
}

func (s settings) warnFallback(ctx context.Context, stage domain.Stage, err error) {
	s.logger.WarnContext(ctx, "Model call failed, using fallback", "stage", stage, "error", err)
}
