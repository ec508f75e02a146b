package observability

import (
	"context"
	"log/slog"

	"github.com/hirokts/enikki/pkg/domain"
)

// LogHooks logs lifecycle events. Node traffic goes to Debug, fallbacks to
// Warn and run outcomes to Info or Error.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter", "run_id", e.RunID, "step", e.Step, "retry_count", e.RetryCount)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			attrs := []any{"run_id", e.RunID, "step", e.Step}
			if e.Decision != "" {
				attrs = append(attrs, "decision", e.Decision)
			}
			logger.DebugContext(ctx, "node_leave", attrs...)
		},
		OnModelCall: func(ctx context.Context, e *domain.ModelEvent) {
			if e.Fallback {
				logger.WarnContext(ctx, "model_fallback", "run_id", e.RunID, "stage", e.Stage, "duration", e.Duration, "error", e.Err)
				return
			}
			logger.DebugContext(ctx, "model_call", "run_id", e.RunID, "stage", e.Stage, "duration", e.Duration)
		},
		OnRunComplete: func(ctx context.Context, e *domain.RunEvent) {
			if e.Status == domain.StatusFailed {
				logger.ErrorContext(ctx, "run_failed", "run_id", e.RunID, "error", e.Err)
				return
			}
			attrs := []any{"run_id", e.RunID, "status", e.Status, "retry_count", e.RetryCount}
			if e.QualityScore != nil {
				attrs = append(attrs, "quality_score", *e.QualityScore)
			}
			if len(e.Fallbacks) > 0 {
				attrs = append(attrs, "fallbacks", e.Fallbacks)
			}
			logger.InfoContext(ctx, "run_complete", attrs...)
		},
	}
}
