package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter   EventType = "node_enter"
	EventNodeLeave   EventType = "node_leave"
	EventModelCall   EventType = "model_call"
	EventRunComplete EventType = "run_complete"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
}

// NodeEvent represents entry or exit from a workflow node.
type NodeEvent struct {
	EventBase
	Step       Step   `json:"step"`
	RetryCount int    `json:"retry_count"`
	Decision   string `json:"decision,omitempty"`
}

// ModelEvent represents one external call made on behalf of a node.
type ModelEvent struct {
	EventBase
	Stage    Stage         `json:"stage"`
	Duration time.Duration `json:"duration"`
	Fallback bool          `json:"fallback"`
	Err      error         `json:"-"`
}

// RunEvent is emitted once a run reaches a terminal status.
type RunEvent struct {
	EventBase
	Status       Status   `json:"status"`
	RetryCount   int      `json:"retry_count"`
	QualityScore *float64 `json:"quality_score,omitempty"`
	Fallbacks    []Stage  `json:"fallbacks,omitempty"`
	Err          error    `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeEnter   func(context.Context, *NodeEvent)
	OnNodeLeave   func(context.Context, *NodeEvent)
	OnModelCall   func(context.Context, *ModelEvent)
	OnRunComplete func(context.Context, *RunEvent)
}

// ComposeHooks returns hooks that call every non-nil callback of hooks in order.
func ComposeHooks(hooks ...LifecycleHooks) LifecycleHooks {
	var out LifecycleHooks
	for _, h := range hooks {
		h := h
		if h.OnNodeEnter != nil {
			prev := out.OnNodeEnter
			out.OnNodeEnter = func(ctx context.Context, e *NodeEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnNodeEnter(ctx, e)
			}
		}
		if h.OnNodeLeave != nil {
			prev := out.OnNodeLeave
			out.OnNodeLeave = func(ctx context.Context, e *NodeEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnNodeLeave(ctx, e)
			}
		}
		if h.OnModelCall != nil {
			prev := out.OnModelCall
			out.OnModelCall = func(ctx context.Context, e *ModelEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnModelCall(ctx, e)
			}
		}
		if h.OnRunComplete != nil {
			prev := out.OnRunComplete
			out.OnRunComplete = func(ctx context.Context, e *RunEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnRunComplete(ctx, e)
			}
		}
	}
	return out
}
