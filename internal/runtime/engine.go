package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hirokts/enikki/internal/generation"
	"github.com/hirokts/enikki/internal/logging"
	"github.com/hirokts/enikki/pkg/domain"
	"github.com/hirokts/enikki/pkg/ports"
)

var fallbackNotes = map[domain.Stage]string{
	domain.StageKeywords: "キーワード抽出に失敗したため、既定のキーワードを使用しました。",
	domain.StageDiary:    "日記の生成に失敗したため、既定の文章を使用しました。",
	domain.StageQuality:  "品質チェックを実行できなかったため、既定のスコアを使用しました。",
	domain.StageScene:    "場面の説明を生成できなかったため、既定の場面で画像を作成しました。",
	domain.StageImage:    "画像の生成に失敗したため、プレースホルダー画像を使用しました。",
	domain.StageUpload:   "画像の保存に失敗したため、プレースホルダー画像を使用しました。",
}

// Engine runs one diary pipeline at a time per call to Run.
// It is safe for concurrent use; runs share nothing but the store.
type Engine struct {
	model    ports.ModelClient
	objects  ports.ObjectStore
	store    ports.DiaryStore
	notifier ports.Notifier

	policy        domain.RetryPolicy
	timeouts      Timeouts
	fallbackScore float64
	placeholder   string
	hooks         domain.LifecycleHooks
	logger        *slog.Logger
	now           func() time.Time
	newID         func() string

	keywords  *generation.KeywordExtractor
	writer    *generation.DiaryWriter
	gate      *generation.QualityGate
	images    *generation.ImageSynthesizer
	persister *Persister
}

// NewEngine wires the workflow nodes around the given backends.
func NewEngine(model ports.ModelClient, objects ports.ObjectStore, store ports.DiaryStore, opts ...Option) (*Engine, error) {
	if model == nil || objects == nil || store == nil {
		return nil, errors.New("model client, object store and diary store are required")
	}

	e := &Engine{
		model:         model,
		objects:       objects,
		store:         store,
		policy:        domain.DefaultRetryPolicy(),
		timeouts:      DefaultTimeouts(),
		fallbackScore: 0.8,
		placeholder:   domain.PlaceholderImageURL,
		logger:        logging.NewNop(),
		now:           time.Now,
		newID:         func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}
	if e.fallbackScore < 0 || e.fallbackScore > 1 {
		return nil, fmt.Errorf("fallback quality score %.2f outside [0, 1]", e.fallbackScore)
	}
	if !absoluteURL(e.placeholder) {
		return nil, fmt.Errorf("placeholder image URL %q is not an absolute http(s) URL", e.placeholder)
	}

	nodeOpts := []generation.Option{
		generation.WithLogger(e.logger),
		generation.WithTimeout(e.timeouts.Model),
		generation.WithImageTimeout(e.timeouts.Image),
		generation.WithUploadTimeout(e.timeouts.Storage),
		generation.WithFallbackScore(e.fallbackScore),
		generation.WithPlaceholderURL(e.placeholder),
		generation.WithIDGenerator(e.newID),
	}
	e.keywords = generation.NewKeywordExtractor(model, nodeOpts...)
	e.writer = generation.NewDiaryWriter(model, nodeOpts...)
	e.gate = generation.NewQualityGate(model, nodeOpts...)
	e.images = generation.NewImageSynthesizer(model, objects, nodeOpts...)
	e.persister = NewPersister(store, e.timeouts.Storage)

	return e, nil
}

// Policy returns the retry policy in effect.
func (e *Engine) Policy() domain.RetryPolicy { return e.policy }

// Run executes the whole pipeline for rec and persists the result under runID.
//
// The run is detached from ctx cancellation: once started it runs to a terminal
// status, bounded by the per-call timeouts. A well-formed record fails only on a
// *domain.PersistenceError or a broken state invariant; the returned state is
// then failed and nothing completed is stored.
func (e *Engine) Run(ctx context.Context, runID string, rec domain.ConversationRecord) (domain.PipelineState, error) {
	return e.RunAt(ctx, runID, rec, time.Time{})
}

// RunAt is Run for a run whose document was created at createdAt. The stored
// document keeps that creation time. A zero createdAt means now.
func (e *Engine) RunAt(ctx context.Context, runID string, rec domain.ConversationRecord, createdAt time.Time) (domain.PipelineState, error) {
	ctx = context.WithoutCancel(ctx)

	if err := rec.Validate(); err != nil {
		return domain.PipelineState{}, err
	}
	if createdAt.IsZero() {
		createdAt = e.now()
	}

	logger := e.logger.With("run_id", runID)
	state := domain.NewPipelineState(runID, rec, createdAt)
	step := domain.StepExtractKeywords

	for step != domain.StepDone {
		state = state.Visit(step)
		e.emitNodeEnter(ctx, state, step)

		next, updated, decision, err := e.visit(ctx, state, step)
		if err != nil {
			failed := updated.Fail(err.Error(), e.now())
			logger.ErrorContext(ctx, "Run failed", "step", step, "error", err)
			e.emitRunComplete(ctx, failed, err)
			return failed, err
		}
		if err := updated.Check(e.policy.MaxRetries); err != nil {
			err = fmt.Errorf("after %s: %w", step, err)
			failed := updated.Fail(err.Error(), e.now())
			logger.ErrorContext(ctx, "Run failed", "step", step, "error", err)
			e.emitRunComplete(ctx, failed, err)
			return failed, err
		}

		state = updated
		e.emitNodeLeave(ctx, state, step, decision)
		logger.DebugContext(ctx, "Step finished", "step", step, "next", next, "retry_count", state.RetryCount)
		step = next
	}

	logger.InfoContext(ctx, "Run completed",
		"retry_count", state.RetryCount,
		"fallbacks", len(state.Fallbacks),
	)
	e.emitRunComplete(ctx, state, nil)
	e.notify(ctx, state)
	return state, nil
}

// visit runs one node and selects the next one.
func (e *Engine) visit(ctx context.Context, s domain.PipelineState, step domain.Step) (domain.Step, domain.PipelineState, string, error) {
	switch step {
	case domain.StepExtractKeywords:
		s = s.Start(e.now())
		kw, out := e.keywords.Extract(ctx, s.Conversation)
		s = e.observe(ctx, s.WithKeywords(kw), out)
		return domain.StepGenerateDiary, s, "", nil

	case domain.StepGenerateDiary:
		text, out := e.writer.Write(ctx, s.Keywords, s.Conversation)
		s = e.observe(ctx, s.WithDiary(text), out)
		return domain.StepCheckQuality, s, "", nil

	case domain.StepCheckQuality:
		a, out := e.gate.Assess(ctx, s.DiaryText, s.Keywords)
		s = e.observe(ctx, s.WithQuality(a.Score), out)

		decision := domain.Decide(a.Score, s.RetryCount, e.policy)
		switch decision {
		case domain.Proceed:
			return domain.StepGenerateImage, s, decision.String(), nil
		case domain.Retry:
			return domain.StepIncrementRetry, s, decision.String(), nil
		case domain.ForceAccept:
			return domain.StepForceAccept, s, decision.String(), nil
		default:
			return step, s, "", fmt.Errorf("%w: unknown decision %v", domain.ErrInvariant, decision)
		}

	case domain.StepIncrementRetry:
		return domain.StepGenerateDiary, s.IncrementRetry(), "", nil

	case domain.StepForceAccept:
		s = s.ForceAccept()
		e.logger.WarnContext(ctx, "Quality threshold never reached, keeping current text",
			"run_id", s.RunID, "retry_count", s.RetryCount, "threshold", e.policy.Threshold)
		return domain.StepGenerateImage, s, "", nil

	case domain.StepGenerateImage:
		url, outs := e.images.Synthesize(ctx, s.RunID, s.DiaryText, s.Keywords)
		for _, out := range outs {
			s = e.observe(ctx, s, out)
		}
		return domain.StepSaveResult, s.WithImage(url), "", nil

	case domain.StepSaveResult:
		done := s.Complete(e.now())
		if err := done.Check(e.policy.MaxRetries); err != nil {
			return step, s, "", err
		}
		if err := e.persister.Persist(ctx, done); err != nil {
			return step, s, "", err
		}
		return domain.StepDone, done, "", nil
	}

	return step, s, "", fmt.Errorf("%w: unknown step %q", domain.ErrInvariant, step)
}

// observe reports a node outcome and records its fallback, if any.
func (e *Engine) observe(ctx context.Context, s domain.PipelineState, out generation.Outcome) domain.PipelineState {
	if e.hooks.OnModelCall != nil {
		e.hooks.OnModelCall(ctx, &domain.ModelEvent{
			EventBase: e.base(domain.EventModelCall, s.RunID),
			Stage:     out.Stage,
			Duration:  out.Duration,
			Fallback:  out.Fallback(),
			Err:       out.Err,
		})
	}
	if !out.Fallback() {
		return s
	}
	return s.WithFallback(out.Stage, fallbackNotes[out.Stage])
}

func (e *Engine) notify(ctx context.Context, s domain.PipelineState) {
	target := s.Conversation.NotificationTarget
	if e.notifier == nil || target == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeouts.Notify)
	defer cancel()

	if err := e.notifier.Notify(ctx, target, domain.NotificationFromState(s)); err != nil {
		e.logger.WarnContext(ctx, "Notification failed", "run_id", s.RunID, "error", err)
	}
}

func (e *Engine) base(t domain.EventType, runID string) domain.EventBase {
	return domain.EventBase{Timestamp: e.now(), Type: t, RunID: runID}
}

func (e *Engine) emitNodeEnter(ctx context.Context, s domain.PipelineState, step domain.Step) {
	if e.hooks.OnNodeEnter == nil {
		return
	}
	e.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
		EventBase:  e.base(domain.EventNodeEnter, s.RunID),
		Step:       step,
		RetryCount: s.RetryCount,
	})
}

func (e *Engine) emitNodeLeave(ctx context.Context, s domain.PipelineState, step domain.Step, decision string) {
	if e.hooks.OnNodeLeave == nil {
		return
	}
	e.hooks.OnNodeLeave(ctx, &domain.NodeEvent{
		EventBase:  e.base(domain.EventNodeLeave, s.RunID),
		Step:       step,
		RetryCount: s.RetryCount,
		Decision:   decision,
	})
}

func (e *Engine) emitRunComplete(ctx context.Context, s domain.PipelineState, err error) {
	if e.hooks.OnRunComplete == nil {
		return
	}
	e.hooks.OnRunComplete(ctx, &domain.RunEvent{
		EventBase:    e.base(domain.EventRunComplete, s.RunID),
		Status:       s.Status,
		RetryCount:   s.RetryCount,
		QualityScore: s.QualityScore,
		Fallbacks:    append([]domain.Stage(nil), s.Fallbacks...),
		Err:          err,
	})
}

func absoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
