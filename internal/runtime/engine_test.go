package runtime_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hirokts/enikki/internal/generation"
	"github.com/hirokts/enikki/internal/runtime"
	"github.com/hirokts/enikki/internal/testutils"
	"github.com/hirokts/enikki/pkg/adapters/memory"
	"github.com/hirokts/enikki/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	keywordsJSON = `{"keywords": ["公園", "すべり台", "友だち", "夕焼け"]}`
	sceneJSON    = `{"scene": "A child sliding down a slide at sunset", "elements": ["slide", "sunset"]}`
	diaryText    = "今日は公園で友だちとすべり台をすべりました。"
)

func parkRecord() domain.ConversationRecord {
	return domain.ConversationRecord{
		Date:       "2024-01-01",
		Transcript: []domain.TranscriptEntry{{Role: domain.RoleUser, Text: "公園で遊んだ"}},
	}
}

func score(v string) testutils.Reply {
	return testutils.Reply{Text: `{"score": ` + v + `}`}
}

func happyModel(scores ...testutils.Reply) *testutils.ScriptedModel {
	return testutils.NewScriptedModel().
		On(domain.StageKeywords, testutils.Reply{Text: keywordsJSON}).
		On(domain.StageDiary, testutils.Reply{Text: diaryText}).
		On(domain.StageQuality, scores...).
		On(domain.StageScene, testutils.Reply{Text: sceneJSON}).
		WithImage(testutils.PNG)
}

type fixture struct {
	store   *memory.Store
	objects *memory.ObjectStore
}

func newEngine(t *testing.T, model *testutils.ScriptedModel, opts ...runtime.Option) (*runtime.Engine, fixture) {
	t.Helper()
	f := fixture{store: memory.NewStore(), objects: memory.NewObjectStore("https://cdn.example.com")}
	var engine *runtime.Engine
	var err error
	if model == nil {
		engine, err = runtime.NewEngine(testutils.UnreachableModel{}, f.objects, f.store, opts...)
	} else {
		engine, err = runtime.NewEngine(model, f.objects, f.store, opts...)
	}
	require.NoError(t, err)
	return engine, f
}

func TestEngine_PassesFirstAttempt(t *testing.T) {
	model := happyModel(score("0.9"))
	engine, f := newEngine(t, model, runtime.WithIDGenerator(func() string { return "img" }))

	state, err := engine.Run(context.Background(), "run-1", parkRecord())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, state.Status)
	assert.Equal(t, 0, state.RetryCount)
	assert.Equal(t, []string{"公園", "すべり台", "友だち", "夕焼け"}, state.Keywords)
	assert.Equal(t, diaryText, state.DiaryText)
	assert.Equal(t, "https://cdn.example.com/diaries/run-1/img.png", state.ImageURL)
	assert.Empty(t, state.Error)
	assert.Empty(t, state.Fallbacks)
	assert.Equal(t, 1, model.Calls(domain.StageDiary))
	assert.NotContains(t, state.History, domain.StepForceAccept)

	doc, err := f.store.Load(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentFromState(state), doc)
}

func TestEngine_RetriesUntilPass(t *testing.T) {
	model := happyModel(score("0.3"), score("0.5"), score("0.8"))
	engine, _ := newEngine(t, model)

	state, err := engine.Run(context.Background(), "run-2", parkRecord())
	require.NoError(t, err)

	assert.Equal(t, 2, state.RetryCount)
	assert.Equal(t, 3, model.Calls(domain.StageDiary))
	assert.Equal(t, 3, model.Calls(domain.StageQuality))
	assert.Empty(t, state.Error)
	require.NotNil(t, state.QualityScore)
	assert.InDelta(t, 0.8, *state.QualityScore, 1e-9)
}

func TestEngine_ForceAcceptAfterExhaustion(t *testing.T) {
	for _, maxRetries := range []int{0, 1, 3} {
		model := happyModel(score("0.1"))
		engine, _ := newEngine(t, model, runtime.WithRetryPolicy(domain.RetryPolicy{Threshold: 0.7, MaxRetries: maxRetries}))

		state, err := engine.Run(context.Background(), "run-x", parkRecord())
		require.NoError(t, err)

		assert.Equal(t, domain.StatusCompleted, state.Status)
		assert.Equal(t, maxRetries, state.RetryCount)
		assert.Equal(t, maxRetries+1, model.Calls(domain.StageDiary), "at most MaxRetries+1 generations")
		assert.Contains(t, state.History, domain.StepForceAccept)
		assert.NotEmpty(t, state.Error)
		assert.NotEmpty(t, state.ImageURL)
	}
}

func TestEngine_UnreachableModel(t *testing.T) {
	engine, f := newEngine(t, nil)

	state, err := engine.Run(context.Background(), "run-3", parkRecord())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, state.Status)
	require.Len(t, state.Keywords, domain.KeywordCount)
	for _, kw := range state.Keywords {
		assert.NotEmpty(t, kw)
	}
	assert.True(t, strings.HasPrefix(state.DiaryText, domain.DiaryOpener))
	require.NotNil(t, state.QualityScore)
	assert.InDelta(t, 0.8, *state.QualityScore, 1e-9)
	assert.Equal(t, 0, state.RetryCount)
	assert.NotContains(t, state.History, domain.StepIncrementRetry)
	assert.Equal(t, domain.PlaceholderImageURL, state.ImageURL)
	assert.Empty(t, f.objects.Keys())

	for _, stage := range []domain.Stage{domain.StageKeywords, domain.StageDiary, domain.StageQuality, domain.StageScene, domain.StageImage} {
		assert.True(t, state.UsedFallback(stage), "expected fallback for %s", stage)
	}
}

func TestEngine_HistoryOrder(t *testing.T) {
	model := happyModel(score("0.2"), score("0.9"))
	engine, _ := newEngine(t, model)

	state, err := engine.Run(context.Background(), "run-4", parkRecord())
	require.NoError(t, err)

	want := []domain.Step{
		domain.StepExtractKeywords,
		domain.StepGenerateDiary,
		domain.StepCheckQuality,
		domain.StepIncrementRetry,
		domain.StepGenerateDiary,
		domain.StepCheckQuality,
		domain.StepGenerateImage,
		domain.StepSaveResult,
	}
	assert.Equal(t, want, state.History)
}

func TestEngine_LifecycleHooks(t *testing.T) {
	var mu sync.Mutex
	var entered, left []domain.Step
	var decisions []string
	var models []domain.Stage
	var completed []*domain.RunEvent

	hooks := domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			mu.Lock()
			defer mu.Unlock()
			entered = append(entered, e.Step)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			mu.Lock()
			defer mu.Unlock()
			left = append(left, e.Step)
			if e.Decision != "" {
				decisions = append(decisions, e.Decision)
			}
		},
		OnModelCall: func(ctx context.Context, e *domain.ModelEvent) {
			mu.Lock()
			defer mu.Unlock()
			models = append(models, e.Stage)
		},
		OnRunComplete: func(ctx context.Context, e *domain.RunEvent) {
			mu.Lock()
			defer mu.Unlock()
			completed = append(completed, e)
		},
	}

	model := happyModel(score("0.1"))
	engine, _ := newEngine(t, model,
		runtime.WithLifecycleHooks(hooks),
		runtime.WithRetryPolicy(domain.RetryPolicy{Threshold: 0.7, MaxRetries: 1}),
	)
	_, err := engine.Run(context.Background(), "run-5", parkRecord())
	require.NoError(t, err)

	assert.Equal(t, entered, left)
	assert.Equal(t, []string{"retry", "force_accept"}, decisions)
	assert.Equal(t, []domain.Stage{
		domain.StageKeywords,
		domain.StageDiary, domain.StageQuality,
		domain.StageDiary, domain.StageQuality,
		domain.StageScene, domain.StageImage, domain.StageUpload,
	}, models)
	require.Len(t, completed, 1)
	assert.Equal(t, domain.StatusCompleted, completed[0].Status)
	assert.Equal(t, 1, completed[0].RetryCount)
}

type brokenStore struct {
	*memory.Store
}

func (brokenStore) Save(context.Context, string, domain.Document) error {
	return errors.New("connection refused")
}

type recordingNotifier struct {
	mu     sync.Mutex
	calls  []domain.Notification
	target string
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, target string, note domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.target = target
	n.calls = append(n.calls, note)
	return n.err
}

func TestEngine_PersistenceFailure(t *testing.T) {
	notifier := &recordingNotifier{}
	engine, err := runtime.NewEngine(happyModel(score("0.9")), memory.NewObjectStore("https://cdn.example.com"),
		brokenStore{memory.NewStore()}, runtime.WithNotifier(notifier))
	require.NoError(t, err)

	rec := parkRecord()
	rec.NotificationTarget = "https://hooks.example.com/x"
	state, err := engine.Run(context.Background(), "run-6", rec)

	var perr *domain.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "run-6", perr.RunID)
	assert.Equal(t, domain.StatusFailed, state.Status)
	assert.Contains(t, state.Error, "connection refused")
	assert.Empty(t, notifier.calls, "no notification for a failed run")
}

func TestEngine_Notification(t *testing.T) {
	t.Run("Delivered once after completion", func(t *testing.T) {
		notifier := &recordingNotifier{}
		engine, f := newEngine(t, happyModel(score("0.9")), runtime.WithNotifier(notifier))

		rec := parkRecord()
		rec.NotificationTarget = "https://hooks.example.com/x"
		state, err := engine.Run(context.Background(), "run-7", rec)
		require.NoError(t, err)

		require.Len(t, notifier.calls, 1)
		assert.Equal(t, "https://hooks.example.com/x", notifier.target)
		assert.Equal(t, "2024-01-01", notifier.calls[0].Title)
		assert.Equal(t, state.DiaryText, notifier.calls[0].Body)
		assert.Equal(t, state.ImageURL, notifier.calls[0].ImageURL)

		doc, err := f.store.Load(context.Background(), "run-7")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, doc.Status)
	})

	t.Run("Skipped without target", func(t *testing.T) {
		notifier := &recordingNotifier{}
		engine, _ := newEngine(t, happyModel(score("0.9")), runtime.WithNotifier(notifier))
		_, err := engine.Run(context.Background(), "run-8", parkRecord())
		require.NoError(t, err)
		assert.Empty(t, notifier.calls)
	})

	t.Run("Failure does not fail the run", func(t *testing.T) {
		notifier := &recordingNotifier{err: errors.New("webhook 500")}
		engine, f := newEngine(t, happyModel(score("0.9")), runtime.WithNotifier(notifier))

		rec := parkRecord()
		rec.NotificationTarget = "https://hooks.example.com/x"
		state, err := engine.Run(context.Background(), "run-9", rec)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, state.Status)

		doc, err := f.store.Load(context.Background(), "run-9")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, doc.Status)
	})
}

func TestEngine_IgnoresCallerCancellation(t *testing.T) {
	engine, _ := newEngine(t, happyModel(score("0.9")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state, err := engine.Run(ctx, "run-10", parkRecord())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, state.Status)
	assert.Empty(t, state.Fallbacks)
}

func TestEngine_InvalidRecord(t *testing.T) {
	engine, _ := newEngine(t, happyModel(score("0.9")))
	_, err := engine.Run(context.Background(), "run-11", domain.ConversationRecord{Date: "2024-01-01"})
	assert.ErrorIs(t, err, domain.ErrInvalidRecord)
}

func TestNewEngine_Validation(t *testing.T) {
	store := memory.NewStore()
	objects := memory.NewObjectStore("https://x")

	_, err := runtime.NewEngine(nil, objects, store)
	assert.Error(t, err)

	_, err = runtime.NewEngine(testutils.UnreachableModel{}, objects, store,
		runtime.WithRetryPolicy(domain.RetryPolicy{Threshold: 2}))
	assert.Error(t, err)

	_, err = runtime.NewEngine(testutils.UnreachableModel{}, objects, store, runtime.WithFallbackQualityScore(-1))
	assert.Error(t, err)

	for _, placeholder := range []string{"", "placeholder.png", "ftp://example.com/p.png"} {
		_, err = runtime.NewEngine(testutils.UnreachableModel{}, objects, store, runtime.WithPlaceholderURL(placeholder))
		assert.Error(t, err, "placeholder %q", placeholder)
	}
}

func TestEngine_RunAtKeepsCreationTime(t *testing.T) {
	created := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	later := created.Add(5 * time.Minute)
	engine, f := newEngine(t, happyModel(score("0.9")), runtime.WithClock(func() time.Time { return later }))

	state, err := engine.RunAt(context.Background(), "run-14", parkRecord(), created)
	require.NoError(t, err)
	assert.Equal(t, created, state.CreatedAt)

	doc, err := f.store.Load(context.Background(), "run-14")
	require.NoError(t, err)
	assert.True(t, doc.CreatedAt.Equal(created), "created_at = %v", doc.CreatedAt)
	assert.True(t, doc.UpdatedAt.Equal(later), "updated_at = %v", doc.UpdatedAt)
}

// blankObjects accepts uploads but hands back no URL.
type blankObjects struct{}

func (blankObjects) Put(context.Context, string, []byte, string) (string, error) { return "", nil }

func TestEngine_InvariantCheckedBeforePersist(t *testing.T) {
	store := memory.NewStore()
	var completed []*domain.RunEvent
	engine, err := runtime.NewEngine(happyModel(score("0.9")), blankObjects{}, store,
		runtime.WithLifecycleHooks(domain.LifecycleHooks{
			OnRunComplete: func(ctx context.Context, e *domain.RunEvent) { completed = append(completed, e) },
		}),
	)
	require.NoError(t, err)

	state, err := engine.Run(context.Background(), "run-15", parkRecord())
	require.ErrorIs(t, err, domain.ErrInvariant)
	assert.Equal(t, domain.StatusFailed, state.Status)

	_, err = store.Load(context.Background(), "run-15")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)

	require.Len(t, completed, 1)
	assert.Equal(t, domain.StatusFailed, completed[0].Status)
	assert.ErrorIs(t, completed[0].Err, domain.ErrInvariant)
}

func TestEngine_ConfiguredFallbackScoreCanForceRetries(t *testing.T) {
	// A fallback score below the threshold sends an unreachable model through every retry.
	engine, _ := newEngine(t, nil,
		runtime.WithFallbackQualityScore(0.5),
		runtime.WithRetryPolicy(domain.RetryPolicy{Threshold: 0.7, MaxRetries: 2}),
		runtime.WithTimeouts(runtime.Timeouts{Model: 50 * time.Millisecond}),
	)

	state, err := engine.Run(context.Background(), "run-12", parkRecord())
	require.NoError(t, err)
	assert.Equal(t, 2, state.RetryCount)
	assert.Equal(t, generation.FallbackDiaryText, state.DiaryText)
}

func TestPersister_Idempotent(t *testing.T) {
	store := memory.NewStore()
	p := runtime.NewPersister(store, time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s := domain.NewPipelineState("run-13", parkRecord(), now).
		Start(now).
		WithKeywords([]string{"a", "b", "c", "d"}).
		WithDiary(diaryText).
		WithQuality(0.9).
		WithImage(domain.PlaceholderImageURL).
		Complete(now)

	require.NoError(t, p.Persist(context.Background(), s))
	first, err := store.Load(context.Background(), "run-13")
	require.NoError(t, err)

	require.NoError(t, p.Persist(context.Background(), s))
	second, err := store.Load(context.Background(), "run-13")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
