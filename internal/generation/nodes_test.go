package generation_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hirokts/enikki/internal/generation"
	"github.com/hirokts/enikki/internal/testutils"
	"github.com/hirokts/enikki/pkg/adapters/memory"
	"github.com/hirokts/enikki/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parkRecord() domain.ConversationRecord {
	return domain.ConversationRecord{
		Date:       "2024-01-01",
		Transcript: []domain.TranscriptEntry{{Role: domain.RoleUser, Text: "公園で遊んだ"}},
	}
}

func TestKeywordExtractor_ExactlyFour(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{
			name:  "Exact",
			reply: `{"keywords": ["公園", "すべり台", "友だち", "夕焼け"]}`,
			want:  []string{"公園", "すべり台", "友だち", "夕焼け"},
		},
		{
			name:  "Too many",
			reply: `{"keywords": ["公園", "すべり台", "友だち", "夕焼け", "ブランコ", "砂場"]}`,
			want:  []string{"公園", "すべり台", "友だち", "夕焼け"},
		},
		{
			name:  "Too few with duplicates",
			reply: "```json\n{\"keywords\": [\" 公園 \", \"公園\", \"\"]}\n```",
			want:  []string{"公園", generation.KeywordFiller, generation.KeywordFiller, generation.KeywordFiller},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := testutils.NewScriptedModel().On(domain.StageKeywords, testutils.Reply{Text: tt.reply})
			kw, out := generation.NewKeywordExtractor(model).Extract(context.Background(), parkRecord())
			assert.NoError(t, out.Err)
			assert.Equal(t, tt.want, kw)
		})
	}
}

func TestKeywordExtractor_Fallbacks(t *testing.T) {
	tests := []struct {
		name  string
		reply testutils.Reply
	}{
		{name: "Unreachable", reply: testutils.Reply{Err: testutils.ErrUnreachable}},
		{name: "Non JSON", reply: testutils.Reply{Text: "公園、すべり台"}},
		{name: "Wrong shape", reply: testutils.Reply{Text: `{"words": ["a"]}`}},
		{name: "Empty list", reply: testutils.Reply{Text: `{"keywords": []}`}},
		{name: "Blank answer", reply: testutils.Reply{Text: "  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := testutils.NewScriptedModel().On(domain.StageKeywords, tt.reply)
			kw, out := generation.NewKeywordExtractor(model).Extract(context.Background(), parkRecord())
			assert.True(t, out.Fallback())
			assert.Equal(t, generation.FallbackKeywords, kw)

			var modelErr *domain.ModelError
			assert.True(t, errors.As(out.Err, &modelErr))
			assert.Equal(t, domain.StageKeywords, modelErr.Stage)
		})
	}
}

func TestKeywordExtractor_Timeout(t *testing.T) {
	model := testutils.NewScriptedModel().On(domain.StageKeywords, testutils.Reply{Block: true})
	extractor := generation.NewKeywordExtractor(model, generation.WithTimeout(20*time.Millisecond))

	kw, out := extractor.Extract(context.Background(), parkRecord())
	assert.Equal(t, generation.FallbackKeywords, kw)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
}

func TestKeywordExtractor_PromptCarriesScript(t *testing.T) {
	model := testutils.NewScriptedModel().On(domain.StageKeywords, testutils.Reply{Text: `{"keywords": ["a","b","c","d"]}`})
	generation.NewKeywordExtractor(model).Extract(context.Background(), parkRecord())

	reqs := model.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].JSON)
	assert.Contains(t, reqs[0].Prompt, "user: 公園で遊んだ")
}

func TestNormalizeKeywords(t *testing.T) {
	assert.Nil(t, generation.NormalizeKeywords(nil))
	assert.Nil(t, generation.NormalizeKeywords([]string{" ", ""}))
	for n := 1; n <= 8; n++ {
		raw := make([]string, n)
		for i := range raw {
			raw[i] = strings.Repeat("あ", i+1)
		}
		assert.Len(t, generation.NormalizeKeywords(raw), domain.KeywordCount)
	}
}

func TestDiaryWriter(t *testing.T) {
	kw := []string{"公園", "すべり台", "友だち", "夕焼け"}

	t.Run("Uses model text", func(t *testing.T) {
		model := testutils.NewScriptedModel().On(domain.StageDiary, testutils.Reply{Text: "今日は公園ですべり台をすべった。"})
		text, out := generation.NewDiaryWriter(model).Write(context.Background(), kw, parkRecord())
		assert.NoError(t, out.Err)
		assert.Equal(t, "今日は公園ですべり台をすべった。", text)
	})

	t.Run("Prepends opener", func(t *testing.T) {
		model := testutils.NewScriptedModel().On(domain.StageDiary, testutils.Reply{Text: "公園ですべり台をすべった。"})
		text, _ := generation.NewDiaryWriter(model).Write(context.Background(), kw, parkRecord())
		assert.True(t, strings.HasPrefix(text, domain.DiaryOpener))
	})

	t.Run("Falls back", func(t *testing.T) {
		text, out := generation.NewDiaryWriter(testutils.UnreachableModel{}).Write(context.Background(), kw, parkRecord())
		assert.True(t, out.Fallback())
		assert.Equal(t, generation.FallbackDiaryText, text)
		assert.True(t, strings.HasPrefix(text, domain.DiaryOpener))
	})
}

func TestQualityGate(t *testing.T) {
	tests := []struct {
		name     string
		reply    testutils.Reply
		want     float64
		fallback bool
	}{
		{name: "Score used", reply: testutils.Reply{Text: `{"score": 0.65, "comment": "ok"}`}, want: 0.65},
		{name: "Clamped high", reply: testutils.Reply{Text: `{"score": 7}`}, want: 1},
		{name: "Clamped low", reply: testutils.Reply{Text: `{"score": -0.2}`}, want: 0},
		{name: "Unreachable", reply: testutils.Reply{Err: errors.New("quota exceeded")}, want: 0.8, fallback: true},
		{name: "Malformed", reply: testutils.Reply{Text: `{"score": "good"}`}, want: 0.8, fallback: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := testutils.NewScriptedModel().On(domain.StageQuality, tt.reply)
			a, out := generation.NewQualityGate(model).Assess(context.Background(), "今日は", nil)
			assert.InDelta(t, tt.want, a.Score, 1e-9)
			assert.Equal(t, tt.fallback, out.Fallback())
		})
	}
}

func TestQualityGate_ConfiguredFallbackScore(t *testing.T) {
	gate := generation.NewQualityGate(testutils.UnreachableModel{}, generation.WithFallbackScore(0.3))
	a, out := gate.Assess(context.Background(), "今日は", nil)
	assert.True(t, out.Fallback())
	assert.InDelta(t, 0.3, a.Score, 1e-9)
}

type failingObjects struct {
	url string
	err error
}

func (f failingObjects) Put(context.Context, string, []byte, string) (string, error) {
	return f.url, f.err
}

func TestImageSynthesizer(t *testing.T) {
	sceneReply := testutils.Reply{Text: `{"scene": "A child on a slide in a park at sunset", "elements": ["slide", "sunset"]}`}
	fixedID := generation.WithIDGenerator(func() string { return "img" })

	t.Run("Uploads generated image", func(t *testing.T) {
		model := testutils.NewScriptedModel().On(domain.StageScene, sceneReply).WithImage(testutils.PNG)
		objects := memory.NewObjectStore("https://cdn.example.com")
		synth := generation.NewImageSynthesizer(model, objects, fixedID)

		url, outs := synth.Synthesize(context.Background(), "run-1", "今日は", nil)
		assert.Equal(t, "https://cdn.example.com/diaries/run-1/img.png", url)
		require.Len(t, outs, 3)
		for _, o := range outs {
			assert.NoError(t, o.Err)
		}
		assert.Contains(t, model.ImagePrompt, "crayon")
		assert.Contains(t, model.ImagePrompt, "A child on a slide")

		obj, err := objects.Get(context.Background(), "diaries/run-1/img.png")
		require.NoError(t, err)
		assert.Equal(t, testutils.PNG, obj.Data)
	})

	t.Run("Scene failure still renders", func(t *testing.T) {
		model := testutils.NewScriptedModel().WithImage(testutils.PNG)
		objects := memory.NewObjectStore("https://cdn.example.com")
		url, outs := generation.NewImageSynthesizer(model, objects, fixedID).Synthesize(context.Background(), "run-1", "今日は", nil)

		assert.Equal(t, "https://cdn.example.com/diaries/run-1/img.png", url)
		assert.True(t, outs[0].Fallback())
		assert.Contains(t, model.ImagePrompt, generation.FallbackScene.Description)
	})

	cases := []struct {
		name    string
		model   *testutils.ScriptedModel
		objects failingObjects
		stage   domain.Stage
	}{
		{
			name:  "No image payload",
			model: testutils.NewScriptedModel().On(domain.StageScene, sceneReply),
			stage: domain.StageImage,
		},
		{
			name:    "Upload error",
			model:   testutils.NewScriptedModel().On(domain.StageScene, sceneReply).WithImage(testutils.PNG),
			objects: failingObjects{err: errors.New("bucket missing")},
			stage:   domain.StageUpload,
		},
		{
			name:    "Malformed URL",
			model:   testutils.NewScriptedModel().On(domain.StageScene, sceneReply).WithImage(testutils.PNG),
			objects: failingObjects{url: "not a url"},
			stage:   domain.StageUpload,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			synth := generation.NewImageSynthesizer(tc.model, tc.objects, fixedID)
			url, outs := synth.Synthesize(context.Background(), "run-1", "今日は", nil)

			assert.Equal(t, domain.PlaceholderImageURL, url)
			last := outs[len(outs)-1]
			assert.Equal(t, tc.stage, last.Stage)
			assert.True(t, last.Fallback())
		})
	}

	t.Run("Image timeout", func(t *testing.T) {
		model := testutils.NewScriptedModel().On(domain.StageScene, sceneReply)
		model.ImageBlock = true
		synth := generation.NewImageSynthesizer(model, memory.NewObjectStore("https://x"),
			generation.WithImageTimeout(20*time.Millisecond),
			generation.WithPlaceholderURL("https://example.com/placeholder.png"),
		)
		url, outs := synth.Synthesize(context.Background(), "run-1", "今日は", nil)
		assert.Equal(t, "https://example.com/placeholder.png", url)
		assert.ErrorIs(t, outs[1].Err, context.DeadlineExceeded)
	})
}
