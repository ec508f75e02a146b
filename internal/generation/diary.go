package generation

import (
	"context"
	"strings"

	"github.com/hirokts/enikki/pkg/domain"
	"github.com/hirokts/enikki/pkg/ports"
)

// FallbackDiaryText is used whenever generation fails. It starts with domain.DiaryOpener.
const FallbackDiaryText = "今日は、いろいろなことがあった一日でした。" +
	"外はお日さまのにおいがして、なんだかぽかぽかしました。" +
	"楽しいことも少しつかれることもあったけど、ぜんぶいい思い出です。" +
	"おとなはこういう日を「なんでもない日」とよぶらしいけど、ぼくにはちゃんと特別でした。"

// DiaryWriter writes the diary text in a child's voice.
type DiaryWriter struct {
	settings
}

// NewDiaryWriter creates a writer backed by model.
func NewDiaryWriter(model ports.ModelClient, opts ...Option) *DiaryWriter {
	return &DiaryWriter{settings: newSettings(model, opts)}
}

// Write generates a fresh diary text. Each call is independent, so retries
// regenerate from the same inputs.
func (w *DiaryWriter) Write(ctx context.Context, keywords []string, rec domain.ConversationRecord) (string, Outcome) {
	out := Outcome{Stage: domain.StageDiary}

	text, elapsed, err := w.generate(ctx, ports.TextRequest{
		Stage:  domain.StageDiary,
		System: diarySystem,
		Prompt: diaryPrompt(keywords, rec),
	})
	out.Duration = elapsed
	if err == nil {
		if text = CleanDiaryText(text); text == "" {
			err = &domain.ModelError{Stage: domain.StageDiary, Err: domain.ErrEmptyGeneration}
		}
	}
	if err != nil {
		w.warnFallback(ctx, out.Stage, err)
		out.Err = err
		return FallbackDiaryText, out
	}
	return text, out
}

var quotePairs = [][2]string{{"「", "」"}, {"『", "』"}, {`"`, `"`}, {"“", "”"}}

// CleanDiaryText strips fences and wrapping quotes and makes sure the text
// starts with domain.DiaryOpener. It returns "" for blank input.
func CleanDiaryText(text string) string {
	text = stripFences(text)
	for _, q := range quotePairs {
		if strings.HasPrefix(text, q[0]) && strings.HasSuffix(text, q[1]) && len(text) > len(q[0])+len(q[1]) {
			text = strings.TrimSpace(text[len(q[0]) : len(text)-len(q[1])])
		}
	}
	if text == "" {
		return ""
	}
	if !strings.HasPrefix(text, domain.DiaryOpener) {
		text = domain.DiaryOpener + "、" + text
	}
	return text
}
