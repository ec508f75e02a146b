package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/hirokts/enikki/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiaryMarkdown(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	s := domain.NewPipelineState("r1", domain.ConversationRecord{Date: "2024-05-01"}, now).
		Start(now).
		WithKeywords([]string{"動物園", "ぞう", "おべんとう", "たのしい"}).
		WithDiary("きょうは どうぶつえんに いったよ。").
		WithQuality(0.85).
		WithImage("http://localhost:8080/assets/diaries/r1/1.png").
		Complete(now)

	md := DiaryMarkdown(domain.DocumentFromState(s))

	assert.Contains(t, md, "# 📔 2024-05-01")
	assert.Contains(t, md, "quality: 0.85")
	assert.Contains(t, md, "きょうは どうぶつえんに いったよ。")
	assert.Contains(t, md, "動物園 / ぞう / おべんとう / たのしい")
	assert.Contains(t, md, "![2024-05-01](http://localhost:8080/assets/diaries/r1/1.png)")
}

func TestDiaryMarkdown_Pending(t *testing.T) {
	md := DiaryMarkdown(domain.NewPendingDocument("r2", "2024-05-02", time.Now()))
	assert.Contains(t, md, "status: pending")
	assert.NotContains(t, md, "quality")
	assert.NotContains(t, md, "![")
}

func TestPlain_Wraps(t *testing.T) {
	out, err := Plain(10)("one two three four five")
	require.NoError(t, err)
	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, len(line), 10)
	}
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "v0.1.0")
	assert.Contains(t, buf.String(), "v0.1.0")
	assert.Contains(t, buf.String(), "_ __")
}
