package generation

import (
	"context"
	"strings"

	"github.com/hirokts/enikki/pkg/domain"
	"github.com/hirokts/enikki/pkg/ports"
)

// FallbackKeywords is used whenever extraction fails.
var FallbackKeywords = []string{"今日", "おでかけ", "たのしい", "思い出"}

// KeywordFiller pads a short keyword list up to domain.KeywordCount.
const KeywordFiller = "いろいろ"

// KeywordExtractor pulls the keywords of the day out of a transcript.
type KeywordExtractor struct {
	settings
}

// NewKeywordExtractor creates an extractor backed by model.
func NewKeywordExtractor(model ports.ModelClient, opts ...Option) *KeywordExtractor {
	return &KeywordExtractor{settings: newSettings(model, opts)}
}

// Extract returns exactly domain.KeywordCount keywords in priority order.
func (k *KeywordExtractor) Extract(ctx context.Context, rec domain.ConversationRecord) ([]string, Outcome) {
	out := Outcome{Stage: domain.StageKeywords}

	text, elapsed, err := k.generate(ctx, ports.TextRequest{
		Stage:  domain.StageKeywords,
		System: keywordSystem,
		Prompt: keywordPrompt(rec),
		JSON:   true,
	})
	out.Duration = elapsed
	if err != nil {
		return k.fallback(ctx, out, err)
	}

	var payload struct {
		Keywords []string `json:"keywords"`
	}
	if err := decodeValidated(text, keywordsValidator, &payload); err != nil {
		return k.fallback(ctx, out, &domain.ModelError{Stage: domain.StageKeywords, Err: err})
	}

	keywords := NormalizeKeywords(payload.Keywords)
	if keywords == nil {
		return k.fallback(ctx, out, &domain.ModelError{Stage: domain.StageKeywords, Err: domain.ErrEmptyGeneration})
	}
	return keywords, out
}

func (k *KeywordExtractor) fallback(ctx context.Context, out Outcome, err error) ([]string, Outcome) {
	k.warnFallback(ctx, out.Stage, err)
	out.Err = err
	return append([]string(nil), FallbackKeywords...), out
}

// NormalizeKeywords trims, de-duplicates and truncates or pads raw to exactly
// domain.KeywordCount entries. It returns nil when raw holds no usable keyword.
func NormalizeKeywords(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	keywords := make([]string, 0, domain.KeywordCount)
	for _, kw := range raw {
		kw = strings.TrimSpace(kw)
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		keywords = append(keywords, kw)
		if len(keywords) == domain.KeywordCount {
			break
		}
	}
	if len(keywords) == 0 {
		return nil
	}
	for len(keywords) < domain.KeywordCount {
		keywords = append(keywords, KeywordFiller)
	}
	return keywords
}
