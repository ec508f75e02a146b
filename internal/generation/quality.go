package generation

import (
	"context"
	"math"

	"github.com/hirokts/enikki/pkg/domain"
	"github.com/hirokts/enikki/pkg/ports"
)

// Assessment is the quality gate's verdict on a diary text.
type Assessment struct {
	Score       float64 `json:"score"`
	Tone        float64 `json:"tone"`
	Emotion     float64 `json:"emotion"`
	Length      float64 `json:"length"`
	Naturalness float64 `json:"naturalness"`
	Comment     string  `json:"comment"`
}

// QualityGate scores a diary text. It fails open: when scoring is impossible
// the configured fallback score is reported.
type QualityGate struct {
	settings
}

// NewQualityGate creates a gate backed by model.
func NewQualityGate(model ports.ModelClient, opts ...Option) *QualityGate {
	return &QualityGate{settings: newSettings(model, opts)}
}

// Assess returns a score within [0, 1].
func (g *QualityGate) Assess(ctx context.Context, text string, keywords []string) (Assessment, Outcome) {
	out := Outcome{Stage: domain.StageQuality}

	raw, elapsed, err := g.generate(ctx, ports.TextRequest{
		Stage:  domain.StageQuality,
		System: qualitySystem,
		Prompt: qualityPrompt(text, keywords),
		JSON:   true,
	})
	out.Duration = elapsed

	var a Assessment
	if err == nil {
		if derr := decodeValidated(raw, qualityValidator, &a); derr != nil {
			err = &domain.ModelError{Stage: domain.StageQuality, Err: derr}
		}
	}
	if err != nil {
		g.warnFallback(ctx, out.Stage, err)
		out.Err = err
		return Assessment{Score: g.fallbackScore}, out
	}

	a.Score = clamp01(a.Score)
	g.logger.DebugContext(ctx, "Diary assessed", "score", a.Score, "comment", a.Comment)
	return a, out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
