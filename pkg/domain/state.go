package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status is the externally visible lifecycle of a run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next keeps the status monotonic.
// Staying in the same status is always allowed.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// Step names a node of the workflow.
type Step string

const (
	StepExtractKeywords Step = "extract_keywords"
	StepGenerateDiary   Step = "generate_diary"
	StepCheckQuality    Step = "check_quality"
	StepIncrementRetry  Step = "increment_retry"
	StepForceAccept     Step = "force_accept"
	StepGenerateImage   Step = "generate_image"
	StepSaveResult      Step = "save_result"
	StepDone            Step = "done"
)

// Stage names an external call made by a node.
type Stage string

const (
	StageKeywords Stage = "keywords"
	StageDiary    Stage = "diary"
	StageQuality  Stage = "quality"
	StageScene    Stage = "scene"
	StageImage    Stage = "image"
	StageUpload   Stage = "upload"
)

// PipelineState is the value passed from node to node during a run.
// Every transition method returns a new value; the receiver is never modified.
type PipelineState struct {
	RunID        string
	Conversation ConversationRecord
	Keywords     []string
	DiaryText    string
	QualityScore *float64
	RetryCount   int
	ImageURL     string
	Status       Status
	Error        string
	Fallbacks    []Stage
	History      []Step
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewPipelineState creates the initial state for a run.
func NewPipelineState(runID string, rec ConversationRecord, now time.Time) PipelineState {
	return PipelineState{
		RunID:        runID,
		Conversation: rec.Clone(),
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// clone returns a copy that shares no slices or pointers with s.
func (s PipelineState) clone() PipelineState {
	out := s
	out.Conversation = s.Conversation.Clone()
	if s.Keywords != nil {
		out.Keywords = append([]string(nil), s.Keywords...)
	}
	if s.QualityScore != nil {
		v := *s.QualityScore
		out.QualityScore = &v
	}
	out.Fallbacks = append([]Stage(nil), s.Fallbacks...)
	out.History = append([]Step(nil), s.History...)
	return out
}

// Visit records that the engine entered step.
func (s PipelineState) Visit(step Step) PipelineState {
	out := s.clone()
	out.History = append(out.History, step)
	return out
}

// Start moves a pending run into processing.
func (s PipelineState) Start(now time.Time) PipelineState {
	out := s.clone()
	out.Status = StatusProcessing
	out.UpdatedAt = now
	return out
}

// WithKeywords stores the extracted keywords.
func (s PipelineState) WithKeywords(keywords []string) PipelineState {
	out := s.clone()
	out.Keywords = append([]string(nil), keywords...)
	return out
}

// WithDiary replaces the diary text. A regenerated text invalidates the previous score.
func (s PipelineState) WithDiary(text string) PipelineState {
	out := s.clone()
	out.DiaryText = text
	out.QualityScore = nil
	return out
}

// WithQuality records the score of the current diary text.
func (s PipelineState) WithQuality(score float64) PipelineState {
	out := s.clone()
	out.QualityScore = &score
	return out
}

// IncrementRetry counts one more regeneration.
func (s PipelineState) IncrementRetry() PipelineState {
	out := s.clone()
	out.RetryCount++
	return out
}

// ForceAccept keeps the current text after retries ran out and explains why.
func (s PipelineState) ForceAccept() PipelineState {
	out := s.clone()
	out.Error = appendNote(out.Error, fmt.Sprintf("品質チェックに%d回失敗しましたが、現在のテキストで完了しました。", s.RetryCount+1))
	return out
}

// WithFallback records that stage substituted a default value.
func (s PipelineState) WithFallback(stage Stage, note string) PipelineState {
	out := s.clone()
	out.Fallbacks = append(out.Fallbacks, stage)
	out.Error = appendNote(out.Error, note)
	return out
}

// WithImage sets the illustration URL. It is set once per run.
func (s PipelineState) WithImage(url string) PipelineState {
	out := s.clone()
	out.ImageURL = url
	return out
}

// Complete marks the run completed.
func (s PipelineState) Complete(now time.Time) PipelineState {
	out := s.clone()
	out.Status = StatusCompleted
	out.UpdatedAt = now
	return out
}

// Fail marks the run failed with reason.
func (s PipelineState) Fail(reason string, now time.Time) PipelineState {
	out := s.clone()
	out.Status = StatusFailed
	out.Error = appendNote(out.Error, reason)
	out.UpdatedAt = now
	return out
}

// UsedFallback reports whether stage substituted a default value during the run.
func (s PipelineState) UsedFallback(stage Stage) bool {
	for _, f := range s.Fallbacks {
		if f == stage {
			return true
		}
	}
	return false
}

// Check verifies every invariant of the state against the configured retry limit.
func (s PipelineState) Check(maxRetries int) error {
	if !s.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvariant, s.Status)
	}
	if s.RetryCount < 0 || s.RetryCount > maxRetries {
		return fmt.Errorf("%w: retry count %d outside [0, %d]", ErrInvariant, s.RetryCount, maxRetries)
	}
	if s.Keywords != nil && len(s.Keywords) != KeywordCount {
		return fmt.Errorf("%w: %d keywords, want %d", ErrInvariant, len(s.Keywords), KeywordCount)
	}
	if s.QualityScore != nil && s.DiaryText == "" {
		return fmt.Errorf("%w: quality score without diary text", ErrInvariant)
	}
	if s.ImageURL != "" && s.QualityScore == nil {
		return fmt.Errorf("%w: image set before quality was scored", ErrInvariant)
	}
	if s.Status == StatusCompleted && (s.DiaryText == "" || s.ImageURL == "") {
		return fmt.Errorf("%w: completed without diary text or image", ErrInvariant)
	}
	return nil
}

func appendNote(existing, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return existing
	}
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
