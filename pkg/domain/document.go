package domain

import "time"

// Document is the persisted view of a run, keyed by its id.
type Document struct {
	ID           string    `json:"id" mapstructure:"id"`
	Status       Status    `json:"status" mapstructure:"status"`
	Date         string    `json:"date" mapstructure:"date"`
	Keywords     []string  `json:"keywords" mapstructure:"keywords"`
	DiaryText    string    `json:"diaryText" mapstructure:"diary_text"`
	ImageURL     *string   `json:"imageUrl" mapstructure:"image_url"`
	Error        *string   `json:"error" mapstructure:"error"`
	RetryCount   int       `json:"retryCount" mapstructure:"retry_count"`
	QualityScore *float64  `json:"qualityScore" mapstructure:"quality_score"`
	CreatedAt    time.Time `json:"createdAt" mapstructure:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" mapstructure:"updated_at"`
}

// NewPendingDocument is written as soon as a run is accepted.
func NewPendingDocument(runID, date string, now time.Time) Document {
	return Document{
		ID:        runID,
		Status:    StatusPending,
		Date:      date,
		Keywords:  []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DocumentFromState derives the stored document from a pipeline state.
// The result depends on the state alone, so writing the same state twice
// yields the same document.
func DocumentFromState(s PipelineState) Document {
	doc := Document{
		ID:         s.RunID,
		Status:     s.Status,
		Date:       s.Conversation.Date,
		Keywords:   append([]string{}, s.Keywords...),
		DiaryText:  s.DiaryText,
		RetryCount: s.RetryCount,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
	if s.ImageURL != "" {
		url := s.ImageURL
		doc.ImageURL = &url
	}
	if s.Error != "" {
		msg := s.Error
		doc.Error = &msg
	}
	if s.QualityScore != nil {
		score := *s.QualityScore
		doc.QualityScore = &score
	}
	return doc
}

// WithStatus returns a copy moved to status at now.
// Non-monotonic moves leave the document unchanged.
func (d Document) WithStatus(status Status, now time.Time) Document {
	if !d.Status.CanTransition(status) {
		return d
	}
	out := d
	out.Keywords = append([]string{}, d.Keywords...)
	out.Status = status
	out.UpdatedAt = now
	return out
}

// Failed returns a copy in the failed status carrying reason.
func (d Document) Failed(reason string, now time.Time) Document {
	out := d.WithStatus(StatusFailed, now)
	if out.Status != StatusFailed {
		return out
	}
	msg := appendNote(stringValue(d.Error), reason)
	out.Error = &msg
	return out
}

func stringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Notification is the payload handed to the notification dispatcher.
type Notification struct {
	RunID    string
	Title    string
	Body     string
	ImageURL string
	Keywords []string
}

// NotificationFromState builds the completion notice for a finished run.
func NotificationFromState(s PipelineState) Notification {
	return Notification{
		RunID:    s.RunID,
		Title:    s.Conversation.Date,
		Body:     s.DiaryText,
		ImageURL: s.ImageURL,
		Keywords: append([]string(nil), s.Keywords...),
	}
}
