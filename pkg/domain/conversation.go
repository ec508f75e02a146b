package domain

import (
	"fmt"
	"strings"
)

// Role identifies the speaker of a transcript entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Valid reports whether r is a known speaker role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// TranscriptEntry is a single utterance of the recorded conversation.
// Timestamp is expressed in epoch milliseconds.
type TranscriptEntry struct {
	Role      Role   `json:"role" mapstructure:"role"`
	Text      string `json:"text" mapstructure:"text"`
	Timestamp int64  `json:"timestamp" mapstructure:"timestamp"`
}

// ConversationRecord is the input of a single run. It is owned by the caller
// and never modified by the pipeline.
type ConversationRecord struct {
	Date               string            `json:"date"`
	Transcript         []TranscriptEntry `json:"transcript"`
	NotificationTarget string            `json:"notificationTarget,omitempty"`
}

// Validate checks that the record carries enough material to write a diary.
func (c ConversationRecord) Validate() error {
	if strings.TrimSpace(c.Date) == "" {
		return fmt.Errorf("%w: date is required", ErrInvalidRecord)
	}
	if len(c.Transcript) == 0 {
		return fmt.Errorf("%w: transcript is empty", ErrInvalidRecord)
	}
	spoken := false
	for i, e := range c.Transcript {
		if !e.Role.Valid() {
			return fmt.Errorf("%w: entry %d has unknown role %q", ErrInvalidRecord, i, e.Role)
		}
		if strings.TrimSpace(e.Text) != "" {
			spoken = true
		}
	}
	if !spoken {
		return fmt.Errorf("%w: transcript has no text", ErrInvalidRecord)
	}
	return nil
}

// Clone returns a copy that shares no slices with c.
func (c ConversationRecord) Clone() ConversationRecord {
	out := c
	out.Transcript = append([]TranscriptEntry(nil), c.Transcript...)
	return out
}

// Script flattens the transcript into role-labeled lines, preserving order.
func (c ConversationRecord) Script() string {
	var b strings.Builder
	for i, e := range c.Transcript {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(e.Role))
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(e.Text))
	}
	return b.String()
}

// LegacyRecord is the flat request shape accepted before transcripts existed.
type LegacyRecord struct {
	Date     string `json:"date" mapstructure:"date"`
	Location string `json:"location" mapstructure:"location"`
	Activity string `json:"activity" mapstructure:"activity"`
	Feeling  string `json:"feeling" mapstructure:"feeling"`
	Summary  string `json:"summary" mapstructure:"summary"`
	JokeHint string `json:"joke_hint,omitempty" mapstructure:"joke_hint"`
}

// Empty reports whether none of the descriptive fields are set.
func (l LegacyRecord) Empty() bool {
	return strings.TrimSpace(l.Location+l.Activity+l.Feeling+l.Summary+l.JokeHint) == ""
}

// ToConversation converts the flat shape into a single-entry user transcript.
func (l LegacyRecord) ToConversation() ConversationRecord {
	fields := []struct{ label, value string }{
		{"場所", l.Location},
		{"したこと", l.Activity},
		{"気持ち", l.Feeling},
		{"まとめ", l.Summary},
		{"おまけ", l.JokeHint},
	}

	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		if v := strings.TrimSpace(f.value); v != "" {
			lines = append(lines, f.label+": "+v)
		}
	}

	return ConversationRecord{
		Date: l.Date,
		Transcript: []TranscriptEntry{
			{Role: RoleUser, Text: strings.Join(lines, "\n")},
		},
	}
}
