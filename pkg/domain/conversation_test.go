package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestConversationRecord_Script(t *testing.T) {
	got := sampleRecord().Script()
	want := "user: 公園で遊んだ\nmodel: 楽しそう！何をしたの？"
	if got != want {
		t.Errorf("Script() = %q, want %q", got, want)
	}
}

func TestConversationRecord_Validate(t *testing.T) {
	tests := []struct {
		name string
		rec  ConversationRecord
		ok   bool
	}{
		{name: "Valid", rec: sampleRecord(), ok: true},
		{name: "Missing date", rec: ConversationRecord{Transcript: sampleRecord().Transcript}},
		{name: "Empty transcript", rec: ConversationRecord{Date: "2024-01-01"}},
		{name: "Unknown role", rec: ConversationRecord{Date: "2024-01-01", Transcript: []TranscriptEntry{{Role: "system", Text: "x"}}}},
		{name: "Blank text", rec: ConversationRecord{Date: "2024-01-01", Transcript: []TranscriptEntry{{Role: RoleUser, Text: "  "}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidRecord) {
				t.Fatalf("expected ErrInvalidRecord, got %v", err)
			}
		})
	}
}

func TestConversationRecord_Clone(t *testing.T) {
	rec := sampleRecord()
	c := rec.Clone()
	c.Transcript[0].Text = "changed"
	if rec.Transcript[0].Text != "公園で遊んだ" {
		t.Error("clone shares transcript with original")
	}
}

func TestLegacyRecord_ToConversation(t *testing.T) {
	legacy := LegacyRecord{
		Date:     "2024-01-01",
		Location: "公園",
		Activity: "すべり台",
		Feeling:  "たのしい",
	}
	rec := legacy.ToConversation()
	if err := rec.Validate(); err != nil {
		t.Fatalf("converted record invalid: %v", err)
	}
	if len(rec.Transcript) != 1 || rec.Transcript[0].Role != RoleUser {
		t.Fatalf("unexpected transcript %+v", rec.Transcript)
	}
	text := rec.Transcript[0].Text
	for _, want := range []string{"場所: 公園", "したこと: すべり台", "気持ち: たのしい"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in %q", want, text)
		}
	}
	if strings.Contains(text, "おまけ") {
		t.Errorf("empty fields should be skipped: %q", text)
	}
	if legacy.Empty() || !(LegacyRecord{Date: "x"}).Empty() {
		t.Error("Empty() misreports")
	}
}
