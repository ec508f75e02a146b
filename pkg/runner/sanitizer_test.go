package runner

import (
	"errors"
	"strings"
	"testing"

	"github.com/hirokts/enikki/pkg/domain"
)

func TestSanitizeInput_SizeLimit(t *testing.T) {
	limit := DefaultMaxInputSize

	tests := []struct {
		name      string
		inputSize int
		wantErr   bool
	}{
		{"Under Limit", limit - 1, false},
		{"Exact Limit", limit, false},
		{"Over Limit", limit + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SanitizeInput(strings.Repeat("a", tt.inputSize))
			if tt.wantErr && !errors.Is(err, ErrInputTooLarge) {
				t.Errorf("SanitizeInput() expected ErrInputTooLarge for size %d, got %v", tt.inputSize, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("SanitizeInput() unexpected error: %v", err)
			}
		})
	}
}

func TestSanitizeInput_ControlChars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Japanese Text", "公園で遊んだ", "公園で遊んだ"},
		{"Safe Controls", "一行目\n二行目\tタブ", "一行目\n二行目\tタブ"},
		{"ANSI Code", "\x1b[31mRed\x1b[0m", "[31mRed[0m"},
		{"Null Byte", "Null\x00Byte", "NullByte"},
		{"Bell", "Ding\x07", "Ding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeInput(tt.input)
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestSanitizeInput_EnvOverride(t *testing.T) {
	t.Setenv(EnvMaxInputSize, "10")

	if _, err := SanitizeInput("12345678901"); err == nil {
		t.Error("Expected error for input > 10 when env var is set")
	}
	if _, err := SanitizeInput("12345"); err != nil {
		t.Error("Unexpected error for valid input")
	}
}

func TestSanitizeInput_InvalidUTF8(t *testing.T) {
	_, err := SanitizeInput("\xbd\xb2\x3d\xbc\x20\xe2\x8c\x98")
	if err != ErrInvalidUTF8 {
		t.Errorf("Expected ErrInvalidUTF8, got %v", err)
	}
}

func TestSanitizeRecord(t *testing.T) {
	rec := domain.ConversationRecord{
		Date: "2024-01-01",
		Transcript: []domain.TranscriptEntry{
			{Role: domain.RoleUser, Text: "公園\x07で遊んだ"},
			{Role: domain.RoleModel, Text: "いいね"},
		},
	}

	clean, err := SanitizeRecord(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clean.Transcript[0].Text != "公園で遊んだ" {
		t.Errorf("control char not stripped: %q", clean.Transcript[0].Text)
	}
	if rec.Transcript[0].Text != "公園\x07で遊んだ" {
		t.Error("input record was modified")
	}

	rec.Transcript[1].Text = "\xbd\xb2"
	if _, err := SanitizeRecord(rec); !errors.Is(err, ErrInvalidUTF8) {
		t.Errorf("expected ErrInvalidUTF8, got %v", err)
	}
}
