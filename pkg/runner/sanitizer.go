package runner

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hirokts/enikki/pkg/domain"
)

var (
	// DefaultMaxInputSize bounds a single transcript entry (16KB).
	DefaultMaxInputSize = 16 * 1024
	// DefaultMaxTranscriptSize bounds the whole transcript (256KB).
	DefaultMaxTranscriptSize = 256 * 1024
	// EnvMaxInputSize is the environment variable to override the per-entry limit
	EnvMaxInputSize = "ENIKKI_MAX_INPUT_SIZE"
)

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// SanitizeInput cleans user input by enforcing size limits,
// validating UTF-8, and stripping dangerous control characters.
func SanitizeInput(input string) (string, error) {
	// 1. Enforce Size Limit
	limit := getMaxInputSize()
	if len(input) > limit {
		// Reject rather than truncate so the transcript never changes silently.
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}

	// 2. Validate UTF-8
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	// 3. Strip Control Characters
	// Newline, tab and carriage return are kept; ESC, NULL, BEL etc. are removed
	// so transcripts cannot poison logs or prompts.
	clean := true
	for _, r := range input {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return input, nil
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unicode.IsControl(r) || isSafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// SanitizeRecord applies SanitizeInput to every transcript entry and bounds the
// transcript as a whole. The input record is not modified.
func SanitizeRecord(rec domain.ConversationRecord) (domain.ConversationRecord, error) {
	out := rec.Clone()
	total := 0
	for i, e := range out.Transcript {
		clean, err := SanitizeInput(e.Text)
		if err != nil {
			return domain.ConversationRecord{}, fmt.Errorf("transcript entry %d: %w", i, err)
		}
		total += len(clean)
		if total > DefaultMaxTranscriptSize {
			return domain.ConversationRecord{}, fmt.Errorf("%w: transcript size limit=%d", ErrInputTooLarge, DefaultMaxTranscriptSize)
		}
		out.Transcript[i].Text = clean
	}
	return out, nil
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}

func getMaxInputSize() int {
	if val := os.Getenv(EnvMaxInputSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxInputSize
}
