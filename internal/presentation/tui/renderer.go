package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/hirokts/enikki/pkg/domain"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"
)

const defaultWidth = 80

// NewRenderer returns a function that renders markdown using glamour.
// When stdout is not a terminal it falls back to plain word-wrapped text.
func NewRenderer() func(string) (string, error) {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return Plain(defaultWidth)
	}

	width := defaultWidth
	if w, _, err := term.GetSize(fd); err == nil && w > 0 {
		width = w
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return Plain(width)
	}
	return r.Render
}

// Plain wraps markdown at width without styling.
func Plain(width int) func(string) (string, error) {
	return func(markdown string) (string, error) {
		return wordwrap.String(markdown, width), nil
	}
}

// DiaryMarkdown formats a stored run for display.
func DiaryMarkdown(doc domain.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# 📔 %s\n\n", doc.Date)
	fmt.Fprintf(&b, "_status: %s", doc.Status)
	if doc.QualityScore != nil {
		fmt.Fprintf(&b, " · quality: %.2f", *doc.QualityScore)
	}
	fmt.Fprintf(&b, " · retries: %d_\n\n", doc.RetryCount)

	if doc.DiaryText != "" {
		b.WriteString(doc.DiaryText)
		b.WriteString("\n\n")
	}
	if len(doc.Keywords) > 0 {
		fmt.Fprintf(&b, "🏷️ %s\n\n", strings.Join(doc.Keywords, " / "))
	}
	if doc.ImageURL != nil && *doc.ImageURL != "" {
		fmt.Fprintf(&b, "![%s](%s)\n\n", doc.Date, *doc.ImageURL)
	}
	if doc.Error != nil && *doc.Error != "" {
		fmt.Fprintf(&b, "> %s\n", strings.ReplaceAll(*doc.Error, "\n", "\n> "))
	}
	return b.String()
}
