package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct{ text, color string }{
	{"             _ _    _    _ ", "#fbbf24"},
	{"   ___ _ __ (_) | _| | _(_)", "#fb923c"},
	{"  / _ \\ '_ \\| | |/ / |/ / |", "#f97316"},
	{" |  __/ | | | |   <|   <| |", "#fb7185"},
	{"  \\___|_| |_|_|_|\\_\\_|\\_\\_|", "#f472b6"},
}

// PrintBanner writes the startup banner with a warm gradient.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	if version != "" {
		fmt.Fprintln(w, out.String("  絵日記 "+version).Faint())
	}
	fmt.Fprintln(w)
}
