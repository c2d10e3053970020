package tui

import (
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// DefaultWordWrap is used when the terminal width is unknown.
const DefaultWordWrap = 100

// NewRenderer returns a function that renders markdown using glamour,
// wrapped to the width of the terminal when there is one.
func NewRenderer() func(string) (string, error) {
	return newRenderer(glamour.WithAutoStyle()) // Automatically detect light/dark background
}

func newRenderer(style glamour.TermRendererOption) func(string) (string, error) {
	width := DefaultWordWrap
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		width = w - 4
	}

	r, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// IsInteractive reports whether both stdin and stdout are terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
