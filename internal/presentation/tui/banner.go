package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the Preceptor banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"  ___                     _           ", "#34d399"},
		{" | _ \\_ _ ___ __ ___ _ __| |_ ___ _ _ ", "#2dd4bf"},
		{" |  _/ '_/ -_) _/ -_) '_ \\  _/ _ \\ '_|", "#22d3ee"},
		{" |_| |_| \\___\\__\\___| .__/\\__\\___/_|  ", "#38bdf8"},
		{"                    |_|               ", "#60a5fa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  clinical reasoning tutor").Faint())
	fmt.Fprintln(w)
}
