package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/preceptor/pkg/domain"
)

// Overlay marks the progress of one session on the phase diagram.
type Overlay struct {
	Current   domain.Phase
	Recovered bool
}

// OverlayFor builds the overlay of a session state.
func OverlayFor(state *domain.State) *Overlay {
	if state == nil {
		return nil
	}
	return &Overlay{Current: state.Phase, Recovered: state.Recovered}
}

// GenerateMermaid produces a Mermaid flowchart of the phase sequence.
// Shapes follow the role of each phase:
// - First phase: ((Circle))
// - Phases that wait for a student answer: [/Parallelogram/]
// - Final feedback, which ignores the answer: [Rectangle]
// - Output phase, where the artifacts are produced: [[Subroutine]]
// Phases before the current one are styled as visited.
func GenerateMermaid(overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	seq := domain.Sequence()
	for i, p := range seq {
		opener, closer := "[/", "/]"
		switch {
		case p == domain.FirstPhase():
			opener, closer = "((", "))"
		case p.IsTerminal():
			opener, closer = "[[", "]]"
		case p.IsFinalFeedback():
			opener, closer = "[", "]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", mermaidID(p), opener, p, closer)

		if i+1 < len(seq) {
			next := seq[i+1]
			arrow := "-->"
			if next.IsTerminal() {
				arrow = "-- \"report + persona\" -->"
			}
			fmt.Fprintf(&sb, "    %s %s %s\n", mermaidID(p), arrow, mermaidID(next))
		}
	}

	if overlay == nil || !overlay.Current.Valid() {
		return sb.String()
	}

	sb.WriteString("\n    %% Overlay Styles\n")
	// Black text keeps contrast on both light and dark themes.
	sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
	sb.WriteString("    classDef recovered fill:#ffcdd2,stroke:#b71c1c,stroke-width:4px,color:#000;\n")

	for _, p := range seq {
		if p >= overlay.Current {
			break
		}
		fmt.Fprintf(&sb, "    class %s visited;\n", mermaidID(p))
	}
	class := "current"
	if overlay.Recovered {
		class = "recovered"
	}
	fmt.Fprintf(&sb, "    class %s %s;\n", mermaidID(overlay.Current), class)
	return sb.String()
}

func mermaidID(p domain.Phase) string {
	return "phase_" + p.String()
}
