package artifact

import (
	"strings"
)

// DefaultForbiddenMarkers are labels that must never reach a generated persona.
var DefaultForbiddenMarkers = []string{
	"diagnosis",
	"diagnoses",
	"differential",
	"ddx",
	"management plan",
	"learning plan",
	"treatment plan",
	"learning objective",
	"tutor",
	"student",
	"bias",
}

// PersonaFilter drops every line of a persona that mentions a forbidden marker.
// Matching is case-insensitive.
type PersonaFilter struct {
	markers []string
}

// NewPersonaFilter builds a filter over the given markers.
func NewPersonaFilter(markers ...string) *PersonaFilter {
	f := &PersonaFilter{markers: make([]string, 0, len(markers))}
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			f.markers = append(f.markers, m)
		}
	}
	return f
}

// DefaultPersonaFilter uses DefaultForbiddenMarkers.
func DefaultPersonaFilter() *PersonaFilter {
	return NewPersonaFilter(DefaultForbiddenMarkers...)
}

// Apply returns text without the offending lines and how many were dropped.
func (f *PersonaFilter) Apply(text string) (string, int) {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	dropped := 0
	for _, line := range lines {
		if f.Violates(line) {
			dropped++
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n")), dropped
}

// Violates reports whether s contains any forbidden marker.
func (f *PersonaFilter) Violates(s string) bool {
	lower := strings.ToLower(s)
	for _, m := range f.markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
