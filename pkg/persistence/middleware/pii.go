package middleware

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/aretw0/preceptor/pkg/ports"
)

// Mask replaces every value the PII middleware redacts.
const Mask = "***"

type piiMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks checklist values whose key
// matches one of the patterns. Masked string values are also scrubbed from the
// history, since the rendered prompts embed the checklist. Masking is one-way:
// Load returns the redacted state.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pii pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.StateStore) ports.StateStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, state *domain.State) error {
	// The engine still holds state; redact a copy.
	cloned := state.Clone()

	var secrets []string
	maskMap(cloned.Checklist, m.patterns, &secrets)
	if len(secrets) > 0 {
		r := strings.NewReplacer(pairs(secrets)...)
		for i := range cloned.History {
			cloned.History[i].Content = r.Replace(cloned.History[i].Content)
		}
	}
	return m.next.Save(ctx, sessionID, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.State, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// Helpers

func maskMap(m map[string]any, patterns []*regexp.Regexp, secrets *[]string) {
	for k, v := range m {
		if matchesAny(k, patterns) {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				*secrets = append(*secrets, s)
			}
			m[k] = Mask
			continue
		}
		maskValue(v, patterns, secrets)
	}
}

func maskValue(v any, patterns []*regexp.Regexp, secrets *[]string) {
	switch val := v.(type) {
	case map[string]any:
		maskMap(val, patterns, secrets)
	case []any:
		for _, item := range val {
			maskValue(item, patterns, secrets)
		}
	}
}

func matchesAny(s string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func pairs(secrets []string) []string {
	out := make([]string, 0, 2*len(secrets))
	for _, s := range secrets {
		out = append(out, s, Mask)
	}
	return out
}
