package domain_test

import (
	"errors"
	"testing"

	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeMessage(t *testing.T) {
	tests := []struct {
		name      string
		entry     any
		want      domain.Message
		malformed bool
	}{
		{
			name:  "typed message",
			entry: domain.TutorResponse("hello"),
			want:  domain.Message{Role: domain.RoleAI, Content: "hello", Kind: domain.KindTutorResponse},
		},
		{
			name:  "role/content record",
			entry: map[string]any{"role": "assistant", "content": "hi"},
			want:  domain.Message{Role: domain.RoleAI, Content: "hi"},
		},
		{
			name:  "type/content record",
			entry: map[string]any{"type": "ai", "content": "from a graph dump"},
			want:  domain.Message{Role: domain.RoleAI, Content: "from a graph dump"},
		},
		{
			name:  "unknown role defaults to human",
			entry: map[string]any{"role": "narrator", "content": "x"},
			want:  domain.Message{Role: domain.RoleHuman, Content: "x"},
		},
		{
			name:  "kind preserved",
			entry: map[string]any{"role": "human", "content": "answer", "kind": "student-response"},
			want:  domain.StudentResponse("answer"),
		},
		{
			name:  "bare string",
			entry: "just text",
			want:  domain.Message{Role: domain.RoleHuman, Content: "just text"},
		},
		{
			name:      "missing role",
			entry:     map[string]any{"content": "orphan"},
			want:      domain.Message{Role: domain.RoleHuman, Content: "orphan"},
			malformed: true,
		},
		{
			name:      "unsupported shape",
			entry:     42,
			want:      domain.Message{Role: domain.RoleHuman, Content: "42"},
			malformed: true,
		},
		{
			name:      "null",
			entry:     nil,
			want:      domain.Message{Role: domain.RoleHuman},
			malformed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := domain.NormalizeMessage(tt.entry)
			assert.Equal(t, tt.want, got)
			if tt.malformed {
				assert.True(t, errors.Is(err, domain.ErrMalformedHistoryEntry), "expected malformed flag, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
