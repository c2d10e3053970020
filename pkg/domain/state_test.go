package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState(t *testing.T) *domain.State {
	t.Helper()
	var checklist map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"symptoms":["fever","cough"],"vitals":{"temp":38.5}}`), &checklist))

	s := domain.NewState("sess-1", checklist)
	s.Phase = domain.PhaseLead
	s.History = append(s.History,
		domain.TutorPrompt("summarize"),
		domain.TutorResponse("please summarize"),
		domain.StudentResponse("febrile cough"),
	)
	return s
}

func TestState_RoundTrip(t *testing.T) {
	original := sampleState(t)

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var parsed domain.State
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, *original, parsed)

	again, err := json.Marshal(parsed)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestState_WireShape(t *testing.T) {
	data, err := json.Marshal(sampleState(t))
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	for _, key := range []string{"checklist", "phase", "history", "report", "virtual_patient"} {
		assert.Contains(t, wire, key)
	}
	assert.Equal(t, "lead", wire["phase"])
}

func TestState_UnmarshalNormalizesRawHistory(t *testing.T) {
	payload := `{
		"checklist": {},
		"phase": "diff",
		"history": [
			{"role": "human", "content": "prompt"},
			{"type": "ai", "content": "reply"},
			"loose text",
			7
		],
		"report": "",
		"virtual_patient": ""
	}`

	var s domain.State
	require.NoError(t, json.Unmarshal([]byte(payload), &s))
	require.Len(t, s.History, 4)
	assert.Equal(t, domain.RoleHuman, s.History[0].Role)
	assert.Equal(t, domain.RoleAI, s.History[1].Role)
	assert.Equal(t, "loose text", s.History[2].Content)
	assert.Equal(t, domain.RoleHuman, s.History[3].Role)
	assert.Equal(t, "7", s.History[3].Content)
}

func TestState_UnknownPhaseSurvivesDecode(t *testing.T) {
	var s domain.State
	require.NoError(t, json.Unmarshal([]byte(`{"phase":"triage","history":[]}`), &s))
	assert.False(t, s.Phase.Valid())
	assert.Equal(t, "triage", s.RawPhase())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"phase":"triage"`)
}

func TestState_CloneIsDeep(t *testing.T) {
	s := sampleState(t)
	c := s.Clone()

	c.History = append(c.History, domain.TutorPrompt("extra"))
	c.History[0].Content = "changed"
	c.Checklist["vitals"].(map[string]any)["temp"] = 40.0
	c.Checklist["symptoms"].([]any)[0] = "chills"

	assert.Len(t, s.History, 3)
	assert.Equal(t, "summarize", s.History[0].Content)
	assert.Equal(t, 38.5, s.Checklist["vitals"].(map[string]any)["temp"])
	assert.Equal(t, "fever", s.Checklist["symptoms"].([]any)[0])
}

func TestState_IsBlank(t *testing.T) {
	var s domain.State
	require.NoError(t, json.Unmarshal([]byte(`{}`), &s))
	assert.True(t, s.IsBlank())
	assert.False(t, domain.NewState("", nil).IsBlank())
}

func TestState_Fingerprint(t *testing.T) {
	a := sampleState(t)
	a.SessionID = ""
	b := a.Clone()

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Contains(t, a.Fingerprint(), "case-")

	b.History = append(b.History, domain.StudentResponse("more"))
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	c := a.Clone()
	c.Phase = domain.PhaseOutputs
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
