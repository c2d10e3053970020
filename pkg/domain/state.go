package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// State is the serializable record of one tutoring conversation.
// It is passed in and out of the engine on every call; the engine never holds it.
type State struct {
	// SessionID correlates turns at the boundary. The engine ignores it.
	SessionID string

	// Checklist holds the clinical findings supplied at session start. Immutable once set.
	Checklist map[string]any

	// Phase is the current position in the sequence.
	Phase Phase

	// History is the append-only audit trail.
	History []Message

	Report         string
	VirtualPatient string

	// Recovered marks a state whose unknown phase was clamped by the recovery policy.
	Recovered bool

	// rawPhase keeps the wire value when it did not parse, for error reporting.
	rawPhase string
}

// NewState creates a fresh session at the first phase with an empty history.
func NewState(sessionID string, checklist map[string]any) *State {
	if checklist == nil {
		checklist = make(map[string]any)
	}
	return &State{
		SessionID: sessionID,
		Checklist: checklist,
		Phase:     FirstPhase(),
		History:   []Message{},
	}
}

// RawPhase returns the phase as it appeared on the wire.
func (s *State) RawPhase() string {
	if s.Phase.Valid() {
		return s.Phase.String()
	}
	return s.rawPhase
}

// SetRawPhase records an unparsable phase value, leaving Phase invalid.
func (s *State) SetRawPhase(raw string) {
	s.Phase = PhaseInvalid
	s.rawPhase = raw
}

// IsBlank reports whether the state carries nothing yet (an empty wire mapping).
func (s *State) IsBlank() bool {
	return s.Phase == PhaseInvalid && s.rawPhase == "" && len(s.History) == 0
}

// Fingerprint derives a session id from the checklist, phase and history.
// Clients that omit session_id get the same id for the same conversation, so
// repeated submissions share one finalization claim and one artifact record.
func (s *State) Fingerprint() string {
	// Map keys marshal sorted, so equal content hashes equally.
	data, err := json.Marshal(struct {
		Checklist map[string]any `json:"checklist"`
		Phase     string         `json:"phase"`
		History   []Message      `json:"history"`
	}{s.Checklist, s.RawPhase(), s.History})
	if err != nil {
		data = []byte(fmt.Sprintf("%v|%s|%v", s.Checklist, s.RawPhase(), s.History))
	}
	sum := sha256.Sum256(data)
	return "case-" + hex.EncodeToString(sum[:12])
}

// LastContent returns the content of the final history entry, or "".
func (s *State) LastContent() string {
	if len(s.History) == 0 {
		return ""
	}
	return s.History[len(s.History)-1].Content
}

// Artifacts returns the generated report and persona.
func (s *State) Artifacts() Artifacts {
	return Artifacts{Report: s.Report, VirtualPatient: s.VirtualPatient}
}

// HasArtifacts reports whether artifact generation already ran for this state.
func (s *State) HasArtifacts() bool {
	return s.Report != "" || s.VirtualPatient != ""
}

// Clone returns a deep copy safe for independent mutation.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	next := *s
	next.Checklist = cloneMap(s.Checklist)
	if s.History != nil {
		next.History = make([]Message, len(s.History), len(s.History)+3)
		copy(next.History, s.History)
	}
	return &next
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// stateWire is the mapping exchanged with the boundary layer each turn.
type stateWire struct {
	SessionID      string         `json:"session_id,omitempty"`
	Checklist      map[string]any `json:"checklist"`
	Phase          string         `json:"phase"`
	History        []Message      `json:"history"`
	Report         string         `json:"report"`
	VirtualPatient string         `json:"virtual_patient"`
	Recovered      bool           `json:"recovered,omitempty"`
}

// stateWireIn accepts raw history records, which are normalized on decode.
type stateWireIn struct {
	SessionID      string         `json:"session_id,omitempty"`
	Checklist      map[string]any `json:"checklist"`
	Phase          string         `json:"phase"`
	History        []any          `json:"history"`
	Report         string         `json:"report"`
	VirtualPatient string         `json:"virtual_patient"`
	Recovered      bool           `json:"recovered,omitempty"`
}

// MarshalJSON encodes the wire mapping.
func (s State) MarshalJSON() ([]byte, error) {
	history := s.History
	if history == nil {
		history = []Message{}
	}
	return json.Marshal(stateWire{
		SessionID:      s.SessionID,
		Checklist:      s.Checklist,
		Phase:          s.RawPhase(),
		History:        history,
		Report:         s.Report,
		VirtualPatient: s.VirtualPatient,
		Recovered:      s.Recovered,
	})
}

// UnmarshalJSON decodes the wire mapping. Unknown phases are kept for the engine
// to reject or recover; malformed history entries become human messages.
func (s *State) UnmarshalJSON(data []byte) error {
	var in stateWireIn
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("invalid session state: %w", err)
	}

	next := State{
		SessionID:      in.SessionID,
		Checklist:      in.Checklist,
		History:        make([]Message, 0, len(in.History)),
		Report:         in.Report,
		VirtualPatient: in.VirtualPatient,
		Recovered:      in.Recovered,
	}
	if in.Phase == "" {
		next.SetRawPhase("")
	} else if p, err := ParsePhase(in.Phase); err == nil {
		next.Phase = p
	} else {
		next.SetRawPhase(in.Phase)
	}

	for _, entry := range in.History {
		// Recovery is silent here; the entry is kept as a human message.
		msg, _ := NormalizeMessage(entry)
		next.History = append(next.History, msg)
	}

	*s = next
	return nil
}

// Artifacts are the two terminal outputs of a session.
type Artifacts struct {
	Report         string `json:"report"`
	VirtualPatient string `json:"virtual_patient"`
}

// Empty reports whether neither artifact was produced.
func (a Artifacts) Empty() bool {
	return a.Report == "" && a.VirtualPatient == ""
}
