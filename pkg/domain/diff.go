package domain

// StateDiff represents the changes between two states.
// It is designed to be serialized to JSON for partial updates on the client.
type StateDiff struct {
	SessionID string `json:"session_id"`

	Phase *Phase `json:"phase,omitempty"`

	// Appended holds the history entries added since the old state.
	// History is append-only, so a suffix is all a client needs.
	Appended []Message `json:"appended,omitempty"`

	// Artifacts is set once the report and persona become available.
	Artifacts *Artifacts `json:"artifacts,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState (initial load).
// It returns nil when nothing changed.
func Diff(oldState, newState *State) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{SessionID: newState.SessionID}
	changed := false

	if oldState == nil || oldState.Phase != newState.Phase {
		p := newState.Phase
		diff.Phase = &p
		changed = true
	}

	start := 0
	if oldState != nil {
		start = len(oldState.History)
	}
	if start < len(newState.History) {
		diff.Appended = append([]Message(nil), newState.History[start:]...)
		changed = true
	}

	if newState.HasArtifacts() && (oldState == nil || !oldState.HasArtifacts()) {
		a := newState.Artifacts()
		diff.Artifacts = &a
		changed = true
	}

	if !changed {
		return nil
	}
	return diff
}
