package domain

import "fmt"

// Phase is one step of the clinical-reasoning sequence.
// The zero value is not a valid phase.
type Phase uint8

const (
	PhaseInvalid Phase = iota
	PhaseSummary
	PhaseDifferential
	PhaseLead
	PhaseAlternatives
	PhaseErrors
	PhasePlan
	PhaseFinalFeedback
	PhaseOutputs
)

// NumPhases is the number of valid phases in the sequence.
const NumPhases = int(PhaseOutputs)

var phaseNames = [...]string{
	PhaseInvalid:       "",
	PhaseSummary:       "summary",
	PhaseDifferential:  "diff",
	PhaseLead:          "lead",
	PhaseAlternatives:  "alts",
	PhaseErrors:        "errors",
	PhasePlan:          "plan",
	PhaseFinalFeedback: "final_feedback",
	PhaseOutputs:       "outputs",
}

// Sequence returns the fixed phase order. The returned slice is a copy.
func Sequence() []Phase {
	seq := make([]Phase, 0, NumPhases)
	for p := PhaseSummary; p <= PhaseOutputs; p++ {
		seq = append(seq, p)
	}
	return seq
}

// FirstPhase is where every session starts.
func FirstPhase() Phase { return PhaseSummary }

// LastPhase is the terminal marker. The sequence never advances past it.
func LastPhase() Phase { return PhaseOutputs }

// Valid reports whether p is an element of the sequence.
func (p Phase) Valid() bool {
	return p >= PhaseSummary && p <= PhaseOutputs
}

// Next returns the phase immediately following p, clamped at the last phase.
func (p Phase) Next() Phase {
	if p >= PhaseOutputs {
		return PhaseOutputs
	}
	return p + 1
}

// IsTerminal reports whether p is the post-feedback output marker.
func (p Phase) IsTerminal() bool { return p == PhaseOutputs }

// IsFinalFeedback reports whether p is the one-way wrap-up phase.
// No student input is accepted during it.
func (p Phase) IsFinalFeedback() bool { return p == PhaseFinalFeedback }

// Index returns the zero-based position of p in the sequence, or -1 if invalid.
func (p Phase) Index() int {
	if !p.Valid() {
		return -1
	}
	return int(p) - 1
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) && p != PhaseInvalid {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// ParsePhase maps a wire identifier to its Phase.
func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if name != "" && name == s {
			return Phase(i), nil
		}
	}
	return PhaseInvalid, &UnknownPhaseError{Value: s}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, &UnknownPhaseError{Value: p.String()}
	}
	return []byte(phaseNames[p]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
