package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/preceptor/pkg/domain"
)

// Placeholders understood by the templates.
const (
	PlaceholderChecklist = "{checklist}"
	PlaceholderLast      = "{last}"
)

// templates is indexed by domain.Phase. The output phase has no template: nothing is
// asked once the session is over.
var templates = [domain.NumPhases + 1]string{
	domain.PhaseSummary: `You are a clinical tutor.
Given the checklist, ask the student to summarize the findings.
Checklist: {checklist}`,

	domain.PhaseDifferential: `You are guiding differential diagnosis. Ask the student to provide 3-5 possible diagnoses
and the reasoning behind them.
Student reasoning so far: {last}`,

	domain.PhaseLead: `Help the student with diagnosis selection. Ask the student for the lead diagnosis and what supports or contradicts it. Do not provide answers.
Student reasoning so far: {last}`,

	domain.PhaseAlternatives: `Help the student with alternative diagnoses. Ask what those diagnoses may be, and for the reasoning to rule each option in or out. Do not provide answers.
Student reasoning so far: {last}`,

	domain.PhaseErrors: `Help the student reflect on biases and errors. Ask about possible biases and missing evidence. Do not provide answers.
Student reasoning so far: {last}`,

	domain.PhasePlan: `Help the student with the management plan. Ask about potential tests, treatments, follow-ups and their justification. Do not provide answers.
Student reasoning so far: {last}`,

	domain.PhaseFinalFeedback: `Reflect briefly on the session and the student's answers (no more than 2-3 sentences). Then thank them and tell them a report and a virtual patient will be created next. Give a brief overall feedback as a tutor. Do not ask any further question.
Student reasoning so far: {last}`,
}

// Template returns the prompt template of a phase.
// ok is false for the output phase and for invalid phases.
func Template(p domain.Phase) (tmpl string, ok bool) {
	if !p.Valid() {
		return "", false
	}
	tmpl = templates[p]
	return tmpl, tmpl != ""
}

// Render fills the phase template with the serialized checklist and the last history entry.
func Render(p domain.Phase, checklist map[string]any, last string) (string, error) {
	tmpl, ok := Template(p)
	if !ok {
		if !p.Valid() {
			return "", &domain.UnknownPhaseError{Value: p.String()}
		}
		return "", fmt.Errorf("phase %s has no prompt template", p)
	}

	serialized, err := SerializeChecklist(checklist)
	if err != nil {
		return "", err
	}

	r := strings.NewReplacer(
		PlaceholderChecklist, serialized,
		PlaceholderLast, last,
	)
	return r.Replace(tmpl), nil
}

// SerializeChecklist renders the checklist as indented JSON with sorted keys,
// so the same checklist always yields the same prompt.
func SerializeChecklist(checklist map[string]any) (string, error) {
	if checklist == nil {
		checklist = map[string]any{}
	}
	data, err := json.MarshalIndent(checklist, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize checklist: %w", err)
	}
	return string(data), nil
}
