/*
Package preceptor is a clinical-reasoning tutor: a fixed sequence of phases
that walks a medical student from case summary to management plan, one model
call per turn, and ends with a case report and a virtual patient persona.

# Concept

The engine is stateless. Every turn takes the session state and the student's
answer and returns a new state plus the tutor's reply; the caller stores the
state (or sends it back to the client) between turns. The phases are

	summary → diff → lead → alts → errors → plan → final_feedback → outputs

Each phase renders a prompt from the catalog, asks the model gateway, and
appends prompt, reply and answer to the history. At outputs the session is
complete and the artifacts can be generated.

# Usage

	engine, err := preceptor.New(gateway, preceptor.WithSystemPrompt("tutor"))
	if err != nil {
		log.Fatal(err)
	}

	state := engine.Start("case-42", checklist)
	for !state.Phase.IsTerminal() {
		state, reply, err = engine.Advance(ctx, state, answer, "")
		...
	}
	arts, err := engine.Generate(ctx, state)

Gateways live under pkg/adapters (OpenAI-compatible APIs, Vertex AI, and a
scripted in-memory one); HTTP, MCP and terminal front ends are built on the
same engine.
*/
package preceptor
