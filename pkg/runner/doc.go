/*
Package runner drives a tutoring session from a terminal or a pipe.

It is the bridge between the stateless engine and a person typing answers:
the runner advances the engine, shows each tutor reply through an IOHandler,
reads the student's answer, persists the state after every turn and, once the
output phase is reached, generates the case report and virtual patient.

# Key Components

  - Runner: the turn loop.
  - IOHandler: decouples how turns are shown and answers are read.
  - TextHandler: interactive CLI usage, with optional markdown rendering.
  - JSONHandler: JSON-Lines for scripting and other processes.
  - SanitizeInput: size and control-character checks shared by every adapter.

# Usage

	r := runner.NewRunner(
		runner.WithSessionID("case-42"),
		runner.WithStore(store),
		runner.WithGenerator(generator),
	)
	final, err := r.Run(ctx, engine, nil)
*/
package runner
