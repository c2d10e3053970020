package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aretw0/preceptor/pkg/ports"
)

// ErrScriptExhausted is returned by a scripted gateway with no responses left.
var ErrScriptExhausted = errors.New("scripted gateway has no responses left")

// Gateway is an in-process ports.Gateway. It either replays a script of canned
// responses or derives a deterministic reply from the prompt. It records every request.
type Gateway struct {
	mu        sync.Mutex
	script    []string
	scripted  bool
	failNext  error
	failAfter int
	calls     []ports.CompletionRequest
}

// NewScriptedGateway returns responses in order, then fails with ErrScriptExhausted.
func NewScriptedGateway(responses ...string) *Gateway {
	return &Gateway{script: append([]string(nil), responses...), scripted: true, failAfter: -1}
}

// NewEchoGateway answers every prompt with its first line, marked "[offline]".
// It is used for offline runs and demos when no model backend is configured.
func NewEchoGateway() *Gateway {
	return &Gateway{failAfter: -1}
}

// FailNext makes the next call return err.
func (g *Gateway) FailNext(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = err
}

// FailAfter lets the first n calls through and fails every later one.
func (g *Gateway) FailAfter(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failAfter = n
}

// Complete implements ports.Gateway.
func (g *Gateway) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, req)

	if g.failNext != nil {
		err := g.failNext
		g.failNext = nil
		return "", err
	}
	if g.failAfter >= 0 && len(g.calls) > g.failAfter {
		return "", fmt.Errorf("scripted failure after %d calls", g.failAfter)
	}

	if g.scripted {
		if len(g.script) == 0 {
			return "", ErrScriptExhausted
		}
		next := g.script[0]
		g.script = g.script[1:]
		return next, nil
	}
	return echo(req.Prompt), nil
}

// Calls returns a copy of the recorded requests.
func (g *Gateway) Calls() []ports.CompletionRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ports.CompletionRequest(nil), g.calls...)
}

func echo(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return "[offline] " + line
		}
	}
	return "[offline] Please continue."
}
