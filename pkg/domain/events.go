package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventPhaseEnter     EventType = "phase_enter"
	EventPhaseLeave     EventType = "phase_leave"
	EventPhaseRecovered EventType = "phase_recovered"
	EventGatewayCall    EventType = "gateway_call"
	EventGatewayReturn  EventType = "gateway_return"
	EventArtifacts      EventType = "artifacts"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
}

// PhaseEvent represents a move through the phase sequence.
type PhaseEvent struct {
	EventBase
	Phase Phase `json:"phase"`
	// Raw is set for recovery events, holding the unparsable value.
	Raw string `json:"raw,omitempty"`
}

// GatewayEvent represents a model gateway call.
// Operation is the phase name for tutor turns, or "report"/"persona" for artifacts.
type GatewayEvent struct {
	EventBase
	Operation string        `json:"operation"`
	Duration  time.Duration `json:"duration,omitempty"`
	IsError   bool          `json:"is_error,omitempty"`
}

// ArtifactEvent reports the outcome of artifact generation.
type ArtifactEvent struct {
	EventBase
	Artifacts Artifacts     `json:"artifacts"`
	Duration  time.Duration `json:"duration,omitempty"`
	Err       error         `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnPhaseEnter     func(context.Context, *PhaseEvent)
	OnPhaseLeave     func(context.Context, *PhaseEvent)
	OnPhaseRecovered func(context.Context, *PhaseEvent)
	OnGatewayCall    func(context.Context, *GatewayEvent)
	OnGatewayReturn  func(context.Context, *GatewayEvent)
	OnArtifacts      func(context.Context, *ArtifactEvent)
}

// Merge returns hooks that call h first and then other, for every callback set on either.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnPhaseEnter:     chain(h.OnPhaseEnter, other.OnPhaseEnter),
		OnPhaseLeave:     chain(h.OnPhaseLeave, other.OnPhaseLeave),
		OnPhaseRecovered: chain(h.OnPhaseRecovered, other.OnPhaseRecovered),
		OnGatewayCall:    chain(h.OnGatewayCall, other.OnGatewayCall),
		OnGatewayReturn:  chain(h.OnGatewayReturn, other.OnGatewayReturn),
		OnArtifacts:      chain(h.OnArtifacts, other.OnArtifacts),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
