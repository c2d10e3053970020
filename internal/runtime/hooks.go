package runtime

import (
	"context"
	"time"

	"github.com/aretw0/preceptor/pkg/domain"
)

func (e *Engine) base(t domain.EventType, sessionID string) domain.EventBase {
	return domain.EventBase{Timestamp: e.now(), Type: t, SessionID: sessionID}
}

func (e *Engine) emitPhaseEnter(ctx context.Context, sessionID string, p domain.Phase) {
	if e.hooks.OnPhaseEnter == nil {
		return
	}
	e.hooks.OnPhaseEnter(ctx, &domain.PhaseEvent{EventBase: e.base(domain.EventPhaseEnter, sessionID), Phase: p})
}

func (e *Engine) emitPhaseLeave(ctx context.Context, sessionID string, p domain.Phase) {
	if e.hooks.OnPhaseLeave == nil {
		return
	}
	e.hooks.OnPhaseLeave(ctx, &domain.PhaseEvent{EventBase: e.base(domain.EventPhaseLeave, sessionID), Phase: p})
}

func (e *Engine) emitPhaseRecovered(ctx context.Context, sessionID, raw string) {
	if e.hooks.OnPhaseRecovered == nil {
		return
	}
	e.hooks.OnPhaseRecovered(ctx, &domain.PhaseEvent{
		EventBase: e.base(domain.EventPhaseRecovered, sessionID),
		Phase:     domain.LastPhase(),
		Raw:       raw,
	})
}

func (e *Engine) emitGatewayCall(ctx context.Context, sessionID, operation string) {
	if e.hooks.OnGatewayCall == nil {
		return
	}
	e.hooks.OnGatewayCall(ctx, &domain.GatewayEvent{EventBase: e.base(domain.EventGatewayCall, sessionID), Operation: operation})
}

func (e *Engine) emitGatewayReturn(ctx context.Context, sessionID, operation string, d time.Duration, isErr bool) {
	if e.hooks.OnGatewayReturn == nil {
		return
	}
	e.hooks.OnGatewayReturn(ctx, &domain.GatewayEvent{
		EventBase: e.base(domain.EventGatewayReturn, sessionID),
		Operation: operation,
		Duration:  d,
		IsError:   isErr,
	})
}
