package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/preceptor/pkg/domain"
)

// LogHooks returns lifecycle hooks that write one structured line per event.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	if logger == nil {
		logger = slog.Default()
	}
	return domain.LifecycleHooks{
		OnPhaseEnter: func(ctx context.Context, e *domain.PhaseEvent) {
			logger.InfoContext(ctx, "phase_enter", "session_id", e.SessionID, "phase", e.Phase.String())
		},
		OnPhaseLeave: func(ctx context.Context, e *domain.PhaseEvent) {
			logger.DebugContext(ctx, "phase_leave", "session_id", e.SessionID, "phase", e.Phase.String())
		},
		OnPhaseRecovered: func(ctx context.Context, e *domain.PhaseEvent) {
			logger.WarnContext(ctx, "phase_recovered", "session_id", e.SessionID, "raw", e.Raw, "phase", e.Phase.String())
		},
		OnGatewayCall: func(ctx context.Context, e *domain.GatewayEvent) {
			logger.DebugContext(ctx, "gateway_call", "session_id", e.SessionID, "operation", e.Operation)
		},
		OnGatewayReturn: func(ctx context.Context, e *domain.GatewayEvent) {
			logger.InfoContext(ctx, "gateway_return",
				"session_id", e.SessionID,
				"operation", e.Operation,
				"duration", e.Duration,
				"is_error", e.IsError,
			)
		},
		OnArtifacts: func(ctx context.Context, e *domain.ArtifactEvent) {
			if e.Err != nil {
				logger.ErrorContext(ctx, "artifacts_failed", "session_id", e.SessionID, "duration", e.Duration, "err", e.Err)
				return
			}
			logger.InfoContext(ctx, "artifacts_ready",
				"session_id", e.SessionID,
				"duration", e.Duration,
				"report_len", len(e.Artifacts.Report),
				"persona_len", len(e.Artifacts.VirtualPatient),
			)
		},
	}
}
