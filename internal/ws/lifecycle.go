package ws

import (
	"context"
	"time"

	"go.uber.org/zap"

	"school-chat/internal/observability"
	"school-chat/internal/rabbitmq"
)

// Lifecycle records connect, disconnect, error and rejection events as metrics
// and as broker messages.
type Lifecycle struct {
	publisher rabbitmq.Publisher
	logger    *zap.Logger
}

// NewLifecycle constructs a Lifecycle. A nil publisher only records metrics.
func NewLifecycle(publisher rabbitmq.Publisher, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{publisher: publisher, logger: logger}
}

func (l *Lifecycle) Connected(ctx context.Context, kind string, resourceID int, info ConnInfo) {
	observability.IncWSActive(kind)
	l.record(ctx, kind, resourceID, "ws_connect", info, "")
}

func (l *Lifecycle) Disconnected(ctx context.Context, kind string, resourceID int, info ConnInfo, reason string) {
	observability.DecWSActive(kind)
	l.record(ctx, kind, resourceID, "ws_disconnect", info, reason)
}

func (l *Lifecycle) Errored(ctx context.Context, kind string, resourceID int, info ConnInfo, reason string) {
	l.record(ctx, kind, resourceID, "ws_error", info, reason)
}

func (l *Lifecycle) Rejected(ctx context.Context, kind string, resourceID int, info ConnInfo, reason string) {
	l.record(ctx, kind, resourceID, "ws_rejected", info, reason)
}

func (l *Lifecycle) record(ctx context.Context, kind string, resourceID int, event string, info ConnInfo, reason string) {
	if l == nil {
		return
	}
	observability.IncWSEvent(kind, event)
	if l.publisher == nil {
		return
	}

	var duration int64
	if event != "ws_connect" && event != "ws_rejected" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	envelope := observability.EventEnvelope{
		EventType:  "ws_events",
		EventName:  event,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        kind,
				"resource_id": resourceID,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": duration,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}

	// The request context may already be done when a session ends.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	pubCtx = rabbitmq.WithHeaders(pubCtx, observability.BuildHeaders(info.RequestID, info.TraceID))
	if err := l.publisher.Publish(pubCtx, wsRoutingKey(kind), envelope); err != nil {
		l.logger.Debug("ws event publish failed", zap.String("event", event), zap.Error(err))
	}
}

func wsRoutingKey(kind string) string {
	if kind == kindGroup {
		return "ws_events.groups"
	}
	return "ws_events.notifications"
}
