package telemetry

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter publishes audit_log envelopes for administrative actions.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      *zap.Logger
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level        string `json:"level"`
	Text         string `json:"text"`
	Action       string `json:"action,omitempty"`
	GroupID      int    `json:"group_id,omitempty"`
	TargetUserID int    `json:"target_user_id,omitempty"`
}

// AuditRecord describes one action to audit.
type AuditRecord struct {
	Level        string
	Text         string
	Action       string
	RequestID    string
	ActorID      int
	GroupID      int
	TargetUserID int
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger *zap.Logger) *AuditEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger,
		now:         time.Now,
	}
}

// Emit publishes rec. Publish failures are logged, never returned.
func (e *AuditEmitter) Emit(ctx context.Context, rec AuditRecord) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := e.envelope(rec)
	e.logger.Debug("audit emit",
		zap.String("level", rec.Level),
		zap.String("action", rec.Action),
		zap.String("request_id", rec.RequestID),
		zap.Int("user_id", rec.ActorID),
	)
	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.logger.Warn("audit publish failed", zap.Error(err))
	}
}

func (e *AuditEmitter) envelope(rec AuditRecord) AuditEnvelope {
	var userID *string
	if rec.ActorID != 0 {
		id := strconv.Itoa(rec.ActorID)
		userID = &id
	}
	return AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     rec.RequestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:        rec.Level,
			Text:         rec.Text,
			Action:       rec.Action,
			GroupID:      rec.GroupID,
			TargetUserID: rec.TargetUserID,
		},
	}
}
