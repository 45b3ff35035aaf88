package logging

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names a conversation audit event.
type AuditEventType string

const (
	AuditTurnStart      AuditEventType = "turn_start"
	AuditTurnEnd        AuditEventType = "turn_end"
	AuditIntentResolved AuditEventType = "intent_resolved"
	AuditEdgeCase       AuditEventType = "edge_case"
	AuditEscalated      AuditEventType = "escalated"
	AuditStateChange    AuditEventType = "state_change"
	AuditStoreFallback  AuditEventType = "store_fallback"
	AuditHandlerPanic   AuditEventType = "handler_panic"
)

// AuditEvent is one structured audit entry.
type AuditEvent struct {
	EventType  AuditEventType
	UserID     string
	RequestID  string
	Handler    string
	Target     string
	Confidence float64
	Success    bool
	Duration   time.Duration
	Error      string
	Message    string
}

// AuditLogger writes audit events for one conversation turn.
type AuditLogger struct {
	userID    string
	requestID string
}

// Audit returns an audit logger bound to a user and request.
func Audit(userID, requestID string) *AuditLogger {
	return &AuditLogger{userID: userID, requestID: requestID}
}

// Log writes an audit event as a single structured entry.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsCategoryEnabled(CategoryAudit) {
		return
	}
	if event.UserID == "" {
		event.UserID = a.userID
	}
	if event.RequestID == "" {
		event.RequestID = a.requestID
	}

	fields := []zap.Field{
		zap.String("cat", string(CategoryAudit)),
		zap.String("event", string(event.EventType)),
		zap.String("user", event.UserID),
		zap.String("req", event.RequestID),
		zap.Bool("success", event.Success),
	}
	if event.Handler != "" {
		fields = append(fields, zap.String("handler", event.Handler))
	}
	if event.Target != "" {
		fields = append(fields, zap.String("target", event.Target))
	}
	if event.Confidence != 0 {
		fields = append(fields, zap.Float64("confidence", event.Confidence))
	}
	if event.Duration != 0 {
		fields = append(fields, zap.Duration("dur", event.Duration))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	Base().Info(event.Message, fields...)
}

// TurnStart records an inbound message entering the chain.
func (a *AuditLogger) TurnStart(state string) {
	a.Log(AuditEvent{
		EventType: AuditTurnStart,
		Target:    state,
		Success:   true,
		Message:   "turn started",
	})
}

// TurnEnd records which handler produced the outcome.
func (a *AuditLogger) TurnEnd(handler, kind string, dur time.Duration) {
	a.Log(AuditEvent{
		EventType: AuditTurnEnd,
		Handler:   handler,
		Target:    kind,
		Success:   true,
		Duration:  dur,
		Message:   "turn finished",
	})
}

// IntentResolved records a classifier or fast-tier decision.
func (a *AuditLogger) IntentResolved(intent, tier string, confidence float64, trusted bool) {
	a.Log(AuditEvent{
		EventType:  AuditIntentResolved,
		Handler:    tier,
		Target:     intent,
		Confidence: confidence,
		Success:    trusted,
		Message:    "intent resolved",
	})
}

// Escalated records a hand-off to a human.
func (a *AuditLogger) Escalated(reason string) {
	a.Log(AuditEvent{
		EventType: AuditEscalated,
		Target:    reason,
		Success:   true,
		Message:   "conversation escalated",
	})
}

// StateChange records a state transition.
func (a *AuditLogger) StateChange(from, to string) {
	a.Log(AuditEvent{
		EventType: AuditStateChange,
		Target:    from + "->" + to,
		Success:   true,
		Message:   "state changed",
	})
}

// StoreFallback records a turn that continued on an in-memory default record.
func (a *AuditLogger) StoreFallback(err error) {
	a.Log(AuditEvent{
		EventType: AuditStoreFallback,
		Error:     err.Error(),
		Message:   "store unavailable, using in-memory record",
	})
}

// HandlerPanic records a recovered panic.
func (a *AuditLogger) HandlerPanic(handler string, recovered interface{}) {
	a.Log(AuditEvent{
		EventType: AuditHandlerPanic,
		Handler:   handler,
		Error:     fmt.Sprint(recovered),
		Message:   "handler panicked",
	})
}
