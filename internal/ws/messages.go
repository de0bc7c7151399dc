// Package ws pushes circuit-breaker notifications to WebSocket clients.
// messages.go defines the message structs; the same JSON is published on the
// redis channel so every subscriber sees one format.
package ws

import (
	"time"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/google/uuid"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypeBreakerTripped  MsgType = "breaker_tripped"
	MsgTypeBreakerResolved MsgType = "breaker_resolved"
)

// ──────────────────────────────────────────────────────────────────────────────
// BreakerMessage: sent when a breaker trips and again when it is resolved.
// ──────────────────────────────────────────────────────────────────────────────

// BreakerMessage carries the event as stored plus the transition that caused
// the push.
type BreakerMessage struct {
	Type        MsgType              `json:"type"`
	EventID     uuid.UUID            `json:"event_id"`
	UserID      uuid.UUID            `json:"user_id"`
	Symbol      *string              `json:"symbol"`
	Level       domain.BreakerLevel  `json:"level"`
	TriggerType domain.TriggerType   `json:"trigger_type"`
	Action      domain.BreakerAction `json:"action"`
	Threshold   float64              `json:"threshold"`
	ActualValue float64              `json:"actual_value"`
	Status      domain.BreakerStatus `json:"status"`
	CreatedAt   time.Time            `json:"created_at"`
	ResolvedAt  *time.Time           `json:"resolved_at"`
	Timestamp   time.Time            `json:"timestamp"`
}

// NewBreakerMessage builds the push for ev. The message type follows the
// event's state: open events announce a trip, resolved ones a resolution.
func NewBreakerMessage(ev *domain.CircuitBreakerEvent, now time.Time) BreakerMessage {
	msg := BreakerMessage{
		Type:        MsgTypeBreakerTripped,
		EventID:     ev.ID,
		UserID:      ev.UserID,
		Symbol:      ev.Symbol,
		Level:       ev.Level,
		TriggerType: ev.TriggerType,
		Action:      ev.Action,
		Threshold:   ev.Threshold,
		ActualValue: ev.ActualValue,
		Status:      ev.State.Status(),
		CreatedAt:   ev.CreatedAt,
		Timestamp:   now.UTC(),
	}
	if at, ok := ev.State.ResolvedAt(); ok {
		msg.Type = MsgTypeBreakerResolved
		msg.ResolvedAt = &at
	}
	return msg
}
