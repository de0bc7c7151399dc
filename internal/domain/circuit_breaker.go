package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// Enumerations
// ──────────────────────────────────────────────────────────────────────────────

// BreakerLevel is the escalation tier of a tripped breaker.
type BreakerLevel string

const (
	LevelL1 BreakerLevel = "L1"
	LevelL2 BreakerLevel = "L2"
	LevelL3 BreakerLevel = "L3"
)

// IsValid returns true for L1, L2 and L3.
func (l BreakerLevel) IsValid() bool {
	return l == LevelL1 || l == LevelL2 || l == LevelL3
}

// ParseBreakerLevel converts s into a BreakerLevel or returns a *ValidationError.
func ParseBreakerLevel(s string) (BreakerLevel, error) {
	l := BreakerLevel(s)
	if !l.IsValid() {
		return "", NewValidationError("level", "must be one of L1, L2, L3")
	}
	return l, nil
}

// TriggerType names the condition that tripped the breaker.
type TriggerType string

const (
	TriggerPriceMove   TriggerType = "price-move"
	TriggerVolumeSpike TriggerType = "volume-spike"
	TriggerLossLimit   TriggerType = "loss-limit"
	TriggerManual      TriggerType = "manual"
)

// IsValid returns true for the four recognised trigger types.
func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerPriceMove, TriggerVolumeSpike, TriggerLossLimit, TriggerManual:
		return true
	}
	return false
}

// ParseTriggerType converts s into a TriggerType or returns a *ValidationError.
func ParseTriggerType(s string) (TriggerType, error) {
	t := TriggerType(s)
	if !t.IsValid() {
		return "", NewValidationError("trigger_type", "must be one of price-move, volume-spike, loss-limit, manual")
	}
	return t, nil
}

// BreakerAction is what the controller did when the breaker tripped.
type BreakerAction string

const (
	ActionPause5Min    BreakerAction = "pause-5min"
	ActionHaltTrading  BreakerAction = "halt-trading"
	ActionLiquidateAll BreakerAction = "liquidate-all"
)

// IsValid returns true for the three recognised actions.
func (a BreakerAction) IsValid() bool {
	return a == ActionPause5Min || a == ActionHaltTrading || a == ActionLiquidateAll
}

// ParseBreakerAction converts s into a BreakerAction or returns a *ValidationError.
func ParseBreakerAction(s string) (BreakerAction, error) {
	a := BreakerAction(s)
	if !a.IsValid() {
		return "", NewValidationError("action", "must be one of pause-5min, halt-trading, liquidate-all")
	}
	return a, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// BreakerState
// ──────────────────────────────────────────────────────────────────────────────

// BreakerStatus is the externally visible lifecycle state.
type BreakerStatus string

const (
	BreakerStatusOpen     BreakerStatus = "open"
	BreakerStatusResolved BreakerStatus = "resolved"
)

// BreakerState is either open or resolved at a specific instant. The zero
// value is open; a resolved state can only be built by ResolvedState, so a
// resolved breaker always carries its timestamp.
//
// It persists as the nullable resolved_at column and serialises as a JSON
// timestamp or null.
type BreakerState struct {
	resolvedAt time.Time
	resolved   bool
}

// OpenState returns the state of a freshly tripped breaker.
func OpenState() BreakerState {
	return BreakerState{}
}

// ResolvedState returns the state of a breaker resolved at at.
func ResolvedState(at time.Time) BreakerState {
	return BreakerState{resolvedAt: NormalizeTime(at), resolved: true}
}

// IsOpen reports whether the breaker has not been resolved yet.
func (s BreakerState) IsOpen() bool {
	return !s.resolved
}

// ResolvedAt returns the resolution time and true, or the zero time and false
// for an open breaker.
func (s BreakerState) ResolvedAt() (time.Time, bool) {
	return s.resolvedAt, s.resolved
}

// Status returns "open" or "resolved".
func (s BreakerState) Status() BreakerStatus {
	if s.resolved {
		return BreakerStatusResolved
	}
	return BreakerStatusOpen
}

// Scan implements sql.Scanner for the resolved_at column.
func (s *BreakerState) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = OpenState()
	case time.Time:
		*s = ResolvedState(v)
	default:
		return fmt.Errorf("domain.BreakerState: cannot scan %T", src)
	}
	return nil
}

// Value implements driver.Valuer for the resolved_at column.
func (s BreakerState) Value() (driver.Value, error) {
	if !s.resolved {
		return nil, nil
	}
	return s.resolvedAt, nil
}

// MarshalJSON writes the resolution timestamp or null.
func (s BreakerState) MarshalJSON() ([]byte, error) {
	if !s.resolved {
		return []byte("null"), nil
	}
	return json.Marshal(s.resolvedAt)
}

// UnmarshalJSON accepts a timestamp or null.
func (s *BreakerState) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = OpenState()
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	*s = ResolvedState(t)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// CircuitBreakerEvent
// ──────────────────────────────────────────────────────────────────────────────

// CircuitBreakerEvent records a trading-halt trigger. It maps to the
// circuit_breaker_events table. Symbol nil means the breaker is account- or
// market-wide.
type CircuitBreakerEvent struct {
	ID          uuid.UUID     `json:"id"           db:"id"`
	UserID      uuid.UUID     `json:"user_id"      db:"user_id"`
	Symbol      *string       `json:"symbol"       db:"symbol"`
	Level       BreakerLevel  `json:"level"        db:"level"`
	TriggerType TriggerType   `json:"trigger_type" db:"trigger_type"`
	Threshold   float64       `json:"threshold"    db:"threshold"`
	ActualValue float64       `json:"actual_value" db:"actual_value"`
	Action      BreakerAction `json:"action"       db:"action"`
	State       BreakerState  `json:"resolved_at"  db:"resolved_at"`
	CreatedAt   time.Time     `json:"created_at"   db:"created_at"`
}

// IsOpen reports whether the breaker is still in effect.
func (e *CircuitBreakerEvent) IsOpen() bool {
	return e.State.IsOpen()
}

// Resolve moves the event from open to resolved. It fails with
// ErrAlreadyResolved when the event was resolved before, leaving the stored
// timestamp untouched.
func (e *CircuitBreakerEvent) Resolve(at time.Time) error {
	if !e.State.IsOpen() {
		return ErrAlreadyResolved
	}
	if err := CheckResolution(e.CreatedAt, at); err != nil {
		return err
	}
	e.State = ResolvedState(at)
	return nil
}

// CheckResolution validates a resolution time against the creation time.
func CheckResolution(createdAt, at time.Time) error {
	if at.IsZero() {
		return NewValidationError("resolved_at", "is required")
	}
	if NormalizeTime(at).Before(createdAt) {
		return NewValidationError("resolved_at", "must not precede created_at")
	}
	return nil
}

// OpenFor returns how long the breaker has been (or was) in effect.
func (e *CircuitBreakerEvent) OpenFor(now time.Time) time.Duration {
	if at, ok := e.State.ResolvedAt(); ok {
		return at.Sub(e.CreatedAt)
	}
	return now.Sub(e.CreatedAt)
}

// MarshalJSON adds the derived status field.
func (e CircuitBreakerEvent) MarshalJSON() ([]byte, error) {
	type alias CircuitBreakerEvent
	return json.Marshal(struct {
		alias
		Status BreakerStatus `json:"status"`
	}{alias(e), e.State.Status()})
}

// CircuitBreakerInput is what the breaker controller submits when a breaker trips.
type CircuitBreakerInput struct {
	ID          *uuid.UUID `json:"id,omitempty"`
	UserID      uuid.UUID  `json:"user_id"      validate:"required"`
	Symbol      *string    `json:"symbol"       validate:"omitempty,max=64"`
	Level       string     `json:"level"        validate:"required"`
	TriggerType string     `json:"trigger_type" validate:"required"`
	Threshold   *float64   `json:"threshold"    validate:"required"`
	ActualValue *float64   `json:"actual_value" validate:"required"`
	Action      string     `json:"action"       validate:"required"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// NewCircuitBreakerEvent validates in and builds an open event to persist.
func NewCircuitBreakerEvent(in CircuitBreakerInput, now time.Time) (*CircuitBreakerEvent, error) {
	if in.Symbol != nil {
		sym := strings.TrimSpace(*in.Symbol)
		if sym == "" {
			in.Symbol = nil
		} else {
			in.Symbol = &sym
		}
	}

	if err := validateStruct(in); err != nil {
		return nil, err
	}
	level, err := ParseBreakerLevel(strings.TrimSpace(in.Level))
	if err != nil {
		return nil, err
	}
	trigger, err := ParseTriggerType(strings.TrimSpace(in.TriggerType))
	if err != nil {
		return nil, err
	}
	action, err := ParseBreakerAction(strings.TrimSpace(in.Action))
	if err != nil {
		return nil, err
	}
	if err := finite("threshold", *in.Threshold); err != nil {
		return nil, err
	}
	if err := finite("actual_value", *in.ActualValue); err != nil {
		return nil, err
	}

	ev := &CircuitBreakerEvent{
		ID:          uuid.New(),
		UserID:      in.UserID,
		Symbol:      in.Symbol,
		Level:       level,
		TriggerType: trigger,
		Threshold:   *in.Threshold,
		ActualValue: *in.ActualValue,
		Action:      action,
		State:       OpenState(),
		CreatedAt:   stampOrNow(in.CreatedAt, now),
	}
	if in.ID != nil && *in.ID != uuid.Nil {
		ev.ID = *in.ID
	}
	return ev, nil
}
