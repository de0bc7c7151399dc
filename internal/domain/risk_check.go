// Package domain defines the records produced by the external risk engine and
// circuit-breaker controller, their validated inputs and the error taxonomy
// shared by every store implementation.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// CheckType
// ──────────────────────────────────────────────────────────────────────────────

// CheckType identifies the risk rule an order was evaluated against.
type CheckType string

const (
	CheckPreTrade      CheckType = "pretrade"
	CheckPositionLimit CheckType = "position-limit"
	CheckNotionalLimit CheckType = "notional-limit"
	CheckConcentration CheckType = "concentration"
)

// CheckTypes lists every accepted check type in schema order.
var CheckTypes = []CheckType{CheckPreTrade, CheckPositionLimit, CheckNotionalLimit, CheckConcentration}

// IsValid returns true if c is one of the four recognised check types.
func (c CheckType) IsValid() bool {
	switch c {
	case CheckPreTrade, CheckPositionLimit, CheckNotionalLimit, CheckConcentration:
		return true
	}
	return false
}

// ParseCheckType converts s into a CheckType or returns a *ValidationError.
func ParseCheckType(s string) (CheckType, error) {
	c := CheckType(s)
	if !c.IsValid() {
		return "", NewValidationError("check_type", "must be one of pretrade, position-limit, notional-limit, concentration")
	}
	return c, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// RiskCheck
// ──────────────────────────────────────────────────────────────────────────────

// RiskCheck is one evaluation of an order against a risk rule. It maps to the
// risk_checks table and is immutable once written.
type RiskCheck struct {
	ID          uuid.UUID       `json:"id"           db:"id"`
	UserID      uuid.UUID       `json:"user_id"      db:"user_id"`
	OrderID     string          `json:"order_id"     db:"order_id"`
	Symbol      string          `json:"symbol"       db:"symbol"`
	CheckType   CheckType       `json:"check_type"   db:"check_type"`
	VaR95       decimal.Decimal `json:"var_95"       db:"var_95"`
	VaR99       decimal.Decimal `json:"var_99"       db:"var_99"`
	MaxDrawdown decimal.Decimal `json:"max_drawdown" db:"max_drawdown"`
	Passed      bool            `json:"passed"       db:"passed"`
	Reason      *string         `json:"reason"       db:"reason"`
	LatencyUs   int64           `json:"latency_us"   db:"latency_us"`
	CreatedAt   time.Time       `json:"created_at"   db:"created_at"`
}

// Blocked reports whether the check rejected the order.
func (r *RiskCheck) Blocked() bool {
	return !r.Passed
}

// RiskCheckInput is what the risk engine submits. Pointer fields are optional
// and receive the documented defaults in NewRiskCheck.
type RiskCheckInput struct {
	ID          *uuid.UUID       `json:"id,omitempty"`
	UserID      uuid.UUID        `json:"user_id"      validate:"required"`
	OrderID     string           `json:"order_id"     validate:"required,max=64"`
	Symbol      string           `json:"symbol"       validate:"required,max=64"`
	CheckType   string           `json:"check_type"   validate:"required"`
	VaR95       *decimal.Decimal `json:"var_95"`
	VaR99       *decimal.Decimal `json:"var_99"`
	MaxDrawdown *decimal.Decimal `json:"max_drawdown"`
	Passed      *bool            `json:"passed"`
	Reason      *string          `json:"reason"       validate:"omitempty,max=512"`
	LatencyUs   *int64           `json:"latency_us"   validate:"omitempty,gte=0"`
	CreatedAt   *time.Time       `json:"created_at,omitempty"`
}

// NewRiskCheck validates in and builds the record to persist.
//
// Defaults: var_95, var_99 and max_drawdown 0; passed true; latency 0;
// id a fresh UUID; created_at now.
func NewRiskCheck(in RiskCheckInput, now time.Time) (*RiskCheck, error) {
	in.OrderID = strings.TrimSpace(in.OrderID)
	in.Symbol = strings.TrimSpace(in.Symbol)
	in.CheckType = strings.TrimSpace(in.CheckType)

	if err := validateStruct(in); err != nil {
		return nil, err
	}
	checkType, err := ParseCheckType(in.CheckType)
	if err != nil {
		return nil, err
	}

	rc := &RiskCheck{
		ID:          uuid.New(),
		UserID:      in.UserID,
		OrderID:     in.OrderID,
		Symbol:      in.Symbol,
		CheckType:   checkType,
		VaR95:       decimalOrZero(in.VaR95),
		VaR99:       decimalOrZero(in.VaR99),
		MaxDrawdown: decimalOrZero(in.MaxDrawdown),
		Passed:      true,
		CreatedAt:   stampOrNow(in.CreatedAt, now),
	}
	if in.ID != nil && *in.ID != uuid.Nil {
		rc.ID = *in.ID
	}
	if in.Passed != nil {
		rc.Passed = *in.Passed
	}
	if in.Reason != nil {
		reason := *in.Reason
		rc.Reason = &reason
	}
	if in.LatencyUs != nil {
		rc.LatencyUs = *in.LatencyUs
	}

	if err := nonNegative("var_95", rc.VaR95); err != nil {
		return nil, err
	}
	if err := nonNegative("var_99", rc.VaR99); err != nil {
		return nil, err
	}
	if err := nonNegative("max_drawdown", rc.MaxDrawdown); err != nil {
		return nil, err
	}
	return rc, nil
}
