package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarginCalculation is an immutable snapshot of a user's margin state. The
// relationship between utilisation and the other fields belongs to the risk
// engine; the store keeps every figure exactly as reported.
type MarginCalculation struct {
	ID                uuid.UUID       `json:"id"                 db:"id"`
	UserID            uuid.UUID       `json:"user_id"            db:"user_id"`
	PortfolioValue    decimal.Decimal `json:"portfolio_value"    db:"portfolio_value"`
	InitialMargin     decimal.Decimal `json:"initial_margin"     db:"initial_margin"`
	MaintenanceMargin decimal.Decimal `json:"maintenance_margin" db:"maintenance_margin"`
	AvailableMargin   decimal.Decimal `json:"available_margin"   db:"available_margin"`
	MarginUtilization float64         `json:"margin_utilization" db:"margin_utilization"`
	MarginCall        bool            `json:"margin_call"        db:"margin_call"`
	CreatedAt         time.Time       `json:"created_at"         db:"created_at"`
}

// MarginCalculationInput is what the risk engine submits for one computation
// cycle. Omitted numeric fields default to 0 and margin_call to false.
type MarginCalculationInput struct {
	ID                *uuid.UUID       `json:"id,omitempty"`
	UserID            uuid.UUID        `json:"user_id" validate:"required"`
	PortfolioValue    *decimal.Decimal `json:"portfolio_value"`
	InitialMargin     *decimal.Decimal `json:"initial_margin"`
	MaintenanceMargin *decimal.Decimal `json:"maintenance_margin"`
	AvailableMargin   *decimal.Decimal `json:"available_margin"`
	MarginUtilization *float64         `json:"margin_utilization"`
	MarginCall        *bool            `json:"margin_call"`
	CreatedAt         *time.Time       `json:"created_at,omitempty"`
}

// NewMarginCalculation validates in and builds the snapshot to persist.
func NewMarginCalculation(in MarginCalculationInput, now time.Time) (*MarginCalculation, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	mc := &MarginCalculation{
		ID:                uuid.New(),
		UserID:            in.UserID,
		PortfolioValue:    decimalOrZero(in.PortfolioValue),
		InitialMargin:     decimalOrZero(in.InitialMargin),
		MaintenanceMargin: decimalOrZero(in.MaintenanceMargin),
		AvailableMargin:   decimalOrZero(in.AvailableMargin),
		MarginUtilization: 0,
		MarginCall:        false,
		CreatedAt:         stampOrNow(in.CreatedAt, now),
	}
	if in.ID != nil && *in.ID != uuid.Nil {
		mc.ID = *in.ID
	}
	if in.MarginUtilization != nil {
		if err := finite("margin_utilization", *in.MarginUtilization); err != nil {
			return nil, err
		}
		mc.MarginUtilization = *in.MarginUtilization
	}
	if in.MarginCall != nil {
		mc.MarginCall = *in.MarginCall
	}
	return mc, nil
}
