package domain

import "time"

// Pagination bounds for list queries.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
	MaxListPage      = 1_000_000 // keeps (page-1)*limit far from overflow
)

// ListOptions narrows a per-user list query to a creation-time window and a
// page. From is inclusive, To is exclusive; nil leaves that side open.
type ListOptions struct {
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// Normalize clamps the page bounds and converts the window to UTC.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	if o.From != nil {
		from := NormalizeTime(*o.From)
		o.From = &from
	}
	if o.To != nil {
		to := NormalizeTime(*o.To)
		o.To = &to
	}
	return o
}

// Validate rejects an inverted window.
func (o ListOptions) Validate() error {
	if o.From != nil && o.To != nil && !o.From.Before(*o.To) {
		return NewValidationError("to", "must be after from")
	}
	return nil
}

// Contains reports whether t falls inside the window.
func (o ListOptions) Contains(t time.Time) bool {
	if o.From != nil && t.Before(*o.From) {
		return false
	}
	if o.To != nil && !t.Before(*o.To) {
		return false
	}
	return true
}

// RiskStats aggregates store activity. The counters mirror what the risk
// engine reports on its own stats endpoint, computed from persisted records.
type RiskStats struct {
	TotalChecks      int64   `json:"total_checks"       db:"total_checks"`
	TradesBlocked    int64   `json:"trades_blocked"     db:"trades_blocked"`
	TotalMarginCalcs int64   `json:"total_margin_calcs" db:"total_margin_calcs"`
	MarginCalls      int64   `json:"margin_calls"       db:"margin_calls"`
	BreakerTrips     int64   `json:"breaker_trips"      db:"breaker_trips"`
	OpenBreakers     int64   `json:"open_breakers"      db:"open_breakers"`
	TotalAlerts      int64   `json:"total_alerts"       db:"-"`
	BlockRatePct     float64 `json:"block_rate_pct"     db:"-"`
}

// Finalize fills the derived counters: alerts are blocked checks plus breaker
// trips; the block rate is blocked checks over all checks, in percent.
func (s *RiskStats) Finalize() {
	s.TotalAlerts = s.TradesBlocked + s.BreakerTrips
	s.BlockRatePct = 0
	if s.TotalChecks > 0 {
		s.BlockRatePct = float64(s.TradesBlocked) / float64(s.TotalChecks) * 100
	}
}
