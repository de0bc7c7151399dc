package domain_test

import (
	"testing"
	"time"

	"github.com/evetabi/riskevents/internal/domain"
)

func TestListOptions(t *testing.T) {
	o := domain.ListOptions{Limit: 10_000, Offset: -3}.Normalize()
	if o.Limit != domain.MaxListLimit || o.Offset != 0 {
		t.Errorf("Normalize = %+v", o)
	}
	if (domain.ListOptions{}).Normalize().Limit != domain.DefaultListLimit {
		t.Error("zero limit should become the default")
	}

	from := fixedNow
	to := fixedNow.Add(time.Hour)
	w := domain.ListOptions{From: &from, To: &to}
	if !w.Contains(from) || w.Contains(to) || w.Contains(from.Add(-time.Nanosecond)) {
		t.Error("window should be [from, to)")
	}
	inverted := domain.ListOptions{From: &to, To: &from}
	if !domain.IsValidation(inverted.Validate()) {
		t.Error("inverted window should fail validation")
	}
}

func TestRiskStats_Finalize(t *testing.T) {
	s := domain.RiskStats{TotalChecks: 8, TradesBlocked: 2, BreakerTrips: 3}
	s.Finalize()
	if s.TotalAlerts != 5 {
		t.Errorf("TotalAlerts = %d, want 5", s.TotalAlerts)
	}
	if s.BlockRatePct != 25 {
		t.Errorf("BlockRatePct = %v, want 25", s.BlockRatePct)
	}

	empty := domain.RiskStats{}
	empty.Finalize()
	if empty.BlockRatePct != 0 {
		t.Errorf("empty BlockRatePct = %v, want 0", empty.BlockRatePct)
	}
}
