package repository

import "github.com/evetabi/riskevents/internal/domain"

// lib/pq returns timestamptz values in the session's TimeZone. The helpers
// below move them to UTC so postgres reads match what the memory store returns.

func checksInUTC(checks ...*domain.RiskCheck) {
	for _, rc := range checks {
		rc.CreatedAt = domain.NormalizeTime(rc.CreatedAt)
	}
}

func marginsInUTC(calcs ...*domain.MarginCalculation) {
	for _, mc := range calcs {
		mc.CreatedAt = domain.NormalizeTime(mc.CreatedAt)
	}
}

func breakersInUTC(events ...*domain.CircuitBreakerEvent) {
	for _, ev := range events {
		ev.CreatedAt = domain.NormalizeTime(ev.CreatedAt)
	}
}
