package repository

import (
	"context"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/jmoiron/sqlx"
)

// StatsRepository aggregates counters across all three tables.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Get counts records created inside the window of opts. open_breakers is a
// point-in-time figure and ignores the window.
func (r *StatsRepository) Get(ctx context.Context, opts domain.ListOptions) (*domain.RiskStats, error) {
	opts = opts.Normalize()
	var stats domain.RiskStats
	err := r.db.GetContext(ctx, &stats, `
		SELECT
			(SELECT COUNT(*) FROM risk_checks
			  WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			    AND ($2::timestamptz IS NULL OR created_at <  $2))               AS total_checks,
			(SELECT COUNT(*) FROM risk_checks
			  WHERE NOT passed
			    AND ($1::timestamptz IS NULL OR created_at >= $1)
			    AND ($2::timestamptz IS NULL OR created_at <  $2))               AS trades_blocked,
			(SELECT COUNT(*) FROM margin_calculations
			  WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			    AND ($2::timestamptz IS NULL OR created_at <  $2))               AS total_margin_calcs,
			(SELECT COUNT(*) FROM margin_calculations
			  WHERE margin_call
			    AND ($1::timestamptz IS NULL OR created_at >= $1)
			    AND ($2::timestamptz IS NULL OR created_at <  $2))               AS margin_calls,
			(SELECT COUNT(*) FROM circuit_breaker_events
			  WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			    AND ($2::timestamptz IS NULL OR created_at <  $2))               AS breaker_trips,
			(SELECT COUNT(*) FROM circuit_breaker_events WHERE resolved_at IS NULL) AS open_breakers`,
		opts.From, opts.To)
	if err != nil {
		return nil, classify("stats_repo.Get", err)
	}
	stats.Finalize()
	return &stats, nil
}
