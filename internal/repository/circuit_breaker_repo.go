package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CircuitBreakerRepository handles all database operations for
// circuit_breaker_events.
type CircuitBreakerRepository struct {
	db *sqlx.DB
}

// NewCircuitBreakerRepository creates a new CircuitBreakerRepository.
func NewCircuitBreakerRepository(db *sqlx.DB) *CircuitBreakerRepository {
	return &CircuitBreakerRepository{db: db}
}

// Create inserts a tripped breaker. resolved_at is always written as NULL.
func (r *CircuitBreakerRepository) Create(ctx context.Context, ev *domain.CircuitBreakerEvent) error {
	query := `
		INSERT INTO circuit_breaker_events
			(id, user_id, symbol, level, trigger_type, threshold, actual_value, action, resolved_at, created_at)
		VALUES
			(:id, :user_id, :symbol, :level, :trigger_type, :threshold, :actual_value, :action, NULL, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, ev); err != nil {
		return classify("circuit_breaker_repo.Create", err)
	}
	return nil
}

// GetByID fetches an event by its primary key.
func (r *CircuitBreakerRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.CircuitBreakerEvent, error) {
	var ev domain.CircuitBreakerEvent
	if err := r.db.GetContext(ctx, &ev, `SELECT * FROM circuit_breaker_events WHERE id = $1`, id); err != nil {
		return nil, classify("circuit_breaker_repo.GetByID", err)
	}
	breakersInUTC(&ev)
	return &ev, nil
}

// Resolve sets resolved_at on an open event. The UPDATE only matches while
// resolved_at IS NULL, so the row-level lock taken by postgres lets exactly
// one concurrent resolver through; the others see zero rows and get
// ErrAlreadyResolved.
func (r *CircuitBreakerRepository) Resolve(ctx context.Context, id uuid.UUID, at time.Time) (*domain.CircuitBreakerEvent, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.IsOpen() {
		return nil, domain.ErrAlreadyResolved
	}
	if err = domain.CheckResolution(current.CreatedAt, at); err != nil {
		return nil, err
	}

	var ev domain.CircuitBreakerEvent
	err = r.db.GetContext(ctx, &ev, `
		UPDATE circuit_breaker_events
		SET resolved_at = $1
		WHERE id = $2 AND resolved_at IS NULL
		RETURNING *`,
		domain.NormalizeTime(at), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Another resolver committed between our read and the update.
			return nil, domain.ErrAlreadyResolved
		}
		return nil, classify("circuit_breaker_repo.Resolve", err)
	}
	breakersInUTC(&ev)
	return &ev, nil
}

// ListByUser returns a user's events inside the window, oldest first.
func (r *CircuitBreakerRepository) ListByUser(ctx context.Context, userID uuid.UUID, opts domain.ListOptions) ([]*domain.CircuitBreakerEvent, error) {
	opts = opts.Normalize()
	events := []*domain.CircuitBreakerEvent{}
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM circuit_breaker_events
		WHERE user_id = $1`+windowClause+`
		ORDER BY created_at ASC, id ASC
		LIMIT $4 OFFSET $5`,
		userID, opts.From, opts.To, opts.Limit, opts.Offset)
	if err != nil {
		return nil, classify("circuit_breaker_repo.ListByUser", err)
	}
	breakersInUTC(events...)
	return events, nil
}

// ListBySymbol returns every event recorded for a symbol, oldest first.
// Market-wide events (NULL symbol) never match.
func (r *CircuitBreakerRepository) ListBySymbol(ctx context.Context, symbol string) ([]*domain.CircuitBreakerEvent, error) {
	events := []*domain.CircuitBreakerEvent{}
	err := r.db.SelectContext(ctx, &events,
		`SELECT * FROM circuit_breaker_events WHERE symbol = $1 ORDER BY created_at ASC, id ASC`,
		symbol)
	if err != nil {
		return nil, classify("circuit_breaker_repo.ListBySymbol", err)
	}
	breakersInUTC(events...)
	return events, nil
}

// ListOpen returns unresolved events, optionally for one user, oldest first.
func (r *CircuitBreakerRepository) ListOpen(ctx context.Context, userID *uuid.UUID) ([]*domain.CircuitBreakerEvent, error) {
	events := []*domain.CircuitBreakerEvent{}
	var err error
	if userID != nil {
		err = r.db.SelectContext(ctx, &events, `
			SELECT * FROM circuit_breaker_events
			WHERE resolved_at IS NULL AND user_id = $1
			ORDER BY created_at ASC, id ASC`, *userID)
	} else {
		err = r.db.SelectContext(ctx, &events, `
			SELECT * FROM circuit_breaker_events
			WHERE resolved_at IS NULL
			ORDER BY created_at ASC, id ASC`)
	}
	if err != nil {
		return nil, classify("circuit_breaker_repo.ListOpen", err)
	}
	breakersInUTC(events...)
	return events, nil
}
