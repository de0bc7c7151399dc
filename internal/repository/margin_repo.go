package repository

import (
	"context"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// MarginRepository handles all database operations for margin_calculations.
type MarginRepository struct {
	db *sqlx.DB
}

// NewMarginRepository creates a new MarginRepository.
func NewMarginRepository(db *sqlx.DB) *MarginRepository {
	return &MarginRepository{db: db}
}

// Create appends a margin snapshot.
func (r *MarginRepository) Create(ctx context.Context, mc *domain.MarginCalculation) error {
	query := `
		INSERT INTO margin_calculations
			(id, user_id, portfolio_value, initial_margin, maintenance_margin, available_margin,
			 margin_utilization, margin_call, created_at)
		VALUES
			(:id, :user_id, :portfolio_value, :initial_margin, :maintenance_margin, :available_margin,
			 :margin_utilization, :margin_call, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, mc); err != nil {
		return classify("margin_repo.Create", err)
	}
	return nil
}

// GetByID fetches a snapshot by its primary key.
func (r *MarginRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.MarginCalculation, error) {
	var mc domain.MarginCalculation
	if err := r.db.GetContext(ctx, &mc, `SELECT * FROM margin_calculations WHERE id = $1`, id); err != nil {
		return nil, classify("margin_repo.GetByID", err)
	}
	marginsInUTC(&mc)
	return &mc, nil
}

// ListByUser returns a user's margin history inside the window, oldest first.
func (r *MarginRepository) ListByUser(ctx context.Context, userID uuid.UUID, opts domain.ListOptions) ([]*domain.MarginCalculation, error) {
	opts = opts.Normalize()
	history := []*domain.MarginCalculation{}
	err := r.db.SelectContext(ctx, &history, `
		SELECT * FROM margin_calculations
		WHERE user_id = $1`+windowClause+`
		ORDER BY created_at ASC, id ASC
		LIMIT $4 OFFSET $5`,
		userID, opts.From, opts.To, opts.Limit, opts.Offset)
	if err != nil {
		return nil, classify("margin_repo.ListByUser", err)
	}
	marginsInUTC(history...)
	return history, nil
}

// Latest returns the most recent snapshot for a user.
func (r *MarginRepository) Latest(ctx context.Context, userID uuid.UUID) (*domain.MarginCalculation, error) {
	var mc domain.MarginCalculation
	err := r.db.GetContext(ctx, &mc, `
		SELECT * FROM margin_calculations
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, userID)
	if err != nil {
		return nil, classify("margin_repo.Latest", err)
	}
	marginsInUTC(&mc)
	return &mc, nil
}
