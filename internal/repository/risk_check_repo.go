package repository

import (
	"context"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// RiskCheckRepository handles all database operations for risk_checks.
type RiskCheckRepository struct {
	db *sqlx.DB
}

// NewRiskCheckRepository creates a new RiskCheckRepository.
func NewRiskCheckRepository(db *sqlx.DB) *RiskCheckRepository {
	return &RiskCheckRepository{db: db}
}

// Create inserts a new risk check row. A single INSERT is atomic, so a failed
// write leaves nothing behind.
func (r *RiskCheckRepository) Create(ctx context.Context, rc *domain.RiskCheck) error {
	query := `
		INSERT INTO risk_checks
			(id, user_id, order_id, symbol, check_type, var_95, var_99, max_drawdown, passed, reason, latency_us, created_at)
		VALUES
			(:id, :user_id, :order_id, :symbol, :check_type, :var_95, :var_99, :max_drawdown, :passed, :reason, :latency_us, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rc); err != nil {
		return classify("risk_check_repo.Create", err)
	}
	return nil
}

// GetByID fetches a risk check by its primary key.
func (r *RiskCheckRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.RiskCheck, error) {
	var rc domain.RiskCheck
	if err := r.db.GetContext(ctx, &rc, `SELECT * FROM risk_checks WHERE id = $1`, id); err != nil {
		return nil, classify("risk_check_repo.GetByID", err)
	}
	checksInUTC(&rc)
	return &rc, nil
}

// ListByUser returns a user's checks inside the window of opts, oldest first.
// Served by risk_checks_user_created_idx.
func (r *RiskCheckRepository) ListByUser(ctx context.Context, userID uuid.UUID, opts domain.ListOptions) ([]*domain.RiskCheck, error) {
	opts = opts.Normalize()
	checks := []*domain.RiskCheck{}
	err := r.db.SelectContext(ctx, &checks, `
		SELECT * FROM risk_checks
		WHERE user_id = $1`+windowClause+`
		ORDER BY created_at ASC, id ASC
		LIMIT $4 OFFSET $5`,
		userID, opts.From, opts.To, opts.Limit, opts.Offset)
	if err != nil {
		return nil, classify("risk_check_repo.ListByUser", err)
	}
	checksInUTC(checks...)
	return checks, nil
}

// ListByOrder returns every check recorded for an order, oldest first.
// Served by risk_checks_order_idx.
func (r *RiskCheckRepository) ListByOrder(ctx context.Context, orderID string) ([]*domain.RiskCheck, error) {
	checks := []*domain.RiskCheck{}
	err := r.db.SelectContext(ctx, &checks,
		`SELECT * FROM risk_checks WHERE order_id = $1 ORDER BY created_at ASC, id ASC`,
		orderID)
	if err != nil {
		return nil, classify("risk_check_repo.ListByOrder", err)
	}
	checksInUTC(checks...)
	return checks, nil
}

// windowClause restricts created_at to [$2, $3); a NULL bound is open.
const windowClause = `
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at <  $3)`
