package repository

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"time"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// PoolConfig carries the connection pool limits for Connect.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Connect opens and pings a postgres pool.
func Connect(ctx context.Context, dsn string, pool PoolConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, &domain.StorageError{Op: "repository.Connect", Err: err}
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	return db, nil
}

// Migrate executes every embedded *.sql file, sorted by name. Idempotent:
// the SQL files use IF NOT EXISTS throughout.
func Migrate(ctx context.Context, db *sqlx.DB, logger *slog.Logger) error {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("repository.Migrate: glob: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := migrationFiles.ReadFile(name)
		if err != nil {
			return fmt.Errorf("repository.Migrate: read %q: %w", name, err)
		}
		if _, err = db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("repository.Migrate: exec %q: %w", name, err)
		}
		logger.Info("migration applied", "file", name)
	}
	return nil
}

// PostgresStore implements Store on top of the per-table repositories.
type PostgresStore struct {
	db             *sqlx.DB
	RiskChecks     *RiskCheckRepository
	Margins        *MarginRepository
	CircuitBreaker *CircuitBreakerRepository
	StatsRepo      *StatsRepository
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wires the repositories around one pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		db:             db,
		RiskChecks:     NewRiskCheckRepository(db),
		Margins:        NewMarginRepository(db),
		CircuitBreaker: NewCircuitBreakerRepository(db),
		StatsRepo:      NewStatsRepository(db),
	}
}

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &domain.StorageError{Op: "postgres.Ping", Err: err}
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// ── risk checks ───────────────────────────────────────────────────────────────

func (s *PostgresStore) CreateRiskCheck(ctx context.Context, rc *domain.RiskCheck) error {
	return s.RiskChecks.Create(ctx, rc)
}

func (s *PostgresStore) GetRiskCheck(ctx context.Context, id uuid.UUID) (*domain.RiskCheck, error) {
	return s.RiskChecks.GetByID(ctx, id)
}

func (s *PostgresStore) ListRiskChecksByUser(ctx context.Context, userID uuid.UUID, opts domain.ListOptions) ([]*domain.RiskCheck, error) {
	return s.RiskChecks.ListByUser(ctx, userID, opts)
}

func (s *PostgresStore) ListRiskChecksByOrder(ctx context.Context, orderID string) ([]*domain.RiskCheck, error) {
	return s.RiskChecks.ListByOrder(ctx, orderID)
}

// ── margin ────────────────────────────────────────────────────────────────────

func (s *PostgresStore) CreateMarginCalculation(ctx context.Context, mc *domain.MarginCalculation) error {
	return s.Margins.Create(ctx, mc)
}

func (s *PostgresStore) GetMarginCalculation(ctx context.Context, id uuid.UUID) (*domain.MarginCalculation, error) {
	return s.Margins.GetByID(ctx, id)
}

func (s *PostgresStore) ListMarginCalculationsByUser(ctx context.Context, userID uuid.UUID, opts domain.ListOptions) ([]*domain.MarginCalculation, error) {
	return s.Margins.ListByUser(ctx, userID, opts)
}

func (s *PostgresStore) LatestMarginCalculation(ctx context.Context, userID uuid.UUID) (*domain.MarginCalculation, error) {
	return s.Margins.Latest(ctx, userID)
}

// ── circuit breakers ──────────────────────────────────────────────────────────

func (s *PostgresStore) CreateCircuitBreakerEvent(ctx context.Context, ev *domain.CircuitBreakerEvent) error {
	return s.CircuitBreaker.Create(ctx, ev)
}

func (s *PostgresStore) GetCircuitBreakerEvent(ctx context.Context, id uuid.UUID) (*domain.CircuitBreakerEvent, error) {
	return s.CircuitBreaker.GetByID(ctx, id)
}

func (s *PostgresStore) ResolveCircuitBreakerEvent(ctx context.Context, id uuid.UUID, at time.Time) (*domain.CircuitBreakerEvent, error) {
	return s.CircuitBreaker.Resolve(ctx, id, at)
}

func (s *PostgresStore) ListCircuitBreakerEventsByUser(ctx context.Context, userID uuid.UUID, opts domain.ListOptions) ([]*domain.CircuitBreakerEvent, error) {
	return s.CircuitBreaker.ListByUser(ctx, userID, opts)
}

func (s *PostgresStore) ListCircuitBreakerEventsBySymbol(ctx context.Context, symbol string) ([]*domain.CircuitBreakerEvent, error) {
	return s.CircuitBreaker.ListBySymbol(ctx, symbol)
}

func (s *PostgresStore) ListOpenCircuitBreakerEvents(ctx context.Context, userID *uuid.UUID) ([]*domain.CircuitBreakerEvent, error) {
	return s.CircuitBreaker.ListOpen(ctx, userID)
}

// ── stats ─────────────────────────────────────────────────────────────────────

func (s *PostgresStore) Stats(ctx context.Context, opts domain.ListOptions) (*domain.RiskStats, error) {
	return s.StatsRepo.Get(ctx, opts)
}
