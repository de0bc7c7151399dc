// Package repository persists risk checks, margin calculations and
// circuit-breaker events. PostgresStore is the production implementation;
// the memory sub-package provides the same semantics without a database.
package repository

import (
	"context"
	"time"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/google/uuid"
)

// RiskCheckStore persists RiskCheck records.
type RiskCheckStore interface {
	CreateRiskCheck(ctx context.Context, rc *domain.RiskCheck) error
	GetRiskCheck(ctx context.Context, id uuid.UUID) (*domain.RiskCheck, error)
	ListRiskChecksByUser(ctx context.Context, userID uuid.UUID, opts domain.ListOptions) ([]*domain.RiskCheck, error)
	ListRiskChecksByOrder(ctx context.Context, orderID string) ([]*domain.RiskCheck, error)
}

// MarginStore persists MarginCalculation snapshots.
type MarginStore interface {
	CreateMarginCalculation(ctx context.Context, mc *domain.MarginCalculation) error
	GetMarginCalculation(ctx context.Context, id uuid.UUID) (*domain.MarginCalculation, error)
	ListMarginCalculationsByUser(ctx context.Context, userID uuid.UUID, opts domain.ListOptions) ([]*domain.MarginCalculation, error)
	LatestMarginCalculation(ctx context.Context, userID uuid.UUID) (*domain.MarginCalculation, error)
}

// CircuitBreakerStore persists CircuitBreakerEvent records.
//
// ResolveCircuitBreakerEvent is a compare-and-set: of several concurrent
// callers on the same open event exactly one succeeds, the others receive
// domain.ErrAlreadyResolved.
type CircuitBreakerStore interface {
	CreateCircuitBreakerEvent(ctx context.Context, ev *domain.CircuitBreakerEvent) error
	GetCircuitBreakerEvent(ctx context.Context, id uuid.UUID) (*domain.CircuitBreakerEvent, error)
	ResolveCircuitBreakerEvent(ctx context.Context, id uuid.UUID, at time.Time) (*domain.CircuitBreakerEvent, error)
	ListCircuitBreakerEventsByUser(ctx context.Context, userID uuid.UUID, opts domain.ListOptions) ([]*domain.CircuitBreakerEvent, error)
	ListCircuitBreakerEventsBySymbol(ctx context.Context, symbol string) ([]*domain.CircuitBreakerEvent, error)
	ListOpenCircuitBreakerEvents(ctx context.Context, userID *uuid.UUID) ([]*domain.CircuitBreakerEvent, error)
}

// Store is the full Risk Event Store contract. Every list is ordered by
// created_at ascending.
type Store interface {
	RiskCheckStore
	MarginStore
	CircuitBreakerStore

	// Stats aggregates record counts inside the creation window of opts.
	// Open breakers are counted regardless of the window.
	Stats(ctx context.Context, opts domain.ListOptions) (*domain.RiskStats, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
