package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/evetabi/riskevents/internal/notify"
	"github.com/evetabi/riskevents/internal/repository"
	"github.com/evetabi/riskevents/pkg/metrics"
	"github.com/google/uuid"
)

// Metrics is the slice of the Prometheus collector the service reports to.
type Metrics interface {
	RecordWrite(kind string, blocked bool)
	RecordFailure(kind, reason string)
	RecordResolve()
	ObserveStore(op string, d time.Duration)
}

// HealthReport is what /health returns.
type HealthReport struct {
	Status     string `json:"status"`
	StoreOK    bool   `json:"store_ok"`
	UptimeSecs int64  `json:"uptime_secs"`
	TotalOps   int64  `json:"total_ops"`
}

// ──────────────────────────────────────────────────────────────────────────────
// RiskEventService
// ──────────────────────────────────────────────────────────────────────────────

// RiskEventService validates incoming records, persists them and fans breaker
// transitions out to the notifier. It is safe for concurrent use.
type RiskEventService struct {
	store    repository.Store
	notifier notify.Notifier
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time

	startedAt time.Time
	totalOps  atomic.Int64
}

// NewRiskEventService creates a RiskEventService. notifier and m may be nil.
func NewRiskEventService(
	store repository.Store,
	notifier notify.Notifier,
	m Metrics,
	logger *slog.Logger,
) *RiskEventService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if m == nil {
		m = metrics.NewMetricsCollector(logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RiskEventService{
		store:     store,
		notifier:  notifier,
		metrics:   m,
		logger:    logger.With("component", "risk_event_service"),
		now:       time.Now,
		startedAt: time.Now(),
	}
}

// SetClock replaces the wall clock used for default timestamps.
func (s *RiskEventService) SetClock(now func() time.Time) {
	s.now = now
}

// timed runs fn and reports its duration under op.
func (s *RiskEventService) timed(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.metrics.ObserveStore(op, time.Since(start))
	return err
}

// failed records a rejected write and logs storage outages.
func (s *RiskEventService) failed(kind string, err error) {
	switch {
	case domain.IsValidation(err):
		s.metrics.RecordFailure(kind, "validation")
	case domain.IsReferential(err):
		s.metrics.RecordFailure(kind, "unknown_user")
	case domain.IsUnavailable(err):
		s.metrics.RecordFailure(kind, "storage_unavailable")
		s.logger.Error("store unavailable", "kind", kind, "error", err)
	default:
		s.metrics.RecordFailure(kind, "other")
	}
}

// ── risk checks ───────────────────────────────────────────────────────────────

// RecordRiskCheck validates and persists one risk check outcome.
func (s *RiskEventService) RecordRiskCheck(ctx context.Context, in domain.RiskCheckInput) (*domain.RiskCheck, error) {
	rc, err := domain.NewRiskCheck(in, s.now())
	if err != nil {
		s.failed(metrics.KindRiskCheck, err)
		return nil, err
	}
	if err = s.timed("CreateRiskCheck", func() error { return s.store.CreateRiskCheck(ctx, rc) }); err != nil {
		s.failed(metrics.KindRiskCheck, err)
		return nil, fmt.Errorf("risk_event_service.RecordRiskCheck: %w", err)
	}

	s.totalOps.Add(1)
	s.metrics.RecordWrite(metrics.KindRiskCheck, rc.Blocked())
	if rc.Blocked() {
		s.logger.Info("trade blocked",
			"check_id", rc.ID, "user_id", rc.UserID, "order_id", rc.OrderID,
			"symbol", rc.Symbol, "check_type", rc.CheckType)
	}
	return rc, nil
}

func (s *RiskEventService) GetRiskCheck(ctx context.Context, id uuid.UUID) (*domain.RiskCheck, error) {
	rc, err := s.store.GetRiskCheck(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("risk_event_service.GetRiskCheck: %w", err)
	}
	return rc, nil
}

// ListRiskChecksByUser returns a user's checks in the window, oldest first.
func (s *RiskEventService) ListRiskChecksByUser(ctx context.Context, userID uuid.UUID, opts domain.ListOptions) ([]*domain.RiskCheck, error) {
	if err := checkUserQuery(userID, opts); err != nil {
		return nil, err
	}
	var checks []*domain.RiskCheck
	err := s.timed("ListRiskChecksByUser", func() (err error) {
		checks, err = s.store.ListRiskChecksByUser(ctx, userID, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("risk_event_service.ListRiskChecksByUser: %w", err)
	}
	return checks, nil
}

// ListRiskChecksByOrder returns every check recorded for orderID, oldest first.
func (s *RiskEventService) ListRiskChecksByOrder(ctx context.Context, orderID string) ([]*domain.RiskCheck, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, domain.NewValidationError("order_id", "is required")
	}
	var checks []*domain.RiskCheck
	err := s.timed("ListRiskChecksByOrder", func() (err error) {
		checks, err = s.store.ListRiskChecksByOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("risk_event_service.ListRiskChecksByOrder: %w", err)
	}
	return checks, nil
}

// ── margin ────────────────────────────────────────────────────────────────────

// RecordMarginCalculation validates and persists one margin snapshot.
func (s *RiskEventService) RecordMarginCalculation(ctx context.Context, in domain.MarginCalculationInput) (*domain.MarginCalculation, error) {
	mc, err := domain.NewMarginCalculation(in, s.now())
	if err != nil {
		s.failed(metrics.KindMargin, err)
		return nil, err
	}
	if err = s.timed("CreateMarginCalculation", func() error { return s.store.CreateMarginCalculation(ctx, mc) }); err != nil {
		s.failed(metrics.KindMargin, err)
		return nil, fmt.Errorf("risk_event_service.RecordMarginCalculation: %w", err)
	}

	s.totalOps.Add(1)
	s.metrics.RecordWrite(metrics.KindMargin, false)
	if mc.MarginCall {
		s.logger.Warn("margin call recorded",
			"calc_id", mc.ID, "user_id", mc.UserID, "utilization", mc.MarginUtilization)
	}
	return mc, nil
}

func (s *RiskEventService) GetMarginCalculation(ctx context.Context, id uuid.UUID) (*domain.MarginCalculation, error) {
	mc, err := s.store.GetMarginCalculation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("risk_event_service.GetMarginCalculation: %w", err)
	}
	return mc, nil
}

// ListMarginCalculationsByUser returns a user's snapshots in the window, oldest first.
func (s *RiskEventService) ListMarginCalculationsByUser(ctx context.Context, userID uuid.UUID, opts domain.ListOptions) ([]*domain.MarginCalculation, error) {
	if err := checkUserQuery(userID, opts); err != nil {
		return nil, err
	}
	var calcs []*domain.MarginCalculation
	err := s.timed("ListMarginCalculationsByUser", func() (err error) {
		calcs, err = s.store.ListMarginCalculationsByUser(ctx, userID, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("risk_event_service.ListMarginCalculationsByUser: %w", err)
	}
	return calcs, nil
}

// LatestMarginCalculation returns the user's most recent snapshot.
func (s *RiskEventService) LatestMarginCalculation(ctx context.Context, userID uuid.UUID) (*domain.MarginCalculation, error) {
	if userID == uuid.Nil {
		return nil, domain.NewValidationError("user_id", "is required")
	}
	mc, err := s.store.LatestMarginCalculation(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("risk_event_service.LatestMarginCalculation: %w", err)
	}
	return mc, nil
}

// ── circuit breakers ──────────────────────────────────────────────────────────

// RecordCircuitBreakerEvent persists a tripped breaker and notifies subscribers.
func (s *RiskEventService) RecordCircuitBreakerEvent(ctx context.Context, in domain.CircuitBreakerInput) (*domain.CircuitBreakerEvent, error) {
	ev, err := domain.NewCircuitBreakerEvent(in, s.now())
	if err != nil {
		s.failed(metrics.KindCircuitBreaker, err)
		return nil, err
	}
	if err = s.timed("CreateCircuitBreakerEvent", func() error { return s.store.CreateCircuitBreakerEvent(ctx, ev) }); err != nil {
		s.failed(metrics.KindCircuitBreaker, err)
		return nil, fmt.Errorf("risk_event_service.RecordCircuitBreakerEvent: %w", err)
	}

	s.totalOps.Add(1)
	s.metrics.RecordWrite(metrics.KindCircuitBreaker, false)
	s.logger.Warn("circuit breaker tripped",
		"event_id", ev.ID, "user_id", ev.UserID, "symbol", symbolAttr(ev.Symbol),
		"level", ev.Level, "trigger", ev.TriggerType, "action", ev.Action,
		"threshold", ev.Threshold, "actual", ev.ActualValue)
	s.notifier.BreakerTripped(ctx, ev)
	return ev, nil
}

// ResolveCircuitBreakerEvent closes an open breaker. A nil resolvedAt means
// now. Exactly one of several concurrent callers succeeds; the others get
// domain.ErrAlreadyResolved.
func (s *RiskEventService) ResolveCircuitBreakerEvent(ctx context.Context, id uuid.UUID, resolvedAt *time.Time) (*domain.CircuitBreakerEvent, error) {
	if id == uuid.Nil {
		return nil, domain.NewValidationError("id", "is required")
	}
	at := s.now()
	if resolvedAt != nil && !resolvedAt.IsZero() {
		at = *resolvedAt
	}

	var ev *domain.CircuitBreakerEvent
	err := s.timed("ResolveCircuitBreakerEvent", func() (err error) {
		ev, err = s.store.ResolveCircuitBreakerEvent(ctx, id, at)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("risk_event_service.ResolveCircuitBreakerEvent: %w", err)
	}

	s.totalOps.Add(1)
	s.metrics.RecordResolve()
	s.logger.Info("circuit breaker resolved",
		"event_id", ev.ID, "user_id", ev.UserID, "open_for", ev.OpenFor(at).String())
	s.notifier.BreakerResolved(ctx, ev)
	return ev, nil
}

func (s *RiskEventService) GetCircuitBreakerEvent(ctx context.Context, id uuid.UUID) (*domain.CircuitBreakerEvent, error) {
	ev, err := s.store.GetCircuitBreakerEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("risk_event_service.GetCircuitBreakerEvent: %w", err)
	}
	return ev, nil
}

// ListCircuitBreakerEventsByUser returns a user's events in the window, oldest first.
func (s *RiskEventService) ListCircuitBreakerEventsByUser(ctx context.Context, userID uuid.UUID, opts domain.ListOptions) ([]*domain.CircuitBreakerEvent, error) {
	if err := checkUserQuery(userID, opts); err != nil {
		return nil, err
	}
	var events []*domain.CircuitBreakerEvent
	err := s.timed("ListCircuitBreakerEventsByUser", func() (err error) {
		events, err = s.store.ListCircuitBreakerEventsByUser(ctx, userID, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("risk_event_service.ListCircuitBreakerEventsByUser: %w", err)
	}
	return events, nil
}

// ListCircuitBreakerEventsBySymbol returns every event for symbol, oldest first.
func (s *RiskEventService) ListCircuitBreakerEventsBySymbol(ctx context.Context, symbol string) ([]*domain.CircuitBreakerEvent, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, domain.NewValidationError("symbol", "is required")
	}
	var events []*domain.CircuitBreakerEvent
	err := s.timed("ListCircuitBreakerEventsBySymbol", func() (err error) {
		events, err = s.store.ListCircuitBreakerEventsBySymbol(ctx, symbol)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("risk_event_service.ListCircuitBreakerEventsBySymbol: %w", err)
	}
	return events, nil
}

// ListOpenCircuitBreakerEvents returns unresolved events, optionally for one user.
func (s *RiskEventService) ListOpenCircuitBreakerEvents(ctx context.Context, userID *uuid.UUID) ([]*domain.CircuitBreakerEvent, error) {
	events, err := s.store.ListOpenCircuitBreakerEvents(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("risk_event_service.ListOpenCircuitBreakerEvents: %w", err)
	}
	return events, nil
}

// ── stats / health ────────────────────────────────────────────────────────────

// Stats aggregates the store's counters over the window of opts.
func (s *RiskEventService) Stats(ctx context.Context, opts domain.ListOptions) (*domain.RiskStats, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	st, err := s.store.Stats(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("risk_event_service.Stats: %w", err)
	}
	return st, nil
}

// Health pings the store. A failed ping degrades the status but still returns
// a report.
func (s *RiskEventService) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:     "ok",
		StoreOK:    true,
		UptimeSecs: int64(time.Since(s.startedAt).Seconds()),
		TotalOps:   s.totalOps.Load(),
	}
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check: store ping failed", "error", err)
		report.Status = "degraded"
		report.StoreOK = false
	}
	return report
}

// ── helpers ───────────────────────────────────────────────────────────────────

func checkUserQuery(userID uuid.UUID, opts domain.ListOptions) error {
	if userID == uuid.Nil {
		return domain.NewValidationError("user_id", "is required")
	}
	return opts.Validate()
}

func symbolAttr(sym *string) string {
	if sym == nil {
		return "*"
	}
	return *sym
}
