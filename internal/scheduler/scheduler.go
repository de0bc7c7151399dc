// Package scheduler runs the background housekeeping loop for the risk event
// store: it refreshes the open-breaker gauge and warns about breakers that
// have stayed open longer than the configured limit.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/evetabi/riskevents/internal/config"
	"github.com/evetabi/riskevents/internal/domain"
	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// Dependencies
// ──────────────────────────────────────────────────────────────────────────────

// BreakerSource lists unresolved breakers. *service.RiskEventService satisfies it.
type BreakerSource interface {
	ListOpenCircuitBreakerEvents(ctx context.Context, userID *uuid.UUID) ([]*domain.CircuitBreakerEvent, error)
}

// Gauge receives the current open-breaker count. *metrics.MetricsCollector
// satisfies it.
type Gauge interface {
	SetOpenBreakers(n int)
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler
// ──────────────────────────────────────────────────────────────────────────────

// Scheduler owns the sweep loop. Call Start(ctx) once from main(); cancel the
// context to shut it down.
type Scheduler struct {
	source     BreakerSource
	gauge      Gauge
	interval   time.Duration
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time

	// warned remembers stale breakers already reported so each one is logged once.
	warned map[uuid.UUID]struct{}
}

// NewScheduler creates a Scheduler.
func NewScheduler(source BreakerSource, gauge Gauge, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		source:     source,
		gauge:      gauge,
		interval:   cfg.Interval,
		staleAfter: cfg.BreakerStaleAfter,
		logger:     logger,
		now:        time.Now,
		warned:     make(map[uuid.UUID]struct{}),
	}
}

// Start launches the sweep goroutine. It returns immediately; the loop runs
// until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.sweepLoop(ctx)
	s.logger.Info("scheduler started", "interval", s.interval, "stale_after", s.staleAfter)
}

// ──────────────────────────────────────────────────────────────────────────────
// sweepLoop
// ──────────────────────────────────────────────────────────────────────────────

// sweepLoop runs one sweep immediately and then once per interval.
func (s *Scheduler) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.safeSweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweepLoop: shutting down")
			return
		case <-ticker.C:
			s.safeSweep(ctx)
		}
	}
}

// safeSweep wraps Sweep so a panic in one pass does not kill the loop.
func (s *Scheduler) safeSweep(ctx context.Context) {
	defer s.recoverAndLog("sweepLoop")
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("sweepLoop: sweep failed", "err", err)
	}
}

// Sweep reads the open breakers once, updates the gauge and returns the ones
// open longer than the stale limit.
func (s *Scheduler) Sweep(ctx context.Context) ([]*domain.CircuitBreakerEvent, error) {
	open, err := s.source.ListOpenCircuitBreakerEvents(ctx, nil)
	if err != nil {
		return nil, err
	}
	if s.gauge != nil {
		s.gauge.SetOpenBreakers(len(open))
	}

	now := s.now()
	stillOpen := make(map[uuid.UUID]struct{}, len(open))
	var stale []*domain.CircuitBreakerEvent
	for _, ev := range open {
		stillOpen[ev.ID] = struct{}{}
		d := ev.OpenFor(now)
		if d <= s.staleAfter {
			continue
		}
		stale = append(stale, ev)
		if _, seen := s.warned[ev.ID]; seen {
			continue
		}
		s.warned[ev.ID] = struct{}{}
		s.logger.Warn("circuit breaker open past stale limit",
			"id", ev.ID, "user_id", ev.UserID, "level", ev.Level,
			"action", ev.Action, "open_for", d.Truncate(time.Second))
	}

	// Forget breakers that have since been resolved.
	for id := range s.warned {
		if _, ok := stillOpen[id]; !ok {
			delete(s.warned, id)
		}
	}
	return stale, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Panic recovery
// ──────────────────────────────────────────────────────────────────────────────

// recoverAndLog is deferred around each sweep to catch unexpected panics,
// log them, and allow the scheduler to continue running.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler loop",
			"loop", loop, "panic", r)
	}
}
