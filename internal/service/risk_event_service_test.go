package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/evetabi/riskevents/internal/repository/memory"
	"github.com/evetabi/riskevents/internal/service"
	"github.com/evetabi/riskevents/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clock = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

// ── test doubles ──────────────────────────────────────────────────────────────

type recordingNotifier struct {
	mu       sync.Mutex
	tripped  []uuid.UUID
	resolved []uuid.UUID
}

func (n *recordingNotifier) BreakerTripped(_ context.Context, ev *domain.CircuitBreakerEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tripped = append(n.tripped, ev.ID)
}

func (n *recordingNotifier) BreakerResolved(_ context.Context, ev *domain.CircuitBreakerEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolved = append(n.resolved, ev.ID)
}

func newService(t *testing.T, users ...uuid.UUID) (*service.RiskEventService, *memory.Store, *recordingNotifier) {
	t.Helper()
	store := memory.NewStore()
	if len(users) > 0 {
		store = memory.NewStoreWithUsers(users...)
	}
	n := &recordingNotifier{}
	svc := service.NewRiskEventService(store, n, metrics.NewMetricsCollector(nil), nil)
	svc.SetClock(func() time.Time { return clock })
	return svc, store, n
}

func ptr[T any](v T) *T { return &v }

func breakerInput(user uuid.UUID, symbol string) domain.CircuitBreakerInput {
	return domain.CircuitBreakerInput{
		UserID:      user,
		Symbol:      ptr(symbol),
		Level:       "L2",
		TriggerType: "volume-spike",
		Threshold:   ptr(3.0),
		ActualValue: ptr(4.2),
		Action:      "halt-trading",
	}
}

// ── scenarios ─────────────────────────────────────────────────────────────────

func TestPretradeCheckBlockedThenRetried(t *testing.T) {
	ctx := context.Background()
	user := uuid.New()
	svc, _, _ := newService(t, user)

	blocked, err := svc.RecordRiskCheck(ctx, domain.RiskCheckInput{
		UserID:    user,
		OrderID:   "ord-1001",
		Symbol:    "BTCUSDT",
		CheckType: "pretrade",
		VaR95:     ptr(decimal.RequireFromString("52000.10")),
		VaR99:     ptr(decimal.RequireFromString("74000.00")),
		Passed:    ptr(false),
		Reason:    ptr("VaR95 above account limit"),
		LatencyUs: ptr(int64(180)),
	})
	require.NoError(t, err)
	assert.True(t, blocked.Blocked())
	assert.Equal(t, clock, blocked.CreatedAt)

	svc.SetClock(func() time.Time { return clock.Add(time.Second) })
	passed, err := svc.RecordRiskCheck(ctx, domain.RiskCheckInput{
		UserID:    user,
		OrderID:   "ord-1001",
		Symbol:    "BTCUSDT",
		CheckType: "pretrade",
	})
	require.NoError(t, err)
	assert.True(t, passed.Passed)

	history, err := svc.ListRiskChecksByOrder(ctx, "ord-1001")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, blocked.ID, history[0].ID)
	assert.Equal(t, passed.ID, history[1].ID)

	stats, err := svc.Stats(ctx, domain.ListOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalChecks)
	assert.EqualValues(t, 1, stats.TradesBlocked)
	assert.InDelta(t, 50.0, stats.BlockRatePct, 1e-9)
}

func TestOpenBreakerLifecycle(t *testing.T) {
	ctx := context.Background()
	user := uuid.New()
	svc, _, notes := newService(t, user)

	ev, err := svc.RecordCircuitBreakerEvent(ctx, breakerInput(user, "ETHUSDT"))
	require.NoError(t, err)
	assert.True(t, ev.IsOpen())
	assert.Equal(t, []uuid.UUID{ev.ID}, notes.tripped)

	open, err := svc.ListOpenCircuitBreakerEvents(ctx, nil)
	require.NoError(t, err)
	require.Len(t, open, 1)

	// nil resolution time means "now".
	svc.SetClock(func() time.Time { return clock.Add(5 * time.Minute) })
	resolved, err := svc.ResolveCircuitBreakerEvent(ctx, ev.ID, nil)
	require.NoError(t, err)
	at, ok := resolved.State.ResolvedAt()
	require.True(t, ok)
	assert.Equal(t, clock.Add(5*time.Minute), at)
	assert.Equal(t, []uuid.UUID{ev.ID}, notes.resolved)

	_, err = svc.ResolveCircuitBreakerEvent(ctx, ev.ID, ptr(clock.Add(time.Hour)))
	assert.True(t, domain.IsConflict(err))
	assert.Len(t, notes.resolved, 1, "a rejected resolve must not notify")

	bySymbol, err := svc.ListCircuitBreakerEventsBySymbol(ctx, "ETHUSDT")
	require.NoError(t, err)
	require.Len(t, bySymbol, 1)
	assert.False(t, bySymbol[0].IsOpen())
}

func TestResolve_ConcurrentCallersExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	user := uuid.New()
	svc, _, notes := newService(t, user)

	ev, err := svc.RecordCircuitBreakerEvent(ctx, breakerInput(user, "SOLUSDT"))
	require.NoError(t, err)

	const workers = 50
	var (
		wins, conflicts int64
		wg              sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.ResolveCircuitBreakerEvent(ctx, ev.ID, ptr(clock.Add(time.Duration(i+1)*time.Millisecond)))
			switch {
			case err == nil:
				atomic.AddInt64(&wins, 1)
			case errors.Is(err, domain.ErrAlreadyResolved):
				atomic.AddInt64(&conflicts, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins)
	assert.EqualValues(t, workers-1, conflicts)
	assert.Len(t, notes.resolved, 1)
}

func TestRecord_ErrorTaxonomy(t *testing.T) {
	ctx := context.Background()
	known := uuid.New()
	svc, store, notes := newService(t, known)

	_, err := svc.RecordRiskCheck(ctx, domain.RiskCheckInput{UserID: known, Symbol: "BTCUSDT", CheckType: "pretrade"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "order_id", verr.Field)

	_, err = svc.RecordMarginCalculation(ctx, domain.MarginCalculationInput{UserID: uuid.New()})
	assert.True(t, domain.IsReferential(err))

	_, err = svc.RecordCircuitBreakerEvent(ctx, breakerInput(uuid.New(), "BTCUSDT"))
	assert.True(t, domain.IsReferential(err))
	assert.Empty(t, notes.tripped, "failed writes must not notify")

	_, err = svc.ResolveCircuitBreakerEvent(ctx, uuid.New(), nil)
	assert.True(t, domain.IsNotFound(err))

	store.FailWith(errors.New("connection refused"))
	_, err = svc.RecordMarginCalculation(ctx, domain.MarginCalculationInput{UserID: known})
	assert.True(t, domain.IsUnavailable(err))

	report := svc.Health(ctx)
	assert.Equal(t, "degraded", report.Status)
	assert.False(t, report.StoreOK)
}

func TestRecordRiskCheck_UnknownCheckTypePersistsNothing(t *testing.T) {
	ctx := context.Background()
	user := uuid.New()
	svc, store, _ := newService(t, user)

	_, err := svc.RecordRiskCheck(ctx, domain.RiskCheckInput{
		UserID:    user,
		OrderID:   "o1",
		Symbol:    "BTCUSDT",
		CheckType: "bogus",
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "check_type", verr.Field)

	stored, err := store.ListRiskChecksByOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Empty(t, stored)

	stats, err := svc.Stats(ctx, domain.ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, stats.TotalChecks)
	assert.Zero(t, stats.TradesBlocked)
}

func TestList_ValidatesQuery(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, err := svc.ListRiskChecksByUser(ctx, uuid.Nil, domain.ListOptions{})
	assert.True(t, domain.IsValidation(err))

	from, to := clock, clock.Add(-time.Hour)
	_, err = svc.ListMarginCalculationsByUser(ctx, uuid.New(), domain.ListOptions{From: &from, To: &to})
	assert.True(t, domain.IsValidation(err))

	_, err = svc.ListRiskChecksByOrder(ctx, "   ")
	assert.True(t, domain.IsValidation(err))

	_, err = svc.ListCircuitBreakerEventsBySymbol(ctx, "")
	assert.True(t, domain.IsValidation(err))

	events, err := svc.ListCircuitBreakerEventsByUser(ctx, uuid.New(), domain.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestMargin_LatestAndHealthCounters(t *testing.T) {
	ctx := context.Background()
	user := uuid.New()
	svc, _, _ := newService(t)

	for i := 0; i < 3; i++ {
		svc.SetClock(func() time.Time { return clock.Add(time.Duration(i) * time.Minute) })
		_, err := svc.RecordMarginCalculation(ctx, domain.MarginCalculationInput{
			UserID:            user,
			PortfolioValue:    ptr(decimal.NewFromInt(int64(1000 * (i + 1)))),
			MarginUtilization: ptr(float64(30 * (i + 1))),
			MarginCall:        ptr(i == 2),
		})
		require.NoError(t, err)
	}

	latest, err := svc.LatestMarginCalculation(ctx, user)
	require.NoError(t, err)
	assert.True(t, latest.MarginCall)
	assert.True(t, latest.PortfolioValue.Equal(decimal.NewFromInt(3000)))

	list, err := svc.ListMarginCalculationsByUser(ctx, user, domain.ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	report := svc.Health(ctx)
	assert.Equal(t, "ok", report.Status)
	assert.EqualValues(t, 3, report.TotalOps)
}
