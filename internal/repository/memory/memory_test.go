package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/evetabi/riskevents/internal/repository/memory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func riskCheck(t *testing.T, user uuid.UUID, order string, at time.Time, passed bool) *domain.RiskCheck {
	t.Helper()
	var reason *string
	if !passed {
		reason = strPtr("VaR limit exceeded")
	}
	var95 := decimal.RequireFromString("1250.50")
	rc, err := domain.NewRiskCheck(domain.RiskCheckInput{
		UserID:    user,
		OrderID:   order,
		Symbol:    "BTCUSDT",
		CheckType: "pretrade",
		VaR95:     &var95,
		Passed:    &passed,
		Reason:    reason,
		CreatedAt: &at,
	}, at)
	require.NoError(t, err)
	return rc
}

func breaker(t *testing.T, user uuid.UUID, symbol *string, at time.Time) *domain.CircuitBreakerEvent {
	t.Helper()
	threshold, actual := 5.0, 7.5
	ev, err := domain.NewCircuitBreakerEvent(domain.CircuitBreakerInput{
		UserID:      user,
		Symbol:      symbol,
		Level:       "L1",
		TriggerType: "price-move",
		Threshold:   &threshold,
		ActualValue: &actual,
		Action:      "pause-5min",
		CreatedAt:   &at,
	}, at)
	require.NoError(t, err)
	return ev
}

func margin(t *testing.T, user uuid.UUID, at time.Time, call bool) *domain.MarginCalculation {
	t.Helper()
	pv := decimal.RequireFromString("100000")
	util := 42.5
	mc, err := domain.NewMarginCalculation(domain.MarginCalculationInput{
		UserID:            user,
		PortfolioValue:    &pv,
		MarginUtilization: &util,
		MarginCall:        &call,
		CreatedAt:         &at,
	}, at)
	require.NoError(t, err)
	return mc
}

func TestRiskCheck_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	user := uuid.New()
	rc := riskCheck(t, user, "ord-1", base, false)

	require.NoError(t, s.CreateRiskCheck(ctx, rc))

	got, err := s.GetRiskCheck(ctx, rc.ID)
	require.NoError(t, err)
	assert.Equal(t, rc, got)

	// Mutating the returned copy must not leak into the store.
	*got.Reason = "tampered"
	again, err := s.GetRiskCheck(ctx, rc.ID)
	require.NoError(t, err)
	assert.Equal(t, "VaR limit exceeded", *again.Reason)
}

func TestRiskCheck_DuplicateIDRejected(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	rc := riskCheck(t, uuid.New(), "ord-1", base, true)
	require.NoError(t, s.CreateRiskCheck(ctx, rc))

	err := s.CreateRiskCheck(ctx, rc)
	assert.True(t, domain.IsValidation(err))
}

func TestListRiskChecksByUser_OrderWindowAndPaging(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	alice, bob := uuid.New(), uuid.New()

	// Inserted out of order on purpose.
	for _, offset := range []int{3, 0, 4, 1, 2} {
		at := base.Add(time.Duration(offset) * time.Minute)
		require.NoError(t, s.CreateRiskCheck(ctx, riskCheck(t, alice, "ord-a", at, true)))
	}
	require.NoError(t, s.CreateRiskCheck(ctx, riskCheck(t, bob, "ord-b", base, true)))

	all, err := s.ListRiskChecksByUser(ctx, alice, domain.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].CreatedAt.Before(all[i].CreatedAt))
	}
	for _, rc := range all {
		assert.Equal(t, alice, rc.UserID)
	}

	from, to := base.Add(time.Minute), base.Add(3*time.Minute)
	window, err := s.ListRiskChecksByUser(ctx, alice, domain.ListOptions{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, from, window[0].CreatedAt)
	assert.Equal(t, base.Add(2*time.Minute), window[1].CreatedAt)

	page, err := s.ListRiskChecksByUser(ctx, alice, domain.ListOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, all[2].ID, page[0].ID)
	assert.Equal(t, all[3].ID, page[1].ID)

	past, err := s.ListRiskChecksByUser(ctx, alice, domain.ListOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestListRiskChecksByOrder_PretradeScenario(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	user := uuid.New()

	first := riskCheck(t, user, "ord-42", base, false)
	retry := riskCheck(t, user, "ord-42", base.Add(time.Second), true)
	require.NoError(t, s.CreateRiskCheck(ctx, retry))
	require.NoError(t, s.CreateRiskCheck(ctx, first))
	require.NoError(t, s.CreateRiskCheck(ctx, riskCheck(t, user, "ord-43", base, true)))

	got, err := s.ListRiskChecksByOrder(ctx, "ord-42")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.True(t, got[0].Blocked())
	assert.Equal(t, retry.ID, got[1].ID)

	none, err := s.ListRiskChecksByOrder(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMarginCalculations_ListAndLatest(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	user := uuid.New()

	older := margin(t, user, base, false)
	newer := margin(t, user, base.Add(time.Hour), true)
	require.NoError(t, s.CreateMarginCalculation(ctx, newer))
	require.NoError(t, s.CreateMarginCalculation(ctx, older))

	list, err := s.ListMarginCalculationsByUser(ctx, user, domain.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, older.ID, list[0].ID)

	latest, err := s.LatestMarginCalculation(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)
	assert.True(t, latest.PortfolioValue.Equal(decimal.RequireFromString("100000")))

	_, err = s.LatestMarginCalculation(ctx, uuid.New())
	assert.True(t, domain.IsNotFound(err))
}

func TestResolveCircuitBreaker_OpenBreakerScenario(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	user := uuid.New()
	ev := breaker(t, user, strPtr("ETHUSDT"), base)
	require.NoError(t, s.CreateCircuitBreakerEvent(ctx, ev))

	open, err := s.ListOpenCircuitBreakerEvents(ctx, &user)
	require.NoError(t, err)
	require.Len(t, open, 1)

	resolvedAt := base.Add(5 * time.Minute)
	got, err := s.ResolveCircuitBreakerEvent(ctx, ev.ID, resolvedAt)
	require.NoError(t, err)
	at, ok := got.State.ResolvedAt()
	require.True(t, ok)
	assert.Equal(t, resolvedAt, at)

	_, err = s.ResolveCircuitBreakerEvent(ctx, ev.ID, resolvedAt.Add(time.Minute))
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	stored, err := s.GetCircuitBreakerEvent(ctx, ev.ID)
	require.NoError(t, err)
	at, _ = stored.State.ResolvedAt()
	assert.Equal(t, resolvedAt, at, "second resolve must not move the timestamp")

	open, err = s.ListOpenCircuitBreakerEvents(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestResolveCircuitBreaker_Errors(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	ev := breaker(t, uuid.New(), nil, base)
	require.NoError(t, s.CreateCircuitBreakerEvent(ctx, ev))

	_, err := s.ResolveCircuitBreakerEvent(ctx, uuid.New(), base)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.ResolveCircuitBreakerEvent(ctx, ev.ID, base.Add(-time.Second))
	assert.True(t, domain.IsValidation(err))

	stored, err := s.GetCircuitBreakerEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsOpen())
}

func TestResolveCircuitBreaker_ConcurrentResolversSucceedOnce(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	ev := breaker(t, uuid.New(), strPtr("SOLUSDT"), base)
	require.NoError(t, s.CreateCircuitBreakerEvent(ctx, ev))

	const workers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.ResolveCircuitBreakerEvent(ctx, ev.ID, base.Add(time.Duration(i+1)*time.Second))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrAlreadyResolved):
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)
}

func TestListCircuitBreakerEvents_BySymbolAndUser(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	alice, bob := uuid.New(), uuid.New()

	btcLater := breaker(t, alice, strPtr("BTCUSDT"), base.Add(time.Minute))
	btcEarly := breaker(t, bob, strPtr("BTCUSDT"), base)
	wide := breaker(t, alice, nil, base)
	for _, ev := range []*domain.CircuitBreakerEvent{btcLater, btcEarly, wide} {
		require.NoError(t, s.CreateCircuitBreakerEvent(ctx, ev))
	}

	bySym, err := s.ListCircuitBreakerEventsBySymbol(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, bySym, 2)
	assert.Equal(t, btcEarly.ID, bySym[0].ID)
	assert.Equal(t, btcLater.ID, bySym[1].ID)

	byUser, err := s.ListCircuitBreakerEventsByUser(ctx, alice, domain.ListOptions{})
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	for _, ev := range byUser {
		assert.Equal(t, alice, ev.UserID)
	}
}

func TestReferentialIntegrity(t *testing.T) {
	ctx := context.Background()
	known := uuid.New()
	s := memory.NewStoreWithUsers(known)

	assert.NoError(t, s.CreateRiskCheck(ctx, riskCheck(t, known, "ord-1", base, true)))

	stranger := uuid.New()
	err := s.CreateRiskCheck(ctx, riskCheck(t, stranger, "ord-2", base, true))
	assert.True(t, domain.IsReferential(err))
	err = s.CreateMarginCalculation(ctx, margin(t, stranger, base, false))
	assert.True(t, domain.IsReferential(err))
	err = s.CreateCircuitBreakerEvent(ctx, breaker(t, stranger, nil, base))
	assert.True(t, domain.IsReferential(err))

	checks, err := s.ListRiskChecksByOrder(ctx, "ord-2")
	require.NoError(t, err)
	assert.Empty(t, checks, "rejected write must leave nothing behind")

	s.AddUser(stranger)
	assert.NoError(t, s.CreateMarginCalculation(ctx, margin(t, stranger, base, false)))
}

func TestStorageUnavailable(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	s.FailWith(errors.New("connection refused"))

	err := s.CreateRiskCheck(ctx, riskCheck(t, uuid.New(), "ord-1", base, true))
	assert.True(t, domain.IsUnavailable(err))
	_, err = s.ListRiskChecksByUser(ctx, uuid.New(), domain.ListOptions{})
	assert.True(t, domain.IsUnavailable(err))
	assert.True(t, domain.IsUnavailable(s.Ping(ctx)))

	s.FailWith(nil)
	assert.NoError(t, s.Ping(ctx))
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	user := uuid.New()

	require.NoError(t, s.CreateRiskCheck(ctx, riskCheck(t, user, "o1", base, true)))
	require.NoError(t, s.CreateRiskCheck(ctx, riskCheck(t, user, "o2", base, true)))
	require.NoError(t, s.CreateRiskCheck(ctx, riskCheck(t, user, "o3", base, true)))
	require.NoError(t, s.CreateRiskCheck(ctx, riskCheck(t, user, "o4", base, false)))
	require.NoError(t, s.CreateMarginCalculation(ctx, margin(t, user, base, true)))
	resolved := breaker(t, user, nil, base)
	require.NoError(t, s.CreateCircuitBreakerEvent(ctx, resolved))
	require.NoError(t, s.CreateCircuitBreakerEvent(ctx, breaker(t, user, nil, base.Add(time.Hour))))
	_, err := s.ResolveCircuitBreakerEvent(ctx, resolved.ID, base.Add(time.Minute))
	require.NoError(t, err)

	st, err := s.Stats(ctx, domain.ListOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, st.TotalChecks)
	assert.EqualValues(t, 1, st.TradesBlocked)
	assert.EqualValues(t, 1, st.TotalMarginCalcs)
	assert.EqualValues(t, 1, st.MarginCalls)
	assert.EqualValues(t, 2, st.BreakerTrips)
	assert.EqualValues(t, 1, st.OpenBreakers)
	assert.EqualValues(t, 3, st.TotalAlerts)
	assert.InDelta(t, 25.0, st.BlockRatePct, 1e-9)

	to := base.Add(30 * time.Minute)
	windowed, err := s.Stats(ctx, domain.ListOptions{To: &to})
	require.NoError(t, err)
	assert.EqualValues(t, 1, windowed.BreakerTrips)
	assert.EqualValues(t, 1, windowed.OpenBreakers)
}
