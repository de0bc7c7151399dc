// Package memory is an in-process repository.Store. It keeps the same
// ordering, validation and compare-and-set semantics as the postgres store
// and is used by tests and by STORE_DRIVER=memory deployments.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/evetabi/riskevents/internal/repository"
	"github.com/google/uuid"
)

var _ repository.Store = (*Store)(nil)

// Store holds every record behind one RWMutex. Records are copied on the way
// in and on the way out, so callers can never mutate stored state.
type Store struct {
	mu sync.RWMutex

	// users is nil while referential checks are disabled.
	users map[uuid.UUID]struct{}

	checks        map[uuid.UUID]*domain.RiskCheck
	checksByUser  map[uuid.UUID][]uuid.UUID
	checksByOrder map[string][]uuid.UUID

	margins        map[uuid.UUID]*domain.MarginCalculation
	marginsByUser  map[uuid.UUID][]uuid.UUID
	breakers       map[uuid.UUID]*domain.CircuitBreakerEvent
	breakersByUser map[uuid.UUID][]uuid.UUID
	breakersBySym  map[string][]uuid.UUID

	failure error
}

// NewStore returns an empty store that accepts any user id.
func NewStore() *Store {
	return &Store{
		checks:         make(map[uuid.UUID]*domain.RiskCheck),
		checksByUser:   make(map[uuid.UUID][]uuid.UUID),
		checksByOrder:  make(map[string][]uuid.UUID),
		margins:        make(map[uuid.UUID]*domain.MarginCalculation),
		marginsByUser:  make(map[uuid.UUID][]uuid.UUID),
		breakers:       make(map[uuid.UUID]*domain.CircuitBreakerEvent),
		breakersByUser: make(map[uuid.UUID][]uuid.UUID),
		breakersBySym:  make(map[string][]uuid.UUID),
	}
}

// NewStoreWithUsers returns a store that rejects writes for user ids outside
// users with domain.ErrReferentialIntegrity.
func NewStoreWithUsers(users ...uuid.UUID) *Store {
	s := NewStore()
	s.users = make(map[uuid.UUID]struct{}, len(users))
	for _, id := range users {
		s.users[id] = struct{}{}
	}
	return s
}

// AddUser registers a known user id and enables referential checks.
func (s *Store) AddUser(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[uuid.UUID]struct{})
	}
	s.users[id] = struct{}{}
}

// FailWith makes every subsequent call fail with a storage error wrapping
// err. Pass nil to recover.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

// Ping reports the injected failure, if any.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.check("memory.Ping")
}

// check must be called with s.mu held.
func (s *Store) check(op string) error {
	if s.failure != nil {
		return &domain.StorageError{Op: op, Err: s.failure}
	}
	return nil
}

// admit must be called with s.mu held for writing.
func (s *Store) admit(op string, id, userID uuid.UUID, exists bool) error {
	if err := s.check(op); err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%s: %w", op, domain.NewValidationError("id", "already exists"))
	}
	if s.users != nil {
		if _, ok := s.users[userID]; !ok {
			return fmt.Errorf("%s: %w", op, domain.ErrReferentialIntegrity)
		}
	}
	return nil
}

// ── risk checks ───────────────────────────────────────────────────────────────

func (s *Store) CreateRiskCheck(ctx context.Context, rc *domain.RiskCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.checks[rc.ID]
	if err := s.admit("memory.CreateRiskCheck", rc.ID, rc.UserID, exists); err != nil {
		return err
	}
	stored := copyRiskCheck(rc)
	s.checks[rc.ID] = stored
	s.checksByUser[rc.UserID] = append(s.checksByUser[rc.UserID], rc.ID)
	s.checksByOrder[rc.OrderID] = append(s.checksByOrder[rc.OrderID], rc.ID)
	return nil
}

func (s *Store) GetRiskCheck(ctx context.Context, id uuid.UUID) (*domain.RiskCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check("memory.GetRiskCheck"); err != nil {
		return nil, err
	}
	rc, ok := s.checks[id]
	if !ok {
		return nil, fmt.Errorf("memory.GetRiskCheck %s: %w", id, domain.ErrNotFound)
	}
	return copyRiskCheck(rc), nil
}

func (s *Store) ListRiskChecksByUser(ctx context.Context, userID uuid.UUID, opts domain.ListOptions) ([]*domain.RiskCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check("memory.ListRiskChecksByUser"); err != nil {
		return nil, err
	}
	opts = opts.Normalize()
	out := []*domain.RiskCheck{}
	for _, id := range s.checksByUser[userID] {
		if rc := s.checks[id]; opts.Contains(rc.CreatedAt) {
			out = append(out, copyRiskCheck(rc))
		}
	}
	sortByCreated(out, func(rc *domain.RiskCheck) (time.Time, uuid.UUID) { return rc.CreatedAt, rc.ID })
	return page(out, opts), nil
}

func (s *Store) ListRiskChecksByOrder(ctx context.Context, orderID string) ([]*domain.RiskCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check("memory.ListRiskChecksByOrder"); err != nil {
		return nil, err
	}
	out := []*domain.RiskCheck{}
	for _, id := range s.checksByOrder[orderID] {
		out = append(out, copyRiskCheck(s.checks[id]))
	}
	sortByCreated(out, func(rc *domain.RiskCheck) (time.Time, uuid.UUID) { return rc.CreatedAt, rc.ID })
	return out, nil
}

// ── margin ────────────────────────────────────────────────────────────────────

func (s *Store) CreateMarginCalculation(ctx context.Context, mc *domain.MarginCalculation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.margins[mc.ID]
	if err := s.admit("memory.CreateMarginCalculation", mc.ID, mc.UserID, exists); err != nil {
		return err
	}
	stored := *mc
	s.margins[mc.ID] = &stored
	s.marginsByUser[mc.UserID] = append(s.marginsByUser[mc.UserID], mc.ID)
	return nil
}

func (s *Store) GetMarginCalculation(ctx context.Context, id uuid.UUID) (*domain.MarginCalculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check("memory.GetMarginCalculation"); err != nil {
		return nil, err
	}
	mc, ok := s.margins[id]
	if !ok {
		return nil, fmt.Errorf("memory.GetMarginCalculation %s: %w", id, domain.ErrNotFound)
	}
	out := *mc
	return &out, nil
}

func (s *Store) ListMarginCalculationsByUser(ctx context.Context, userID uuid.UUID, opts domain.ListOptions) ([]*domain.MarginCalculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check("memory.ListMarginCalculationsByUser"); err != nil {
		return nil, err
	}
	opts = opts.Normalize()
	out := []*domain.MarginCalculation{}
	for _, id := range s.marginsByUser[userID] {
		if mc := s.margins[id]; opts.Contains(mc.CreatedAt) {
			cp := *mc
			out = append(out, &cp)
		}
	}
	sortByCreated(out, func(mc *domain.MarginCalculation) (time.Time, uuid.UUID) { return mc.CreatedAt, mc.ID })
	return page(out, opts), nil
}

func (s *Store) LatestMarginCalculation(ctx context.Context, userID uuid.UUID) (*domain.MarginCalculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check("memory.LatestMarginCalculation"); err != nil {
		return nil, err
	}
	var latest *domain.MarginCalculation
	for _, id := range s.marginsByUser[userID] {
		mc := s.margins[id]
		if latest == nil || after(mc.CreatedAt, mc.ID, latest.CreatedAt, latest.ID) {
			latest = mc
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("memory.LatestMarginCalculation %s: %w", userID, domain.ErrNotFound)
	}
	out := *latest
	return &out, nil
}

// ── circuit breakers ──────────────────────────────────────────────────────────

func (s *Store) CreateCircuitBreakerEvent(ctx context.Context, ev *domain.CircuitBreakerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.breakers[ev.ID]
	if err := s.admit("memory.CreateCircuitBreakerEvent", ev.ID, ev.UserID, exists); err != nil {
		return err
	}
	stored := copyBreaker(ev)
	stored.State = domain.OpenState()
	s.breakers[ev.ID] = stored
	s.breakersByUser[ev.UserID] = append(s.breakersByUser[ev.UserID], ev.ID)
	if ev.Symbol != nil {
		s.breakersBySym[*ev.Symbol] = append(s.breakersBySym[*ev.Symbol], ev.ID)
	}
	return nil
}

func (s *Store) GetCircuitBreakerEvent(ctx context.Context, id uuid.UUID) (*domain.CircuitBreakerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check("memory.GetCircuitBreakerEvent"); err != nil {
		return nil, err
	}
	ev, ok := s.breakers[id]
	if !ok {
		return nil, fmt.Errorf("memory.GetCircuitBreakerEvent %s: %w", id, domain.ErrNotFound)
	}
	return copyBreaker(ev), nil
}

// ResolveCircuitBreakerEvent performs the open→resolved transition under the
// write lock, which makes it a compare-and-set.
func (s *Store) ResolveCircuitBreakerEvent(ctx context.Context, id uuid.UUID, at time.Time) (*domain.CircuitBreakerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("memory.ResolveCircuitBreakerEvent"); err != nil {
		return nil, err
	}
	ev, ok := s.breakers[id]
	if !ok {
		return nil, fmt.Errorf("memory.ResolveCircuitBreakerEvent %s: %w", id, domain.ErrNotFound)
	}
	if err := ev.Resolve(at); err != nil {
		return nil, err
	}
	return copyBreaker(ev), nil
}

func (s *Store) ListCircuitBreakerEventsByUser(ctx context.Context, userID uuid.UUID, opts domain.ListOptions) ([]*domain.CircuitBreakerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check("memory.ListCircuitBreakerEventsByUser"); err != nil {
		return nil, err
	}
	opts = opts.Normalize()
	out := []*domain.CircuitBreakerEvent{}
	for _, id := range s.breakersByUser[userID] {
		if ev := s.breakers[id]; opts.Contains(ev.CreatedAt) {
			out = append(out, copyBreaker(ev))
		}
	}
	sortByCreated(out, breakerKey)
	return page(out, opts), nil
}

func (s *Store) ListCircuitBreakerEventsBySymbol(ctx context.Context, symbol string) ([]*domain.CircuitBreakerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check("memory.ListCircuitBreakerEventsBySymbol"); err != nil {
		return nil, err
	}
	out := []*domain.CircuitBreakerEvent{}
	for _, id := range s.breakersBySym[symbol] {
		out = append(out, copyBreaker(s.breakers[id]))
	}
	sortByCreated(out, breakerKey)
	return out, nil
}

func (s *Store) ListOpenCircuitBreakerEvents(ctx context.Context, userID *uuid.UUID) ([]*domain.CircuitBreakerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check("memory.ListOpenCircuitBreakerEvents"); err != nil {
		return nil, err
	}
	out := []*domain.CircuitBreakerEvent{}
	for _, ev := range s.breakers {
		if !ev.IsOpen() || (userID != nil && ev.UserID != *userID) {
			continue
		}
		out = append(out, copyBreaker(ev))
	}
	sortByCreated(out, breakerKey)
	return out, nil
}

// ── stats ─────────────────────────────────────────────────────────────────────

func (s *Store) Stats(ctx context.Context, opts domain.ListOptions) (*domain.RiskStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check("memory.Stats"); err != nil {
		return nil, err
	}
	opts = opts.Normalize()
	var st domain.RiskStats
	for _, rc := range s.checks {
		if !opts.Contains(rc.CreatedAt) {
			continue
		}
		st.TotalChecks++
		if rc.Blocked() {
			st.TradesBlocked++
		}
	}
	for _, mc := range s.margins {
		if !opts.Contains(mc.CreatedAt) {
			continue
		}
		st.TotalMarginCalcs++
		if mc.MarginCall {
			st.MarginCalls++
		}
	}
	for _, ev := range s.breakers {
		if ev.IsOpen() {
			st.OpenBreakers++
		}
		if opts.Contains(ev.CreatedAt) {
			st.BreakerTrips++
		}
	}
	st.Finalize()
	return &st, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func copyRiskCheck(rc *domain.RiskCheck) *domain.RiskCheck {
	out := *rc
	if rc.Reason != nil {
		reason := *rc.Reason
		out.Reason = &reason
	}
	return &out
}

func copyBreaker(ev *domain.CircuitBreakerEvent) *domain.CircuitBreakerEvent {
	out := *ev
	if ev.Symbol != nil {
		sym := *ev.Symbol
		out.Symbol = &sym
	}
	return &out
}

func breakerKey(ev *domain.CircuitBreakerEvent) (time.Time, uuid.UUID) {
	return ev.CreatedAt, ev.ID
}

// after orders by created_at then id, matching the postgres ORDER BY.
func after(t1 time.Time, id1 uuid.UUID, t2 time.Time, id2 uuid.UUID) bool {
	if !t1.Equal(t2) {
		return t1.After(t2)
	}
	return bytes.Compare(id1[:], id2[:]) > 0
}

func sortByCreated[T any](items []T, key func(T) (time.Time, uuid.UUID)) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		return after(tj, idj, ti, idi)
	})
}

func page[T any](items []T, opts domain.ListOptions) []T {
	if opts.Offset >= len(items) {
		return items[:0]
	}
	end := opts.Offset + opts.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[opts.Offset:end]
}
