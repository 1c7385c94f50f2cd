// Package memstore provides an in-memory store.Store used by tests and by
// the ephemeral ("memory" driver) run mode. Transactions are implemented by
// snapshotting state on Begin and restoring it on Rollback.
package memstore

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"papertrade/internal/domain"
	"papertrade/internal/store"
)

type state struct {
	trades     map[int64]domain.Trade
	positions  map[int64]domain.Position
	events     map[string]domain.PositionExitEvent
	strategies map[int64]domain.Strategy
	snapshots  map[string]domain.StrategyPerformance // keyed strategyID|period

	nextTradeID    int64
	nextPositionID int64
	nextStrategyID int64
	nextSnapshotID int64
	eventSeq       int64
}

func newState() *state {
	return &state{
		trades:         make(map[int64]domain.Trade),
		positions:      make(map[int64]domain.Position),
		events:         make(map[string]domain.PositionExitEvent),
		strategies:     make(map[int64]domain.Strategy),
		snapshots:      make(map[string]domain.StrategyPerformance),
		nextTradeID:    1,
		nextPositionID: 1,
		nextStrategyID: 1,
		nextSnapshotID: 1,
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.trades {
		c.trades[k] = v
	}
	for k, v := range s.positions {
		c.positions[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.strategies {
		c.strategies[k] = v
	}
	for k, v := range s.snapshots {
		c.snapshots[k] = v
	}
	c.nextTradeID = s.nextTradeID
	c.nextPositionID = s.nextPositionID
	c.nextStrategyID = s.nextStrategyID
	c.nextSnapshotID = s.nextSnapshotID
	c.eventSeq = s.eventSeq
	return c
}

// MemStore is an in-memory implementation of store.Store.
type MemStore struct {
	mu sync.Mutex
	st *state
}

func New() *MemStore {
	return &MemStore{st: newState()}
}

var _ store.Store = (*MemStore)(nil)

func (m *MemStore) Begin(ctx context.Context) (store.UnitOfWork, error) {
	m.mu.Lock()
	return &unitOfWork{store: m, snapshot: m.st.clone()}, nil
}

func (m *MemStore) Trades() store.TradeRepository         { return &tradeRepo{store: m, locking: true} }
func (m *MemStore) Positions() store.PositionRepository   { return &positionRepo{store: m, locking: true} }
func (m *MemStore) ExitEvents() store.ExitEventRepository { return &exitEventRepo{store: m, locking: true} }
func (m *MemStore) Strategies() store.StrategyRepository  { return &strategyRepo{store: m, locking: true} }
func (m *MemStore) Performance() store.PerformanceRepository {
	return &performanceRepo{store: m, locking: true}
}

func (m *MemStore) Close() error { return nil }

func (m *MemStore) lock() {
	m.mu.Lock()
}

func (m *MemStore) unlock() {
	m.mu.Unlock()
}

// unitOfWork holds the store lock for its whole lifetime; Rollback restores
// the snapshot taken at Begin.
type unitOfWork struct {
	store    *MemStore
	snapshot *state
	done     bool
}

var _ store.UnitOfWork = (*unitOfWork)(nil)

func (u *unitOfWork) Commit() error {
	if u.done {
		return nil
	}
	u.done = true
	u.store.mu.Unlock()
	return nil
}

func (u *unitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	u.store.st = u.snapshot
	u.store.mu.Unlock()
	return nil
}

func (u *unitOfWork) Trades() store.TradeRepository         { return &tradeRepo{store: u.store} }
func (u *unitOfWork) Positions() store.PositionRepository   { return &positionRepo{store: u.store} }
func (u *unitOfWork) ExitEvents() store.ExitEventRepository { return &exitEventRepo{store: u.store} }
func (u *unitOfWork) Strategies() store.StrategyRepository  { return &strategyRepo{store: u.store} }
func (u *unitOfWork) Performance() store.PerformanceRepository {
	return &performanceRepo{store: u.store}
}

type tradeRepo struct {
	store   *MemStore
	locking bool
}

func (r *tradeRepo) enter() func() {
	if !r.locking {
		return func() {}
	}
	r.store.lock()
	return r.store.unlock
}

func (r *tradeRepo) Create(ctx context.Context, trade *domain.Trade) error {
	defer r.enter()()
	st := r.store.st
	trade.ID = st.nextTradeID
	st.nextTradeID++
	now := time.Now()
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = now
	}
	trade.UpdatedAt = now
	st.trades[trade.ID] = *trade
	return nil
}

func (r *tradeRepo) Update(ctx context.Context, trade *domain.Trade) error {
	defer r.enter()()
	st := r.store.st
	if _, ok := st.trades[trade.ID]; !ok {
		return domain.ErrNotFound
	}
	trade.UpdatedAt = time.Now()
	st.trades[trade.ID] = *trade
	return nil
}

func (r *tradeRepo) FindByID(ctx context.Context, id int64) (*domain.Trade, error) {
	defer r.enter()()
	t, ok := r.store.st.trades[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (r *tradeRepo) ListAll(ctx context.Context) ([]domain.Trade, error) {
	defer r.enter()()
	out := make([]domain.Trade, 0, len(r.store.st.trades))
	for _, t := range r.store.st.trades {
		out = append(out, t)
	}
	sortTrades(out)
	return out, nil
}

func (r *tradeRepo) ListByPosition(ctx context.Context, positionID int64) ([]domain.Trade, error) {
	defer r.enter()()
	var out []domain.Trade
	for _, t := range r.store.st.trades {
		if t.PositionID == positionID {
			out = append(out, t)
		}
	}
	sortTrades(out)
	return out, nil
}

func sortTrades(trades []domain.Trade) {
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].ExecutedAt.Equal(trades[j].ExecutedAt) {
			return trades[i].ID < trades[j].ID
		}
		return trades[i].ExecutedAt.Before(trades[j].ExecutedAt)
	})
}

type positionRepo struct {
	store   *MemStore
	locking bool
}

func (r *positionRepo) enter() func() {
	if !r.locking {
		return func() {}
	}
	r.store.lock()
	return r.store.unlock
}

func (r *positionRepo) Create(ctx context.Context, pos *domain.Position) error {
	defer r.enter()()
	st := r.store.st
	pos.ID = st.nextPositionID
	st.nextPositionID++
	pos.UpdatedAt = time.Now()
	st.positions[pos.ID] = clonePosition(*pos)
	return nil
}

func (r *positionRepo) Update(ctx context.Context, pos *domain.Position) error {
	defer r.enter()()
	st := r.store.st
	if _, ok := st.positions[pos.ID]; !ok {
		return domain.ErrNotFound
	}
	pos.UpdatedAt = time.Now()
	st.positions[pos.ID] = clonePosition(*pos)
	return nil
}

func (r *positionRepo) FindByID(ctx context.Context, id int64) (*domain.Position, error) {
	defer r.enter()()
	p, ok := r.store.st.positions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := clonePosition(p)
	return &c, nil
}

func (r *positionRepo) ListActive(ctx context.Context) ([]domain.Position, error) {
	return r.filter(func(p domain.Position) bool {
		return p.Status.Active()
	})
}

func (r *positionRepo) ListActiveByStrategy(ctx context.Context, strategyID int64) ([]domain.Position, error) {
	return r.filter(func(p domain.Position) bool {
		return p.Status.Active() && p.StrategyID == strategyID
	})
}

func (r *positionRepo) ListClosedSince(ctx context.Context, strategyID int64, since time.Time) ([]domain.Position, error) {
	out, err := r.filter(func(p domain.Position) bool {
		if p.Status.Active() || p.ClosedAt == nil || p.ClosedAt.Before(since) {
			return false
		}
		return strategyID == 0 || p.StrategyID == strategyID
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ClosedAt.Before(*out[j].ClosedAt)
	})
	return out, nil
}

func (r *positionRepo) filter(keep func(domain.Position) bool) ([]domain.Position, error) {
	defer r.enter()()
	var out []domain.Position
	for _, p := range r.store.st.positions {
		if keep(p) {
			out = append(out, clonePosition(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out, nil
}

func clonePosition(p domain.Position) domain.Position {
	if p.EntrySignal != nil {
		sig := *p.EntrySignal
		p.EntrySignal = &sig
	}
	if p.ClosedAt != nil {
		at := *p.ClosedAt
		p.ClosedAt = &at
	}
	return p
}

type exitEventRepo struct {
	store   *MemStore
	locking bool
}

func (r *exitEventRepo) enter() func() {
	if !r.locking {
		return func() {}
	}
	r.store.lock()
	return r.store.unlock
}

func (r *exitEventRepo) Insert(ctx context.Context, event *domain.PositionExitEvent) error {
	defer r.enter()()
	st := r.store.st
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	st.eventSeq++
	st.events[event.ID] = *event
	return nil
}

func (r *exitEventRepo) ListByPosition(ctx context.Context, positionID int64) ([]domain.PositionExitEvent, error) {
	defer r.enter()()
	var out []domain.PositionExitEvent
	for _, e := range r.store.st.events {
		if e.PositionID == positionID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type strategyRepo struct {
	store   *MemStore
	locking bool
}

func (r *strategyRepo) enter() func() {
	if !r.locking {
		return func() {}
	}
	r.store.lock()
	return r.store.unlock
}

func (r *strategyRepo) Create(ctx context.Context, strategy *domain.Strategy) error {
	defer r.enter()()
	st := r.store.st
	strategy.ID = st.nextStrategyID
	st.nextStrategyID++
	now := time.Now()
	if strategy.CreatedAt.IsZero() {
		strategy.CreatedAt = now
	}
	strategy.UpdatedAt = now
	st.strategies[strategy.ID] = *strategy
	return nil
}

func (r *strategyRepo) Update(ctx context.Context, strategy *domain.Strategy) error {
	defer r.enter()()
	st := r.store.st
	if _, ok := st.strategies[strategy.ID]; !ok {
		return domain.ErrStrategyNotFound
	}
	strategy.UpdatedAt = time.Now()
	st.strategies[strategy.ID] = *strategy
	return nil
}

func (r *strategyRepo) FindByID(ctx context.Context, id int64) (*domain.Strategy, error) {
	defer r.enter()()
	s, ok := r.store.st.strategies[id]
	if !ok {
		return nil, domain.ErrStrategyNotFound
	}
	return &s, nil
}

func (r *strategyRepo) FindByName(ctx context.Context, name string) (*domain.Strategy, error) {
	defer r.enter()()
	for _, s := range r.store.st.strategies {
		if strings.EqualFold(s.Name, name) {
			found := s
			return &found, nil
		}
	}
	return nil, domain.ErrStrategyNotFound
}

func (r *strategyRepo) ListActive(ctx context.Context) ([]domain.Strategy, error) {
	return r.filter(func(s domain.Strategy) bool { return s.Active })
}

func (r *strategyRepo) List(ctx context.Context) ([]domain.Strategy, error) {
	return r.filter(func(domain.Strategy) bool { return true })
}

func (r *strategyRepo) filter(keep func(domain.Strategy) bool) ([]domain.Strategy, error) {
	defer r.enter()()
	var out []domain.Strategy
	for _, s := range r.store.st.strategies {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type performanceRepo struct {
	store   *MemStore
	locking bool
}

func (r *performanceRepo) enter() func() {
	if !r.locking {
		return func() {}
	}
	r.store.lock()
	return r.store.unlock
}

func snapshotKey(strategyID int64, period time.Time) string {
	return period.UTC().Format("2006-01-02") + "|" + strconv.FormatInt(strategyID, 10)
}

func (r *performanceRepo) Upsert(ctx context.Context, snap *domain.StrategyPerformance) error {
	defer r.enter()()
	st := r.store.st
	key := snapshotKey(snap.StrategyID, snap.Period)
	now := time.Now()
	if existing, ok := st.snapshots[key]; ok {
		snap.ID = existing.ID
		snap.CreatedAt = existing.CreatedAt
	} else {
		snap.ID = st.nextSnapshotID
		st.nextSnapshotID++
		snap.CreatedAt = now
	}
	snap.UpdatedAt = now
	st.snapshots[key] = *snap
	return nil
}

func (r *performanceRepo) ListByStrategy(ctx context.Context, strategyID int64, limit int) ([]domain.StrategyPerformance, error) {
	defer r.enter()()
	var out []domain.StrategyPerformance
	for _, s := range r.store.st.snapshots {
		if s.StrategyID == strategyID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.After(out[j].Period) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
