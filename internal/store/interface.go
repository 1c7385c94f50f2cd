package store

import (
	"context"
	"time"

	"papertrade/internal/domain"
)

// Store is the entry point for persistence. Repository methods outside a
// UnitOfWork auto-commit; mutations that must land together (position open,
// position close) go through Begin.
type Store interface {
	// Begin starts a new UnitOfWork (transaction).
	Begin(ctx context.Context) (UnitOfWork, error)

	Trades() TradeRepository
	Positions() PositionRepository
	ExitEvents() ExitEventRepository
	Strategies() StrategyRepository
	Performance() PerformanceRepository

	// Close closes the store connection.
	Close() error
}

// UnitOfWork defines a transaction scope. Either Commit or Rollback must be
// called exactly once.
type UnitOfWork interface {
	Commit() error
	Rollback() error

	Trades() TradeRepository
	Positions() PositionRepository
	ExitEvents() ExitEventRepository
	Strategies() StrategyRepository
	Performance() PerformanceRepository
}

// TradeRepository handles trade persistence.
type TradeRepository interface {
	Create(ctx context.Context, trade *domain.Trade) error
	Update(ctx context.Context, trade *domain.Trade) error
	FindByID(ctx context.Context, id int64) (*domain.Trade, error)
	// ListAll returns every trade ordered by execution time then id. The
	// ledger reconciles balance from this full history.
	ListAll(ctx context.Context) ([]domain.Trade, error)
	ListByPosition(ctx context.Context, positionID int64) ([]domain.Trade, error)
}

// PositionRepository handles position persistence.
type PositionRepository interface {
	Create(ctx context.Context, pos *domain.Position) error
	Update(ctx context.Context, pos *domain.Position) error
	FindByID(ctx context.Context, id int64) (*domain.Position, error)
	// ListActive returns positions with status OPEN or PARTIALLY_CLOSED.
	ListActive(ctx context.Context) ([]domain.Position, error)
	ListActiveByStrategy(ctx context.Context, strategyID int64) ([]domain.Position, error)
	// ListClosedSince returns terminal positions closed at or after the cutoff,
	// ordered by close time. strategyID 0 means all strategies.
	ListClosedSince(ctx context.Context, strategyID int64, since time.Time) ([]domain.Position, error)
}

// ExitEventRepository handles the append-only exit event log.
type ExitEventRepository interface {
	Insert(ctx context.Context, event *domain.PositionExitEvent) error
	ListByPosition(ctx context.Context, positionID int64) ([]domain.PositionExitEvent, error)
}

// StrategyRepository handles strategy persistence. Strategies are never
// deleted, only deactivated.
type StrategyRepository interface {
	Create(ctx context.Context, strategy *domain.Strategy) error
	Update(ctx context.Context, strategy *domain.Strategy) error
	FindByID(ctx context.Context, id int64) (*domain.Strategy, error)
	FindByName(ctx context.Context, name string) (*domain.Strategy, error)
	ListActive(ctx context.Context) ([]domain.Strategy, error)
	List(ctx context.Context) ([]domain.Strategy, error)
}

// PerformanceRepository handles periodic strategy performance snapshots.
type PerformanceRepository interface {
	// Upsert inserts or replaces the snapshot for (strategy, period).
	Upsert(ctx context.Context, snap *domain.StrategyPerformance) error
	ListByStrategy(ctx context.Context, strategyID int64, limit int) ([]domain.StrategyPerformance, error)
}
