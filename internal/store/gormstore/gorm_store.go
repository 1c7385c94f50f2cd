package gormstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"papertrade/internal/store"
	storemodel "papertrade/internal/store/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormStore implements store.Store on Gorm + SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens (and migrates) the ledger database at path.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path must not be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&storemodel.TradeModel{},
		&storemodel.PositionModel{},
		&storemodel.PositionExitEventModel{},
		&storemodel.StrategyModel{},
		&storemodel.StrategyPerformanceModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP
	// reads while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

var _ store.Store = (*GormStore)(nil)

func (s *GormStore) Begin(ctx context.Context) (store.UnitOfWork, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &unitOfWork{tx: tx}, nil
}

func (s *GormStore) Trades() store.TradeRepository     { return &tradeRepo{db: s.db} }
func (s *GormStore) Positions() store.PositionRepository {
	return &positionRepo{db: s.db}
}
func (s *GormStore) ExitEvents() store.ExitEventRepository {
	return &exitEventRepo{db: s.db}
}
func (s *GormStore) Strategies() store.StrategyRepository {
	return &strategyRepo{db: s.db}
}
func (s *GormStore) Performance() store.PerformanceRepository {
	return &performanceRepo{db: s.db}
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type unitOfWork struct {
	tx *gorm.DB
}

var _ store.UnitOfWork = (*unitOfWork)(nil)

func (u *unitOfWork) Commit() error   { return u.tx.Commit().Error }
func (u *unitOfWork) Rollback() error { return u.tx.Rollback().Error }

func (u *unitOfWork) Trades() store.TradeRepository     { return &tradeRepo{db: u.tx} }
func (u *unitOfWork) Positions() store.PositionRepository {
	return &positionRepo{db: u.tx}
}
func (u *unitOfWork) ExitEvents() store.ExitEventRepository {
	return &exitEventRepo{db: u.tx}
}
func (u *unitOfWork) Strategies() store.StrategyRepository {
	return &strategyRepo{db: u.tx}
}
func (u *unitOfWork) Performance() store.PerformanceRepository {
	return &performanceRepo{db: u.tx}
}
