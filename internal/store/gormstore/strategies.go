package gormstore

import (
	"context"
	"errors"
	"time"

	"papertrade/internal/domain"
	storemodel "papertrade/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type strategyRepo struct {
	db *gorm.DB
}

func (r *strategyRepo) Create(ctx context.Context, strategy *domain.Strategy) error {
	now := time.Now()
	if strategy.CreatedAt.IsZero() {
		strategy.CreatedAt = now
	}
	strategy.UpdatedAt = now
	m := newStrategyModel(strategy)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	strategy.ID = m.ID
	return nil
}

func (r *strategyRepo) Update(ctx context.Context, strategy *domain.Strategy) error {
	strategy.UpdatedAt = time.Now()
	m := newStrategyModel(strategy)
	res := r.db.WithContext(ctx).Model(&storemodel.StrategyModel{}).
		Where("id = ?", strategy.ID).
		Select("*").Omit("id", "created_at").
		Updates(&m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrStrategyNotFound
	}
	return nil
}

func (r *strategyRepo) FindByID(ctx context.Context, id int64) (*domain.Strategy, error) {
	var m storemodel.StrategyModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrStrategyNotFound
	}
	if err != nil {
		return nil, err
	}
	s := strategyModelToDomain(m)
	return &s, nil
}

func (r *strategyRepo) FindByName(ctx context.Context, name string) (*domain.Strategy, error) {
	var m storemodel.StrategyModel
	err := r.db.WithContext(ctx).First(&m, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrStrategyNotFound
	}
	if err != nil {
		return nil, err
	}
	s := strategyModelToDomain(m)
	return &s, nil
}

func (r *strategyRepo) ListActive(ctx context.Context) ([]domain.Strategy, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("active = ?", true).Order("id ASC"))
}

func (r *strategyRepo) List(ctx context.Context) ([]domain.Strategy, error) {
	return r.list(ctx, r.db.WithContext(ctx).Order("id ASC"))
}

func (r *strategyRepo) list(ctx context.Context, q *gorm.DB) ([]domain.Strategy, error) {
	var models []storemodel.StrategyModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Strategy, 0, len(models))
	for _, m := range models {
		out = append(out, strategyModelToDomain(m))
	}
	return out, nil
}

type performanceRepo struct {
	db *gorm.DB
}

func (r *performanceRepo) Upsert(ctx context.Context, snap *domain.StrategyPerformance) error {
	now := time.Now()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = now
	}
	snap.UpdatedAt = now
	m := newPerformanceModel(snap)
	updates := clause.Assignments(map[string]interface{}{
		"open_positions":    gorm.Expr("excluded.open_positions"),
		"closed_positions":  gorm.Expr("excluded.closed_positions"),
		"expired_positions": gorm.Expr("excluded.expired_positions"),
		"realized_pnl":      gorm.Expr("excluded.realized_pnl"),
		"unrealized_pnl":    gorm.Expr("excluded.unrealized_pnl"),
		"total_pnl":         gorm.Expr("excluded.total_pnl"),
		"win_rate":          gorm.Expr("excluded.win_rate"),
		"profit_factor":     gorm.Expr("excluded.profit_factor"),
		"allocated_capital": gorm.Expr("excluded.allocated_capital"),
		"utilized_capital":  gorm.Expr("excluded.utilized_capital"),
		"available_capital": gorm.Expr("excluded.available_capital"),
		"updated_at":        gorm.Expr("excluded.updated_at"),
	})
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "strategy_id"}, {Name: "period"}},
			DoUpdates: updates,
		}).
		Create(&m).Error
}

func (r *performanceRepo) ListByStrategy(ctx context.Context, strategyID int64, limit int) ([]domain.StrategyPerformance, error) {
	q := r.db.WithContext(ctx).
		Where("strategy_id = ?", strategyID).
		Order("period DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []storemodel.StrategyPerformanceModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.StrategyPerformance, 0, len(models))
	for _, m := range models {
		out = append(out, performanceModelToDomain(m))
	}
	return out, nil
}
