package gormstore

import (
	"context"
	"errors"
	"time"

	"papertrade/internal/domain"
	storemodel "papertrade/internal/store/model"

	"gorm.io/gorm"
)

type tradeRepo struct {
	db *gorm.DB
}

func (r *tradeRepo) Create(ctx context.Context, trade *domain.Trade) error {
	now := time.Now()
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = now
	}
	trade.UpdatedAt = now
	m := newTradeModel(trade)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	trade.ID = m.ID
	return nil
}

func (r *tradeRepo) Update(ctx context.Context, trade *domain.Trade) error {
	trade.UpdatedAt = time.Now()
	m := newTradeModel(trade)
	res := r.db.WithContext(ctx).Model(&storemodel.TradeModel{}).
		Where("id = ?", trade.ID).
		Select("*").Omit("id", "created_at").
		Updates(&m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *tradeRepo) FindByID(ctx context.Context, id int64) (*domain.Trade, error) {
	var m storemodel.TradeModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t := tradeModelToDomain(m)
	return &t, nil
}

func (r *tradeRepo) ListAll(ctx context.Context) ([]domain.Trade, error) {
	var models []storemodel.TradeModel
	if err := r.db.WithContext(ctx).
		Order("executed_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Trade, 0, len(models))
	for _, m := range models {
		out = append(out, tradeModelToDomain(m))
	}
	return out, nil
}

func (r *tradeRepo) ListByPosition(ctx context.Context, positionID int64) ([]domain.Trade, error) {
	var models []storemodel.TradeModel
	if err := r.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		Order("executed_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Trade, 0, len(models))
	for _, m := range models {
		out = append(out, tradeModelToDomain(m))
	}
	return out, nil
}
