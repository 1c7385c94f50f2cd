package gormstore

import (
	"context"
	"errors"
	"time"

	"papertrade/internal/domain"
	storemodel "papertrade/internal/store/model"

	"gorm.io/gorm"
)

var activeStatuses = []int{
	int(domain.PositionStatusOpen),
	int(domain.PositionStatusPartiallyClosed),
}

type positionRepo struct {
	db *gorm.DB
}

func (r *positionRepo) Create(ctx context.Context, pos *domain.Position) error {
	pos.UpdatedAt = time.Now()
	m := newPositionModel(pos)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	pos.ID = m.ID
	return nil
}

func (r *positionRepo) Update(ctx context.Context, pos *domain.Position) error {
	pos.UpdatedAt = time.Now()
	m := newPositionModel(pos)
	res := r.db.WithContext(ctx).Model(&storemodel.PositionModel{}).
		Where("id = ?", pos.ID).
		Select("*").Omit("id", "opened_at").
		Updates(&m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *positionRepo) FindByID(ctx context.Context, id int64) (*domain.Position, error) {
	var m storemodel.PositionModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p := positionModelToDomain(m)
	return &p, nil
}

func (r *positionRepo) ListActive(ctx context.Context) ([]domain.Position, error) {
	return r.list(ctx, r.db.WithContext(ctx).
		Where("status IN ?", activeStatuses).
		Order("opened_at ASC, id ASC"))
}

func (r *positionRepo) ListActiveByStrategy(ctx context.Context, strategyID int64) ([]domain.Position, error) {
	return r.list(ctx, r.db.WithContext(ctx).
		Where("status IN ? AND strategy_id = ?", activeStatuses, strategyID).
		Order("opened_at ASC, id ASC"))
}

func (r *positionRepo) ListClosedSince(ctx context.Context, strategyID int64, since time.Time) ([]domain.Position, error) {
	q := r.db.WithContext(ctx).
		Where("status IN ?", []int{int(domain.PositionStatusClosed), int(domain.PositionStatusExpired)}).
		Where("closed_at >= ?", since).
		Order("closed_at ASC, id ASC")
	if strategyID > 0 {
		q = q.Where("strategy_id = ?", strategyID)
	}
	return r.list(ctx, q)
}

func (r *positionRepo) list(ctx context.Context, q *gorm.DB) ([]domain.Position, error) {
	var models []storemodel.PositionModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Position, 0, len(models))
	for _, m := range models {
		out = append(out, positionModelToDomain(m))
	}
	return out, nil
}

type exitEventRepo struct {
	db *gorm.DB
}

func (r *exitEventRepo) Insert(ctx context.Context, event *domain.PositionExitEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	m := newExitEventModel(event)
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *exitEventRepo) ListByPosition(ctx context.Context, positionID int64) ([]domain.PositionExitEvent, error) {
	var models []storemodel.PositionExitEventModel
	if err := r.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		Order("created_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.PositionExitEvent, 0, len(models))
	for _, m := range models {
		out = append(out, exitEventModelToDomain(m))
	}
	return out, nil
}
