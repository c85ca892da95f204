package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
)

// PourRepository stores pour activities.
type PourRepository struct {
	db      *gorm.DB
	counter *CounterRepository
}

func NewPourRepository(db *gorm.DB) *PourRepository {
	return &PourRepository{db: db, counter: NewCounterRepository(db)}
}

func (r *PourRepository) FindByID(ctx context.Context, id string) (*entity.PourActivity, error) {
	var pour entity.PourActivity
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&pour).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &pour, nil
}

// FindByIDWithBatches preloads linked batches.
func (r *PourRepository) FindByIDWithBatches(ctx context.Context, id string) (*entity.PourActivity, error) {
	var pour entity.PourActivity
	err := r.db.WithContext(ctx).Preload("Batches").Where("id = ?", id).First(&pour).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &pour, nil
}

func (r *PourRepository) FindAll(ctx context.Context, projectID string, page, pageSize int, filters map[string]string) ([]entity.PourActivity, int64, error) {
	var items []entity.PourActivity
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.PourActivity{}).Where("project_id = ?", projectID)

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if concreteType := filters["concrete_type"]; concreteType != "" {
		query = query.Where("concrete_type = ?", concreteType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

func (r *PourRepository) Update(ctx context.Context, pour *entity.PourActivity) error {
	return r.db.WithContext(ctx).Save(pour).Error
}

func (r *PourRepository) UpdateTx(ctx context.Context, tx *gorm.DB, pour *entity.PourActivity) error {
	return tx.WithContext(ctx).Save(pour).Error
}

func (r *PourRepository) CreateTx(ctx context.Context, tx *gorm.DB, pour *entity.PourActivity) error {
	if pour.ID == "" {
		pour.ID = NewID()
	}
	return tx.WithContext(ctx).Create(pour).Error
}

// GenerateCodeTx allocates the next POUR-{YYYY}-{NNN} for the project year.
func (r *PourRepository) GenerateCodeTx(ctx context.Context, tx *gorm.DB, projectID string, year int) (string, error) {
	seq, err := r.counter.NextTx(ctx, tx, projectID, entity.CounterPour, year, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("POUR-%d-%03d", year, seq), nil
}

// SumBatchQuantitiesTx totals quantity_received across live linked batches.
func (r *PourRepository) SumBatchQuantitiesTx(ctx context.Context, tx *gorm.DB, pourID string) (float64, int64, error) {
	var sum *float64
	var count int64

	query := tx.WithContext(ctx).Model(&entity.Batch{}).Where("pour_activity_id = ?", pourID)
	if err := query.Count(&count).Error; err != nil {
		return 0, 0, err
	}
	if err := query.Select("COALESCE(SUM(quantity_received), 0)").Scan(&sum).Error; err != nil {
		return 0, 0, err
	}
	total := 0.0
	if sum != nil {
		total = *sum
	}
	return total, count, nil
}

// UnlinkBatchesTx clears pour links from all batches (pour cancellation).
func (r *PourRepository) UnlinkBatchesTx(ctx context.Context, tx *gorm.DB, pourID string) error {
	return tx.WithContext(ctx).
		Model(&entity.Batch{}).
		Where("pour_activity_id = ?", pourID).
		Update("pour_activity_id", nil).Error
}

// HasCubeTests reports whether any cube test (planned or executed) exists
// for the pour.
func (r *PourRepository) HasCubeTests(ctx context.Context, pourID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.CubeTest{}).
		Where("pour_activity_id = ?", pourID).
		Count(&count).Error
	return count > 0, err
}
