package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
)

// BatchRepository stores accepted truck-loads.
type BatchRepository struct {
	db      *gorm.DB
	counter *CounterRepository
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db, counter: NewCounterRepository(db)}
}

func (r *BatchRepository) FindByID(ctx context.Context, id string) (*entity.Batch, error) {
	var batch entity.Batch
	err := r.db.WithContext(ctx).
		Preload("Vendor").
		Preload("MixDesign").
		Where("id = ?", id).
		First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

func (r *BatchRepository) FindAll(ctx context.Context, projectID string, page, pageSize int, filters map[string]string) ([]entity.Batch, int64, error) {
	var items []entity.Batch
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Batch{}).Where("project_id = ?", projectID)

	if pourID := filters["pour_id"]; pourID != "" {
		query = query.Where("pour_activity_id = ?", pourID)
	}
	if vendorID := filters["vendor_id"]; vendorID != "" {
		query = query.Where("vendor_id = ?", vendorID)
	}
	if status := filters["verification_status"]; status != "" {
		query = query.Where("verification_status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("delivery_time DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

func (r *BatchRepository) Update(ctx context.Context, batch *entity.Batch) error {
	return r.db.WithContext(ctx).Save(batch).Error
}

func (r *BatchRepository) CreateTx(ctx context.Context, tx *gorm.DB, batch *entity.Batch) error {
	if batch.ID == "" {
		batch.ID = NewID()
	}
	return tx.WithContext(ctx).Create(batch).Error
}

// GenerateNumbersTx reserves count consecutive BATCH-{YYYY}-{NNNN} numbers.
// The backing counter row stays locked until tx commits, so numbers are
// gap-free per project and year.
func (r *BatchRepository) GenerateNumbersTx(ctx context.Context, tx *gorm.DB, projectID string, year, count int) ([]string, error) {
	first, err := r.counter.NextTx(ctx, tx, projectID, entity.CounterBatch, year, count)
	if err != nil {
		return nil, err
	}
	numbers := make([]string, count)
	for i := 0; i < count; i++ {
		numbers[i] = fmt.Sprintf("BATCH-%d-%04d", year, first+int64(i))
	}
	return numbers, nil
}

// SoftDeleteTx removes a batch inside tx (gorm soft delete).
func (r *BatchRepository) SoftDeleteTx(ctx context.Context, tx *gorm.DB, id string) error {
	return tx.WithContext(ctx).Where("id = ?", id).Delete(&entity.Batch{}).Error
}

// LinkToPourTx assigns a batch to a pour inside tx.
func (r *BatchRepository) LinkToPourTx(ctx context.Context, tx *gorm.DB, batchID, pourID string) error {
	return tx.WithContext(ctx).
		Model(&entity.Batch{}).
		Where("id = ?", batchID).
		Update("pour_activity_id", pourID).Error
}
