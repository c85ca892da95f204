package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
)

// CubeTestRepository stores cube test sets, planned and executed.
type CubeTestRepository struct {
	db *gorm.DB
}

func NewCubeTestRepository(db *gorm.DB) *CubeTestRepository {
	return &CubeTestRepository{db: db}
}

func (r *CubeTestRepository) FindByID(ctx context.Context, id string) (*entity.CubeTest, error) {
	var test entity.CubeTest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&test).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &test, nil
}

func (r *CubeTestRepository) FindAll(ctx context.Context, projectID string, page, pageSize int, filters map[string]string) ([]entity.CubeTest, int64, error) {
	var items []entity.CubeTest
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.CubeTest{}).Where("project_id = ?", projectID)

	if batchID := filters["batch_id"]; batchID != "" {
		query = query.Where("batch_id = ?", batchID)
	}
	if pourID := filters["pour_id"]; pourID != "" {
		query = query.Where("pour_activity_id = ?", pourID)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("pass_fail_status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("casting_date DESC, test_age_days ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

func (r *CubeTestRepository) Create(ctx context.Context, test *entity.CubeTest) error {
	if test.ID == "" {
		test.ID = NewID()
	}
	return r.db.WithContext(ctx).Create(test).Error
}

func (r *CubeTestRepository) CreateTx(ctx context.Context, tx *gorm.DB, test *entity.CubeTest) error {
	if test.ID == "" {
		test.ID = NewID()
	}
	return tx.WithContext(ctx).Create(test).Error
}

func (r *CubeTestRepository) Update(ctx context.Context, test *entity.CubeTest) error {
	return r.db.WithContext(ctx).Save(test).Error
}

func (r *CubeTestRepository) UpdateTx(ctx context.Context, tx *gorm.DB, test *entity.CubeTest) error {
	return tx.WithContext(ctx).Save(test).Error
}

// CancelPlannedByPourTx soft-deletes planned tests for a pour. Tests with
// any cube result recorded are left alone.
func (r *CubeTestRepository) CancelPlannedByPourTx(ctx context.Context, tx *gorm.DB, pourID string) error {
	return tx.WithContext(ctx).
		Where("pour_activity_id = ? AND pass_fail_status = ?", pourID, entity.CubeTestStatusPlanned).
		Delete(&entity.CubeTest{}).Error
}

// CancelPlannedByBatchTx flags planned tests of a batch cancelled. Only
// applies when no cube results exist on the test.
func (r *CubeTestRepository) CancelPlannedByBatchTx(ctx context.Context, tx *gorm.DB, batchID string) error {
	return tx.WithContext(ctx).
		Model(&entity.CubeTest{}).
		Where("batch_id = ? AND pass_fail_status = ? AND cube1_strength_m_pa IS NULL AND cube2_strength_m_pa IS NULL AND cube3_strength_m_pa IS NULL",
			batchID, entity.CubeTestStatusPlanned).
		Update("pass_fail_status", entity.CubeTestStatusCancelled).Error
}
