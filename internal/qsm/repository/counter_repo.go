package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
)

// CounterRepository allocates gap-free per-project document numbers. The
// counter row stays locked until the allocating transaction commits, which
// keeps numbers dense under concurrent bulk inserts.
type CounterRepository struct {
	db *gorm.DB
}

func NewCounterRepository(db *gorm.DB) *CounterRepository {
	return &CounterRepository{db: db}
}

// NextTx reserves count sequence values for (project, kind, year) inside tx
// and returns the first reserved value. The row lock serializes allocators.
func (r *CounterRepository) NextTx(ctx context.Context, tx *gorm.DB, projectID, kind string, year, count int) (int64, error) {
	if count < 1 {
		count = 1
	}

	var counter entity.SequenceCounter
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("project_id = ? AND kind = ? AND year = ?", projectID, kind, year).
		First(&counter).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return 0, err
		}
		counter = entity.SequenceCounter{ProjectID: projectID, Kind: kind, Year: year, Value: 0}
		// Another allocator may create the row first; the conflict clause
		// keeps the subsequent locked read authoritative.
		if err := tx.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&counter).Error; err != nil {
			return 0, err
		}
		if err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("project_id = ? AND kind = ? AND year = ?", projectID, kind, year).
			First(&counter).Error; err != nil {
			return 0, err
		}
	}

	first := counter.Value + 1
	counter.Value += int64(count)
	if err := tx.WithContext(ctx).
		Model(&entity.SequenceCounter{}).
		Where("project_id = ? AND kind = ? AND year = ?", projectID, kind, year).
		Update("value", counter.Value).Error; err != nil {
		return 0, err
	}
	return first, nil
}
