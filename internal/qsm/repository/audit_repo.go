package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
)

// AuditRepository appends immutable history entries. No update or delete
// operation exists.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// LogTx writes an entry inside the domain transaction so history and state
// commit or roll back together.
func (r *AuditRepository) LogTx(ctx context.Context, tx *gorm.DB, entry *entity.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = NewID()
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// FindByEntity lists the history of one entity newest first.
func (r *AuditRepository) FindByEntity(ctx context.Context, entityType, entityID string, page, pageSize int) ([]entity.AuditEntry, int64, error) {
	var items []entity.AuditEntry
	var total int64

	query := r.db.WithContext(ctx).
		Model(&entity.AuditEntry{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID)

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
