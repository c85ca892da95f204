package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
)

// VehicleRepository is the append-only gate log store.
type VehicleRepository struct {
	db *gorm.DB
}

func NewVehicleRepository(db *gorm.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

func (r *VehicleRepository) Create(ctx context.Context, v *entity.VehicleEntry) error {
	if v.ID == "" {
		v.ID = NewID()
	}
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *VehicleRepository) FindByID(ctx context.Context, id string) (*entity.VehicleEntry, error) {
	var v entity.VehicleEntry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *VehicleRepository) Update(ctx context.Context, v *entity.VehicleEntry) error {
	return r.db.WithContext(ctx).Save(v).Error
}

// FindAll lists a project's entries newest first, with optional filters.
func (r *VehicleRepository) FindAll(ctx context.Context, projectID string, page, pageSize int, filters map[string]string) ([]entity.VehicleEntry, int64, error) {
	var items []entity.VehicleEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.VehicleEntry{}).Where("project_id = ?", projectID)

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if materialType := filters["material_type"]; materialType != "" {
		query = query.Where("material_type = ?", materialType)
	}
	if from := filters["from"]; from != "" {
		query = query.Where("entry_time >= ?", from)
	}
	if to := filters["to"]; to != "" {
		query = query.Where("entry_time <= ?", to)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("entry_time DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindUnlinkedRMC returns RMC vehicles not yet materialized into a batch,
// newest first.
func (r *VehicleRepository) FindUnlinkedRMC(ctx context.Context, projectID string, filters map[string]string) ([]entity.VehicleEntry, error) {
	var items []entity.VehicleEntry

	query := r.db.WithContext(ctx).
		Where("project_id = ? AND material_type IN ? AND is_linked_to_batch = false",
			projectID, entity.RMCMaterialTypes())

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if from := filters["from"]; from != "" {
		query = query.Where("entry_time >= ?", from)
	}
	if to := filters["to"]; to != "" {
		query = query.Where("entry_time <= ?", to)
	}

	err := query.Order("entry_time DESC").Find(&items).Error
	return items, err
}

// FindByIDsTx loads the given entries inside tx with row locks held, so the
// link check and the link write race with nothing.
func (r *VehicleRepository) FindByIDsTx(ctx context.Context, tx *gorm.DB, ids []string) ([]entity.VehicleEntry, error) {
	var items []entity.VehicleEntry
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Find(&items).Error
	return items, err
}

// LinkToBatchTx marks a vehicle as consumed by a batch inside tx.
func (r *VehicleRepository) LinkToBatchTx(ctx context.Context, tx *gorm.DB, vehicleID, batchID string) error {
	return tx.WithContext(ctx).
		Model(&entity.VehicleEntry{}).
		Where("id = ?", vehicleID).
		Updates(map[string]interface{}{
			"linked_batch_id":    batchID,
			"is_linked_to_batch": true,
		}).Error
}

// UnlinkBatchTx clears the batch link (batch soft-delete cascade).
func (r *VehicleRepository) UnlinkBatchTx(ctx context.Context, tx *gorm.DB, batchID string) error {
	return tx.WithContext(ctx).
		Model(&entity.VehicleEntry{}).
		Where("linked_batch_id = ?", batchID).
		Updates(map[string]interface{}{
			"linked_batch_id":    nil,
			"is_linked_to_batch": false,
		}).Error
}

// FindOverdueRMC returns on-site RMC vehicles past the cutoff that were never
// warned. Non-RMC materials are excluded by the material filter.
func (r *VehicleRepository) FindOverdueRMC(ctx context.Context, projectID string, cutoff time.Time) ([]entity.VehicleEntry, error) {
	var items []entity.VehicleEntry
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND material_type IN ? AND status = ? AND entry_time <= ? AND time_warning_sent = false",
			projectID, entity.RMCMaterialTypes(), entity.VehicleStatusOnSite, cutoff).
		Order("entry_time ASC").
		Find(&items).Error
	return items, err
}

// MarkTimeWarned flags a vehicle as warned. The flag is monotonic: once set
// the vehicle is never re-warned.
func (r *VehicleRepository) MarkTimeWarned(ctx context.Context, vehicleID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&entity.VehicleEntry{}).
		Where("id = ? AND time_warning_sent = false", vehicleID).
		Updates(map[string]interface{}{
			"exceeded_time_limit":  true,
			"time_warning_sent":    true,
			"time_warning_sent_at": at,
		}).Error
}
