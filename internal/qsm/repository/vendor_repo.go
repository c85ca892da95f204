package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
)

// VendorRepository manages RMC suppliers. Vendors are soft-deleted only.
type VendorRepository struct {
	db *gorm.DB
}

func NewVendorRepository(db *gorm.DB) *VendorRepository {
	return &VendorRepository{db: db}
}

func (r *VendorRepository) FindByID(ctx context.Context, id string) (*entity.Vendor, error) {
	var vendor entity.Vendor
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&vendor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &vendor, nil
}

// FindByProjectAndNameTx looks a vendor up by case-insensitive name inside tx.
func (r *VendorRepository) FindByProjectAndNameTx(ctx context.Context, tx *gorm.DB, projectID, name string) (*entity.Vendor, error) {
	var vendor entity.Vendor
	err := tx.WithContext(ctx).
		Where("project_id = ? AND LOWER(name) = ?", projectID, strings.ToLower(strings.TrimSpace(name))).
		First(&vendor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &vendor, nil
}

func (r *VendorRepository) Create(ctx context.Context, vendor *entity.Vendor) error {
	if vendor.ID == "" {
		vendor.ID = NewID()
	}
	return r.db.WithContext(ctx).Create(vendor).Error
}

func (r *VendorRepository) CreateTx(ctx context.Context, tx *gorm.DB, vendor *entity.Vendor) error {
	if vendor.ID == "" {
		vendor.ID = NewID()
	}
	return tx.WithContext(ctx).Create(vendor).Error
}
