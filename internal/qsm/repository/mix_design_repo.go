package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
)

// MixDesignRepository manages concrete recipes per project.
type MixDesignRepository struct {
	db *gorm.DB
}

func NewMixDesignRepository(db *gorm.DB) *MixDesignRepository {
	return &MixDesignRepository{db: db}
}

func (r *MixDesignRepository) FindByID(ctx context.Context, id string) (*entity.MixDesign, error) {
	var mix entity.MixDesign
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&mix).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &mix, nil
}

// FindByProjectAndGradeTx looks a mix design up by grade inside tx.
func (r *MixDesignRepository) FindByProjectAndGradeTx(ctx context.Context, tx *gorm.DB, projectID, grade string) (*entity.MixDesign, error) {
	var mix entity.MixDesign
	err := tx.WithContext(ctx).
		Where("project_id = ? AND UPPER(grade) = ?", projectID, strings.ToUpper(strings.TrimSpace(grade))).
		First(&mix).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &mix, nil
}

func (r *MixDesignRepository) Create(ctx context.Context, mix *entity.MixDesign) error {
	if mix.ID == "" {
		mix.ID = NewID()
	}
	return r.db.WithContext(ctx).Create(mix).Error
}

func (r *MixDesignRepository) CreateTx(ctx context.Context, tx *gorm.DB, mix *entity.MixDesign) error {
	if mix.ID == "" {
		mix.ID = NewID()
	}
	return tx.WithContext(ctx).Create(mix).Error
}
