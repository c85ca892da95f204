package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
)

// NCRepository stores non-conformances, their transfer history and the
// aggregates behind the dashboard and contractor scoring.
type NCRepository struct {
	db      *gorm.DB
	counter *CounterRepository
}

func NewNCRepository(db *gorm.DB) *NCRepository {
	return &NCRepository{db: db, counter: NewCounterRepository(db)}
}

func (r *NCRepository) FindByID(ctx context.Context, id string) (*entity.NonConformance, error) {
	var nc entity.NonConformance
	err := r.db.WithContext(ctx).
		Preload("TransferHistory").
		Where("id = ?", id).
		First(&nc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &nc, nil
}

// FindByIDForUpdateTx loads the NC row-locked so concurrent status changes
// are linearized on the record.
func (r *NCRepository) FindByIDForUpdateTx(ctx context.Context, tx *gorm.DB, id string) (*entity.NonConformance, error) {
	var nc entity.NonConformance
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&nc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &nc, nil
}

func (r *NCRepository) FindAll(ctx context.Context, projectID string, page, pageSize int, filters map[string]string) ([]entity.NonConformance, int64, error) {
	var items []entity.NonConformance
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.NonConformance{}).Where("project_id = ?", projectID)

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if severity := filters["severity"]; severity != "" {
		query = query.Where("severity = ?", severity)
	}
	if contractorID := filters["contractor_id"]; contractorID != "" {
		query = query.Where("contractor_id = ?", contractorID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("raised_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

func (r *NCRepository) CreateTx(ctx context.Context, tx *gorm.DB, nc *entity.NonConformance) error {
	if nc.ID == "" {
		nc.ID = NewID()
	}
	return tx.WithContext(ctx).Create(nc).Error
}

func (r *NCRepository) UpdateTx(ctx context.Context, tx *gorm.DB, nc *entity.NonConformance) error {
	return tx.WithContext(ctx).Save(nc).Error
}

// AppendTransferTx records one append-only transfer entry.
func (r *NCRepository) AppendTransferTx(ctx context.Context, tx *gorm.DB, transfer *entity.NCTransfer) error {
	if transfer.ID == "" {
		transfer.ID = NewID()
	}
	return tx.WithContext(ctx).Create(transfer).Error
}

// GenerateNumberTx allocates NC-{projectCode}-{year}-{NNNN}.
func (r *NCRepository) GenerateNumberTx(ctx context.Context, tx *gorm.DB, projectID, projectCode string, year int) (string, error) {
	seq, err := r.counter.NextTx(ctx, tx, projectID, entity.CounterNC, year, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("NC-%s-%d-%04d", projectCode, year, seq), nil
}

// StatusCount is one row of a grouped count.
type StatusCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// CountByStatus groups NCs by status for a project.
func (r *NCRepository) CountByStatus(ctx context.Context, projectID string) ([]StatusCount, error) {
	var rows []StatusCount
	err := r.db.WithContext(ctx).
		Model(&entity.NonConformance{}).
		Select("status AS key, COUNT(*) AS count").
		Where("project_id = ?", projectID).
		Group("status").
		Scan(&rows).Error
	return rows, err
}

// CountBySeverity groups NCs by severity, optionally only open ones.
func (r *NCRepository) CountBySeverity(ctx context.Context, projectID string, openOnly bool) ([]StatusCount, error) {
	var rows []StatusCount
	query := r.db.WithContext(ctx).
		Model(&entity.NonConformance{}).
		Select("severity AS key, COUNT(*) AS count").
		Where("project_id = ?", projectID)
	if openOnly {
		query = query.Where("status NOT IN ?", []string{entity.NCStatusClosed, entity.NCStatusRejected})
	}
	err := query.Group("severity").Scan(&rows).Error
	return rows, err
}

// CountOverdue counts open NCs past their deadline.
func (r *NCRepository) CountOverdue(ctx context.Context, projectID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.NonConformance{}).
		Where("project_id = ? AND status NOT IN ? AND deadline_date < CURRENT_DATE",
			projectID, []string{entity.NCStatusClosed, entity.NCStatusRejected}).
		Count(&count).Error
	return count, err
}

// AvgResolutionDays averages actual_resolution_days across closed NCs.
func (r *NCRepository) AvgResolutionDays(ctx context.Context, projectID string) (float64, error) {
	var avg *float64
	err := r.db.WithContext(ctx).
		Model(&entity.NonConformance{}).
		Select("AVG(actual_resolution_days)").
		Where("project_id = ? AND status = ?", projectID, entity.NCStatusClosed).
		Scan(&avg).Error
	if err != nil || avg == nil {
		return 0, err
	}
	return *avg, nil
}

// SeverityPoints sums severity points for a contractor period. Rejected NCs
// carry no points; closed NCs count toward closedPoints.
func (r *NCRepository) SeverityPoints(ctx context.Context, projectID, contractorID string, year int, month, week *int) (closedPoints, totalPoints float64, err error) {
	base := r.db.WithContext(ctx).
		Model(&entity.NonConformance{}).
		Where("project_id = ? AND contractor_id = ? AND score_year = ? AND status <> ?",
			projectID, contractorID, year, entity.NCStatusRejected)
	if month != nil {
		base = base.Where("score_month = ?", *month)
	}
	if week != nil {
		base = base.Where("score_week = ?", *week)
	}

	var total *float64
	if err = base.Session(&gorm.Session{}).
		Select("COALESCE(SUM(severity_score), 0)").
		Scan(&total).Error; err != nil {
		return 0, 0, err
	}

	var closed *float64
	if err = base.Session(&gorm.Session{}).
		Where("status = ?", entity.NCStatusClosed).
		Select("COALESCE(SUM(severity_score), 0)").
		Scan(&closed).Error; err != nil {
		return 0, 0, err
	}

	if total != nil {
		totalPoints = *total
	}
	if closed != nil {
		closedPoints = *closed
	}
	return closedPoints, totalPoints, nil
}
