package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
)

// ReminderRepository stores cube test due-date reminders.
type ReminderRepository struct {
	db *gorm.DB
}

func NewReminderRepository(db *gorm.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

func (r *ReminderRepository) FindByID(ctx context.Context, id string) (*entity.TestReminder, error) {
	var reminder entity.TestReminder
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&reminder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &reminder, nil
}

func (r *ReminderRepository) CreateTx(ctx context.Context, tx *gorm.DB, reminder *entity.TestReminder) error {
	if reminder.ID == "" {
		reminder.ID = NewID()
	}
	return tx.WithContext(ctx).Create(reminder).Error
}

func (r *ReminderRepository) Update(ctx context.Context, reminder *entity.TestReminder) error {
	return r.db.WithContext(ctx).Save(reminder).Error
}

func (r *ReminderRepository) UpdateTx(ctx context.Context, tx *gorm.DB, reminder *entity.TestReminder) error {
	return tx.WithContext(ctx).Save(reminder).Error
}

// FindAll lists a project's reminders, optionally filtered by status.
func (r *ReminderRepository) FindAll(ctx context.Context, projectID string, page, pageSize int, filters map[string]string) ([]entity.TestReminder, int64, error) {
	var items []entity.TestReminder
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.TestReminder{}).Where("project_id = ?", projectID)

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if completed := filters["test_completed"]; completed != "" {
		query = query.Where("test_completed = ?", completed == "true")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("reminder_date ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindDueTx returns pending reminders for a calendar day that were never
// notified or last notified more than 23h ago, locked for the firing
// transaction so two scheduler instances cannot double-fire.
func (r *ReminderRepository) FindDueTx(ctx context.Context, tx *gorm.DB, projectID string, day time.Time, now time.Time) ([]entity.TestReminder, error) {
	var items []entity.TestReminder
	guard := now.Add(-23 * time.Hour)
	err := tx.WithContext(ctx).
		Where("project_id = ? AND reminder_date = ? AND status = ? AND (notification_sent_at IS NULL OR notification_sent_at < ?)",
			projectID, day.Format("2006-01-02"), entity.ReminderStatusPending, guard).
		Find(&items).Error
	return items, err
}

// FindMissed returns reminders for a past day whose test never happened.
func (r *ReminderRepository) FindMissed(ctx context.Context, projectID string, day time.Time) ([]entity.TestReminder, error) {
	var items []entity.TestReminder
	err := r.db.WithContext(ctx).
		Preload("CubeTest").
		Where("project_id = ? AND reminder_date = ? AND test_completed = false",
			projectID, day.Format("2006-01-02")).
		Find(&items).Error
	return items, err
}

// FindByCubeTestTx loads the reminder for a cube test inside tx, if any.
func (r *ReminderRepository) FindByCubeTestTx(ctx context.Context, tx *gorm.DB, cubeTestID string) (*entity.TestReminder, error) {
	var reminder entity.TestReminder
	err := tx.WithContext(ctx).Where("cube_test_id = ?", cubeTestID).First(&reminder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &reminder, nil
}
