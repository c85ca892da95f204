package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
)

// NotificationRepository stores delivery attempt rows. Writing a log row is
// best-effort and never part of the domain transaction.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, log *entity.NotificationLog) error {
	if log.ID == "" {
		log.ID = NewID()
	}
	if log.SentAt.IsZero() {
		log.SentAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(log).Error
}

// FindByRecipient lists a user's notification log newest first.
func (r *NotificationRepository) FindByRecipient(ctx context.Context, userID string, page, pageSize int) ([]entity.NotificationLog, int64, error) {
	var items []entity.NotificationLog
	var total int64

	query := r.db.WithContext(ctx).
		Model(&entity.NotificationLog{}).
		Where("recipient_user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("sent_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindFailed returns failed deliveries with attempts below the retry cap.
func (r *NotificationRepository) FindFailed(ctx context.Context, maxAttempts, limit int) ([]entity.NotificationLog, error) {
	var items []entity.NotificationLog
	err := r.db.WithContext(ctx).
		Where("delivery_status = ? AND attempts < ?", entity.DeliveryFailed, maxAttempts).
		Order("sent_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *NotificationRepository) Update(ctx context.Context, log *entity.NotificationLog) error {
	return r.db.WithContext(ctx).Save(log).Error
}

// SentToday reports whether an identical (event, entity, recipient) row was
// already sent this calendar day. Used to keep repeated idempotent
// transitions from duplicating notifications.
func (r *NotificationRepository) SentToday(ctx context.Context, eventType, entityID, recipientID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.NotificationLog{}).
		Where("event_type = ? AND entity_id = ? AND recipient_user_id = ? AND delivery_status <> ? AND sent_at >= CURRENT_DATE",
			eventType, entityID, recipientID, entity.DeliveryFailed).
		Count(&count).Error
	return count > 0, err
}
