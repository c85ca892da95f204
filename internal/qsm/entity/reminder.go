package entity

import "time"

// TestReminder drives the due-date notification for one planned cube test.
// ReminderDate is always casting_date + test_age_days as a calendar day in
// the project timezone.
type TestReminder struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	ProjectID  string `json:"project_id" gorm:"size:32;not null;index:idx_reminder_project_date"`
	CubeTestID string `json:"cube_test_id" gorm:"size:32;not null;index"`

	ReminderDate time.Time `json:"reminder_date" gorm:"type:date;not null;index:idx_reminder_project_date"`
	TestAgeDays  int       `json:"test_age_days" gorm:"not null"`

	Status             string     `json:"status" gorm:"size:20;default:pending"`
	NotificationSentAt *time.Time `json:"notification_sent_at"`
	NotifiedUserIDs    StringList `json:"notified_user_ids" gorm:"type:jsonb"`
	TestCompleted      bool       `json:"test_completed" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CubeTest *CubeTest `json:"cube_test,omitempty" gorm:"foreignKey:CubeTestID"`
}

func (TestReminder) TableName() string {
	return "qsm_test_reminders"
}

// Reminder status
const (
	ReminderStatusPending      = "pending"
	ReminderStatusSent         = "sent"
	ReminderStatusAcknowledged = "acknowledged"
)
