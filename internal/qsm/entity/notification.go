package entity

import "time"

// NotificationLog records one delivery attempt on one channel for one
// recipient. Fan-out writes one row per attempt, including failures.
type NotificationLog struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	ProjectID string `json:"project_id" gorm:"size:32;index"`

	EventType  string  `json:"event_type" gorm:"size:50;not null"`
	NCID       *string `json:"nc_id" gorm:"size:32;index"`
	CubeTestID *string `json:"cube_test_id" gorm:"size:32;index"`
	EntityID   string  `json:"entity_id" gorm:"size:32"`

	Channel         string `json:"channel" gorm:"size:20;not null"`
	RecipientUserID string `json:"recipient_user_id" gorm:"size:32;not null;index"`

	Subject string `json:"subject" gorm:"size:300"`
	Body    string `json:"body" gorm:"type:text"`

	DeliveryStatus string    `json:"delivery_status" gorm:"size:20;default:sent"`
	FailureReason  string    `json:"failure_reason" gorm:"size:500"`
	Attempts       int       `json:"attempts" gorm:"default:1"`
	SentAt         time.Time `json:"sent_at"`

	CreatedAt time.Time `json:"created_at"`
}

func (NotificationLog) TableName() string {
	return "qsm_notification_logs"
}

// Channels, in default preference order.
const (
	ChannelWhatsapp = "whatsapp"
	ChannelEmail    = "email"
	ChannelInApp    = "in_app"
)

// Delivery status
const (
	DeliverySent      = "sent"
	DeliveryDelivered = "delivered"
	DeliveryRead      = "read"
	DeliveryFailed    = "failed"
)

// Event types consumed by the fan-out.
const (
	EventTestFailure       = "test_failure"
	EventTestReminder      = "test_reminder"
	EventMissedTestWarning = "missed_test_warning"
	EventTimeLimitWarning  = "time_limit_warning"
	EventBatchRejected     = "batch_rejected"
	EventNCRaised          = "nc_raised"
	EventNCAcknowledged    = "nc_acknowledged"
	EventNCResponded       = "nc_responded"
	EventNCResolved        = "nc_resolved"
	EventNCVerified        = "nc_verified"
	EventNCClosed          = "nc_closed"
	EventNCTransferred     = "nc_transferred"
	EventNCRejected        = "nc_rejected"
)
