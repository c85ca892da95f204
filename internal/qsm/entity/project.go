package entity

import "time"

// Project is the tenant scope. Every mutable QSM entity belongs to exactly
// one project; cross-project references are rejected at the service layer.
type Project struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	CompanyID string    `json:"company_id" gorm:"size:32;not null;index"`
	Code      string    `json:"code" gorm:"size:32;uniqueIndex;not null"`
	Name      string    `json:"name" gorm:"size:200;not null"`
	Timezone  string    `json:"timezone" gorm:"size:50;default:Asia/Kolkata"`
	Status    string    `json:"status" gorm:"size:20;default:active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Settings *ProjectSettings `json:"settings,omitempty" gorm:"foreignKey:ProjectID"`
}

func (Project) TableName() string {
	return "qsm_projects"
}

const (
	ProjectStatusActive    = "active"
	ProjectStatusOnHold    = "on_hold"
	ProjectStatusCompleted = "completed"
	ProjectStatusCancelled = "cancelled"
)

// ProjectSettings carries the per-project runtime switches for the vehicle
// addon, reminders and notification channels.
type ProjectSettings struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	ProjectID string `json:"project_id" gorm:"size:32;uniqueIndex;not null"`

	EnableMaterialVehicleAddon bool    `json:"enable_material_vehicle_addon" gorm:"default:false"`
	VehicleAllowedTimeHours    float64 `json:"vehicle_allowed_time_hours" gorm:"type:decimal(4,1);default:3.0"`
	SendTimeWarnings           bool    `json:"send_time_warnings" gorm:"default:true"`

	EnableTestReminders bool   `json:"enable_test_reminders" gorm:"default:true"`
	ReminderTime        string `json:"reminder_time" gorm:"size:5;default:09:00"` // HH:MM local

	NotifyProjectAdmins    bool `json:"notify_project_admins" gorm:"default:true"`
	NotifyQualityEngineers bool `json:"notify_quality_engineers" gorm:"default:true"`

	EnableWhatsappNotifications bool `json:"enable_whatsapp_notifications" gorm:"default:false"`
	EnableEmailNotifications    bool `json:"enable_email_notifications" gorm:"default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ProjectSettings) TableName() string {
	return "qsm_project_settings"
}

// DefaultSettings returns the defaults for a project that has never saved
// any settings.
func DefaultSettings(projectID string) *ProjectSettings {
	return &ProjectSettings{
		ProjectID:                   projectID,
		EnableMaterialVehicleAddon:  false,
		VehicleAllowedTimeHours:     3.0,
		SendTimeWarnings:            true,
		EnableTestReminders:         true,
		ReminderTime:                "09:00",
		NotifyProjectAdmins:         true,
		NotifyQualityEngineers:      true,
		EnableWhatsappNotifications: false,
		EnableEmailNotifications:    true,
	}
}
