package repository

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
)

// NewID returns a 32-char string primary key.
func NewID() string {
	return uuid.New().String()[:32]
}

// Repositories is the aggregate of all QSM repositories.
type Repositories struct {
	Project      *ProjectRepository
	Membership   *MembershipRepository
	User         *UserRepository
	Vendor       *VendorRepository
	MixDesign    *MixDesignRepository
	Vehicle      *VehicleRepository
	Pour         *PourRepository
	Batch        *BatchRepository
	CubeTest     *CubeTestRepository
	Reminder     *ReminderRepository
	NC           *NCRepository
	Notification *NotificationRepository
	Audit        *AuditRepository
	Counter      *CounterRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Project:      NewProjectRepository(db),
		Membership:   NewMembershipRepository(db),
		User:         NewUserRepository(db),
		Vendor:       NewVendorRepository(db),
		MixDesign:    NewMixDesignRepository(db),
		Vehicle:      NewVehicleRepository(db),
		Pour:         NewPourRepository(db),
		Batch:        NewBatchRepository(db),
		CubeTest:     NewCubeTestRepository(db),
		Reminder:     NewReminderRepository(db),
		NC:           NewNCRepository(db),
		Notification: NewNotificationRepository(db),
		Audit:        NewAuditRepository(db),
		Counter:      NewCounterRepository(db),
	}
}
