package entity

import "time"

// User is a platform account. Authentication itself lives at the gateway;
// the backend only resolves identity and project membership.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Name      string    `json:"name" gorm:"size:100;not null"`
	Email     string    `json:"email" gorm:"size:200;uniqueIndex"`
	Phone     string    `json:"phone" gorm:"size:20"`
	CompanyID string    `json:"company_id" gorm:"size:32;index"`
	Status    string    `json:"status" gorm:"size:20;default:active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "qsm_users"
}

// ProjectMembership binds a user to a project with a ranked role.
type ProjectMembership struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	ProjectID string    `json:"project_id" gorm:"size:32;not null;index:idx_membership_project_user,unique"`
	UserID    string    `json:"user_id" gorm:"size:32;not null;index:idx_membership_project_user,unique"`
	Role      string    `json:"role" gorm:"size:30;not null"`
	IsActive  bool      `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ProjectMembership) TableName() string {
	return "qsm_project_memberships"
}

// Project roles, lowest to highest.
const (
	RoleWatchman        = "watchman"
	RoleQualityEngineer = "quality_engineer"
	RoleQualityManager  = "quality_manager"
	RoleProjectAdmin    = "project_admin"
)

var roleRank = map[string]int{
	RoleWatchman:        1,
	RoleQualityEngineer: 2,
	RoleQualityManager:  3,
	RoleProjectAdmin:    4,
}

// RoleAtLeast reports whether role meets or exceeds required.
func RoleAtLeast(role, required string) bool {
	return roleRank[role] >= roleRank[required] && roleRank[role] > 0
}
