package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
)

// MembershipRepository resolves a caller's role inside a project and lists
// notification recipients by role.
type MembershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// RoleIn returns the active role of a user in a project, or ErrNotFound.
func (r *MembershipRepository) RoleIn(ctx context.Context, projectID, userID string) (string, error) {
	var m entity.ProjectMembership
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ? AND is_active = true", projectID, userID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return m.Role, nil
}

// UserIDsByRoles returns active member user ids holding any of the roles.
func (r *MembershipRepository) UserIDsByRoles(ctx context.Context, projectID string, roles []string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&entity.ProjectMembership{}).
		Where("project_id = ? AND role IN ? AND is_active = true", projectID, roles).
		Distinct().
		Pluck("user_id", &ids).Error
	return ids, err
}

// Create inserts a membership (used by tests and seeding flows).
func (r *MembershipRepository) Create(ctx context.Context, m *entity.ProjectMembership) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	return r.db.WithContext(ctx).Create(m).Error
}
