package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
)

// ProjectRepository reads project and settings rows. Projects themselves are
// administered elsewhere; the QSM core only resolves and validates them.
type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*entity.Project, error) {
	var project entity.Project
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

// Settings returns the project settings, falling back to defaults when the
// project never saved any.
func (r *ProjectRepository) Settings(ctx context.Context, projectID string) (*entity.ProjectSettings, error) {
	var settings entity.ProjectSettings
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).First(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entity.DefaultSettings(projectID), nil
		}
		return nil, err
	}
	return &settings, nil
}

// SaveSettings upserts the settings row for a project.
func (r *ProjectRepository) SaveSettings(ctx context.Context, settings *entity.ProjectSettings) error {
	if settings.ID == "" {
		settings.ID = NewID()
	}
	return r.db.WithContext(ctx).Save(settings).Error
}

// FindWithReminderEnabled lists active projects with test reminders on.
func (r *ProjectRepository) FindWithReminderEnabled(ctx context.Context) ([]entity.Project, error) {
	var projects []entity.Project
	err := r.db.WithContext(ctx).
		Joins("JOIN qsm_project_settings s ON s.project_id = qsm_projects.id").
		Where("qsm_projects.status = ? AND s.enable_test_reminders = true", entity.ProjectStatusActive).
		Find(&projects).Error
	return projects, err
}

// FindWithVehicleAddonEnabled lists active projects with the material vehicle
// addon and time warnings on.
func (r *ProjectRepository) FindWithVehicleAddonEnabled(ctx context.Context) ([]entity.Project, error) {
	var projects []entity.Project
	err := r.db.WithContext(ctx).
		Joins("JOIN qsm_project_settings s ON s.project_id = qsm_projects.id").
		Where("qsm_projects.status = ? AND s.enable_material_vehicle_addon = true AND s.send_time_warnings = true",
			entity.ProjectStatusActive).
		Find(&projects).Error
	return projects, err
}
