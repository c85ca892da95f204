package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/omi1811/concretethings-sub000/internal/notify"
	"github.com/omi1811/concretethings-sub000/internal/qsm/apperr"
	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
	"github.com/omi1811/concretethings-sub000/internal/qsm/repository"
)

// VehicleService is the gate register: watchman entries, exits, the unlinked
// RMC feed for batching, and the time-limit supervisor pass.
type VehicleService struct {
	db       *gorm.DB
	repos    *repository.Repositories
	access   *accessControl
	notifier Notifier
	logger   *zap.Logger
}

func NewVehicleService(db *gorm.DB, repos *repository.Repositories, access *accessControl, notifier Notifier, logger *zap.Logger) *VehicleService {
	return &VehicleService{db: db, repos: repos, access: access, notifier: notifier, logger: logger}
}

// CreateEntryRequest is the watchman gate capture.
type CreateEntryRequest struct {
	ProjectID     string     `json:"project_id" binding:"required"`
	VehicleNumber string     `json:"vehicle_number" binding:"required"`
	MaterialType  string     `json:"material_type" binding:"required"`
	VendorName    string     `json:"vendor_name"`
	DriverName    string     `json:"driver_name"`
	ChallanNumber string     `json:"challan_number"`
	EntryTime     *time.Time `json:"entry_time"`
	PhotoKeys     []string   `json:"photo_keys"`
}

// CreateEntry logs a vehicle at the gate with status on_site and the allowed
// window copied from current project settings.
func (s *VehicleService) CreateEntry(ctx context.Context, userID string, req *CreateEntryRequest) (*entity.VehicleEntry, error) {
	project, _, err := s.access.requireRole(ctx, req.ProjectID, userID, entity.RoleWatchman)
	if err != nil {
		return nil, err
	}
	if project.Status != entity.ProjectStatusActive {
		return nil, apperr.New(apperr.InvalidArgument, "project is not active")
	}
	if strings.TrimSpace(req.MaterialType) == "" {
		return nil, apperr.New(apperr.InvalidArgument, "material_type is required")
	}

	settings, err := s.repos.Project.Settings(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}

	entryTime := time.Now()
	if req.EntryTime != nil {
		entryTime = *req.EntryTime
	}

	v := &entity.VehicleEntry{
		ProjectID:        req.ProjectID,
		VehicleNumber:    entity.NormalizeVehicleNumber(req.VehicleNumber),
		MaterialType:     strings.TrimSpace(req.MaterialType),
		VendorName:       strings.TrimSpace(req.VendorName),
		DriverName:       strings.TrimSpace(req.DriverName),
		ChallanNumber:    strings.TrimSpace(req.ChallanNumber),
		EntryTime:        entryTime,
		Status:           entity.VehicleStatusOnSite,
		AllowedTimeHours: settings.VehicleAllowedTimeHours,
		PhotoKeys:        req.PhotoKeys,
		CreatedBy:        userID,
	}
	if err := s.repos.Vehicle.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// MarkExit flips the vehicle to exited. Idempotent: a second call returns
// the same state unchanged.
func (s *VehicleService) MarkExit(ctx context.Context, projectID, vehicleID, userID string) (*entity.VehicleEntry, error) {
	if _, _, err := s.access.requireRole(ctx, projectID, userID, entity.RoleWatchman); err != nil {
		return nil, err
	}

	v, err := s.repos.Vehicle.FindByID(ctx, vehicleID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.NotFound, "vehicle entry not found")
		}
		return nil, err
	}
	if v.ProjectID != projectID {
		return nil, apperr.New(apperr.NotFound, "vehicle entry not found")
	}

	if v.Status == entity.VehicleStatusExited {
		return v, nil
	}

	now := time.Now()
	v.Status = entity.VehicleStatusExited
	v.ExitTime = &now
	if err := s.repos.Vehicle.Update(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// ListUnlinkedRMC returns RMC vehicles available for batch materialization,
// newest first.
func (s *VehicleService) ListUnlinkedRMC(ctx context.Context, projectID, userID string, filters map[string]string) ([]entity.VehicleEntry, error) {
	if _, _, err := s.access.requireRole(ctx, projectID, userID, entity.RoleQualityEngineer); err != nil {
		return nil, err
	}
	return s.repos.Vehicle.FindUnlinkedRMC(ctx, projectID, filters)
}

// List returns the gate log with filters.
func (s *VehicleService) List(ctx context.Context, projectID, userID string, page, pageSize int, filters map[string]string) ([]entity.VehicleEntry, int64, error) {
	if _, _, err := s.access.requireRole(ctx, projectID, userID, entity.RoleWatchman); err != nil {
		return nil, 0, err
	}
	return s.repos.Vehicle.FindAll(ctx, projectID, page, pageSize, filters)
}

// Get returns one entry scoped to the project.
func (s *VehicleService) Get(ctx context.Context, projectID, vehicleID, userID string) (*entity.VehicleEntry, error) {
	if _, _, err := s.access.requireRole(ctx, projectID, userID, entity.RoleWatchman); err != nil {
		return nil, err
	}
	v, err := s.repos.Vehicle.FindByID(ctx, vehicleID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.NotFound, "vehicle entry not found")
		}
		return nil, err
	}
	if v.ProjectID != projectID {
		return nil, apperr.New(apperr.NotFound, "vehicle entry not found")
	}
	return v, nil
}

// RunTimeLimitCheck is the time-limit supervisor pass over one project.
// On-site RMC vehicles past the allowed window get exactly one warning;
// non-RMC materials are never warned. Returns the number of vehicles warned.
func (s *VehicleService) RunTimeLimitCheck(ctx context.Context, projectID string, now time.Time) (int, error) {
	settings, err := s.repos.Project.Settings(ctx, projectID)
	if err != nil {
		return 0, err
	}
	if !settings.EnableMaterialVehicleAddon || !settings.SendTimeWarnings {
		return 0, nil
	}

	hours := settings.VehicleAllowedTimeHours
	if hours <= 0 {
		hours = 3.0
	}
	cutoff := now.Add(-time.Duration(hours * float64(time.Hour)))

	vehicles, err := s.repos.Vehicle.FindOverdueRMC(ctx, projectID, cutoff)
	if err != nil {
		return 0, err
	}
	if len(vehicles) == 0 {
		return 0, nil
	}

	recipients, err := s.repos.Membership.UserIDsByRoles(ctx, projectID,
		[]string{entity.RoleQualityEngineer, entity.RoleQualityManager, entity.RoleProjectAdmin})
	if err != nil {
		return 0, err
	}

	warned := 0
	for i := range vehicles {
		v := &vehicles[i]

		// Flag first: a concurrent exit races benignly, and the flag keeps
		// the vehicle from ever being re-warned.
		if err := s.repos.Vehicle.MarkTimeWarned(ctx, v.ID, now); err != nil {
			s.logger.Warn("time-limit: flag update failed",
				zap.String("vehicle_id", v.ID), zap.Error(err))
			continue
		}
		warned++

		hoursOnSite := now.Sub(v.EntryTime).Hours()
		s.notifier.Dispatch(ctx, notify.Event{
			Type:      entity.EventTimeLimitWarning,
			ProjectID: projectID,
			EntityID:  v.ID,
			Subject:   fmt.Sprintf("RMC vehicle %s exceeded time limit", v.VehicleNumber),
			Body: fmt.Sprintf("Vehicle %s (%s) has been on site for %.1f hours; allowed window is %.1f hours. Cast or reject the load.",
				v.VehicleNumber, v.MaterialType, hoursOnSite, v.AllowedTimeHours),
			Recipients: recipients,
		})
	}
	return warned, nil
}

// RunTimeLimitCheckAll runs the supervisor over every project with the
// vehicle addon enabled.
func (s *VehicleService) RunTimeLimitCheckAll(ctx context.Context, now time.Time) (int, error) {
	projects, err := s.repos.Project.FindWithVehicleAddonEnabled(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, p := range projects {
		n, err := s.RunTimeLimitCheck(ctx, p.ID, now)
		if err != nil {
			s.logger.Warn("time-limit: project check failed",
				zap.String("project_id", p.ID), zap.Error(err))
			continue
		}
		total += n
	}
	return total, nil
}
