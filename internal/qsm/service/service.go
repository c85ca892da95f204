package service

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/omi1811/concretethings-sub000/internal/notify"
	"github.com/omi1811/concretethings-sub000/internal/qsm/apperr"
	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
	"github.com/omi1811/concretethings-sub000/internal/qsm/repository"
)

// Notifier delivers events after the domain transaction commits. The real
// implementation is notify.Dispatcher; tests plug a recorder.
type Notifier interface {
	Dispatch(ctx context.Context, event notify.Event)
	DispatchAll(ctx context.Context, events []notify.Event)
}

// NopNotifier drops all events.
type NopNotifier struct{}

func (NopNotifier) Dispatch(ctx context.Context, event notify.Event)       {}
func (NopNotifier) DispatchAll(ctx context.Context, events []notify.Event) {}

// Services is the aggregate of all QSM business services.
type Services struct {
	Vehicle  *VehicleService
	Pour     *PourService
	Batch    *BatchService
	CubeTest *CubeTestService
	NC       *NCService
	Reminder *ReminderService
}

func NewServices(db *gorm.DB, repos *repository.Repositories, notifier Notifier, logger *zap.Logger) *Services {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	access := &accessControl{repos: repos}

	ncSvc := NewNCService(db, repos, access, notifier, logger)
	return &Services{
		Vehicle:  NewVehicleService(db, repos, access, notifier, logger),
		Pour:     NewPourService(db, repos, access, logger),
		Batch:    NewBatchService(db, repos, access, notifier, logger),
		CubeTest: NewCubeTestService(db, repos, access, ncSvc, notifier, logger),
		NC:       ncSvc,
		Reminder: NewReminderService(db, repos, notifier, logger),
	}
}

// accessControl resolves the caller's project role. A missing project is
// NotFound; a missing or insufficient membership is PermissionDenied.
type accessControl struct {
	repos *repository.Repositories
}

// requireProject loads the project or returns NotFound.
func (a *accessControl) requireProject(ctx context.Context, projectID string) (*entity.Project, error) {
	project, err := a.repos.Project.FindByID(ctx, projectID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.NotFound, "project not found")
		}
		return nil, err
	}
	return project, nil
}

// requireRole loads the project and checks the caller holds at least the
// given role in it.
func (a *accessControl) requireRole(ctx context.Context, projectID, userID, minRole string) (*entity.Project, string, error) {
	project, err := a.requireProject(ctx, projectID)
	if err != nil {
		return nil, "", err
	}

	role, err := a.repos.Membership.RoleIn(ctx, projectID, userID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, "", apperr.New(apperr.PermissionDenied, "not a member of this project")
		}
		return nil, "", err
	}
	if !entity.RoleAtLeast(role, minRole) {
		return nil, "", apperr.Newf(apperr.PermissionDenied, "requires %s role", minRole)
	}
	return project, role, nil
}
