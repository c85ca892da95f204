package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/omi1811/concretethings-sub000/internal/qsm/apperr"
	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
	"github.com/omi1811/concretethings-sub000/internal/qsm/repository"
)

// PourService stores pour activities and drives the cube schedule that hangs
// off them.
type PourService struct {
	db     *gorm.DB
	repos  *repository.Repositories
	access *accessControl
	logger *zap.Logger
}

func NewPourService(db *gorm.DB, repos *repository.Repositories, access *accessControl, logger *zap.Logger) *PourService {
	return &PourService{db: db, repos: repos, access: access, logger: logger}
}

// CubeScheduleItem is one planned test age with the number of cube sets.
type CubeScheduleItem struct {
	AgeDays int `json:"age_days" binding:"required"`
	Sets    int `json:"sets"`
}

// CreatePourRequest creates an in-progress pour, optionally pre-planning its
// cube tests.
type CreatePourRequest struct {
	ProjectID            string             `json:"project_id" binding:"required"`
	PourCode             string             `json:"pour_code"`
	PourDate             *time.Time         `json:"pour_date"`
	Location             entity.Location    `json:"location"`
	ConcreteType         string             `json:"concrete_type"`
	DesignGrade          string             `json:"design_grade"`
	TotalQuantityPlanned float64            `json:"total_quantity_planned"`
	CubeSchedule         []CubeScheduleItem `json:"cube_schedule"`
}

// Create generates the pour code when absent (POUR-{YYYY}-{NNN}, per-project
// yearly sequence) and pre-materializes planned cube tests and reminders when
// a schedule is given.
func (s *PourService) Create(ctx context.Context, userID string, req *CreatePourRequest) (*entity.PourActivity, error) {
	project, _, err := s.access.requireRole(ctx, req.ProjectID, userID, entity.RoleQualityEngineer)
	if err != nil {
		return nil, err
	}
	if project.Status != entity.ProjectStatusActive {
		return nil, apperr.New(apperr.InvalidArgument, "project is not active")
	}

	concreteType := req.ConcreteType
	if concreteType == "" {
		concreteType = entity.ConcreteTypeNormal
	}
	if concreteType != entity.ConcreteTypeNormal && concreteType != entity.ConcreteTypePT {
		return nil, apperr.New(apperr.InvalidArgument, "concrete_type must be Normal or PT")
	}

	now := time.Now()
	pourDate := now
	if req.PourDate != nil {
		pourDate = *req.PourDate
	}

	pour := &entity.PourActivity{
		ProjectID:            req.ProjectID,
		PourCode:             req.PourCode,
		PourDate:             pourDate,
		Location:             req.Location,
		ConcreteType:         concreteType,
		DesignGrade:          req.DesignGrade,
		TotalQuantityPlanned: req.TotalQuantityPlanned,
		Status:               entity.PourStatusInProgress,
		StartedAt:            now,
		CreatedBy:            userID,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if pour.PourCode == "" {
			code, err := s.repos.Pour.GenerateCodeTx(ctx, tx, req.ProjectID, pourDate.Year())
			if err != nil {
				return err
			}
			pour.PourCode = code
		}
		if err := s.repos.Pour.CreateTx(ctx, tx, pour); err != nil {
			return err
		}
		if len(req.CubeSchedule) > 0 {
			required, err := s.requiredStrengthTx(ctx, tx, req.ProjectID, req.DesignGrade)
			if err != nil {
				return err
			}
			return s.planScheduleTx(ctx, tx, pour, req.CubeSchedule, required, userID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pour, nil
}

// requiredStrengthTx resolves the specified strength for a grade from the
// project's mix designs, falling back to the grade designation itself.
func (s *PourService) requiredStrengthTx(ctx context.Context, tx *gorm.DB, projectID, grade string) (float64, error) {
	if grade == "" {
		return 0, apperr.New(apperr.InvalidArgument, "design_grade is required when scheduling cube tests")
	}
	mix, err := s.repos.MixDesign.FindByProjectAndGradeTx(ctx, tx, projectID, grade)
	if err == nil {
		return mix.SpecifiedStrengthMPa, nil
	}
	if err != repository.ErrNotFound {
		return 0, err
	}
	mpa, _, parseErr := entity.ParseGradeStrength(grade)
	if parseErr != nil {
		return 0, apperr.Newf(apperr.InvalidArgument, "cannot derive strength from grade %q", grade)
	}
	return mpa, nil
}

// planScheduleTx inserts planned cube tests and their reminders. One
// CubeTest row per (age, set); reminder_date = casting_date + age.
func (s *PourService) planScheduleTx(ctx context.Context, tx *gorm.DB, pour *entity.PourActivity, schedule []CubeScheduleItem, requiredMPa float64, userID string) error {
	for _, item := range schedule {
		if item.AgeDays <= 0 {
			return apperr.New(apperr.InvalidArgument, "cube schedule age_days must be positive")
		}
		sets := item.Sets
		if sets <= 0 {
			sets = 1
		}
		for set := 1; set <= sets; set++ {
			testingDate := pour.PourDate.AddDate(0, 0, item.AgeDays)
			test := &entity.CubeTest{
				ProjectID:           pour.ProjectID,
				PourActivityID:      &pour.ID,
				SetNumber:           set,
				TestAgeDays:         item.AgeDays,
				CastingDate:         pour.PourDate,
				TestingDate:         &testingDate,
				RequiredStrengthMPa: requiredMPa,
				PassFailStatus:      entity.CubeTestStatusPlanned,
				CreatedBy:           userID,
			}
			if err := s.repos.CubeTest.CreateTx(ctx, tx, test); err != nil {
				return err
			}
			reminder := &entity.TestReminder{
				ProjectID:    pour.ProjectID,
				CubeTestID:   test.ID,
				ReminderDate: testingDate,
				TestAgeDays:  item.AgeDays,
				Status:       entity.ReminderStatusPending,
			}
			if err := s.repos.Reminder.CreateTx(ctx, tx, reminder); err != nil {
				return err
			}
		}
	}
	return nil
}

// UpdatePourRequest mutates an in-progress pour.
type UpdatePourRequest struct {
	Location             *entity.Location `json:"location"`
	ConcreteType         *string          `json:"concrete_type"`
	DesignGrade          *string          `json:"design_grade"`
	TotalQuantityPlanned *float64         `json:"total_quantity_planned"`
}

// Update is allowed only while in_progress. Concrete type is frozen once any
// cube test exists because the schedule depends on it.
func (s *PourService) Update(ctx context.Context, projectID, pourID, userID string, req *UpdatePourRequest) (*entity.PourActivity, error) {
	pour, err := s.getScoped(ctx, projectID, pourID, userID, entity.RoleQualityEngineer)
	if err != nil {
		return nil, err
	}
	if pour.Status != entity.PourStatusInProgress {
		return nil, apperr.New(apperr.Conflict, "only in-progress pours can be updated")
	}

	if req.ConcreteType != nil && *req.ConcreteType != pour.ConcreteType {
		hasTests, err := s.repos.Pour.HasCubeTests(ctx, pour.ID)
		if err != nil {
			return nil, err
		}
		if hasTests {
			return nil, apperr.New(apperr.Conflict, "concrete_type cannot change after cube tests are planned")
		}
		if *req.ConcreteType != entity.ConcreteTypeNormal && *req.ConcreteType != entity.ConcreteTypePT {
			return nil, apperr.New(apperr.InvalidArgument, "concrete_type must be Normal or PT")
		}
		pour.ConcreteType = *req.ConcreteType
	}
	if req.Location != nil {
		pour.Location = *req.Location
	}
	if req.DesignGrade != nil {
		pour.DesignGrade = *req.DesignGrade
	}
	if req.TotalQuantityPlanned != nil {
		pour.TotalQuantityPlanned = *req.TotalQuantityPlanned
	}

	if err := s.repos.Pour.Update(ctx, pour); err != nil {
		return nil, err
	}
	return pour, nil
}

// AddBatch links an existing batch to this pour. Rejected when the batch is
// already on another pour or the pour is not in progress.
func (s *PourService) AddBatch(ctx context.Context, projectID, pourID, batchID, userID string) (*entity.PourActivity, error) {
	pour, err := s.getScoped(ctx, projectID, pourID, userID, entity.RoleQualityEngineer)
	if err != nil {
		return nil, err
	}
	if pour.Status != entity.PourStatusInProgress {
		return nil, apperr.New(apperr.Conflict, "pour is not in progress")
	}

	batch, err := s.repos.Batch.FindByID(ctx, batchID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.NotFound, "batch not found")
		}
		return nil, err
	}
	if batch.ProjectID != projectID {
		return nil, apperr.New(apperr.NotFound, "batch not found")
	}
	if batch.PourActivityID != nil && *batch.PourActivityID != pourID {
		return nil, apperr.New(apperr.Conflict, "batch is already linked to another pour")
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.repos.Batch.LinkToPourTx(ctx, tx, batchID, pourID)
	})
	if err != nil {
		return nil, err
	}
	return s.repos.Pour.FindByIDWithBatches(ctx, pourID)
}

// CompletePourResult returns the completed pour plus the ordered test ages
// that drive the cube-casting modal.
type CompletePourResult struct {
	Pour            *entity.PourActivity `json:"pour"`
	PlannedTestAges []int                `json:"planned_test_ages"`
}

// Complete refuses when no batches are linked, then freezes the received
// total as the sum over linked batches.
func (s *PourService) Complete(ctx context.Context, projectID, pourID, userID string) (*CompletePourResult, error) {
	pour, err := s.getScoped(ctx, projectID, pourID, userID, entity.RoleQualityEngineer)
	if err != nil {
		return nil, err
	}
	if pour.Status == entity.PourStatusCompleted {
		return &CompletePourResult{Pour: pour, PlannedTestAges: entity.TestAgesFor(pour.ConcreteType)}, nil
	}
	if pour.Status != entity.PourStatusInProgress {
		return nil, apperr.New(apperr.Conflict, "pour is not in progress")
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		total, count, err := s.repos.Pour.SumBatchQuantitiesTx(ctx, tx, pour.ID)
		if err != nil {
			return err
		}
		if count == 0 {
			return apperr.New(apperr.FailedPrecondition, "cannot complete a pour with no linked batches")
		}
		now := time.Now()
		pour.Status = entity.PourStatusCompleted
		pour.CompletedAt = &now
		pour.TotalQuantityReceived = &total
		return s.repos.Pour.UpdateTx(ctx, tx, pour)
	})
	if err != nil {
		return nil, err
	}

	return &CompletePourResult{
		Pour:            pour,
		PlannedTestAges: entity.TestAgesFor(pour.ConcreteType),
	}, nil
}

// Cancel clears batch links and soft-deletes planned cube tests atomically.
func (s *PourService) Cancel(ctx context.Context, projectID, pourID, userID string) (*entity.PourActivity, error) {
	pour, err := s.getScoped(ctx, projectID, pourID, userID, entity.RoleQualityEngineer)
	if err != nil {
		return nil, err
	}
	if pour.Status == entity.PourStatusCancelled {
		return pour, nil
	}
	if pour.Status == entity.PourStatusCompleted {
		return nil, apperr.New(apperr.Conflict, "completed pours cannot be cancelled")
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repos.Pour.UnlinkBatchesTx(ctx, tx, pour.ID); err != nil {
			return err
		}
		if err := s.repos.CubeTest.CancelPlannedByPourTx(ctx, tx, pour.ID); err != nil {
			return err
		}
		pour.Status = entity.PourStatusCancelled
		return s.repos.Pour.UpdateTx(ctx, tx, pour)
	})
	if err != nil {
		return nil, err
	}
	return pour, nil
}

// Get returns one pour with its batches.
func (s *PourService) Get(ctx context.Context, projectID, pourID, userID string) (*entity.PourActivity, error) {
	if _, _, err := s.access.requireRole(ctx, projectID, userID, entity.RoleWatchman); err != nil {
		return nil, err
	}
	pour, err := s.repos.Pour.FindByIDWithBatches(ctx, pourID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.NotFound, "pour activity not found")
		}
		return nil, err
	}
	if pour.ProjectID != projectID {
		return nil, apperr.New(apperr.NotFound, "pour activity not found")
	}
	return pour, nil
}

// List returns a project's pours newest first.
func (s *PourService) List(ctx context.Context, projectID, userID string, page, pageSize int, filters map[string]string) ([]entity.PourActivity, int64, error) {
	if _, _, err := s.access.requireRole(ctx, projectID, userID, entity.RoleWatchman); err != nil {
		return nil, 0, err
	}
	return s.repos.Pour.FindAll(ctx, projectID, page, pageSize, filters)
}

func (s *PourService) getScoped(ctx context.Context, projectID, pourID, userID, minRole string) (*entity.PourActivity, error) {
	if _, _, err := s.access.requireRole(ctx, projectID, userID, minRole); err != nil {
		return nil, err
	}
	pour, err := s.repos.Pour.FindByID(ctx, pourID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.NotFound, "pour activity not found")
		}
		return nil, err
	}
	if pour.ProjectID != projectID {
		return nil, apperr.New(apperr.NotFound, "pour activity not found")
	}
	return pour, nil
}
