package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/omi1811/concretethings-sub000/internal/notify"
	"github.com/omi1811/concretethings-sub000/internal/qsm/apperr"
	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
	"github.com/omi1811/concretethings-sub000/internal/qsm/repository"
)

// CubeTestService runs the IS 516 test workflow: planning, result entry with
// automatic NC raising on first failure, and sign-off.
type CubeTestService struct {
	db       *gorm.DB
	repos    *repository.Repositories
	access   *accessControl
	ncSvc    *NCService
	notifier Notifier
	logger   *zap.Logger
}

func NewCubeTestService(db *gorm.DB, repos *repository.Repositories, access *accessControl, ncSvc *NCService, notifier Notifier, logger *zap.Logger) *CubeTestService {
	return &CubeTestService{db: db, repos: repos, access: access, ncSvc: ncSvc, notifier: notifier, logger: logger}
}

// PlanRequest schedules one cube set against a batch or a pour.
type PlanRequest struct {
	ProjectID           string     `json:"project_id" binding:"required"`
	BatchID             *string    `json:"batch_id"`
	PourActivityID      *string    `json:"pour_activity_id"`
	SetNumber           int        `json:"set_number"`
	TestAgeDays         int        `json:"test_age_days" binding:"required"`
	CastingDate         *time.Time `json:"casting_date"`
	RequiredStrengthMPa float64    `json:"required_strength_mpa"`
}

// Plan creates a planned cube test and its due-date reminder in one
// transaction. The required strength defaults from the batch's mix design.
func (s *CubeTestService) Plan(ctx context.Context, userID string, req *PlanRequest) (*entity.CubeTest, error) {
	if _, _, err := s.access.requireRole(ctx, req.ProjectID, userID, entity.RoleQualityEngineer); err != nil {
		return nil, err
	}
	if req.BatchID == nil && req.PourActivityID == nil {
		return nil, apperr.New(apperr.InvalidArgument, "batch_id or pour_activity_id is required")
	}
	if req.TestAgeDays <= 0 {
		return nil, apperr.New(apperr.InvalidArgument, "test_age_days must be positive")
	}

	castingDate := time.Now()
	if req.CastingDate != nil {
		castingDate = *req.CastingDate
	}
	required := req.RequiredStrengthMPa

	if req.BatchID != nil {
		batch, err := s.repos.Batch.FindByID(ctx, *req.BatchID)
		if err != nil {
			if err == repository.ErrNotFound {
				return nil, apperr.New(apperr.NotFound, "batch not found")
			}
			return nil, err
		}
		if batch.ProjectID != req.ProjectID {
			return nil, apperr.New(apperr.NotFound, "batch not found")
		}
		if required <= 0 && batch.MixDesign != nil {
			required = batch.MixDesign.SpecifiedStrengthMPa
		}
		if req.PourActivityID == nil {
			req.PourActivityID = batch.PourActivityID
		}
	}
	if req.PourActivityID != nil {
		pour, err := s.repos.Pour.FindByID(ctx, *req.PourActivityID)
		if err != nil {
			if err == repository.ErrNotFound {
				return nil, apperr.New(apperr.NotFound, "pour activity not found")
			}
			return nil, err
		}
		if pour.ProjectID != req.ProjectID {
			return nil, apperr.New(apperr.NotFound, "pour activity not found")
		}
		if required <= 0 && pour.DesignGrade != "" {
			if mpa, _, err := entity.ParseGradeStrength(pour.DesignGrade); err == nil {
				required = mpa
			}
		}
	}
	if required <= 0 {
		return nil, apperr.New(apperr.InvalidArgument, "required_strength_mpa could not be resolved")
	}

	setNumber := req.SetNumber
	if setNumber <= 0 {
		setNumber = 1
	}
	testingDate := castingDate.AddDate(0, 0, req.TestAgeDays)
	test := &entity.CubeTest{
		ProjectID:           req.ProjectID,
		BatchID:             req.BatchID,
		PourActivityID:      req.PourActivityID,
		SetNumber:           setNumber,
		TestAgeDays:         req.TestAgeDays,
		CastingDate:         castingDate,
		TestingDate:         &testingDate,
		RequiredStrengthMPa: required,
		PassFailStatus:      entity.CubeTestStatusPlanned,
		CreatedBy:           userID,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repos.CubeTest.CreateTx(ctx, tx, test); err != nil {
			return err
		}
		return s.repos.Reminder.CreateTx(ctx, tx, &entity.TestReminder{
			ProjectID:    req.ProjectID,
			CubeTestID:   test.ID,
			ReminderDate: testingDate,
			TestAgeDays:  req.TestAgeDays,
			Status:       entity.ReminderStatusPending,
		})
	})
	if err != nil {
		return nil, err
	}
	return test, nil
}

// CubeInput is the measured data for one specimen. Dimensions default to the
// nominal 150 mm cube when omitted.
type CubeInput struct {
	WeightKg    *float64 `json:"weight_kg"`
	LengthMM    *float64 `json:"length_mm"`
	WidthMM     *float64 `json:"width_mm"`
	HeightMM    *float64 `json:"height_mm"`
	LoadKN      *float64 `json:"load_kn"`
	FailureMode string   `json:"failure_mode"`
}

// RecordResultsRequest enters crushing results for the set.
type RecordResultsRequest struct {
	Cubes       []CubeInput `json:"cubes" binding:"required"`
	TestingDate *time.Time  `json:"testing_date"`
}

const nominalCubeMM = 150.0

// RecordResults computes per-cube strengths, applies the IS 516 acceptance
// rule, and on the first failure raises a HIGH severity NC against the
// batch's vendor in the same transaction. Re-recording a finalized test is a
// conflict; the NCRGenerated flag guarantees at most one auto-raised NC per
// test either way.
func (s *CubeTestService) RecordResults(ctx context.Context, projectID, testID, userID string, req *RecordResultsRequest) (*entity.CubeTest, error) {
	project, _, err := s.access.requireRole(ctx, projectID, userID, entity.RoleQualityEngineer)
	if err != nil {
		return nil, err
	}
	if len(req.Cubes) == 0 || len(req.Cubes) > 3 {
		return nil, apperr.New(apperr.InvalidArgument, "between 1 and 3 cubes must be provided")
	}

	test, err := s.getScoped(ctx, projectID, testID)
	if err != nil {
		return nil, err
	}
	if test.Terminal() {
		return nil, apperr.Newf(apperr.Conflict, "test already finalized as %s", test.PassFailStatus)
	}
	if test.PassFailStatus == entity.CubeTestStatusCancelled {
		return nil, apperr.New(apperr.FailedPrecondition, "test is cancelled")
	}

	results := [3]entity.CubeResult{}
	var strengths []float64
	for i, in := range req.Cubes {
		if in.LoadKN == nil {
			continue
		}
		length := nominalCubeMM
		width := nominalCubeMM
		if in.LengthMM != nil {
			length = *in.LengthMM
		}
		if in.WidthMM != nil {
			width = *in.WidthMM
		}
		if length <= 0 || width <= 0 || *in.LoadKN <= 0 {
			return nil, apperr.Newf(apperr.InvalidArgument, "cube %d has non-positive measurements", i+1)
		}
		strength := entity.CubeStrengthMPa(*in.LoadKN, length, width)
		results[i] = entity.CubeResult{
			WeightKg:    in.WeightKg,
			LengthMM:    &length,
			WidthMM:     &width,
			HeightMM:    in.HeightMM,
			LoadKN:      in.LoadKN,
			StrengthMPa: &strength,
			FailureMode: in.FailureMode,
		}
		strengths = append(strengths, strength)
	}
	if len(strengths) == 0 {
		return nil, apperr.New(apperr.InvalidArgument, "at least one cube needs a failure load")
	}

	avg, pass := entity.EvaluateIS516(strengths, test.RequiredStrengthMPa)
	ratio := avg / test.RequiredStrengthMPa * 100

	testingDate := time.Now()
	if req.TestingDate != nil {
		testingDate = *req.TestingDate
	}

	test.Cube1, test.Cube2, test.Cube3 = results[0], results[1], results[2]
	test.AverageStrengthMPa = &avg
	test.StrengthRatioPercent = &ratio
	test.TestingDate = &testingDate
	test.TestedBy = &userID
	if pass {
		test.PassFailStatus = entity.CubeTestStatusPass
	} else {
		test.PassFailStatus = entity.CubeTestStatusFail
	}

	var events []notify.Event
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if !pass && !test.NCRGenerated {
			contractorID, err := s.contractorForTestTx(ctx, tx, test)
			if err != nil {
				return err
			}
			if contractorID != "" {
				nc, event, err := s.ncSvc.RaiseFromCubeTestTx(ctx, tx, project, test, contractorID, userID)
				if err != nil {
					return err
				}
				test.NCRGenerated = true
				test.NCNumber = &nc.NCNumber
				events = append(events, event)
			} else {
				s.logger.Warn("cube test failed with no contractor to charge",
					zap.String("cube_test_id", test.ID))
			}
		}

		if err := s.repos.CubeTest.UpdateTx(ctx, tx, test); err != nil {
			return err
		}

		// Completing the test also settles the reminder.
		if reminder, err := s.repos.Reminder.FindByCubeTestTx(ctx, tx, test.ID); err == nil {
			reminder.TestCompleted = true
			reminder.Status = entity.ReminderStatusAcknowledged
			if err := s.repos.Reminder.UpdateTx(ctx, tx, reminder); err != nil {
				return err
			}
		} else if err != repository.ErrNotFound {
			return err
		}

		return s.repos.Audit.LogTx(ctx, tx, &entity.AuditEntry{
			ProjectID:  projectID,
			EntityType: entity.AuditEntityCubeTest,
			EntityID:   test.ID,
			Action:     "results_recorded",
			NewState:   test.PassFailStatus,
			Detail: entity.JSONB{
				"average_strength_mpa":  avg,
				"required_strength_mpa": test.RequiredStrengthMPa,
			},
			ActorUserID: userID,
		})
	})
	if err != nil {
		return nil, err
	}

	if !pass {
		recipients, rerr := s.repos.Membership.UserIDsByRoles(ctx, projectID,
			[]string{entity.RoleQualityManager, entity.RoleProjectAdmin})
		if rerr == nil && len(recipients) > 0 {
			events = append(events, notify.Event{
				Type:       entity.EventTestFailure,
				ProjectID:  projectID,
				EntityID:   test.ID,
				CubeTestID: test.ID,
				Subject:    fmt.Sprintf("Cube test failed at %d days", test.TestAgeDays),
				Body: fmt.Sprintf("Average strength %.2f MPa against required %.2f MPa (set %d, cast %s).",
					avg, test.RequiredStrengthMPa, test.SetNumber, test.CastingDate.Format("02 Jan 2006")),
				Recipients: recipients,
			})
		}
	}
	s.notifier.DispatchAll(ctx, events)
	return test, nil
}

// contractorForTestTx resolves the vendor to charge for a failure: the
// batch's vendor, or the first batch of the pour for pour-planned tests.
func (s *CubeTestService) contractorForTestTx(ctx context.Context, tx *gorm.DB, test *entity.CubeTest) (string, error) {
	if test.BatchID != nil {
		var batch entity.Batch
		if err := tx.WithContext(ctx).Where("id = ?", *test.BatchID).First(&batch).Error; err != nil {
			return "", err
		}
		return batch.VendorID, nil
	}
	if test.PourActivityID != nil {
		var batch entity.Batch
		err := tx.WithContext(ctx).
			Where("pour_activity_id = ?", *test.PourActivityID).
			Order("delivery_time ASC").
			First(&batch).Error
		if err == nil {
			return batch.VendorID, nil
		}
		if err != gorm.ErrRecordNotFound {
			return "", err
		}
	}
	return "", nil
}

// Sign attaches the reviewing manager's signature to a finalized test.
func (s *CubeTestService) Sign(ctx context.Context, projectID, testID, userID, signatureKey string) (*entity.CubeTest, error) {
	if _, _, err := s.access.requireRole(ctx, projectID, userID, entity.RoleQualityManager); err != nil {
		return nil, err
	}
	if signatureKey == "" {
		return nil, apperr.New(apperr.InvalidArgument, "signature is required")
	}

	test, err := s.getScoped(ctx, projectID, testID)
	if err != nil {
		return nil, err
	}
	if !test.Terminal() {
		return nil, apperr.New(apperr.FailedPrecondition, "only finalized tests can be signed")
	}
	if test.SignatureKey != nil {
		return nil, apperr.New(apperr.Conflict, "test is already signed")
	}

	now := time.Now()
	test.SignatureKey = &signatureKey
	test.VerifiedBy = &userID
	test.VerifiedAt = &now

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repos.CubeTest.UpdateTx(ctx, tx, test); err != nil {
			return err
		}
		return s.repos.Audit.LogTx(ctx, tx, &entity.AuditEntry{
			ProjectID:   projectID,
			EntityType:  entity.AuditEntityCubeTest,
			EntityID:    test.ID,
			Action:      "signed",
			NewState:    test.PassFailStatus,
			ActorUserID: userID,
		})
	})
	if err != nil {
		return nil, err
	}
	return test, nil
}

// Get returns one cube test scoped to the project.
func (s *CubeTestService) Get(ctx context.Context, projectID, testID, userID string) (*entity.CubeTest, error) {
	if _, _, err := s.access.requireRole(ctx, projectID, userID, entity.RoleWatchman); err != nil {
		return nil, err
	}
	return s.getScoped(ctx, projectID, testID)
}

// List returns a project's cube tests.
func (s *CubeTestService) List(ctx context.Context, projectID, userID string, page, pageSize int, filters map[string]string) ([]entity.CubeTest, int64, error) {
	if _, _, err := s.access.requireRole(ctx, projectID, userID, entity.RoleWatchman); err != nil {
		return nil, 0, err
	}
	return s.repos.CubeTest.FindAll(ctx, projectID, page, pageSize, filters)
}

func (s *CubeTestService) getScoped(ctx context.Context, projectID, testID string) (*entity.CubeTest, error) {
	test, err := s.repos.CubeTest.FindByID(ctx, testID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.NotFound, "cube test not found")
		}
		return nil, err
	}
	if test.ProjectID != projectID {
		return nil, apperr.New(apperr.NotFound, "cube test not found")
	}
	return test, nil
}
