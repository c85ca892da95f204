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

// BatchService materializes gate vehicles into concrete batches and runs the
// verification workflow.
type BatchService struct {
	db       *gorm.DB
	repos    *repository.Repositories
	access   *accessControl
	notifier Notifier
	logger   *zap.Logger
}

func NewBatchService(db *gorm.DB, repos *repository.Repositories, access *accessControl, notifier Notifier, logger *zap.Logger) *BatchService {
	return &BatchService{db: db, repos: repos, access: access, notifier: notifier, logger: logger}
}

// BulkCreateRequest turns a set of unlinked RMC vehicles into batches in one
// shot. Vendor and grade resolve to existing records or auto-created stubs.
type BulkCreateRequest struct {
	ProjectID      string   `json:"project_id" binding:"required"`
	VehicleIDs     []string `json:"vehicle_ids" binding:"required"`
	VendorName     string   `json:"vendor_name" binding:"required"`
	Grade          string   `json:"grade" binding:"required"`
	TotalQuantity  float64  `json:"total_quantity"`
	PourActivityID *string  `json:"pour_activity_id"`
	Location       entity.Location `json:"location"`
	SlumpMM        *float64 `json:"slump_mm"`
	TemperatureC   *float64 `json:"temperature_c"`
	Remarks        string   `json:"remarks"`
}

// CreateFromVehicles is the bulk materializer. All-or-nothing: any vehicle
// that is missing, foreign, non-RMC, or already linked fails the whole call
// with the offending vehicles named. Vehicles are locked for the duration of
// the transaction so two concurrent calls cannot double-consume one.
func (s *BatchService) CreateFromVehicles(ctx context.Context, userID string, req *BulkCreateRequest) ([]entity.Batch, error) {
	project, _, err := s.access.requireRole(ctx, req.ProjectID, userID, entity.RoleQualityEngineer)
	if err != nil {
		return nil, err
	}
	if project.Status != entity.ProjectStatusActive {
		return nil, apperr.New(apperr.InvalidArgument, "project is not active")
	}
	if len(req.VehicleIDs) == 0 {
		return nil, apperr.New(apperr.InvalidArgument, "vehicle_ids must not be empty")
	}
	if strings.TrimSpace(req.VendorName) == "" {
		return nil, apperr.New(apperr.InvalidArgument, "vendor_name is required")
	}
	if strings.TrimSpace(req.Grade) == "" {
		return nil, apperr.New(apperr.InvalidArgument, "grade is required")
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
		if pour.Status != entity.PourStatusInProgress {
			return nil, apperr.New(apperr.Conflict, "pour is not in progress")
		}
	}

	var batches []entity.Batch
	err = s.db.Transaction(func(tx *gorm.DB) error {
		vehicles, err := s.repos.Vehicle.FindByIDsTx(ctx, tx, req.VehicleIDs)
		if err != nil {
			return err
		}

		byID := make(map[string]*entity.VehicleEntry, len(vehicles))
		for i := range vehicles {
			byID[vehicles[i].ID] = &vehicles[i]
		}

		var bad []string
		ordered := make([]*entity.VehicleEntry, 0, len(req.VehicleIDs))
		for _, id := range req.VehicleIDs {
			v, ok := byID[id]
			switch {
			case !ok, v != nil && v.ProjectID != req.ProjectID:
				bad = append(bad, id)
			case !entity.IsRMCMaterial(v.MaterialType):
				bad = append(bad, v.VehicleNumber+" (not RMC)")
			case v.IsLinkedToBatch:
				bad = append(bad, v.VehicleNumber+" (already batched)")
			default:
				ordered = append(ordered, v)
			}
		}
		if len(bad) > 0 {
			return apperr.New(apperr.Conflict, "vehicles cannot be batched: "+strings.Join(bad, ", ")).
				WithDetails(map[string]interface{}{"vehicles": bad})
		}

		vendor, err := s.resolveVendorTx(ctx, tx, req.ProjectID, req.VendorName, userID)
		if err != nil {
			return err
		}
		mix, err := s.resolveMixTx(ctx, tx, req.ProjectID, req.Grade, vendor.ID, userID)
		if err != nil {
			return err
		}

		// Quantity split: even over the set, or 1.0 per vehicle when no
		// total was captured at the gate.
		perVehicle := 1.0
		if req.TotalQuantity > 0 {
			perVehicle = req.TotalQuantity / float64(len(ordered))
		}

		now := time.Now()
		numbers, err := s.repos.Batch.GenerateNumbersTx(ctx, tx, req.ProjectID, now.Year(), len(ordered))
		if err != nil {
			return err
		}

		for i, v := range ordered {
			batch := entity.Batch{
				ProjectID:        req.ProjectID,
				BatchNumber:      numbers[i],
				PourActivityID:   req.PourActivityID,
				MixDesignID:      mix.ID,
				VendorID:         vendor.ID,
				VehicleEntryID:   &v.ID,
				VehicleNumber:    v.VehicleNumber,
				DeliveryTime:     v.EntryTime,
				QuantityOrdered:  perVehicle,
				QuantityReceived: perVehicle,
				SlumpMM:          req.SlumpMM,
				TemperatureC:     req.TemperatureC,
				Remarks:          req.Remarks,
				Location:         req.Location,
				VerificationStatus: entity.BatchVerificationPending,
				CreatedBy:        userID,
			}
			if err := s.repos.Batch.CreateTx(ctx, tx, &batch); err != nil {
				return err
			}
			if err := s.repos.Vehicle.LinkToBatchTx(ctx, tx, v.ID, batch.ID); err != nil {
				return err
			}
			if err := s.repos.Audit.LogTx(ctx, tx, &entity.AuditEntry{
				ProjectID:   req.ProjectID,
				EntityType:  entity.AuditEntityBatch,
				EntityID:    batch.ID,
				Action:      "created_from_vehicle",
				NewState:    entity.BatchVerificationPending,
				Detail:      entity.JSONB{"vehicle_entry_id": v.ID, "batch_number": batch.BatchNumber},
				ActorUserID: userID,
			}); err != nil {
				return err
			}
			batches = append(batches, batch)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batches, nil
}

// resolveVendorTx finds the vendor by name or creates a stub with sentinel
// contact fields.
func (s *BatchService) resolveVendorTx(ctx context.Context, tx *gorm.DB, projectID, name, userID string) (*entity.Vendor, error) {
	vendor, err := s.repos.Vendor.FindByProjectAndNameTx(ctx, tx, projectID, name)
	if err == nil {
		return vendor, nil
	}
	if err != repository.ErrNotFound {
		return nil, err
	}
	vendor = &entity.Vendor{
		ProjectID:    projectID,
		Name:         strings.TrimSpace(name),
		ContactName:  entity.StubContactName,
		ContactPhone: entity.StubContactPhone,
		AutoCreated:  true,
		CreatedBy:    userID,
	}
	if err := s.repos.Vendor.CreateTx(ctx, tx, vendor); err != nil {
		return nil, err
	}
	return vendor, nil
}

// resolveMixTx finds the mix design by grade or creates a stub with the
// strength derived from the grade designation.
func (s *BatchService) resolveMixTx(ctx context.Context, tx *gorm.DB, projectID, grade, vendorID, userID string) (*entity.MixDesign, error) {
	mix, err := s.repos.MixDesign.FindByProjectAndGradeTx(ctx, tx, projectID, grade)
	if err == nil {
		return mix, nil
	}
	if err != repository.ErrNotFound {
		return nil, err
	}
	mpa, freeFlow, parseErr := entity.ParseGradeStrength(grade)
	if parseErr != nil {
		return nil, apperr.Newf(apperr.InvalidArgument, "unknown grade %q and no mix design on record", grade)
	}
	mix = &entity.MixDesign{
		ProjectID:            projectID,
		VendorID:             &vendorID,
		Grade:                strings.ToUpper(strings.TrimSpace(grade)),
		SpecifiedStrengthMPa: mpa,
		SpecifiedStrengthPsi: entity.PsiFromMPa(mpa),
		IsFreeFlow:           freeFlow,
		AutoCreated:          true,
		CreatedBy:            userID,
	}
	if err := s.repos.MixDesign.CreateTx(ctx, tx, mix); err != nil {
		return nil, err
	}
	return mix, nil
}

// VerifyRequest approves or rejects a pending batch.
type VerifyRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

// Verify moves a pending batch to approved or rejected. A rejection requires
// a reason and notifies the engineer who created the batch.
func (s *BatchService) Verify(ctx context.Context, projectID, batchID, userID string, req *VerifyRequest) (*entity.Batch, error) {
	if _, _, err := s.access.requireRole(ctx, projectID, userID, entity.RoleQualityManager); err != nil {
		return nil, err
	}
	batch, err := s.getScoped(ctx, projectID, batchID)
	if err != nil {
		return nil, err
	}
	if batch.VerificationStatus != entity.BatchVerificationPending {
		return nil, apperr.Newf(apperr.Conflict, "batch is already %s", batch.VerificationStatus)
	}
	if !req.Approve && strings.TrimSpace(req.Reason) == "" {
		return nil, apperr.New(apperr.InvalidArgument, "rejection requires a reason")
	}

	now := time.Now()
	prev := batch.VerificationStatus
	if req.Approve {
		batch.VerificationStatus = entity.BatchVerificationApproved
	} else {
		batch.VerificationStatus = entity.BatchVerificationRejected
		batch.RejectionReason = strings.TrimSpace(req.Reason)
	}
	batch.VerifiedBy = &userID
	batch.VerifiedAt = &now

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Save(batch).Error; err != nil {
			return err
		}
		return s.repos.Audit.LogTx(ctx, tx, &entity.AuditEntry{
			ProjectID:     projectID,
			EntityType:    entity.AuditEntityBatch,
			EntityID:      batch.ID,
			Action:        "verified",
			PreviousState: prev,
			NewState:      batch.VerificationStatus,
			Detail:        entity.JSONB{"reason": batch.RejectionReason},
			ActorUserID:   userID,
		})
	})
	if err != nil {
		return nil, err
	}

	if !req.Approve {
		// The engineer who logged the batch and the vendor's linked account
		// both hear about the rejection.
		var recipients []string
		if batch.CreatedBy != "" {
			recipients = append(recipients, batch.CreatedBy)
		}
		if vendor, verr := s.repos.Vendor.FindByID(ctx, batch.VendorID); verr == nil &&
			vendor.UserID != nil && *vendor.UserID != batch.CreatedBy {
			recipients = append(recipients, *vendor.UserID)
		}
		if len(recipients) > 0 {
			s.notifier.Dispatch(ctx, notify.Event{
				Type:      entity.EventBatchRejected,
				ProjectID: projectID,
				EntityID:  batch.ID,
				Subject:   fmt.Sprintf("Batch %s rejected", batch.BatchNumber),
				Body: fmt.Sprintf("Batch %s was rejected during verification: %s",
					batch.BatchNumber, batch.RejectionReason),
				Recipients: recipients,
			})
		}
	}
	return batch, nil
}

// SoftDelete removes a batch. Project admin only. The linked vehicle returns
// to the unlinked pool and planned cube tests on the batch are cancelled, all
// in one transaction.
func (s *BatchService) SoftDelete(ctx context.Context, projectID, batchID, userID string) error {
	if _, _, err := s.access.requireRole(ctx, projectID, userID, entity.RoleProjectAdmin); err != nil {
		return err
	}
	batch, err := s.getScoped(ctx, projectID, batchID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repos.Vehicle.UnlinkBatchTx(ctx, tx, batch.ID); err != nil {
			return err
		}
		if err := s.repos.CubeTest.CancelPlannedByBatchTx(ctx, tx, batch.ID); err != nil {
			return err
		}
		if err := s.repos.Batch.SoftDeleteTx(ctx, tx, batch.ID); err != nil {
			return err
		}
		return s.repos.Audit.LogTx(ctx, tx, &entity.AuditEntry{
			ProjectID:     projectID,
			EntityType:    entity.AuditEntityBatch,
			EntityID:      batch.ID,
			Action:        "deleted",
			PreviousState: batch.VerificationStatus,
			Detail:        entity.JSONB{"batch_number": batch.BatchNumber},
			ActorUserID:   userID,
		})
	})
}

// Get returns one batch with vendor and mix design preloaded.
func (s *BatchService) Get(ctx context.Context, projectID, batchID, userID string) (*entity.Batch, error) {
	if _, _, err := s.access.requireRole(ctx, projectID, userID, entity.RoleWatchman); err != nil {
		return nil, err
	}
	return s.getScoped(ctx, projectID, batchID)
}

// List returns a project's batches newest first.
func (s *BatchService) List(ctx context.Context, projectID, userID string, page, pageSize int, filters map[string]string) ([]entity.Batch, int64, error) {
	if _, _, err := s.access.requireRole(ctx, projectID, userID, entity.RoleWatchman); err != nil {
		return nil, 0, err
	}
	return s.repos.Batch.FindAll(ctx, projectID, page, pageSize, filters)
}

func (s *BatchService) getScoped(ctx context.Context, projectID, batchID string) (*entity.Batch, error) {
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
	return batch, nil
}
