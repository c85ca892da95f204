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

// NCService owns the non-conformance lifecycle: raising, the resolution
// workflow, transfers, and the scoring aggregates.
type NCService struct {
	db       *gorm.DB
	repos    *repository.Repositories
	access   *accessControl
	notifier Notifier
	logger   *zap.Logger
}

func NewNCService(db *gorm.DB, repos *repository.Repositories, access *accessControl, notifier Notifier, logger *zap.Logger) *NCService {
	return &NCService{db: db, repos: repos, access: access, notifier: notifier, logger: logger}
}

// RaiseNCRequest opens a new non-conformance against a contractor.
type RaiseNCRequest struct {
	ProjectID         string          `json:"project_id" binding:"required"`
	Title             string          `json:"title" binding:"required"`
	Description       string          `json:"description"`
	Severity          string          `json:"severity" binding:"required"`
	ContractorID      string          `json:"contractor_id" binding:"required"`
	OversightEngineer *string         `json:"oversight_engineer"`
	DeadlineDays      int             `json:"deadline_days"`
	Tags              []string        `json:"tags"`
	PhotoKeys         []string        `json:"photo_keys"`
	Location          entity.Location `json:"location"`
}

// Raise opens an NC. The severity score and scoring period are frozen at
// creation; later transfers never change them.
func (s *NCService) Raise(ctx context.Context, userID string, req *RaiseNCRequest) (*entity.NonConformance, error) {
	project, _, err := s.access.requireRole(ctx, req.ProjectID, userID, entity.RoleQualityEngineer)
	if err != nil {
		return nil, err
	}
	if !entity.ValidSeverity(req.Severity) {
		return nil, apperr.New(apperr.InvalidArgument, "severity must be HIGH, MODERATE or LOW")
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, apperr.New(apperr.InvalidArgument, "title is required")
	}

	contractor, err := s.repos.Vendor.FindByID(ctx, req.ContractorID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.NotFound, "contractor not found")
		}
		return nil, err
	}
	if contractor.ProjectID != req.ProjectID {
		return nil, apperr.New(apperr.NotFound, "contractor not found")
	}

	deadlineDays := req.DeadlineDays
	if deadlineDays <= 0 {
		deadlineDays = 7
	}

	now := time.Now()
	nc := &entity.NonConformance{
		ProjectID:         req.ProjectID,
		Title:             strings.TrimSpace(req.Title),
		Description:       req.Description,
		Severity:          req.Severity,
		SeverityScore:     entity.SeverityWeight(req.Severity),
		Tags:              req.Tags,
		PhotoKeys:         req.PhotoKeys,
		Location:          req.Location,
		RaisedBy:          userID,
		RaisedAt:          now,
		ContractorID:      req.ContractorID,
		OversightEngineer: req.OversightEngineer,
		Status:            entity.NCStatusRaised,
		DeadlineDate:      now.AddDate(0, 0, deadlineDays),
	}
	nc.StampScorePeriod()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		number, err := s.repos.NC.GenerateNumberTx(ctx, tx, project.ID, project.Code, now.Year())
		if err != nil {
			return err
		}
		nc.NCNumber = number
		if err := s.repos.NC.CreateTx(ctx, tx, nc); err != nil {
			return err
		}
		return s.repos.Audit.LogTx(ctx, tx, &entity.AuditEntry{
			ProjectID:   nc.ProjectID,
			EntityType:  entity.AuditEntityNC,
			EntityID:    nc.ID,
			Action:      "raised",
			NewState:    entity.NCStatusRaised,
			Detail:      entity.JSONB{"nc_number": nc.NCNumber, "severity": nc.Severity},
			ActorUserID: userID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifyParties(ctx, nc, entity.EventNCRaised, userID,
		fmt.Sprintf("NC %s raised", nc.NCNumber),
		fmt.Sprintf("%s (%s severity). Deadline: %s.", nc.Title, nc.Severity, nc.DeadlineDate.Format("02 Jan 2006")))
	return nc, nil
}

// RaiseFromCubeTestTx opens a HIGH severity NC for a failed cube test inside
// the caller's transaction, so the test result and the NC commit together.
// The caller dispatches the returned event after commit.
func (s *NCService) RaiseFromCubeTestTx(ctx context.Context, tx *gorm.DB, project *entity.Project, test *entity.CubeTest, contractorID, userID string) (*entity.NonConformance, notify.Event, error) {
	now := time.Now()
	nc := &entity.NonConformance{
		ProjectID:     project.ID,
		Title:         fmt.Sprintf("Cube test failure at %d days", test.TestAgeDays),
		Description: fmt.Sprintf("Cube set %d cast on %s failed IS 516 acceptance: average %.2f MPa against required %.2f MPa.",
			test.SetNumber, test.CastingDate.Format("02 Jan 2006"), deref(test.AverageStrengthMPa), test.RequiredStrengthMPa),
		Severity:         entity.SeverityHigh,
		SeverityScore:    entity.SeverityWeight(entity.SeverityHigh),
		Tags:             []string{"Concrete", "Strength"},
		RaisedBy:         userID,
		RaisedAt:         now,
		ContractorID:     contractorID,
		Status:           entity.NCStatusRaised,
		DeadlineDate:     now.AddDate(0, 0, 7),
		SourceCubeTestID: &test.ID,
	}
	nc.StampScorePeriod()

	number, err := s.repos.NC.GenerateNumberTx(ctx, tx, project.ID, project.Code, now.Year())
	if err != nil {
		return nil, notify.Event{}, err
	}
	nc.NCNumber = number
	if err := s.repos.NC.CreateTx(ctx, tx, nc); err != nil {
		return nil, notify.Event{}, err
	}
	if err := s.repos.Audit.LogTx(ctx, tx, &entity.AuditEntry{
		ProjectID:   nc.ProjectID,
		EntityType:  entity.AuditEntityNC,
		EntityID:    nc.ID,
		Action:      "auto_raised",
		NewState:    entity.NCStatusRaised,
		Detail:      entity.JSONB{"nc_number": nc.NCNumber, "source_cube_test_id": test.ID},
		ActorUserID: userID,
	}); err != nil {
		return nil, notify.Event{}, err
	}

	event := notify.Event{
		Type:       entity.EventNCRaised,
		ProjectID:  nc.ProjectID,
		EntityID:   nc.ID,
		NCID:       nc.ID,
		CubeTestID: test.ID,
		Subject:    fmt.Sprintf("NC %s auto-raised for cube test failure", nc.NCNumber),
		Body:       nc.Description,
		Recipients: s.partyRecipients(ctx, nc, userID),
	}
	return nc, event, nil
}

// Acknowledge: raised -> acknowledged, by the contractor.
func (s *NCService) Acknowledge(ctx context.Context, projectID, ncID, userID string) (*entity.NonConformance, error) {
	return s.transition(ctx, projectID, ncID, userID, transitionSpec{
		action:     "acknowledged",
		target:     entity.NCStatusAcknowledged,
		from:       []string{entity.NCStatusRaised},
		contractor: true,
		event:      entity.EventNCAcknowledged,
		apply:      func(nc *entity.NonConformance) error { return nil },
	})
}

// RespondRequest carries the contractor's plan.
type RespondRequest struct {
	Response         string     `json:"response" binding:"required"`
	ProposedDeadline *time.Time `json:"proposed_deadline"`
}

// Respond: raised or acknowledged -> in_progress, by the contractor, with a
// response note and optionally a proposed deadline. Responding straight from
// raised implies acknowledgement.
func (s *NCService) Respond(ctx context.Context, projectID, ncID, userID string, req *RespondRequest) (*entity.NonConformance, error) {
	if strings.TrimSpace(req.Response) == "" {
		return nil, apperr.New(apperr.InvalidArgument, "response is required")
	}
	return s.transition(ctx, projectID, ncID, userID, transitionSpec{
		action:     "responded",
		target:     entity.NCStatusInProgress,
		from:       []string{entity.NCStatusRaised, entity.NCStatusAcknowledged},
		contractor: true,
		event:      entity.EventNCResponded,
		apply: func(nc *entity.NonConformance) error {
			nc.ContractorResponse = strings.TrimSpace(req.Response)
			nc.ProposedDeadline = req.ProposedDeadline
			return nil
		},
	})
}

// ResolveRequest carries the contractor's completion evidence.
type ResolveRequest struct {
	PhotoKeys []string `json:"photo_keys"`
	Notes     string   `json:"notes"`
}

// Resolve: in_progress -> resolved, by the contractor. Photo evidence of the
// completed fix is mandatory.
func (s *NCService) Resolve(ctx context.Context, projectID, ncID, userID string, req *ResolveRequest) (*entity.NonConformance, error) {
	if len(req.PhotoKeys) == 0 {
		return nil, apperr.New(apperr.InvalidArgument, "resolution photos are required")
	}
	return s.transition(ctx, projectID, ncID, userID, transitionSpec{
		action:     "resolved",
		target:     entity.NCStatusResolved,
		from:       []string{entity.NCStatusInProgress},
		contractor: true,
		event:      entity.EventNCResolved,
		apply: func(nc *entity.NonConformance) error {
			nc.ResolutionPhotoKeys = req.PhotoKeys
			if req.Notes != "" {
				nc.ContractorResponse = req.Notes
			}
			return nil
		},
	})
}

// VerifyNCRequest carries the engineer's inspection outcome.
type VerifyNCRequest struct {
	Notes string `json:"notes"`
}

// Verify: resolved -> verified. Only the raiser or the oversight engineer can
// attest the fix; other engineers on the project cannot.
func (s *NCService) Verify(ctx context.Context, projectID, ncID, userID string, req *VerifyNCRequest) (*entity.NonConformance, error) {
	return s.transition(ctx, projectID, ncID, userID, transitionSpec{
		action:  "verified",
		target:  entity.NCStatusVerified,
		from:    []string{entity.NCStatusResolved},
		minRole: entity.RoleQualityEngineer,
		event:   entity.EventNCVerified,
		guard: func(nc *entity.NonConformance, actor string) error {
			if actor == nc.RaisedBy {
				return nil
			}
			if nc.OversightEngineer != nil && *nc.OversightEngineer == actor {
				return nil
			}
			return apperr.New(apperr.PermissionDenied, "only the raiser or oversight engineer can verify")
		},
		apply: func(nc *entity.NonConformance) error {
			nc.VerificationNotes = req.Notes
			return nil
		},
	})
}

// Close: verified -> closed, by a quality manager or above. Stamps closed_at
// and the actual resolution time in whole days.
func (s *NCService) Close(ctx context.Context, projectID, ncID, userID string) (*entity.NonConformance, error) {
	return s.transition(ctx, projectID, ncID, userID, transitionSpec{
		action:  "closed",
		target:  entity.NCStatusClosed,
		from:    []string{entity.NCStatusVerified},
		minRole: entity.RoleQualityManager,
		event:   entity.EventNCClosed,
		apply: func(nc *entity.NonConformance) error {
			now := time.Now()
			nc.ClosedAt = &now
			days := int(now.Sub(nc.RaisedAt).Hours() / 24)
			nc.ActualResolutionDays = &days
			return nil
		},
	})
}

// RejectNCRequest voids an NC that should never have been raised.
type RejectNCRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Reject voids the NC before work starts: only raised or acknowledged NCs can
// be rejected. A rejected NC carries no severity points. Quality manager or
// above.
func (s *NCService) Reject(ctx context.Context, projectID, ncID, userID string, req *RejectNCRequest) (*entity.NonConformance, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, apperr.New(apperr.InvalidArgument, "reason is required")
	}
	return s.transition(ctx, projectID, ncID, userID, transitionSpec{
		action:  "rejected",
		target:  entity.NCStatusRejected,
		from:    []string{entity.NCStatusRaised, entity.NCStatusAcknowledged},
		minRole: entity.RoleQualityManager,
		event:   entity.EventNCRejected,
		apply: func(nc *entity.NonConformance) error {
			nc.RejectionReason = strings.TrimSpace(req.Reason)
			return nil
		},
	})
}

// TransferRequest reassigns an NC to another contractor.
type TransferRequest struct {
	ToContractorID string `json:"to_contractor_id" binding:"required"`
	Reason         string `json:"reason"`
}

// Transfer reassigns the NC and resets it to raised for the new contractor.
// The NC's raiser or a quality manager can transfer; raised_at and the frozen
// scoring period are kept and the move is recorded in the append-only
// transfer history.
func (s *NCService) Transfer(ctx context.Context, projectID, ncID, userID string, req *TransferRequest) (*entity.NonConformance, error) {
	_, role, err := s.access.requireRole(ctx, projectID, userID, entity.RoleWatchman)
	if err != nil {
		return nil, err
	}

	to, err := s.repos.Vendor.FindByID(ctx, req.ToContractorID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.NotFound, "target contractor not found")
		}
		return nil, err
	}
	if to.ProjectID != projectID {
		return nil, apperr.New(apperr.NotFound, "target contractor not found")
	}

	var nc *entity.NonConformance
	err = s.db.Transaction(func(tx *gorm.DB) error {
		nc, err = s.lockScopedTx(ctx, tx, projectID, ncID)
		if err != nil {
			return err
		}
		if userID != nc.RaisedBy && !entity.RoleAtLeast(role, entity.RoleQualityManager) {
			return apperr.New(apperr.PermissionDenied, "only the raiser or a quality manager can transfer an NC")
		}
		if nc.TerminalStatus() {
			return apperr.Newf(apperr.FailedPrecondition, "NC is %s", nc.Status)
		}
		if nc.ContractorID == req.ToContractorID {
			return apperr.New(apperr.Conflict, "NC is already assigned to this contractor")
		}

		from := nc.ContractorID
		prev := nc.Status
		nc.ContractorID = req.ToContractorID
		nc.Status = entity.NCStatusRaised
		nc.ContractorResponse = ""
		nc.ProposedDeadline = nil

		if err := s.repos.NC.AppendTransferTx(ctx, tx, &entity.NCTransfer{
			NCID:             nc.ID,
			FromContractorID: from,
			ToContractorID:   req.ToContractorID,
			TransferredBy:    userID,
			TransferredAt:    time.Now(),
			Reason:           req.Reason,
		}); err != nil {
			return err
		}
		if err := s.repos.NC.UpdateTx(ctx, tx, nc); err != nil {
			return err
		}
		return s.repos.Audit.LogTx(ctx, tx, &entity.AuditEntry{
			ProjectID:     projectID,
			EntityType:    entity.AuditEntityNC,
			EntityID:      nc.ID,
			Action:        "transferred",
			PreviousState: prev,
			NewState:      entity.NCStatusRaised,
			Detail:        entity.JSONB{"from_contractor_id": from, "to_contractor_id": req.ToContractorID, "reason": req.Reason},
			ActorUserID:   userID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifyParties(ctx, nc, entity.EventNCTransferred, userID,
		fmt.Sprintf("NC %s transferred", nc.NCNumber),
		fmt.Sprintf("%s has been reassigned to %s. %s", nc.NCNumber, to.Name, req.Reason))
	return nc, nil
}

// Get returns one NC with transfer history.
func (s *NCService) Get(ctx context.Context, projectID, ncID, userID string) (*entity.NonConformance, error) {
	if _, _, err := s.access.requireRole(ctx, projectID, userID, entity.RoleWatchman); err != nil {
		return nil, err
	}
	nc, err := s.repos.NC.FindByID(ctx, ncID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.NotFound, "non-conformance not found")
		}
		return nil, err
	}
	if nc.ProjectID != projectID {
		return nil, apperr.New(apperr.NotFound, "non-conformance not found")
	}
	return nc, nil
}

// List returns a project's NCs newest first.
func (s *NCService) List(ctx context.Context, projectID, userID string, page, pageSize int, filters map[string]string) ([]entity.NonConformance, int64, error) {
	if _, _, err := s.access.requireRole(ctx, projectID, userID, entity.RoleWatchman); err != nil {
		return nil, 0, err
	}
	return s.repos.NC.FindAll(ctx, projectID, page, pageSize, filters)
}

// Dashboard is the live NC summary for one project.
type Dashboard struct {
	ByStatus          map[string]int64 `json:"by_status"`
	BySeverity        map[string]int64 `json:"by_severity"`
	OpenBySeverity    map[string]int64 `json:"open_by_severity"`
	Total             int64            `json:"total"`
	Open              int64            `json:"open"`
	Closed            int64            `json:"closed"`
	Overdue           int64            `json:"overdue"`
	AvgResolutionDays float64          `json:"avg_resolution_days"`
}

// GetDashboard computes the summary live from the NC table.
func (s *NCService) GetDashboard(ctx context.Context, projectID, userID string) (*Dashboard, error) {
	if _, _, err := s.access.requireRole(ctx, projectID, userID, entity.RoleWatchman); err != nil {
		return nil, err
	}

	byStatus, err := s.repos.NC.CountByStatus(ctx, projectID)
	if err != nil {
		return nil, err
	}
	bySeverity, err := s.repos.NC.CountBySeverity(ctx, projectID, false)
	if err != nil {
		return nil, err
	}
	openBySeverity, err := s.repos.NC.CountBySeverity(ctx, projectID, true)
	if err != nil {
		return nil, err
	}
	overdue, err := s.repos.NC.CountOverdue(ctx, projectID)
	if err != nil {
		return nil, err
	}
	avgDays, err := s.repos.NC.AvgResolutionDays(ctx, projectID)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		ByStatus:          make(map[string]int64),
		BySeverity:        make(map[string]int64),
		OpenBySeverity:    make(map[string]int64),
		Overdue:           overdue,
		AvgResolutionDays: avgDays,
	}
	for _, row := range byStatus {
		d.ByStatus[row.Key] = row.Count
		d.Total += row.Count
		switch row.Key {
		case entity.NCStatusClosed:
			d.Closed += row.Count
		case entity.NCStatusRejected:
			// rejected is terminal but neither open nor closed work
		default:
			d.Open += row.Count
		}
	}
	for _, row := range bySeverity {
		d.BySeverity[row.Key] = row.Count
	}
	for _, row := range openBySeverity {
		d.OpenBySeverity[row.Key] = row.Count
	}
	return d, nil
}

// ContractorScoreResult is the severity-weighted period score.
type ContractorScoreResult struct {
	ContractorID string  `json:"contractor_id"`
	Year         int     `json:"year"`
	Month        *int    `json:"month,omitempty"`
	Week         *int    `json:"week,omitempty"`
	ClosedPoints float64 `json:"closed_points"`
	TotalPoints  float64 `json:"total_points"`
	Score        float64 `json:"score"`
	Grade        string  `json:"grade"`
}

// ContractorScore computes the score out of 10 for a contractor period.
// Month and week are mutually exclusive filters; neither means whole year.
func (s *NCService) ContractorScore(ctx context.Context, projectID, contractorID, userID string, year int, month, week *int) (*ContractorScoreResult, error) {
	if _, _, err := s.access.requireRole(ctx, projectID, userID, entity.RoleWatchman); err != nil {
		return nil, err
	}
	if month != nil && week != nil {
		return nil, apperr.New(apperr.InvalidArgument, "month and week filters are mutually exclusive")
	}

	closed, total, err := s.repos.NC.SeverityPoints(ctx, projectID, contractorID, year, month, week)
	if err != nil {
		return nil, err
	}
	score := entity.ContractorScore(closed, total)
	return &ContractorScoreResult{
		ContractorID: contractorID,
		Year:         year,
		Month:        month,
		Week:         week,
		ClosedPoints: closed,
		TotalPoints:  total,
		Score:        score,
		Grade:        entity.ScoreGrade(score),
	}, nil
}

// transitionSpec drives one state change through the shared machinery.
type transitionSpec struct {
	action     string
	target     string
	from       []string
	minRole    string // engineer-side transitions
	contractor bool   // contractor-side transitions
	event      string
	guard      func(nc *entity.NonConformance, actor string) error // extra per-NC actor check
	apply      func(nc *entity.NonConformance) error
}

// transition runs one status change under a row lock. Re-applying a
// transition that already happened is an idempotent no-op; a terminal NC is
// FailedPrecondition; anything else off the table is Conflict.
func (s *NCService) transition(ctx context.Context, projectID, ncID, userID string, spec transitionSpec) (*entity.NonConformance, error) {
	if spec.minRole != "" {
		if _, _, err := s.access.requireRole(ctx, projectID, userID, spec.minRole); err != nil {
			return nil, err
		}
	} else if _, err := s.access.requireProject(ctx, projectID); err != nil {
		return nil, err
	}

	var nc *entity.NonConformance
	var noop bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		nc, err = s.lockScopedTx(ctx, tx, projectID, ncID)
		if err != nil {
			return err
		}
		if spec.contractor {
			if err := s.requireContractorActor(ctx, nc, userID); err != nil {
				return err
			}
		}
		if spec.guard != nil {
			if err := spec.guard(nc, userID); err != nil {
				return err
			}
		}

		if nc.Status == spec.target {
			noop = true
			return nil
		}
		if nc.TerminalStatus() {
			return apperr.Newf(apperr.FailedPrecondition, "NC is %s", nc.Status)
		}
		allowed := false
		for _, f := range spec.from {
			if nc.Status == f {
				allowed = true
				break
			}
		}
		if !allowed {
			return apperr.Newf(apperr.Conflict, "cannot move NC from %s to %s", nc.Status, spec.target)
		}

		prev := nc.Status
		nc.Status = spec.target
		if err := spec.apply(nc); err != nil {
			return err
		}
		if err := s.repos.NC.UpdateTx(ctx, tx, nc); err != nil {
			return err
		}
		return s.repos.Audit.LogTx(ctx, tx, &entity.AuditEntry{
			ProjectID:     projectID,
			EntityType:    entity.AuditEntityNC,
			EntityID:      nc.ID,
			Action:        spec.action,
			PreviousState: prev,
			NewState:      spec.target,
			ActorUserID:   userID,
		})
	})
	if err != nil {
		return nil, err
	}

	if !noop {
		s.notifyParties(ctx, nc, spec.event, userID,
			fmt.Sprintf("NC %s %s", nc.NCNumber, spec.action),
			fmt.Sprintf("%s is now %s.", nc.Title, nc.Status))
	}
	return nc, nil
}

// requireContractorActor allows the contractor's linked account or a quality
// engineer acting on the contractor's behalf.
func (s *NCService) requireContractorActor(ctx context.Context, nc *entity.NonConformance, userID string) error {
	vendor, err := s.repos.Vendor.FindByID(ctx, nc.ContractorID)
	if err == nil && vendor.UserID != nil && *vendor.UserID == userID {
		return nil
	}
	role, err := s.repos.Membership.RoleIn(ctx, nc.ProjectID, userID)
	if err == nil && entity.RoleAtLeast(role, entity.RoleQualityEngineer) {
		return nil
	}
	return apperr.New(apperr.PermissionDenied, "only the assigned contractor can perform this action")
}

func (s *NCService) lockScopedTx(ctx context.Context, tx *gorm.DB, projectID, ncID string) (*entity.NonConformance, error) {
	nc, err := s.repos.NC.FindByIDForUpdateTx(ctx, tx, ncID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.NotFound, "non-conformance not found")
		}
		return nil, err
	}
	if nc.ProjectID != projectID {
		return nil, apperr.New(apperr.NotFound, "non-conformance not found")
	}
	return nc, nil
}

// partyRecipients collects the NC's interested users: raiser, oversight
// engineer, and the contractor's linked account. The actor is excluded.
func (s *NCService) partyRecipients(ctx context.Context, nc *entity.NonConformance, actorID string) []string {
	seen := map[string]bool{actorID: true}
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	add(nc.RaisedBy)
	if nc.OversightEngineer != nil {
		add(*nc.OversightEngineer)
	}
	if vendor, err := s.repos.Vendor.FindByID(ctx, nc.ContractorID); err == nil && vendor.UserID != nil {
		add(*vendor.UserID)
	}
	return out
}

func (s *NCService) notifyParties(ctx context.Context, nc *entity.NonConformance, eventType, actorID, subject, body string) {
	recipients := s.partyRecipients(ctx, nc, actorID)
	if len(recipients) == 0 {
		return
	}
	s.notifier.Dispatch(ctx, notify.Event{
		Type:       eventType,
		ProjectID:  nc.ProjectID,
		EntityID:   nc.ID,
		NCID:       nc.ID,
		Subject:    subject,
		Body:       body,
		Recipients: recipients,
	})
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
