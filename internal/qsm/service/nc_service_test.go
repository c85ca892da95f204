package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/omi1811/concretethings-sub000/internal/qsm/apperr"
	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
	"github.com/omi1811/concretethings-sub000/internal/qsm/testutil"
)

func TestRaiseNC(t *testing.T) {
	db, svc, rec := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)
	testutil.SeedVendor(t, db, "vend1", "proj1", "Sharma Constructions")

	nc, err := svc.NC.Raise(ctx, "qe1", &RaiseNCRequest{
		ProjectID:    "proj1",
		Title:        "Honeycombing in column C4",
		Severity:     entity.SeverityHigh,
		ContractorID: "vend1",
	})
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	year := time.Now().Year()
	if want := fmt.Sprintf("NC-TWR-A-%d-0001", year); nc.NCNumber != want {
		t.Errorf("NCNumber = %s, want %s", nc.NCNumber, want)
	}
	if nc.SeverityScore != 1.0 {
		t.Errorf("SeverityScore = %v, want 1.0", nc.SeverityScore)
	}
	if nc.Status != entity.NCStatusRaised {
		t.Errorf("Status = %s, want raised", nc.Status)
	}
	if nc.ScoreYear == 0 || nc.ScoreWeek == 0 {
		t.Errorf("score period not stamped: %d/w%d", nc.ScoreYear, nc.ScoreWeek)
	}
	// Default deadline is 7 days out.
	if d := int(time.Until(nc.DeadlineDate).Hours() / 24); d < 6 || d > 7 {
		t.Errorf("deadline %v is not ~7 days out", nc.DeadlineDate)
	}
	if len(rec.byType(entity.EventNCRaised)) != 0 {
		// Raiser is the actor and the vendor has no linked user, so there
		// is no one left to notify.
		t.Errorf("unexpected nc_raised events: %v", rec.byType(entity.EventNCRaised))
	}

	nc2, err := svc.NC.Raise(ctx, "qe1", &RaiseNCRequest{
		ProjectID:    "proj1",
		Title:        "Exposed rebar",
		Severity:     entity.SeverityLow,
		ContractorID: "vend1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := fmt.Sprintf("NC-TWR-A-%d-0002", year); nc2.NCNumber != want {
		t.Errorf("second NCNumber = %s, want %s", nc2.NCNumber, want)
	}

	// Invalid severity is rejected before anything persists.
	_, err = svc.NC.Raise(ctx, "qe1", &RaiseNCRequest{
		ProjectID: "proj1", Title: "x", Severity: "critical", ContractorID: "vend1",
	})
	if apperr.KindOf(err) != apperr.InvalidArgument {
		t.Errorf("bad severity kind = %v, want invalid_argument", apperr.KindOf(err))
	}
}

func TestNCLifecycle(t *testing.T) {
	db, svc, rec := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedUser(t, db, "qm1", "QM One", "qm1@test.com")
	testutil.SeedUser(t, db, "con1", "Contractor One", "con1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)
	testutil.SeedMembership(t, db, "proj1", "qm1", entity.RoleQualityManager)
	testutil.SeedVendor(t, db, "vend1", "proj1", "Sharma Constructions")
	if err := db.Model(&entity.Vendor{}).Where("id = ?", "vend1").Update("user_id", "con1").Error; err != nil {
		t.Fatal(err)
	}

	nc, err := svc.NC.Raise(ctx, "qe1", &RaiseNCRequest{
		ProjectID:    "proj1",
		Title:        "Honeycombing in column C4",
		Severity:     entity.SeverityModerate,
		ContractorID: "vend1",
	})
	if err != nil {
		t.Fatal(err)
	}

	// A stranger cannot act as the contractor.
	testutil.SeedUser(t, db, "rando", "Rando", "rando@test.com")
	if _, err := svc.NC.Acknowledge(ctx, "proj1", nc.ID, "rando"); apperr.KindOf(err) != apperr.PermissionDenied {
		t.Errorf("stranger acknowledge kind = %v, want permission_denied", apperr.KindOf(err))
	}

	if _, err := svc.NC.Acknowledge(ctx, "proj1", nc.ID, "con1"); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	// Re-acknowledging is an idempotent no-op, not an error.
	before := len(rec.byType(entity.EventNCAcknowledged))
	if _, err := svc.NC.Acknowledge(ctx, "proj1", nc.ID, "con1"); err != nil {
		t.Fatalf("re-Acknowledge: %v", err)
	}
	if after := len(rec.byType(entity.EventNCAcknowledged)); after != before {
		t.Errorf("idempotent re-acknowledge dispatched an event")
	}

	// Cannot skip straight to verified.
	if _, err := svc.NC.Verify(ctx, "proj1", nc.ID, "qe1", &VerifyNCRequest{}); apperr.KindOf(err) != apperr.Conflict {
		t.Errorf("skip-ahead kind = %v, want conflict", apperr.KindOf(err))
	}

	deadline := time.Now().AddDate(0, 0, 3)
	nc, err = svc.NC.Respond(ctx, "proj1", nc.ID, "con1", &RespondRequest{
		Response:         "Chipping and re-grouting the affected face",
		ProposedDeadline: &deadline,
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if nc.Status != entity.NCStatusInProgress || nc.ContractorResponse == "" {
		t.Errorf("after respond: status=%s response=%q", nc.Status, nc.ContractorResponse)
	}

	if _, err := svc.NC.Resolve(ctx, "proj1", nc.ID, "con1", &ResolveRequest{PhotoKeys: []string{"k1"}}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := svc.NC.Verify(ctx, "proj1", nc.ID, "qe1", &VerifyNCRequest{Notes: "repair holds"}); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	// Closing is manager territory.
	if _, err := svc.NC.Close(ctx, "proj1", nc.ID, "qe1"); apperr.KindOf(err) != apperr.PermissionDenied {
		t.Errorf("QE close kind = %v, want permission_denied", apperr.KindOf(err))
	}
	nc, err = svc.NC.Close(ctx, "proj1", nc.ID, "qm1")
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if nc.ClosedAt == nil || nc.ActualResolutionDays == nil {
		t.Fatalf("close did not stamp closure: %+v", nc)
	}
	if *nc.ActualResolutionDays != 0 {
		t.Errorf("ActualResolutionDays = %d, want 0 for same-day close", *nc.ActualResolutionDays)
	}

	// Terminal NCs refuse further transitions.
	if _, err := svc.NC.Acknowledge(ctx, "proj1", nc.ID, "con1"); apperr.KindOf(err) != apperr.FailedPrecondition {
		t.Errorf("post-close acknowledge kind = %v, want failed_precondition", apperr.KindOf(err))
	}
}

func TestNCRespondFromRaised(t *testing.T) {
	db, svc, _ := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedUser(t, db, "con1", "Contractor One", "con1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)
	testutil.SeedVendor(t, db, "vend1", "proj1", "Sharma Constructions")
	if err := db.Model(&entity.Vendor{}).Where("id = ?", "vend1").Update("user_id", "con1").Error; err != nil {
		t.Fatal(err)
	}

	nc, err := svc.NC.Raise(ctx, "qe1", &RaiseNCRequest{
		ProjectID: "proj1", Title: "Cold joint in slab S2", Severity: entity.SeverityModerate, ContractorID: "vend1",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Responding without a prior acknowledge implies it.
	nc, err = svc.NC.Respond(ctx, "proj1", nc.ID, "con1", &RespondRequest{Response: "re-pouring the joint"})
	if err != nil {
		t.Fatalf("Respond from raised: %v", err)
	}
	if nc.Status != entity.NCStatusInProgress {
		t.Errorf("status = %s, want in_progress", nc.Status)
	}
}

func TestNCResolveRequiresPhotos(t *testing.T) {
	db, svc, _ := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)
	testutil.SeedVendor(t, db, "vend1", "proj1", "Sharma Constructions")

	nc, err := svc.NC.Raise(ctx, "qe1", &RaiseNCRequest{
		ProjectID: "proj1", Title: "Segregation at pour face", Severity: entity.SeverityLow, ContractorID: "vend1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.NC.Acknowledge(ctx, "proj1", nc.ID, "qe1"); err != nil {
		t.Fatal(err)
	}

	// Photo evidence is mandatory, and resolution only follows a response.
	if _, err := svc.NC.Resolve(ctx, "proj1", nc.ID, "qe1", &ResolveRequest{}); apperr.KindOf(err) != apperr.InvalidArgument {
		t.Errorf("no-photos kind = %v, want invalid_argument", apperr.KindOf(err))
	}
	if _, err := svc.NC.Resolve(ctx, "proj1", nc.ID, "qe1", &ResolveRequest{PhotoKeys: []string{"p1"}}); apperr.KindOf(err) != apperr.Conflict {
		t.Errorf("resolve-from-acknowledged kind = %v, want conflict", apperr.KindOf(err))
	}
}

func TestNCVerifyActorRestriction(t *testing.T) {
	db, svc, _ := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedUser(t, db, "qe2", "QE Two", "qe2@test.com")
	testutil.SeedUser(t, db, "qe3", "QE Three", "qe3@test.com")
	testutil.SeedUser(t, db, "con1", "Contractor One", "con1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)
	testutil.SeedMembership(t, db, "proj1", "qe2", entity.RoleQualityEngineer)
	testutil.SeedMembership(t, db, "proj1", "qe3", entity.RoleQualityEngineer)
	testutil.SeedVendor(t, db, "vend1", "proj1", "Sharma Constructions")
	if err := db.Model(&entity.Vendor{}).Where("id = ?", "vend1").Update("user_id", "con1").Error; err != nil {
		t.Fatal(err)
	}

	oversight := "qe3"
	nc, err := svc.NC.Raise(ctx, "qe1", &RaiseNCRequest{
		ProjectID:         "proj1",
		Title:             "Honeycombing in column C4",
		Severity:          entity.SeverityHigh,
		ContractorID:      "vend1",
		OversightEngineer: &oversight,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.NC.Respond(ctx, "proj1", nc.ID, "con1", &RespondRequest{Response: "re-grouting"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.NC.Resolve(ctx, "proj1", nc.ID, "con1", &ResolveRequest{PhotoKeys: []string{"k1"}}); err != nil {
		t.Fatal(err)
	}

	// An uninvolved engineer cannot sign off the fix.
	if _, err := svc.NC.Verify(ctx, "proj1", nc.ID, "qe2", &VerifyNCRequest{}); apperr.KindOf(err) != apperr.PermissionDenied {
		t.Errorf("uninvolved verify kind = %v, want permission_denied", apperr.KindOf(err))
	}

	nc, err = svc.NC.Verify(ctx, "proj1", nc.ID, "qe3", &VerifyNCRequest{Notes: "checked on site"})
	if err != nil {
		t.Fatalf("oversight verify: %v", err)
	}
	if nc.Status != entity.NCStatusVerified {
		t.Errorf("status = %s, want verified", nc.Status)
	}
}

func TestNCReject(t *testing.T) {
	db, svc, _ := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedUser(t, db, "qm1", "QM One", "qm1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)
	testutil.SeedMembership(t, db, "proj1", "qm1", entity.RoleQualityManager)
	testutil.SeedVendor(t, db, "vend1", "proj1", "Sharma Constructions")

	nc, err := svc.NC.Raise(ctx, "qe1", &RaiseNCRequest{
		ProjectID: "proj1", Title: "Duplicate of NC-0001", Severity: entity.SeverityLow, ContractorID: "vend1",
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.NC.Reject(ctx, "proj1", nc.ID, "qm1", &RejectNCRequest{}); apperr.KindOf(err) != apperr.InvalidArgument {
		t.Errorf("no-reason kind = %v, want invalid_argument", apperr.KindOf(err))
	}

	nc, err = svc.NC.Reject(ctx, "proj1", nc.ID, "qm1", &RejectNCRequest{Reason: "raised twice"})
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if nc.Status != entity.NCStatusRejected || nc.RejectionReason != "raised twice" {
		t.Errorf("after reject: %+v", nc)
	}

	// Once the contractor is working on it the NC can no longer be rejected.
	active, err := svc.NC.Raise(ctx, "qe1", &RaiseNCRequest{
		ProjectID: "proj1", Title: "Plaster cracks", Severity: entity.SeverityLow, ContractorID: "vend1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.NC.Respond(ctx, "proj1", active.ID, "qe1", &RespondRequest{Response: "patching"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.NC.Reject(ctx, "proj1", active.ID, "qm1", &RejectNCRequest{Reason: "too late"}); apperr.KindOf(err) != apperr.Conflict {
		t.Errorf("reject-in-progress kind = %v, want conflict", apperr.KindOf(err))
	}
}

func TestNCTransfer(t *testing.T) {
	db, svc, _ := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedUser(t, db, "qm1", "QM One", "qm1@test.com")
	testutil.SeedUser(t, db, "con1", "Contractor One", "con1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)
	testutil.SeedMembership(t, db, "proj1", "qm1", entity.RoleQualityManager)
	testutil.SeedVendor(t, db, "vend1", "proj1", "Sharma Constructions")
	testutil.SeedVendor(t, db, "vend2", "proj1", "Patel Infra")
	if err := db.Model(&entity.Vendor{}).Where("id = ?", "vend1").Update("user_id", "con1").Error; err != nil {
		t.Fatal(err)
	}

	nc, err := svc.NC.Raise(ctx, "qe1", &RaiseNCRequest{
		ProjectID: "proj1", Title: "Formwork misalignment", Severity: entity.SeverityHigh, ContractorID: "vend1",
	})
	if err != nil {
		t.Fatal(err)
	}
	raisedAt := nc.RaisedAt
	scoreWeek := nc.ScoreWeek

	if _, err := svc.NC.Acknowledge(ctx, "proj1", nc.ID, "con1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.NC.Respond(ctx, "proj1", nc.ID, "con1", &RespondRequest{Response: "will fix"}); err != nil {
		t.Fatal(err)
	}

	// Transferring to the same contractor is a conflict.
	_, err = svc.NC.Transfer(ctx, "proj1", nc.ID, "qm1", &TransferRequest{ToContractorID: "vend1"})
	if apperr.KindOf(err) != apperr.Conflict {
		t.Errorf("same-contractor kind = %v, want conflict", apperr.KindOf(err))
	}

	nc, err = svc.NC.Transfer(ctx, "proj1", nc.ID, "qm1", &TransferRequest{
		ToContractorID: "vend2", Reason: "scope belongs to finishing contractor",
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if nc.ContractorID != "vend2" || nc.Status != entity.NCStatusRaised {
		t.Errorf("after transfer: contractor=%s status=%s", nc.ContractorID, nc.Status)
	}
	if nc.ContractorResponse != "" || nc.ProposedDeadline != nil {
		t.Errorf("contractor response not cleared on transfer")
	}
	if !nc.RaisedAt.Equal(raisedAt) || nc.ScoreWeek != scoreWeek {
		t.Errorf("transfer changed the frozen scoring period")
	}

	var transfers []entity.NCTransfer
	if err := db.Where("nc_id = ?", nc.ID).Find(&transfers).Error; err != nil {
		t.Fatal(err)
	}
	if len(transfers) != 1 || transfers[0].FromContractorID != "vend1" || transfers[0].ToContractorID != "vend2" {
		t.Errorf("transfer history = %+v", transfers)
	}

	// An engineer who did not raise the NC cannot reassign it.
	testutil.SeedUser(t, db, "qe2", "QE Two", "qe2@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe2", entity.RoleQualityEngineer)
	_, err = svc.NC.Transfer(ctx, "proj1", nc.ID, "qe2", &TransferRequest{
		ToContractorID: "vend1", Reason: "not mine to move",
	})
	if apperr.KindOf(err) != apperr.PermissionDenied {
		t.Errorf("non-raiser transfer kind = %v, want permission_denied", apperr.KindOf(err))
	}

	// The raiser can.
	nc, err = svc.NC.Transfer(ctx, "proj1", nc.ID, "qe1", &TransferRequest{
		ToContractorID: "vend1", Reason: "original contractor after all",
	})
	if err != nil {
		t.Fatalf("raiser transfer: %v", err)
	}
	if nc.ContractorID != "vend1" {
		t.Errorf("after raiser transfer: contractor=%s", nc.ContractorID)
	}
}

func TestDashboardAndScore(t *testing.T) {
	db, svc, _ := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedUser(t, db, "qm1", "QM One", "qm1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)
	testutil.SeedMembership(t, db, "proj1", "qm1", entity.RoleQualityManager)
	testutil.SeedVendor(t, db, "vend1", "proj1", "Sharma Constructions")

	raise := func(severity string) *entity.NonConformance {
		t.Helper()
		nc, err := svc.NC.Raise(ctx, "qe1", &RaiseNCRequest{
			ProjectID: "proj1", Title: "NC " + severity, Severity: severity, ContractorID: "vend1",
		})
		if err != nil {
			t.Fatal(err)
		}
		return nc
	}
	closeNC := func(nc *entity.NonConformance) {
		t.Helper()
		for _, step := range []func() error{
			func() error { _, err := svc.NC.Acknowledge(ctx, "proj1", nc.ID, "qe1"); return err },
			func() error {
				_, err := svc.NC.Respond(ctx, "proj1", nc.ID, "qe1", &RespondRequest{Response: "fixing"})
				return err
			},
			func() error {
				_, err := svc.NC.Resolve(ctx, "proj1", nc.ID, "qe1", &ResolveRequest{PhotoKeys: []string{"p1"}})
				return err
			},
			func() error { _, err := svc.NC.Verify(ctx, "proj1", nc.ID, "qe1", &VerifyNCRequest{}); return err },
			func() error { _, err := svc.NC.Close(ctx, "proj1", nc.ID, "qm1"); return err },
		} {
			if err := step(); err != nil {
				t.Fatal(err)
			}
		}
	}

	high := raise(entity.SeverityHigh)     // 1.0, closed
	raise(entity.SeverityModerate)         // 0.5, stays open
	rejected := raise(entity.SeverityLow)  // 0.25, rejected
	closeNC(high)
	if _, err := svc.NC.Reject(ctx, "proj1", rejected.ID, "qm1", &RejectNCRequest{Reason: "invalid"}); err != nil {
		t.Fatal(err)
	}

	d, err := svc.NC.GetDashboard(ctx, "proj1", "qe1")
	if err != nil {
		t.Fatalf("GetDashboard: %v", err)
	}
	if d.Total != 3 || d.Open != 1 || d.Closed != 1 {
		t.Errorf("dashboard total/open/closed = %d/%d/%d, want 3/1/1", d.Total, d.Open, d.Closed)
	}
	if d.ByStatus[entity.NCStatusRejected] != 1 {
		t.Errorf("rejected count = %d, want 1", d.ByStatus[entity.NCStatusRejected])
	}

	// Score: rejected NCs carry no points, so 1.0 closed of 1.5 total.
	year := time.Now().Year()
	score, err := svc.NC.ContractorScore(ctx, "proj1", "vend1", "qe1", year, nil, nil)
	if err != nil {
		t.Fatalf("ContractorScore: %v", err)
	}
	if score.ClosedPoints != 1.0 || score.TotalPoints != 1.5 {
		t.Errorf("points = %v/%v, want 1.0/1.5", score.ClosedPoints, score.TotalPoints)
	}
	if score.Score < 6.6 || score.Score > 6.7 {
		t.Errorf("score = %v, want ~6.67", score.Score)
	}
	if score.Grade != "C" {
		t.Errorf("grade = %s, want C", score.Grade)
	}

	// month and week are mutually exclusive.
	m, w := 6, 25
	if _, err := svc.NC.ContractorScore(ctx, "proj1", "vend1", "qe1", year, &m, &w); apperr.KindOf(err) != apperr.InvalidArgument {
		t.Errorf("month+week kind = %v, want invalid_argument", apperr.KindOf(err))
	}
}
