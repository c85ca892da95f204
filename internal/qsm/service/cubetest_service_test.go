package service

import (
	"context"
	"testing"
	"time"

	"github.com/omi1811/concretethings-sub000/internal/qsm/apperr"
	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
	"github.com/omi1811/concretethings-sub000/internal/qsm/testutil"
	"gorm.io/gorm"
)

func fptr(v float64) *float64 { return &v }

// seedBatchViaVehicle runs the real bulk-create path so the cube tests sit on
// a batch with a vendor and an M30 mix, exactly as production data would.
func seedBatchViaVehicle(t *testing.T, db *gorm.DB, svc *Services) *entity.Batch {
	t.Helper()
	testutil.SeedVehicle(t, db, "veh1", "proj1", "MH12AB0001", time.Now().Add(-time.Hour))
	batches, err := svc.Batch.CreateFromVehicles(context.Background(), "qe1", &BulkCreateRequest{
		ProjectID:  "proj1",
		VehicleIDs: []string{"veh1"},
		VendorName: "UltraMix RMC",
		Grade:      "M30",
	})
	if err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	return &batches[0]
}

func TestPlanCreatesReminder(t *testing.T) {
	db, svc, _ := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)
	batch := seedBatchViaVehicle(t, db, svc)

	casting := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	test, err := svc.CubeTest.Plan(ctx, "qe1", &PlanRequest{
		ProjectID:   "proj1",
		BatchID:     &batch.ID,
		TestAgeDays: 28,
		CastingDate: &casting,
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	// Strength defaults from the batch's M30 mix.
	if test.RequiredStrengthMPa != 30 {
		t.Errorf("RequiredStrengthMPa = %v, want 30", test.RequiredStrengthMPa)
	}
	if test.PassFailStatus != entity.CubeTestStatusPlanned {
		t.Errorf("status = %s, want planned", test.PassFailStatus)
	}
	wantDate := casting.AddDate(0, 0, 28)
	if test.TestingDate == nil || !test.TestingDate.Equal(wantDate) {
		t.Errorf("TestingDate = %v, want %v", test.TestingDate, wantDate)
	}

	var reminder entity.TestReminder
	if err := db.Where("cube_test_id = ?", test.ID).First(&reminder).Error; err != nil {
		t.Fatalf("reminder missing: %v", err)
	}
	if reminder.Status != entity.ReminderStatusPending || !reminder.ReminderDate.Equal(wantDate) {
		t.Errorf("reminder = %+v", reminder)
	}

	// Neither anchor is an error.
	_, err = svc.CubeTest.Plan(ctx, "qe1", &PlanRequest{ProjectID: "proj1", TestAgeDays: 28})
	if apperr.KindOf(err) != apperr.InvalidArgument {
		t.Errorf("anchorless plan kind = %v, want invalid_argument", apperr.KindOf(err))
	}
}

func TestRecordResultsPass(t *testing.T) {
	db, svc, rec := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)
	batch := seedBatchViaVehicle(t, db, svc)

	test, err := svc.CubeTest.Plan(ctx, "qe1", &PlanRequest{
		ProjectID: "proj1", BatchID: &batch.ID, TestAgeDays: 28,
	})
	if err != nil {
		t.Fatal(err)
	}

	// 765 kN on a 150 mm cube is 34 MPa, comfortably above M30.
	test, err = svc.CubeTest.RecordResults(ctx, "proj1", test.ID, "qe1", &RecordResultsRequest{
		Cubes: []CubeInput{
			{LoadKN: fptr(765)},
			{LoadKN: fptr(765)},
			{LoadKN: fptr(765)},
		},
	})
	if err != nil {
		t.Fatalf("RecordResults: %v", err)
	}
	if test.PassFailStatus != entity.CubeTestStatusPass {
		t.Errorf("status = %s, want pass", test.PassFailStatus)
	}
	if test.AverageStrengthMPa == nil || *test.AverageStrengthMPa != 34 {
		t.Errorf("average = %v, want 34", test.AverageStrengthMPa)
	}
	if test.NCRGenerated {
		t.Error("pass must not raise an NC")
	}
	if len(rec.byType(entity.EventTestFailure)) != 0 {
		t.Error("pass must not dispatch a failure event")
	}

	// Reminder is settled.
	var reminder entity.TestReminder
	if err := db.Where("cube_test_id = ?", test.ID).First(&reminder).Error; err != nil {
		t.Fatal(err)
	}
	if !reminder.TestCompleted || reminder.Status != entity.ReminderStatusAcknowledged {
		t.Errorf("reminder not settled: %+v", reminder)
	}

	// A finalized test cannot be re-recorded.
	_, err = svc.CubeTest.RecordResults(ctx, "proj1", test.ID, "qe1", &RecordResultsRequest{
		Cubes: []CubeInput{{LoadKN: fptr(800)}},
	})
	if apperr.KindOf(err) != apperr.Conflict {
		t.Errorf("re-record kind = %v, want conflict", apperr.KindOf(err))
	}
}

func TestRecordResultsFailRaisesNC(t *testing.T) {
	db, svc, rec := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedUser(t, db, "qm1", "QM One", "qm1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)
	testutil.SeedMembership(t, db, "proj1", "qm1", entity.RoleQualityManager)
	batch := seedBatchViaVehicle(t, db, svc)

	test, err := svc.CubeTest.Plan(ctx, "qe1", &PlanRequest{
		ProjectID: "proj1", BatchID: &batch.ID, TestAgeDays: 28,
	})
	if err != nil {
		t.Fatal(err)
	}

	// 540 kN is 24 MPa: well under M30.
	test, err = svc.CubeTest.RecordResults(ctx, "proj1", test.ID, "qe1", &RecordResultsRequest{
		Cubes: []CubeInput{{LoadKN: fptr(540)}, {LoadKN: fptr(540)}},
	})
	if err != nil {
		t.Fatalf("RecordResults: %v", err)
	}
	if test.PassFailStatus != entity.CubeTestStatusFail {
		t.Errorf("status = %s, want fail", test.PassFailStatus)
	}
	if !test.NCRGenerated || test.NCNumber == nil {
		t.Fatalf("failure did not auto-raise an NC: %+v", test)
	}

	var nc entity.NonConformance
	if err := db.Where("nc_number = ?", *test.NCNumber).First(&nc).Error; err != nil {
		t.Fatalf("NC row missing: %v", err)
	}
	if nc.Severity != entity.SeverityHigh {
		t.Errorf("NC severity = %s, want HIGH", nc.Severity)
	}
	if nc.ContractorID != batch.VendorID {
		t.Errorf("NC contractor = %s, want batch vendor %s", nc.ContractorID, batch.VendorID)
	}
	if nc.SourceCubeTestID == nil || *nc.SourceCubeTestID != test.ID {
		t.Errorf("NC source = %v, want %s", nc.SourceCubeTestID, test.ID)
	}

	// Both the NC event and the failure broadcast went out after commit.
	if len(rec.byType(entity.EventNCRaised)) != 1 {
		t.Errorf("nc_raised events = %d, want 1", len(rec.byType(entity.EventNCRaised)))
	}
	fails := rec.byType(entity.EventTestFailure)
	if len(fails) != 1 {
		t.Fatalf("test_failure events = %d, want 1", len(fails))
	}
	if len(fails[0].Recipients) != 1 || fails[0].Recipients[0] != "qm1" {
		t.Errorf("failure recipients = %v, want [qm1]", fails[0].Recipients)
	}
}

func TestSignCubeTest(t *testing.T) {
	db, svc, _ := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedUser(t, db, "qm1", "QM One", "qm1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)
	testutil.SeedMembership(t, db, "proj1", "qm1", entity.RoleQualityManager)
	batch := seedBatchViaVehicle(t, db, svc)

	test, err := svc.CubeTest.Plan(ctx, "qe1", &PlanRequest{
		ProjectID: "proj1", BatchID: &batch.ID, TestAgeDays: 7,
	})
	if err != nil {
		t.Fatal(err)
	}

	// A planned test cannot be signed.
	_, err = svc.CubeTest.Sign(ctx, "proj1", test.ID, "qm1", "sig/key1")
	if apperr.KindOf(err) != apperr.FailedPrecondition {
		t.Errorf("planned sign kind = %v, want failed_precondition", apperr.KindOf(err))
	}

	if _, err := svc.CubeTest.RecordResults(ctx, "proj1", test.ID, "qe1", &RecordResultsRequest{
		Cubes: []CubeInput{{LoadKN: fptr(765)}},
	}); err != nil {
		t.Fatal(err)
	}

	// Engineers cannot sign.
	_, err = svc.CubeTest.Sign(ctx, "proj1", test.ID, "qe1", "sig/key1")
	if apperr.KindOf(err) != apperr.PermissionDenied {
		t.Errorf("QE sign kind = %v, want permission_denied", apperr.KindOf(err))
	}

	test, err = svc.CubeTest.Sign(ctx, "proj1", test.ID, "qm1", "sig/key1")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if test.SignatureKey == nil || *test.SignatureKey != "sig/key1" || test.VerifiedBy == nil {
		t.Errorf("sign did not stamp: %+v", test)
	}

	_, err = svc.CubeTest.Sign(ctx, "proj1", test.ID, "qm1", "sig/key2")
	if apperr.KindOf(err) != apperr.Conflict {
		t.Errorf("re-sign kind = %v, want conflict", apperr.KindOf(err))
	}
}
