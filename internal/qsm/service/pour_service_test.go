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

func TestCreatePourWithSchedule(t *testing.T) {
	db, svc, _ := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)

	pourDate := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	pour, err := svc.Pour.Create(ctx, "qe1", &CreatePourRequest{
		ProjectID:   "proj1",
		PourDate:    &pourDate,
		DesignGrade: "M30",
		CubeSchedule: []CubeScheduleItem{
			{AgeDays: 7, Sets: 1},
			{AgeDays: 28, Sets: 2},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if want := fmt.Sprintf("POUR-%d-001", pourDate.Year()); pour.PourCode != want {
		t.Errorf("PourCode = %s, want %s", pour.PourCode, want)
	}
	if pour.ConcreteType != entity.ConcreteTypeNormal {
		t.Errorf("ConcreteType = %s, want Normal default", pour.ConcreteType)
	}
	if pour.Status != entity.PourStatusInProgress {
		t.Errorf("Status = %s, want in_progress", pour.Status)
	}

	// 1 set at 7d + 2 sets at 28d = 3 planned tests, each with a reminder.
	var tests []entity.CubeTest
	if err := db.Where("pour_activity_id = ?", pour.ID).Order("test_age_days, set_number").Find(&tests).Error; err != nil {
		t.Fatal(err)
	}
	if len(tests) != 3 {
		t.Fatalf("planned tests = %d, want 3", len(tests))
	}
	for _, ct := range tests {
		if ct.RequiredStrengthMPa != 30 {
			t.Errorf("test %s required = %v, want 30", ct.ID, ct.RequiredStrengthMPa)
		}
		wantDate := pourDate.AddDate(0, 0, ct.TestAgeDays)
		if ct.TestingDate == nil || !ct.TestingDate.Equal(wantDate) {
			t.Errorf("test %s date = %v, want %v", ct.ID, ct.TestingDate, wantDate)
		}
	}
	var reminders int64
	db.Model(&entity.TestReminder{}).Where("project_id = ?", "proj1").Count(&reminders)
	if reminders != 3 {
		t.Errorf("reminders = %d, want 3", reminders)
	}

	// Second pour of the year takes the next sequence number.
	pour2, err := svc.Pour.Create(ctx, "qe1", &CreatePourRequest{ProjectID: "proj1", PourDate: &pourDate})
	if err != nil {
		t.Fatal(err)
	}
	if want := fmt.Sprintf("POUR-%d-002", pourDate.Year()); pour2.PourCode != want {
		t.Errorf("second PourCode = %s, want %s", pour2.PourCode, want)
	}
}

func TestCompletePour(t *testing.T) {
	db, svc, _ := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)

	pour, err := svc.Pour.Create(ctx, "qe1", &CreatePourRequest{ProjectID: "proj1", ConcreteType: entity.ConcreteTypePT})
	if err != nil {
		t.Fatal(err)
	}

	// A pour with no concrete on record cannot be completed.
	_, err = svc.Pour.Complete(ctx, "proj1", pour.ID, "qe1")
	if apperr.KindOf(err) != apperr.FailedPrecondition {
		t.Fatalf("empty complete kind = %v, want failed_precondition", apperr.KindOf(err))
	}

	// Batch two vehicles straight onto the pour, 12 m3 total.
	testutil.SeedVehicle(t, db, "veh1", "proj1", "MH12AB0001", time.Now())
	testutil.SeedVehicle(t, db, "veh2", "proj1", "MH12AB0002", time.Now())
	if _, err := svc.Batch.CreateFromVehicles(ctx, "qe1", &BulkCreateRequest{
		ProjectID:      "proj1",
		VehicleIDs:     []string{"veh1", "veh2"},
		VendorName:     "UltraMix RMC",
		Grade:          "M40",
		TotalQuantity:  12,
		PourActivityID: &pour.ID,
	}); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Pour.Complete(ctx, "proj1", pour.ID, "qe1")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Pour.Status != entity.PourStatusCompleted || res.Pour.CompletedAt == nil {
		t.Errorf("pour not completed: %+v", res.Pour)
	}
	if res.Pour.TotalQuantityReceived == nil || *res.Pour.TotalQuantityReceived != 12 {
		t.Errorf("TotalQuantityReceived = %v, want 12", res.Pour.TotalQuantityReceived)
	}
	// PT pours test at 5 days first.
	if len(res.PlannedTestAges) != 4 || res.PlannedTestAges[0] != 5 {
		t.Errorf("PlannedTestAges = %v, want [5 7 28 56]", res.PlannedTestAges)
	}

	// Completing again is an idempotent no-op.
	res2, err := svc.Pour.Complete(ctx, "proj1", pour.ID, "qe1")
	if err != nil {
		t.Fatalf("re-Complete: %v", err)
	}
	if res2.Pour.Status != entity.PourStatusCompleted {
		t.Errorf("re-complete status = %s", res2.Pour.Status)
	}
}

func TestCancelPourCascades(t *testing.T) {
	db, svc, _ := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)

	pour, err := svc.Pour.Create(ctx, "qe1", &CreatePourRequest{
		ProjectID:    "proj1",
		DesignGrade:  "M25",
		CubeSchedule: []CubeScheduleItem{{AgeDays: 28, Sets: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	testutil.SeedVehicle(t, db, "veh1", "proj1", "MH12AB0001", time.Now())
	batches, err := svc.Batch.CreateFromVehicles(ctx, "qe1", &BulkCreateRequest{
		ProjectID: "proj1", VehicleIDs: []string{"veh1"}, VendorName: "UltraMix RMC", Grade: "M25",
		PourActivityID: &pour.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	pour, err = svc.Pour.Cancel(ctx, "proj1", pour.ID, "qe1")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if pour.Status != entity.PourStatusCancelled {
		t.Errorf("status = %s, want cancelled", pour.Status)
	}

	// The batch survives but is detached; planned tests are cancelled.
	var batch entity.Batch
	if err := db.Where("id = ?", batches[0].ID).First(&batch).Error; err != nil {
		t.Fatal(err)
	}
	if batch.PourActivityID != nil {
		t.Errorf("batch still linked to cancelled pour")
	}
	var cancelled int64
	db.Model(&entity.CubeTest{}).
		Where("pour_activity_id = ? AND pass_fail_status = ?", pour.ID, entity.CubeTestStatusCancelled).
		Count(&cancelled)
	if cancelled != 1 {
		t.Errorf("cancelled tests = %d, want 1", cancelled)
	}
}

func TestUpdatePourFreezesConcreteType(t *testing.T) {
	db, svc, _ := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)

	pour, err := svc.Pour.Create(ctx, "qe1", &CreatePourRequest{
		ProjectID:    "proj1",
		DesignGrade:  "M30",
		CubeSchedule: []CubeScheduleItem{{AgeDays: 28}},
	})
	if err != nil {
		t.Fatal(err)
	}

	pt := entity.ConcreteTypePT
	_, err = svc.Pour.Update(ctx, "proj1", pour.ID, "qe1", &UpdatePourRequest{ConcreteType: &pt})
	if apperr.KindOf(err) != apperr.Conflict {
		t.Errorf("type change kind = %v, want conflict", apperr.KindOf(err))
	}

	// Other fields stay editable while in progress.
	qty := 25.0
	pour, err = svc.Pour.Update(ctx, "proj1", pour.ID, "qe1", &UpdatePourRequest{TotalQuantityPlanned: &qty})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if pour.TotalQuantityPlanned != 25 {
		t.Errorf("TotalQuantityPlanned = %v, want 25", pour.TotalQuantityPlanned)
	}
}
