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

func enableVehicleAddon(t *testing.T, db *gorm.DB, projectID string) {
	t.Helper()
	err := db.Model(&entity.ProjectSettings{}).
		Where("project_id = ?", projectID).
		Update("enable_material_vehicle_addon", true).Error
	if err != nil {
		t.Fatal(err)
	}
}

func TestCreateEntryNormalizes(t *testing.T) {
	db, svc, _ := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "w1", "Watchman", "w1@test.com")
	testutil.SeedMembership(t, db, "proj1", "w1", entity.RoleWatchman)

	v, err := svc.Vehicle.CreateEntry(ctx, "w1", &CreateEntryRequest{
		ProjectID:     "proj1",
		VehicleNumber: "  mh12ab1234 ",
		MaterialType:  entity.MaterialRMC,
		VendorName:    "UltraMix RMC",
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if v.VehicleNumber != "MH12AB1234" {
		t.Errorf("VehicleNumber = %q, want MH12AB1234", v.VehicleNumber)
	}
	if v.Status != entity.VehicleStatusOnSite {
		t.Errorf("Status = %s, want on_site", v.Status)
	}
	// Allowed window is copied from settings at entry time.
	if v.AllowedTimeHours != 3.0 {
		t.Errorf("AllowedTimeHours = %v, want 3.0", v.AllowedTimeHours)
	}
}

func TestMarkExitIdempotent(t *testing.T) {
	db, svc, _ := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "w1", "Watchman", "w1@test.com")
	testutil.SeedMembership(t, db, "proj1", "w1", entity.RoleWatchman)
	testutil.SeedVehicle(t, db, "veh1", "proj1", "MH12AB0001", time.Now().Add(-time.Hour))

	v, err := svc.Vehicle.MarkExit(ctx, "proj1", "veh1", "w1")
	if err != nil {
		t.Fatalf("MarkExit: %v", err)
	}
	if v.Status != entity.VehicleStatusExited || v.ExitTime == nil {
		t.Fatalf("after exit: %+v", v)
	}
	first := *v.ExitTime

	v, err = svc.Vehicle.MarkExit(ctx, "proj1", "veh1", "w1")
	if err != nil {
		t.Fatalf("second MarkExit: %v", err)
	}
	if !v.ExitTime.Equal(first) {
		t.Errorf("second exit moved the timestamp: %v != %v", v.ExitTime, first)
	}

	// Cross-project access reads as not found.
	testutil.SeedProject(t, db, "proj2", "TWR-B", "Tower B")
	testutil.SeedMembership(t, db, "proj2", "w1", entity.RoleWatchman)
	if _, err := svc.Vehicle.MarkExit(ctx, "proj2", "veh1", "w1"); apperr.KindOf(err) != apperr.NotFound {
		t.Errorf("cross-project kind = %v, want not_found", apperr.KindOf(err))
	}
}

func TestRunTimeLimitCheck(t *testing.T) {
	db, svc, rec := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)

	now := time.Now()
	// Overdue RMC, fresh RMC, and an overdue steel truck.
	testutil.SeedVehicle(t, db, "veh-old", "proj1", "MH12AB0001", now.Add(-5*time.Hour))
	testutil.SeedVehicle(t, db, "veh-new", "proj1", "MH12AB0002", now.Add(-30*time.Minute))
	steel := &entity.VehicleEntry{
		ID: "veh-steel", ProjectID: "proj1", VehicleNumber: "MH12AB0003",
		MaterialType: entity.MaterialSteel, EntryTime: now.Add(-8 * time.Hour),
		Status: entity.VehicleStatusOnSite, AllowedTimeHours: 3.0,
	}
	if err := db.Create(steel).Error; err != nil {
		t.Fatal(err)
	}

	// Addon off: the check is a no-op.
	warned, err := svc.Vehicle.RunTimeLimitCheck(ctx, "proj1", now)
	if err != nil {
		t.Fatal(err)
	}
	if warned != 0 {
		t.Fatalf("warned with addon disabled = %d, want 0", warned)
	}

	enableVehicleAddon(t, db, "proj1")

	warned, err = svc.Vehicle.RunTimeLimitCheck(ctx, "proj1", now)
	if err != nil {
		t.Fatal(err)
	}
	if warned != 1 {
		t.Fatalf("warned = %d, want 1", warned)
	}
	events := rec.byType(entity.EventTimeLimitWarning)
	if len(events) != 1 || events[0].EntityID != "veh-old" {
		t.Fatalf("warning events = %+v", events)
	}
	if len(events[0].Recipients) != 1 || events[0].Recipients[0] != "qe1" {
		t.Errorf("recipients = %v, want [qe1]", events[0].Recipients)
	}

	// A vehicle is warned at most once.
	warned, err = svc.Vehicle.RunTimeLimitCheck(ctx, "proj1", now.Add(10*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if warned != 0 {
		t.Errorf("second run warned = %d, want 0", warned)
	}
}

func TestListUnlinkedRMC(t *testing.T) {
	db, svc, _ := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedUser(t, db, "w1", "Watchman", "w1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)
	testutil.SeedMembership(t, db, "proj1", "w1", entity.RoleWatchman)
	testutil.SeedVehicle(t, db, "veh1", "proj1", "MH12AB0001", time.Now())
	testutil.SeedVehicle(t, db, "veh2", "proj1", "MH12AB0002", time.Now())

	// The batching feed is engineer territory.
	if _, err := svc.Vehicle.ListUnlinkedRMC(ctx, "proj1", "w1", nil); apperr.KindOf(err) != apperr.PermissionDenied {
		t.Errorf("watchman feed kind = %v, want permission_denied", apperr.KindOf(err))
	}

	vehicles, err := svc.Vehicle.ListUnlinkedRMC(ctx, "proj1", "qe1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(vehicles) != 2 {
		t.Fatalf("unlinked = %d, want 2", len(vehicles))
	}

	// Consumed vehicles drop out of the feed.
	if _, err := svc.Batch.CreateFromVehicles(ctx, "qe1", &BulkCreateRequest{
		ProjectID: "proj1", VehicleIDs: []string{"veh1"}, VendorName: "UltraMix RMC", Grade: "M30",
	}); err != nil {
		t.Fatal(err)
	}
	vehicles, err = svc.Vehicle.ListUnlinkedRMC(ctx, "proj1", "qe1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(vehicles) != 1 || vehicles[0].ID != "veh2" {
		t.Errorf("after batching: %+v", vehicles)
	}
}
