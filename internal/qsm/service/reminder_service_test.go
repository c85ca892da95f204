package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
	"github.com/omi1811/concretethings-sub000/internal/qsm/testutil"
)

// seedReminderFixture plants a planned cube test with a reminder due on the
// given day. The project runs on UTC so the calendar-day math in the service
// is deterministic regardless of where the test host sits.
func seedReminderFixture(t *testing.T, db *gorm.DB, svc *Services, dueDay time.Time) *entity.CubeTest {
	t.Helper()
	if err := db.Model(&entity.Project{}).Where("id = ?", "proj1").Update("timezone", "UTC").Error; err != nil {
		t.Fatal(err)
	}
	batch := seedBatchViaVehicle(t, db, svc)
	casting := dueDay.AddDate(0, 0, -28)
	test, err := svc.CubeTest.Plan(context.Background(), "qe1", &PlanRequest{
		ProjectID:   "proj1",
		BatchID:     &batch.ID,
		TestAgeDays: 28,
		CastingDate: &casting,
	})
	if err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return test
}

func TestRunDailyReminders(t *testing.T) {
	db, svc, rec := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedUser(t, db, "pa1", "PA One", "pa1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)
	testutil.SeedMembership(t, db, "proj1", "pa1", entity.RoleProjectAdmin)

	now := time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC)
	test := seedReminderFixture(t, db, svc, now)

	// Before the project's reminder time nothing fires.
	fired, err := svc.Reminder.RunDailyReminders(ctx, time.Date(2026, 8, 28, 8, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("RunDailyReminders: %v", err)
	}
	if fired != 0 {
		t.Fatalf("pre-window fired = %d, want 0", fired)
	}

	fired, err = svc.Reminder.RunDailyReminders(ctx, now)
	if err != nil {
		t.Fatalf("RunDailyReminders: %v", err)
	}
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}

	events := rec.byType(entity.EventTestReminder)
	if len(events) != 1 || events[0].CubeTestID != test.ID {
		t.Fatalf("reminder events = %+v", events)
	}
	// Both configured roles receive it.
	if len(events[0].Recipients) != 2 {
		t.Errorf("recipients = %v, want qe1 and pa1", events[0].Recipients)
	}

	var reminder entity.TestReminder
	if err := db.Where("cube_test_id = ?", test.ID).First(&reminder).Error; err != nil {
		t.Fatal(err)
	}
	if reminder.Status != entity.ReminderStatusSent || reminder.NotificationSentAt == nil {
		t.Errorf("reminder not marked sent: %+v", reminder)
	}
	if len(reminder.NotifiedUserIDs) != 2 {
		t.Errorf("NotifiedUserIDs = %v", reminder.NotifiedUserIDs)
	}

	// A second pass the same day fires nothing.
	fired, err = svc.Reminder.RunDailyReminders(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if fired != 0 {
		t.Errorf("second pass fired = %d, want 0", fired)
	}
}

func TestRunMissedTestCheck(t *testing.T) {
	db, svc, rec := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedUser(t, db, "pa1", "PA One", "pa1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)
	testutil.SeedMembership(t, db, "proj1", "pa1", entity.RoleProjectAdmin)

	// Two tests due yesterday, neither recorded.
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)
	test := seedReminderFixture(t, db, svc, yesterday)
	casting := yesterday.AddDate(0, 0, -7)
	second, err := svc.CubeTest.Plan(ctx, "qe1", &PlanRequest{
		ProjectID:   "proj1",
		BatchID:     test.BatchID,
		TestAgeDays: 7,
		CastingDate: &casting,
	})
	if err != nil {
		t.Fatalf("plan second test: %v", err)
	}

	warned, err := svc.Reminder.RunMissedTestCheck(ctx, now)
	if err != nil {
		t.Fatalf("RunMissedTestCheck: %v", err)
	}
	if warned != 2 {
		t.Fatalf("warned = %d, want 2", warned)
	}
	// One digest per project covering every missed test, to admins only.
	events := rec.byType(entity.EventMissedTestWarning)
	if len(events) != 1 {
		t.Fatalf("missed events = %+v, want a single digest", events)
	}
	if len(events[0].Recipients) != 1 || events[0].Recipients[0] != "pa1" {
		t.Errorf("recipients = %v, want [pa1]", events[0].Recipients)
	}
	if !strings.Contains(events[0].Subject, "2 cube test(s)") {
		t.Errorf("subject = %q, want missed count of 2", events[0].Subject)
	}

	// Recording the results clears the warnings on the next pass.
	for _, id := range []string{test.ID, second.ID} {
		if _, err := svc.CubeTest.RecordResults(ctx, "proj1", id, "qe1", &RecordResultsRequest{
			Cubes: []CubeInput{{LoadKN: fptr(765)}},
		}); err != nil {
			t.Fatal(err)
		}
	}
	warned, err = svc.Reminder.RunMissedTestCheck(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if warned != 0 {
		t.Errorf("post-recording warned = %d, want 0", warned)
	}
}

func TestReminderWindowOpen(t *testing.T) {
	at := func(hh, mm int) time.Time {
		return time.Date(2026, 8, 28, hh, mm, 0, 0, time.UTC)
	}
	if reminderWindowOpen("14:30", at(14, 29)) {
		t.Error("window open a minute early")
	}
	if !reminderWindowOpen("14:30", at(14, 30)) {
		t.Error("window closed at the configured minute")
	}
	// Malformed settings fall back to 09:00.
	if reminderWindowOpen("sometime", at(8, 59)) {
		t.Error("fallback window open before 09:00")
	}
	if !reminderWindowOpen("sometime", at(9, 0)) {
		t.Error("fallback window closed at 09:00")
	}
}

func TestAcknowledgeReminder(t *testing.T) {
	db, svc, _ := newTestServices(t)
	ctx := context.Background()

	testutil.SeedProject(t, db, "proj1", "TWR-A", "Tower A")
	testutil.SeedUser(t, db, "qe1", "QE One", "qe1@test.com")
	testutil.SeedUser(t, db, "w1", "Watchman", "w1@test.com")
	testutil.SeedMembership(t, db, "proj1", "qe1", entity.RoleQualityEngineer)
	testutil.SeedMembership(t, db, "proj1", "w1", entity.RoleWatchman)

	now := time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC)
	test := seedReminderFixture(t, db, svc, now)
	if _, err := svc.Reminder.RunDailyReminders(ctx, now); err != nil {
		t.Fatal(err)
	}

	var reminder entity.TestReminder
	if err := db.Where("cube_test_id = ?", test.ID).First(&reminder).Error; err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Reminder.Acknowledge(ctx, "proj1", reminder.ID, "w1"); err == nil {
		t.Error("watchman acknowledged a reminder")
	}

	acked, err := svc.Reminder.Acknowledge(ctx, "proj1", reminder.ID, "qe1")
	if err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if acked.Status != entity.ReminderStatusAcknowledged {
		t.Errorf("status = %s, want acknowledged", acked.Status)
	}

	// Idempotent.
	if _, err := svc.Reminder.Acknowledge(ctx, "proj1", reminder.ID, "qe1"); err != nil {
		t.Errorf("re-acknowledge: %v", err)
	}
}
