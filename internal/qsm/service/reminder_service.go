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

// ReminderService fires cube test due-date reminders and the day-after missed
// test check.
type ReminderService struct {
	db       *gorm.DB
	repos    *repository.Repositories
	notifier Notifier
	logger   *zap.Logger
}

func NewReminderService(db *gorm.DB, repos *repository.Repositories, notifier Notifier, logger *zap.Logger) *ReminderService {
	return &ReminderService{db: db, repos: repos, notifier: notifier, logger: logger}
}

// RunDailyReminders fires today's pending reminders across all projects with
// reminders enabled. Each project runs in its own transaction; the 23h guard
// in the due query keeps a reminder from firing twice even if two scheduler
// instances overlap. Returns the number of reminders fired.
func (s *ReminderService) RunDailyReminders(ctx context.Context, now time.Time) (int, error) {
	projects, err := s.repos.Project.FindWithReminderEnabled(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, p := range projects {
		n, err := s.runProjectReminders(ctx, &p, now)
		if err != nil {
			s.logger.Warn("reminders: project run failed",
				zap.String("project_id", p.ID), zap.Error(err))
			continue
		}
		total += n
	}
	return total, nil
}

func (s *ReminderService) runProjectReminders(ctx context.Context, project *entity.Project, now time.Time) (int, error) {
	settings, err := s.repos.Project.Settings(ctx, project.ID)
	if err != nil {
		return 0, err
	}

	// Each project fires at its own configured local time. The sweep runs
	// every minute; projects whose clock has not reached reminder_time yet
	// are picked up on a later pass the same day.
	local := now.In(projectLocation(project))
	if !reminderWindowOpen(settings.ReminderTime, local) {
		return 0, nil
	}

	recipients, err := s.reminderRecipients(ctx, project.ID, settings)
	if err != nil {
		return 0, err
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	day := s.projectDay(project, now)

	var fired []entity.TestReminder
	err = s.db.Transaction(func(tx *gorm.DB) error {
		due, err := s.repos.Reminder.FindDueTx(ctx, tx, project.ID, day, now)
		if err != nil {
			return err
		}
		for i := range due {
			r := &due[i]
			r.Status = entity.ReminderStatusSent
			r.NotificationSentAt = &now
			r.NotifiedUserIDs = recipients
			if err := s.repos.Reminder.UpdateTx(ctx, tx, r); err != nil {
				return err
			}
			fired = append(fired, *r)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for i := range fired {
		r := &fired[i]
		s.notifier.Dispatch(ctx, notify.Event{
			Type:       entity.EventTestReminder,
			ProjectID:  project.ID,
			EntityID:   r.ID,
			CubeTestID: r.CubeTestID,
			Subject:    fmt.Sprintf("Cube test due today (%d days)", r.TestAgeDays),
			Body: fmt.Sprintf("A %d-day cube test is due today, %s. Record the crushing results once tested.",
				r.TestAgeDays, r.ReminderDate.Format("02 Jan 2006")),
			Recipients: recipients,
		})
	}
	return len(fired), nil
}

// RunMissedTestCheck warns project admins about yesterday's reminders whose
// test never happened: one digest per project listing every missed test.
// Read-only: the reminder rows are left for the next run until the tests are
// recorded.
func (s *ReminderService) RunMissedTestCheck(ctx context.Context, now time.Time) (int, error) {
	projects, err := s.repos.Project.FindWithReminderEnabled(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, p := range projects {
		yesterday := s.projectDay(&p, now).AddDate(0, 0, -1)
		missed, err := s.repos.Reminder.FindMissed(ctx, p.ID, yesterday)
		if err != nil {
			s.logger.Warn("missed-test: scan failed",
				zap.String("project_id", p.ID), zap.Error(err))
			continue
		}
		if len(missed) == 0 {
			continue
		}

		admins, err := s.repos.Membership.UserIDsByRoles(ctx, p.ID, []string{entity.RoleProjectAdmin})
		if err != nil || len(admins) == 0 {
			continue
		}

		var body strings.Builder
		fmt.Fprintf(&body, "%d cube test(s) due on %s were not recorded. The specimen window is closing.\n",
			len(missed), yesterday.Format("02 Jan 2006"))
		for i := range missed {
			fmt.Fprintf(&body, "- %d-day test (reminder %s)\n", missed[i].TestAgeDays, missed[i].ID)
		}
		s.notifier.Dispatch(ctx, notify.Event{
			Type:       entity.EventMissedTestWarning,
			ProjectID:  p.ID,
			Subject:    fmt.Sprintf("%d cube test(s) missed on %s", len(missed), yesterday.Format("02 Jan 2006")),
			Body:       body.String(),
			Recipients: admins,
		})
		total += len(missed)
	}
	return total, nil
}

// Acknowledge marks a sent reminder as seen.
func (s *ReminderService) Acknowledge(ctx context.Context, projectID, reminderID, userID string) (*entity.TestReminder, error) {
	role, err := s.repos.Membership.RoleIn(ctx, projectID, userID)
	if err != nil || !entity.RoleAtLeast(role, entity.RoleQualityEngineer) {
		return nil, apperr.New(apperr.PermissionDenied, "requires quality_engineer role")
	}

	reminder, err := s.repos.Reminder.FindByID(ctx, reminderID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.New(apperr.NotFound, "reminder not found")
		}
		return nil, err
	}
	if reminder.ProjectID != projectID {
		return nil, apperr.New(apperr.NotFound, "reminder not found")
	}
	if reminder.Status == entity.ReminderStatusAcknowledged {
		return reminder, nil
	}

	reminder.Status = entity.ReminderStatusAcknowledged
	if err := s.repos.Reminder.Update(ctx, reminder); err != nil {
		return nil, err
	}
	return reminder, nil
}

// List returns a project's reminders ordered by due date.
func (s *ReminderService) List(ctx context.Context, projectID, userID string, page, pageSize int, filters map[string]string) ([]entity.TestReminder, int64, error) {
	role, err := s.repos.Membership.RoleIn(ctx, projectID, userID)
	if err != nil || !entity.RoleAtLeast(role, entity.RoleWatchman) {
		return nil, 0, apperr.New(apperr.PermissionDenied, "not a member of this project")
	}
	return s.repos.Reminder.FindAll(ctx, projectID, page, pageSize, filters)
}

// reminderRecipients resolves the roles configured to receive reminders.
func (s *ReminderService) reminderRecipients(ctx context.Context, projectID string, settings *entity.ProjectSettings) ([]string, error) {
	var roles []string
	if settings.NotifyQualityEngineers {
		roles = append(roles, entity.RoleQualityEngineer, entity.RoleQualityManager)
	}
	if settings.NotifyProjectAdmins {
		roles = append(roles, entity.RoleProjectAdmin)
	}
	if len(roles) == 0 {
		return nil, nil
	}
	return s.repos.Membership.UserIDsByRoles(ctx, projectID, roles)
}

// projectDay truncates now to the calendar day in the project timezone.
func (s *ReminderService) projectDay(project *entity.Project, now time.Time) time.Time {
	local := now.In(projectLocation(project))
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}

func projectLocation(project *entity.Project) *time.Location {
	loc, err := time.LoadLocation(project.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// reminderWindowOpen reports whether the local clock has passed the HH:MM
// reminder time. Malformed settings fall back to 09:00.
func reminderWindowOpen(reminderTime string, local time.Time) bool {
	hh, mm := 9, 0
	if t, err := time.Parse("15:04", reminderTime); err == nil {
		hh, mm = t.Hour(), t.Minute()
	}
	return local.Hour()*60+local.Minute() >= hh*60+mm
}
