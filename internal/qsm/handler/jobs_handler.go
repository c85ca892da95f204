package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/omi1811/concretethings-sub000/internal/qsm/apperr"
	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
	"github.com/omi1811/concretethings-sub000/internal/qsm/repository"
	"github.com/omi1811/concretethings-sub000/internal/scheduler"
)

// JobsHandler lets a project admin trigger the background jobs manually.
// Triggers run the same code paths as the scheduler; every job is idempotent
// so an extra run is harmless.
type JobsHandler struct {
	jobs        *scheduler.Scheduler
	memberships *repository.MembershipRepository
}

func NewJobsHandler(jobs *scheduler.Scheduler, memberships *repository.MembershipRepository) *JobsHandler {
	return &JobsHandler{jobs: jobs, memberships: memberships}
}

func (h *JobsHandler) requireAdmin(c *gin.Context) bool {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return false
	}
	role, err := h.memberships.RoleIn(c.Request.Context(), projectID, GetUserID(c))
	if err != nil || !entity.RoleAtLeast(role, entity.RoleProjectAdmin) {
		Fail(c, apperr.New(apperr.PermissionDenied, "requires project_admin role"))
		return false
	}
	return true
}

// RunVehicleCheck: POST /api/background-jobs/run-vehicle-check
func (h *JobsHandler) RunVehicleCheck(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	n, err := h.jobs.RunVehicleCheck(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"warned": n})
}

// RunTestReminders: POST /api/background-jobs/run-test-reminders
func (h *JobsHandler) RunTestReminders(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	n, err := h.jobs.RunTestReminders(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"fired": n})
}

// RunMissedTestCheck: POST /api/background-jobs/run-missed-test-check
func (h *JobsHandler) RunMissedTestCheck(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	n, err := h.jobs.RunMissedTestCheck(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"warnings": n})
}

// RunAll: POST /api/background-jobs/run-all
func (h *JobsHandler) RunAll(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	ctx := c.Request.Context()
	warned, err := h.jobs.RunVehicleCheck(ctx)
	if err != nil {
		Fail(c, err)
		return
	}
	fired, err := h.jobs.RunTestReminders(ctx)
	if err != nil {
		Fail(c, err)
		return
	}
	warnings, err := h.jobs.RunMissedTestCheck(ctx)
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"warned": warned, "fired": fired, "warnings": warnings})
}
