package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/omi1811/concretethings-sub000/internal/qsm/service"
)

// ReminderHandler exposes the cube test reminder list.
type ReminderHandler struct {
	svc *service.ReminderService
}

func NewReminderHandler(svc *service.ReminderService) *ReminderHandler {
	return &ReminderHandler{svc: svc}
}

// List: GET /api/test-reminders
func (h *ReminderHandler) List(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), projectID, GetUserID(c), page, pageSize,
		Filters(c, "status", "test_completed"))
	if err != nil {
		Fail(c, err)
		return
	}
	List(c, items, page, pageSize, total)
}

// Acknowledge: POST /api/test-reminders/:id/acknowledge
func (h *ReminderHandler) Acknowledge(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	reminder, err := h.svc.Acknowledge(c.Request.Context(), projectID, c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, reminder)
}
