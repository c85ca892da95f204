package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/omi1811/concretethings-sub000/internal/qsm/repository"
)

// NotificationHandler exposes the caller's notification log (the durable
// in-app inbox).
type NotificationHandler struct {
	repo *repository.NotificationRepository
}

func NewNotificationHandler(repo *repository.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{repo: repo}
}

// List: GET /api/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.repo.FindByRecipient(c.Request.Context(), GetUserID(c), page, pageSize)
	if err != nil {
		Fail(c, err)
		return
	}
	List(c, items, page, pageSize, total)
}
