package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/omi1811/concretethings-sub000/internal/blob"
	"github.com/omi1811/concretethings-sub000/internal/qsm/apperr"
	"github.com/omi1811/concretethings-sub000/internal/qsm/repository"
	"github.com/omi1811/concretethings-sub000/internal/qsm/service"
	"github.com/omi1811/concretethings-sub000/internal/qsm/sse"
	"github.com/omi1811/concretethings-sub000/internal/scheduler"
)

// Handlers is the aggregate of all HTTP handlers.
type Handlers struct {
	Vehicle      *VehicleHandler
	Pour         *PourHandler
	Batch        *BatchHandler
	CubeTest     *CubeTestHandler
	NC           *NCHandler
	Reminder     *ReminderHandler
	Notification *NotificationHandler
	Audit        *AuditHandler
	Jobs         *JobsHandler
	SSE          *SSEHandler
}

func NewHandlers(svc *service.Services, repos *repository.Repositories, blobs *blob.Store, hub *sse.Hub, jobs *scheduler.Scheduler) *Handlers {
	return &Handlers{
		Vehicle:      NewVehicleHandler(svc.Vehicle),
		Pour:         NewPourHandler(svc.Pour),
		Batch:        NewBatchHandler(svc.Batch),
		CubeTest:     NewCubeTestHandler(svc.CubeTest, blobs),
		NC:           NewNCHandler(svc.NC),
		Reminder:     NewReminderHandler(svc.Reminder),
		Notification: NewNotificationHandler(repos.Notification),
		Audit:        NewAuditHandler(repos.Audit),
		Jobs:         NewJobsHandler(jobs, repos.Membership),
		SSE:          NewSSEHandler(hub),
	}
}

// ListResponse wraps paginated list payloads.
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

// Pagination is the page envelope echoed on list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

// OK writes a 200 with the payload.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created writes a 201 with the payload.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// List writes a paginated 200.
func List(c *gin.Context, items interface{}, page, pageSize int, total int64) {
	totalPages := total / int64(pageSize)
	if total%int64(pageSize) > 0 {
		totalPages++
	}
	c.JSON(http.StatusOK, ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

// Fail maps a service error onto the HTTP error envelope.
func Fail(c *gin.Context, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   string(apperr.Internal),
			"message": "internal error",
		})
		return
	}

	status := http.StatusInternalServerError
	switch ae.Kind {
	case apperr.InvalidArgument:
		status = http.StatusBadRequest
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.PermissionDenied:
		status = http.StatusForbidden
	case apperr.Conflict, apperr.FailedPrecondition:
		status = http.StatusConflict
	case apperr.TransportFailure:
		status = http.StatusBadGateway
	}

	body := gin.H{
		"error":   string(ae.Kind),
		"message": ae.Message,
	}
	if len(ae.Details) > 0 {
		body["details"] = ae.Details
	}
	c.JSON(status, body)
}

// BadRequest rejects malformed input before it reaches a service.
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   string(apperr.InvalidArgument),
		"message": message,
	})
}

// GetUserID reads the authenticated user id set by the JWT middleware.
func GetUserID(c *gin.Context) string {
	if id, ok := c.Get("user_id"); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// GetPagination reads page/page_size query params with sane bounds.
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}
	return page, pageSize
}

// RequireProjectID reads the project_id query param, failing the request
// when absent.
func RequireProjectID(c *gin.Context) (string, bool) {
	projectID := c.Query("project_id")
	if projectID == "" {
		BadRequest(c, "project_id query parameter is required")
		return "", false
	}
	return projectID, true
}

// Filters collects the named query params into a filter map.
func Filters(c *gin.Context, keys ...string) map[string]string {
	filters := make(map[string]string, len(keys))
	for _, k := range keys {
		if v := c.Query(k); v != "" {
			filters[k] = v
		}
	}
	return filters
}
