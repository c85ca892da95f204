package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/omi1811/concretethings-sub000/internal/qsm/service"
)

// NCHandler exposes the non-conformance workflow.
type NCHandler struct {
	svc *service.NCService
}

func NewNCHandler(svc *service.NCService) *NCHandler {
	return &NCHandler{svc: svc}
}

// Raise opens an NC.
// POST /api/concrete/nc
func (h *NCHandler) Raise(c *gin.Context) {
	var req service.RaiseNCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	nc, err := h.svc.Raise(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, nc)
}

// Acknowledge: POST /api/concrete/nc/:id/acknowledge
func (h *NCHandler) Acknowledge(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	nc, err := h.svc.Acknowledge(c.Request.Context(), projectID, c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, nc)
}

// Respond: POST /api/concrete/nc/:id/respond
func (h *NCHandler) Respond(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	var req service.RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	nc, err := h.svc.Respond(c.Request.Context(), projectID, c.Param("id"), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, nc)
}

// Resolve: POST /api/concrete/nc/:id/resolve
func (h *NCHandler) Resolve(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	var req service.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	nc, err := h.svc.Resolve(c.Request.Context(), projectID, c.Param("id"), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, nc)
}

// Verify: POST /api/concrete/nc/:id/verify
func (h *NCHandler) Verify(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	var req service.VerifyNCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	nc, err := h.svc.Verify(c.Request.Context(), projectID, c.Param("id"), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, nc)
}

// Close: POST /api/concrete/nc/:id/close
func (h *NCHandler) Close(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	nc, err := h.svc.Close(c.Request.Context(), projectID, c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, nc)
}

// Reject: POST /api/concrete/nc/:id/reject
func (h *NCHandler) Reject(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	var req service.RejectNCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	nc, err := h.svc.Reject(c.Request.Context(), projectID, c.Param("id"), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, nc)
}

// Transfer: POST /api/concrete/nc/:id/transfer
func (h *NCHandler) Transfer(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	var req service.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	nc, err := h.svc.Transfer(c.Request.Context(), projectID, c.Param("id"), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, nc)
}

// Dashboard: GET /api/concrete/nc/dashboard
func (h *NCHandler) Dashboard(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	d, err := h.svc.GetDashboard(c.Request.Context(), projectID, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, d)
}

// ContractorScore: GET /api/concrete/contractors/:id/score?year=&month=|week=
func (h *NCHandler) ContractorScore(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}

	year := time.Now().Year()
	if y := c.Query("year"); y != "" {
		v, err := strconv.Atoi(y)
		if err != nil {
			BadRequest(c, "year must be an integer")
			return
		}
		year = v
	}
	var month, week *int
	if m := c.Query("month"); m != "" {
		v, err := strconv.Atoi(m)
		if err != nil || v < 1 || v > 12 {
			BadRequest(c, "month must be 1-12")
			return
		}
		month = &v
	}
	if w := c.Query("week"); w != "" {
		v, err := strconv.Atoi(w)
		if err != nil || v < 1 || v > 53 {
			BadRequest(c, "week must be 1-53")
			return
		}
		week = &v
	}

	result, err := h.svc.ContractorScore(c.Request.Context(), projectID, c.Param("id"), GetUserID(c), year, month, week)
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, result)
}

// List: GET /api/concrete/nc
func (h *NCHandler) List(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), projectID, GetUserID(c), page, pageSize,
		Filters(c, "status", "severity", "contractor_id"))
	if err != nil {
		Fail(c, err)
		return
	}
	List(c, items, page, pageSize, total)
}

// Get: GET /api/concrete/nc/:id
func (h *NCHandler) Get(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	nc, err := h.svc.Get(c.Request.Context(), projectID, c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, nc)
}
