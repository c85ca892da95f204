package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/omi1811/concretethings-sub000/internal/qsm/service"
)

// PourHandler exposes pour activities.
type PourHandler struct {
	svc *service.PourService
}

func NewPourHandler(svc *service.PourService) *PourHandler {
	return &PourHandler{svc: svc}
}

// Create starts a pour, optionally with a cube schedule.
// POST /api/pour-activities
func (h *PourHandler) Create(c *gin.Context) {
	var req service.CreatePourRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	pour, err := h.svc.Create(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, pour)
}

// Update edits an in-progress pour.
// PUT /api/pour-activities/:id
func (h *PourHandler) Update(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	var req service.UpdatePourRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	pour, err := h.svc.Update(c.Request.Context(), projectID, c.Param("id"), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, pour)
}

// AddBatch links a batch to the pour.
// POST /api/pour-activities/:id/batches
func (h *PourHandler) AddBatch(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	var req struct {
		BatchID string `json:"batch_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	pour, err := h.svc.AddBatch(c.Request.Context(), projectID, c.Param("id"), req.BatchID, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, pour)
}

// Complete finishes the pour and returns the test ages to cast cubes for.
// POST /api/pour-activities/:id/complete
func (h *PourHandler) Complete(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	result, err := h.svc.Complete(c.Request.Context(), projectID, c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, result)
}

// Cancel aborts the pour.
// POST /api/pour-activities/:id/cancel
func (h *PourHandler) Cancel(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	pour, err := h.svc.Cancel(c.Request.Context(), projectID, c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, pour)
}

// List returns a project's pours.
// GET /api/pour-activities
func (h *PourHandler) List(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), projectID, GetUserID(c), page, pageSize,
		Filters(c, "status", "concrete_type"))
	if err != nil {
		Fail(c, err)
		return
	}
	List(c, items, page, pageSize, total)
}

// Get returns one pour with batches.
// GET /api/pour-activities/:id
func (h *PourHandler) Get(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	pour, err := h.svc.Get(c.Request.Context(), projectID, c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, pour)
}
