package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/omi1811/concretethings-sub000/internal/qsm/service"
)

// BatchHandler exposes batch materialization and verification.
type BatchHandler struct {
	svc *service.BatchService
}

func NewBatchHandler(svc *service.BatchService) *BatchHandler {
	return &BatchHandler{svc: svc}
}

// BulkCreate turns unlinked RMC vehicles into batches.
// POST /api/batches/bulk
func (h *BatchHandler) BulkCreate(c *gin.Context) {
	var req service.BulkCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	batches, err := h.svc.CreateFromVehicles(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, gin.H{"items": batches})
}

// Verify approves or rejects a pending batch.
// POST /api/batches/:id/verify
func (h *BatchHandler) Verify(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	var req service.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	batch, err := h.svc.Verify(c.Request.Context(), projectID, c.Param("id"), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, batch)
}

// Delete soft-deletes a batch, returning its vehicle to the pool.
// DELETE /api/batches/:id
func (h *BatchHandler) Delete(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	if err := h.svc.SoftDelete(c.Request.Context(), projectID, c.Param("id"), GetUserID(c)); err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"deleted": true})
}

// List returns a project's batches.
// GET /api/batches
func (h *BatchHandler) List(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), projectID, GetUserID(c), page, pageSize,
		Filters(c, "pour_id", "vendor_id", "verification_status"))
	if err != nil {
		Fail(c, err)
		return
	}
	List(c, items, page, pageSize, total)
}

// Get returns one batch.
// GET /api/batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	batch, err := h.svc.Get(c.Request.Context(), projectID, c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, batch)
}
