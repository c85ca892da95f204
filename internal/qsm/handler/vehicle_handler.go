package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/omi1811/concretethings-sub000/internal/qsm/service"
)

// VehicleHandler exposes the gate register.
type VehicleHandler struct {
	svc *service.VehicleService
}

func NewVehicleHandler(svc *service.VehicleService) *VehicleHandler {
	return &VehicleHandler{svc: svc}
}

// Create logs a vehicle entry at the gate.
// POST /api/material-vehicles
func (h *VehicleHandler) Create(c *gin.Context) {
	var req service.CreateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	v, err := h.svc.CreateEntry(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, v)
}

// Exit marks a vehicle as departed.
// POST /api/material-vehicles/:id/exit
func (h *VehicleHandler) Exit(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	v, err := h.svc.MarkExit(c.Request.Context(), projectID, c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, v)
}

// Unlinked lists RMC vehicles available for batching.
// GET /api/material-vehicles/unlinked
func (h *VehicleHandler) Unlinked(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	items, err := h.svc.ListUnlinkedRMC(c.Request.Context(), projectID, GetUserID(c),
		Filters(c, "status", "from", "to"))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, gin.H{"items": items})
}

// List returns the gate log.
// GET /api/material-vehicles
func (h *VehicleHandler) List(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), projectID, GetUserID(c), page, pageSize,
		Filters(c, "status", "material_type", "from", "to"))
	if err != nil {
		Fail(c, err)
		return
	}
	List(c, items, page, pageSize, total)
}

// Get returns one entry.
// GET /api/material-vehicles/:id
func (h *VehicleHandler) Get(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	v, err := h.svc.Get(c.Request.Context(), projectID, c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, v)
}
