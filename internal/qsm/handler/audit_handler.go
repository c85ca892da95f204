package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/omi1811/concretethings-sub000/internal/qsm/repository"
)

// AuditHandler exposes the per-entity history trail.
type AuditHandler struct {
	repo *repository.AuditRepository
}

func NewAuditHandler(repo *repository.AuditRepository) *AuditHandler {
	return &AuditHandler{repo: repo}
}

// ListByEntity: GET /api/audit/:entity_type/:entity_id
func (h *AuditHandler) ListByEntity(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.repo.FindByEntity(c.Request.Context(),
		c.Param("entity_type"), c.Param("entity_id"), page, pageSize)
	if err != nil {
		Fail(c, err)
		return
	}
	List(c, items, page, pageSize, total)
}
