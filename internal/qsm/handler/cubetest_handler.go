package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/omi1811/concretethings-sub000/internal/blob"
	"github.com/omi1811/concretethings-sub000/internal/qsm/service"
)

// Signature uploads are small PNGs; cap the body defensively.
const maxSignatureBytes = 1 << 20

// CubeTestHandler exposes the cube test workflow.
type CubeTestHandler struct {
	svc   *service.CubeTestService
	blobs *blob.Store
}

func NewCubeTestHandler(svc *service.CubeTestService, blobs *blob.Store) *CubeTestHandler {
	return &CubeTestHandler{svc: svc, blobs: blobs}
}

// Plan schedules a cube set.
// POST /api/cube-tests
func (h *CubeTestHandler) Plan(c *gin.Context) {
	var req service.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	test, err := h.svc.Plan(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, test)
}

// RecordResults enters crushing results.
// POST /api/cube-tests/:id/results
func (h *CubeTestHandler) RecordResults(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	var req service.RecordResultsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	test, err := h.svc.RecordResults(c.Request.Context(), projectID, c.Param("id"), GetUserID(c), &req)
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, test)
}

// Sign uploads the manager's signature image and attaches it to the test.
// POST /api/cube-tests/:id/sign  (multipart field "signature")
func (h *CubeTestHandler) Sign(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("signature")
	if err != nil {
		BadRequest(c, "signature file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxSignatureBytes+1))
	if err != nil || len(data) == 0 || len(data) > maxSignatureBytes {
		BadRequest(c, "signature must be a non-empty file under 1 MiB")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	key, err := h.blobs.Put(c.Request.Context(), data, contentType)
	if err != nil {
		Fail(c, err)
		return
	}

	test, err := h.svc.Sign(c.Request.Context(), projectID, c.Param("id"), GetUserID(c), key)
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, test)
}

// List returns a project's cube tests.
// GET /api/cube-tests
func (h *CubeTestHandler) List(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), projectID, GetUserID(c), page, pageSize,
		Filters(c, "batch_id", "pour_id", "status"))
	if err != nil {
		Fail(c, err)
		return
	}
	List(c, items, page, pageSize, total)
}

// Get returns one cube test.
// GET /api/cube-tests/:id
func (h *CubeTestHandler) Get(c *gin.Context) {
	projectID, ok := RequireProjectID(c)
	if !ok {
		return
	}
	test, err := h.svc.Get(c.Request.Context(), projectID, c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, test)
}
