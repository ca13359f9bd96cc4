package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aiready/selfcheck-api/internal/dto"
	"github.com/aiready/selfcheck-api/internal/service"
	appErrors "github.com/aiready/selfcheck-api/pkg/errors"
	"github.com/aiready/selfcheck-api/pkg/response"
)

// VersionHandler exposes assessment version endpoints.
type VersionHandler struct {
	versions *service.VersionService
	exports  *service.ExportService
}

// NewVersionHandler constructs handler.
func NewVersionHandler(versions *service.VersionService, exports *service.ExportService) *VersionHandler {
	return &VersionHandler{versions: versions, exports: exports}
}

// List godoc
// @Summary List assessment versions
// @Tags Versions
// @Produce json
// @Param includeInactive query bool false "Include inactive versions"
// @Param sortBy query string false "Sort key" Enums(name, createdAt, updatedAt)
// @Success 200 {object} response.Envelope
// @Router /versions [get]
func (h *VersionHandler) List(c *gin.Context) {
	var query dto.ListVersionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	claims := claimsFromContext(c)
	versions, err := h.versions.List(c.Request.Context(), claims.UserID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, versions, map[string]interface{}{"total": len(versions)})
}

// Get godoc
// @Summary Get one assessment version
// @Tags Versions
// @Produce json
// @Param id path string true "Version ID"
// @Success 200 {object} response.Envelope
// @Router /versions/{id} [get]
func (h *VersionHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	version, err := h.versions.Get(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, version)
}

// Create godoc
// @Summary Create an assessment version
// @Tags Versions
// @Accept json
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /versions [post]
func (h *VersionHandler) Create(c *gin.Context) {
	var req dto.CreateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	claims := claimsFromContext(c)
	version, err := h.versions.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, version)
}

// Duplicate godoc
// @Summary Duplicate an assessment version
// @Tags Versions
// @Accept json
// @Produce json
// @Param id path string true "Source version ID"
// @Success 201 {object} response.Envelope
// @Router /versions/{id}/duplicate [post]
func (h *VersionHandler) Duplicate(c *gin.Context) {
	var req dto.DuplicateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	claims := claimsFromContext(c)
	version, err := h.versions.Duplicate(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, version)
}

// Activate godoc
// @Summary Activate an assessment version
// @Tags Versions
// @Produce json
// @Param id path string true "Version ID"
// @Success 200 {object} response.Envelope
// @Router /versions/{id}/activate [post]
func (h *VersionHandler) Activate(c *gin.Context) {
	claims := claimsFromContext(c)
	version, alreadyActive, err := h.versions.Activate(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, version, map[string]interface{}{"alreadyActive": alreadyActive})
}

// Update godoc
// @Summary Rename or re-describe a version
// @Tags Versions
// @Accept json
// @Produce json
// @Param id path string true "Version ID"
// @Success 200 {object} response.Envelope
// @Router /versions/{id} [put]
func (h *VersionHandler) Update(c *gin.Context) {
	var req dto.UpdateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	claims := claimsFromContext(c)
	version, err := h.versions.Update(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, version)
}

// Delete godoc
// @Summary Delete a version and its answers
// @Tags Versions
// @Param id path string true "Version ID"
// @Success 204
// @Router /versions/{id} [delete]
func (h *VersionHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if err := h.versions.Delete(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Migrate godoc
// @Summary Migrate pre-versioning answers into a default version
// @Tags Versions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /versions/migrate [post]
func (h *VersionHandler) Migrate(c *gin.Context) {
	claims := claimsFromContext(c)
	version, err := h.versions.MigrateLegacy(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if version == nil {
		response.JSON(c, http.StatusOK, nil, map[string]interface{}{"migrated": false})
		return
	}
	response.JSON(c, http.StatusOK, version, map[string]interface{}{"migrated": true})
}

// Export godoc
// @Summary Export a version as JSON, CSV or PDF
// @Tags Versions
// @Param id path string true "Version ID"
// @Param format query string false "Export format" Enums(json, csv, pdf) default(json)
// @Success 200 {file} file
// @Router /versions/{id}/export [get]
func (h *VersionHandler) Export(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportFormatJSON)))
	claims := claimsFromContext(c)
	result, err := h.exports.ExportVersion(c.Request.Context(), claims.UserID, c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}
