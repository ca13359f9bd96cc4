package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aiready/selfcheck-api/internal/dto"
	"github.com/aiready/selfcheck-api/internal/models"
	"github.com/aiready/selfcheck-api/internal/service"
	appErrors "github.com/aiready/selfcheck-api/pkg/errors"
	"github.com/aiready/selfcheck-api/pkg/response"
)

// ContentHandler exposes generated-content cache endpoints.
type ContentHandler struct {
	content *service.ContentService
}

// NewContentHandler constructs handler.
func NewContentHandler(content *service.ContentService) *ContentHandler {
	return &ContentHandler{content: content}
}

func contentTypeParam(c *gin.Context) (models.ContentType, bool) {
	contentType := models.ContentType(c.Param("type"))
	if !models.ValidContentType(contentType) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unsupported content type"))
		return "", false
	}
	return contentType, true
}

// Get godoc
// @Summary Read one generated text
// @Tags Content
// @Produce json
// @Param type path string true "Content type" Enums(advice, virtual_evidence)
// @Param itemId path string true "Checklist item ID"
// @Param lang query string false "Language" Enums(ko, en) default(ko)
// @Param version query string false "Cache version, defaults to the active one"
// @Success 200 {object} response.Envelope
// @Router /content/{type}/items/{itemId} [get]
func (h *ContentHandler) Get(c *gin.Context) {
	contentType, ok := contentTypeParam(c)
	if !ok {
		return
	}
	language := models.Language(c.DefaultQuery("lang", string(models.LanguageKorean)))
	content, err := h.content.GetContent(c.Request.Context(), contentType, c.Param("itemId"), language, c.Query("version"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, content)
}

// ListVersions godoc
// @Summary List stored cache versions
// @Tags Content
// @Produce json
// @Param type path string true "Content type"
// @Success 200 {object} response.Envelope
// @Router /content/{type}/versions [get]
func (h *ContentHandler) ListVersions(c *gin.Context) {
	contentType, ok := contentTypeParam(c)
	if !ok {
		return
	}
	versions, active, err := h.content.ListVersions(c.Request.Context(), contentType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, versions, map[string]interface{}{"activeVersion": active})
}

// SetActive godoc
// @Summary Promote a cache version for all users
// @Tags Content
// @Accept json
// @Produce json
// @Param type path string true "Content type"
// @Success 200 {object} response.Envelope
// @Router /content/{type}/active [put]
func (h *ContentHandler) SetActive(c *gin.Context) {
	contentType, ok := contentTypeParam(c)
	if !ok {
		return
	}
	var req dto.SetActiveVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	if err := h.content.SetActiveVersion(c.Request.Context(), contentType, req.Version); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"activeVersion": req.Version})
}

// Stats godoc
// @Summary Per-language entry counts for a cache version
// @Tags Content
// @Produce json
// @Param type path string true "Content type"
// @Param version query string false "Cache version, defaults to the active one"
// @Success 200 {object} response.Envelope
// @Router /content/{type}/stats [get]
func (h *ContentHandler) Stats(c *gin.Context) {
	contentType, ok := contentTypeParam(c)
	if !ok {
		return
	}
	stats, err := h.content.Stats(c.Request.Context(), contentType, c.Query("version"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats)
}

// ExportBundle godoc
// @Summary Export a cache version as a portable bundle
// @Tags Content
// @Produce json
// @Param type path string true "Content type"
// @Param version query string true "Cache version"
// @Success 200 {object} response.Envelope
// @Router /content/{type}/bundle [get]
func (h *ContentHandler) ExportBundle(c *gin.Context) {
	contentType, ok := contentTypeParam(c)
	if !ok {
		return
	}
	version := c.Query("version")
	if version == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "version required"))
		return
	}
	bundle, err := h.content.ExportBundle(c.Request.Context(), contentType, version)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bundle)
}

// ImportBundle godoc
// @Summary Import a previously exported bundle
// @Tags Content
// @Accept json
// @Produce json
// @Param type path string true "Content type"
// @Success 200 {object} response.Envelope
// @Router /content/{type}/bundle [post]
func (h *ContentHandler) ImportBundle(c *gin.Context) {
	contentType, ok := contentTypeParam(c)
	if !ok {
		return
	}
	var bundle dto.CacheBundle
	if err := c.ShouldBindJSON(&bundle); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	imported, err := h.content.ImportBundle(c.Request.Context(), contentType, bundle)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"version": bundle.Version, "imported": imported})
}

// Clear godoc
// @Summary Delete every entry of a content type
// @Tags Content
// @Produce json
// @Param type path string true "Content type"
// @Success 200 {object} response.Envelope
// @Router /content/{type} [delete]
func (h *ContentHandler) Clear(c *gin.Context) {
	contentType, ok := contentTypeParam(c)
	if !ok {
		return
	}
	deleted, err := h.content.Clear(c.Request.Context(), contentType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"deleted": deleted})
}
