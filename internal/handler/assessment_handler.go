package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aiready/selfcheck-api/internal/dto"
	"github.com/aiready/selfcheck-api/internal/service"
	appErrors "github.com/aiready/selfcheck-api/pkg/errors"
	"github.com/aiready/selfcheck-api/pkg/response"
)

// AssessmentHandler exposes checklist answer endpoints on the active version.
type AssessmentHandler struct {
	versions *service.VersionService
}

// NewAssessmentHandler constructs handler.
func NewAssessmentHandler(versions *service.VersionService) *AssessmentHandler {
	return &AssessmentHandler{versions: versions}
}

// SaveItem godoc
// @Summary Save one checklist answer
// @Tags Assessment
// @Accept json
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /assessment/items [put]
func (h *AssessmentHandler) SaveItem(c *gin.Context) {
	var req dto.SaveItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	claims := claimsFromContext(c)
	item, err := h.versions.SaveItem(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item)
}

// ListItems godoc
// @Summary List the active version's answers
// @Tags Assessment
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /assessment/items [get]
func (h *AssessmentHandler) ListItems(c *gin.Context) {
	claims := claimsFromContext(c)
	items, err := h.versions.ListItems(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"total": len(items)})
}
