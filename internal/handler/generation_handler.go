package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aiready/selfcheck-api/internal/dto"
	"github.com/aiready/selfcheck-api/internal/service"
	appErrors "github.com/aiready/selfcheck-api/pkg/errors"
	"github.com/aiready/selfcheck-api/pkg/response"
)

// GenerationHandler exposes batch generation endpoints.
type GenerationHandler struct {
	generation *service.GenerationService
}

// NewGenerationHandler constructs handler.
func NewGenerationHandler(generation *service.GenerationService) *GenerationHandler {
	return &GenerationHandler{generation: generation}
}

// Start godoc
// @Summary Start a batch generation job
// @Tags Generation
// @Accept json
// @Produce json
// @Param type path string true "Content type" Enums(advice, virtual_evidence)
// @Success 202 {object} response.Envelope
// @Router /content/{type}/generate [post]
func (h *GenerationHandler) Start(c *gin.Context) {
	contentType, ok := contentTypeParam(c)
	if !ok {
		return
	}
	var req dto.StartGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	claims := claimsFromContext(c)
	job, err := h.generation.Start(c.Request.Context(), contentType, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Job godoc
// @Summary Generation job status
// @Tags Generation
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /generation/jobs/{id} [get]
func (h *GenerationHandler) Job(c *gin.Context) {
	job, err := h.generation.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job)
}

// ListJobs godoc
// @Summary Recent generation jobs for a content type
// @Tags Generation
// @Produce json
// @Param type path string true "Content type"
// @Param limit query int false "Max rows" default(20)
// @Success 200 {object} response.Envelope
// @Router /content/{type}/jobs [get]
func (h *GenerationHandler) ListJobs(c *gin.Context) {
	contentType, ok := contentTypeParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	jobs, err := h.generation.ListRecent(c.Request.Context(), contentType, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobs, map[string]interface{}{"total": len(jobs)})
}

// Events godoc
// @Summary Live generation progress stream
// @Tags Generation
// @Produce text/event-stream
// @Param type path string true "Content type"
// @Router /content/{type}/events [get]
func (h *GenerationHandler) Events(c *gin.Context) {
	contentType, ok := contentTypeParam(c)
	if !ok {
		return
	}

	events, cancel := h.generation.Subscribe(contentType)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case event, open := <-events:
			if !open {
				return false
			}
			c.SSEvent(event.Name, event.Payload)
			return true
		}
	})
}
