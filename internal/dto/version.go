package dto

import (
	"time"

	"github.com/aiready/selfcheck-api/internal/models"
)

// CreateVersionRequest creates a new named assessment snapshot.
type CreateVersionRequest struct {
	Name        string  `json:"name" binding:"required,max=100"`
	Description *string `json:"description,omitempty" binding:"omitempty,max=500"`
}

// DuplicateVersionRequest copies an existing version under a new name.
type DuplicateVersionRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

// UpdateVersionRequest renames or re-describes a version.
type UpdateVersionRequest struct {
	Name        *string `json:"name,omitempty" binding:"omitempty,max=100"`
	Description *string `json:"description,omitempty" binding:"omitempty,max=500"`
}

// ListVersionsQuery controls listing behaviour.
type ListVersionsQuery struct {
	IncludeInactive bool   `form:"includeInactive"`
	SortBy          string `form:"sortBy" binding:"omitempty,oneof=name createdAt updatedAt"`
}

// VersionResponse is the API rendering of a version with completion stats.
type VersionResponse struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	IsActive    bool                    `json:"isActive"`
	CreatedAt   time.Time               `json:"createdAt"`
	UpdatedAt   time.Time               `json:"updatedAt"`
	Progress    *models.VersionProgress `json:"progress,omitempty"`
}

// NewVersionResponse maps a model onto the response shape.
func NewVersionResponse(v *models.AssessmentVersion, progress *models.VersionProgress) VersionResponse {
	resp := VersionResponse{
		ID:        v.ID,
		Name:      v.Name,
		IsActive:  v.IsActive,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
		Progress:  progress,
	}
	if v.Description != nil {
		resp.Description = *v.Description
	}
	return resp
}
