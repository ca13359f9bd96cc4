package dto

import (
	"time"

	"github.com/aiready/selfcheck-api/internal/models"
)

// SaveItemRequest upserts one checklist answer on the active version.
type SaveItemRequest struct {
	ItemID         string                `json:"itemId" binding:"required"`
	AssessmentType models.AssessmentType `json:"assessmentType" binding:"required,oneof=prerequisites technical"`
	Met            *bool                 `json:"met"`
	Response       string                `json:"response" binding:"omitempty,max=4000"`
}

// ItemResponse is the API rendering of one answer.
type ItemResponse struct {
	ItemID         string                `json:"itemId"`
	AssessmentType models.AssessmentType `json:"assessmentType"`
	Met            *bool                 `json:"met"`
	Response       string                `json:"response,omitempty"`
	LastUpdated    time.Time             `json:"lastUpdated"`
}

// NewItemResponse maps an item model onto the response shape.
func NewItemResponse(item models.AssessmentItem) ItemResponse {
	return ItemResponse{
		ItemID:         item.ItemID,
		AssessmentType: item.AssessmentType,
		Met:            item.Met,
		Response:       item.Response,
		LastUpdated:    item.LastUpdated,
	}
}
