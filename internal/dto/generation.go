package dto

import (
	"time"

	"github.com/aiready/selfcheck-api/internal/models"
)

// StartGenerationRequest kicks off a batch generation job.
type StartGenerationRequest struct {
	Languages   []models.Language `json:"languages,omitempty" binding:"omitempty,dive,oneof=ko en"`
	Description string            `json:"description,omitempty" binding:"omitempty,max=500"`
}

// GenerationJobResponse is the API rendering of a job row.
type GenerationJobResponse struct {
	ID             string                  `json:"id"`
	ContentType    models.ContentType      `json:"contentType"`
	Version        string                  `json:"version"`
	Status         models.GenerationStatus `json:"status"`
	TotalTasks     int                     `json:"totalTasks"`
	CompletedTasks int                     `json:"completedTasks"`
	FailedTasks    int                     `json:"failedTasks"`
	Error          *string                 `json:"error,omitempty"`
	CreatedAt      time.Time               `json:"createdAt"`
	FinishedAt     *time.Time              `json:"finishedAt,omitempty"`
}

// NewGenerationJobResponse maps a job model onto the response shape.
func NewGenerationJobResponse(job *models.GenerationJob) GenerationJobResponse {
	return GenerationJobResponse{
		ID:             job.ID,
		ContentType:    job.ContentType,
		Version:        job.Version,
		Status:         job.Status,
		TotalTasks:     job.TotalTasks,
		CompletedTasks: job.CompletedTasks,
		FailedTasks:    job.FailedTasks,
		Error:          job.ErrorMessage,
		CreatedAt:      job.CreatedAt,
		FinishedAt:     job.FinishedAt,
	}
}
