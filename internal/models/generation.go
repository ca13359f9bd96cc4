package models

import "time"

// GenerationStatus captures generation job lifecycle states.
type GenerationStatus string

const (
	GenerationStatusQueued    GenerationStatus = "QUEUED"
	GenerationStatusRunning   GenerationStatus = "RUNNING"
	GenerationStatusCompleted GenerationStatus = "COMPLETED"
	GenerationStatusFailed    GenerationStatus = "FAILED"
)

// Active reports whether the status still occupies the per-type job slot.
func (s GenerationStatus) Active() bool {
	return s == GenerationStatusQueued || s == GenerationStatusRunning
}

// GenerationJob is the persisted record of one batch generation run.
type GenerationJob struct {
	ID             string           `db:"id" json:"id"`
	ContentType    ContentType      `db:"content_type" json:"content_type"`
	Version        string           `db:"version" json:"version"`
	Status         GenerationStatus `db:"status" json:"status"`
	TotalTasks     int              `db:"total_tasks" json:"total_tasks"`
	CompletedTasks int              `db:"completed_tasks" json:"completed_tasks"`
	FailedTasks    int              `db:"failed_tasks" json:"failed_tasks"`
	Description    *string          `db:"description" json:"description,omitempty"`
	ErrorMessage   *string          `db:"error_message" json:"error_message,omitempty"`
	CreatedBy      string           `db:"created_by" json:"created_by"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	StartedAt      *time.Time       `db:"started_at" json:"started_at,omitempty"`
	FinishedAt     *time.Time       `db:"finished_at" json:"finished_at,omitempty"`
}

// Progress event names published during a generation batch.
const (
	EventProgress     = "progress"
	EventItemComplete = "item-complete"
	EventItemError    = "item-error"
	EventComplete     = "complete"
	EventError        = "error"
)

// ProgressEvent is emitted before each generator call.
type ProgressEvent struct {
	Phase   string `json:"phase"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	ItemID  string `json:"itemId"`
}

// ItemCompleteEvent is emitted after a successful item write.
type ItemCompleteEvent struct {
	CompletedTasks int `json:"completedTasks"`
	TotalTasks     int `json:"totalTasks"`
	Percent        int `json:"percent"`
}

// ItemErrorEvent is emitted when one item fails; the batch continues.
type ItemErrorEvent struct {
	ItemID string `json:"itemId"`
	Error  string `json:"error"`
}

// CompleteEvent terminates a successful batch.
type CompleteEvent struct {
	Version        string `json:"version"`
	TotalItems     int    `json:"totalItems"`
	CompletedTasks int    `json:"completedTasks"`
}

// ErrorEvent terminates a batch that failed before processing items.
type ErrorEvent struct {
	Error string `json:"error"`
}
