package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aiready/selfcheck-api/internal/models"
)

// GenerationRepository persists batch generation job rows.
type GenerationRepository struct {
	db *sqlx.DB
}

// NewGenerationRepository constructs the repository.
func NewGenerationRepository(db *sqlx.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

const jobColumns = `id, content_type, version, status, total_tasks, completed_tasks, failed_tasks, description, error_message, created_by, created_at, started_at, finished_at`

// Create inserts a new job row.
func (r *GenerationRepository) Create(ctx context.Context, job *models.GenerationJob) error {
	const query = `INSERT INTO generation_jobs (id, content_type, version, status, total_tasks, completed_tasks, failed_tasks, description, error_message, created_by, created_at, started_at, finished_at)
VALUES (:id, :content_type, :version, :status, :total_tasks, :completed_tasks, :failed_tasks, :description, :error_message, :created_by, :created_at, :started_at, :finished_at)`
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("insert generation job: %w", err)
	}
	return nil
}

// GetByID fetches a single job row.
func (r *GenerationRepository) GetByID(ctx context.Context, id string) (*models.GenerationJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM generation_jobs WHERE id = $1`, jobColumns)
	var job models.GenerationJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// FindActive returns the queued or running job for a content type, if any.
func (r *GenerationRepository) FindActive(ctx context.Context, contentType models.ContentType) (*models.GenerationJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM generation_jobs
WHERE content_type = $1 AND status IN ($2, $3)
ORDER BY created_at DESC LIMIT 1`, jobColumns)
	var job models.GenerationJob
	if err := r.db.GetContext(ctx, &job, query, contentType, models.GenerationStatusQueued, models.GenerationStatusRunning); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListRecent returns the latest jobs for a content type, newest first.
func (r *GenerationRepository) ListRecent(ctx context.Context, contentType models.ContentType, limit int) ([]models.GenerationJob, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM generation_jobs WHERE content_type = $1 ORDER BY created_at DESC LIMIT $2`, jobColumns)
	var jobs []models.GenerationJob
	if err := r.db.SelectContext(ctx, &jobs, query, contentType, limit); err != nil {
		return nil, fmt.Errorf("list generation jobs: %w", err)
	}
	return jobs, nil
}

// UpdateJobParams carries partial job updates.
type UpdateJobParams struct {
	Status         *models.GenerationStatus
	TotalTasks     *int
	CompletedTasks *int
	FailedTasks    *int
	ErrorMessage   *string
	StartedAt      *time.Time
	FinishedAt     *time.Time
}

// Update applies the non-nil fields of params to the job row.
func (r *GenerationRepository) Update(ctx context.Context, id string, params UpdateJobParams) error {
	sets := []string{}
	args := []interface{}{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.TotalTasks != nil {
		add("total_tasks", *params.TotalTasks)
	}
	if params.CompletedTasks != nil {
		add("completed_tasks", *params.CompletedTasks)
	}
	if params.FailedTasks != nil {
		add("failed_tasks", *params.FailedTasks)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.StartedAt != nil {
		add("started_at", *params.StartedAt)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE generation_jobs SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update generation job: %w", err)
	}
	return nil
}
