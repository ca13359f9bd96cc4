package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aiready/selfcheck-api/internal/dto"
	"github.com/aiready/selfcheck-api/internal/generator"
	"github.com/aiready/selfcheck-api/internal/models"
	"github.com/aiready/selfcheck-api/internal/repository"
	"github.com/aiready/selfcheck-api/pkg/config"
	appErrors "github.com/aiready/selfcheck-api/pkg/errors"
	"github.com/aiready/selfcheck-api/pkg/events"
	"github.com/aiready/selfcheck-api/pkg/jobs"
)

type generationStore interface {
	Create(ctx context.Context, job *models.GenerationJob) error
	GetByID(ctx context.Context, id string) (*models.GenerationJob, error)
	FindActive(ctx context.Context, contentType models.ContentType) (*models.GenerationJob, error)
	ListRecent(ctx context.Context, contentType models.ContentType, limit int) ([]models.GenerationJob, error)
	Update(ctx context.Context, id string, params repository.UpdateJobParams) error
}

type checklistReader interface {
	List(ctx context.Context) ([]models.ChecklistItem, error)
}

type entryWriter interface {
	UpsertEntry(ctx context.Context, entry *models.CacheEntry) error
}

// generationTask is the queue payload driving one batch run.
type generationTask struct {
	JobID       string
	ContentType models.ContentType
	Languages   []models.Language
}

// GenerationService coordinates batch content generation: one job per content
// type at a time, per-item fault isolation, progress events for live
// subscribers and a persisted job record.
type GenerationService struct {
	repo      generationStore
	checklist checklistReader
	entries   entryWriter
	gen       generator.Generator
	queue     *jobs.Queue
	events    *events.Broadcaster
	metrics   *MetricsService
	cfg       config.GenerationConfig
	logger    *zap.Logger

	mu sync.Mutex
}

// NewGenerationService constructs the coordinator. Call BindQueue before
// Start is used.
func NewGenerationService(repo generationStore, checklist checklistReader, entries entryWriter, gen generator.Generator, broadcaster *events.Broadcaster, metrics *MetricsService, cfg config.GenerationConfig, logger *zap.Logger) *GenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = 60 * time.Second
	}
	return &GenerationService{
		repo:      repo,
		checklist: checklist,
		entries:   entries,
		gen:       gen,
		events:    broadcaster,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger,
	}
}

// BindQueue attaches the worker queue whose handler must be s.Handle.
func (s *GenerationService) BindQueue(queue *jobs.Queue) {
	s.queue = queue
}

func generationTopic(contentType models.ContentType) string {
	return "generation:" + string(contentType)
}

// Start enqueues a batch generation job for the content type. At most one
// queued or running job per type is allowed.
func (s *GenerationService) Start(ctx context.Context, contentType models.ContentType, userID string, req dto.StartGenerationRequest) (*dto.GenerationJobResponse, error) {
	if !models.ValidContentType(contentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported content type")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "generation queue not available")
	}

	languages := req.Languages
	if len(languages) == 0 {
		for _, l := range s.cfg.Languages {
			languages = append(languages, models.Language(l))
		}
	}
	if len(languages) == 0 {
		languages = []models.Language{models.LanguageKorean, models.LanguageEnglish}
	}

	items, err := s.checklist.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load checklist")
	}
	if len(items) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "checklist is empty")
	}

	// Serialise the check-then-create against concurrent Start calls.
	s.mu.Lock()
	defer s.mu.Unlock()

	if active, err := s.repo.FindActive(ctx, contentType); err == nil && active.Status.Active() {
		return nil, appErrors.Clone(appErrors.ErrJobAlreadyRunning,
			fmt.Sprintf("generation job %s is already %s", active.ID, strings.ToLower(string(active.Status))))
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check running jobs")
	}

	job := &models.GenerationJob{
		ID:          uuid.NewString(),
		ContentType: contentType,
		Version:     buildVersionTag(time.Now().UTC(), s.gen.Provider(), s.gen.Model()),
		Status:      models.GenerationStatusQueued,
		TotalTasks:  len(items) * len(languages),
		CreatedBy:   userID,
		CreatedAt:   time.Now().UTC(),
	}
	if req.Description != "" {
		job.Description = &req.Description
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create generation job")
	}

	task := generationTask{JobID: job.ID, ContentType: contentType, Languages: languages}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "generation", Payload: task}); err != nil {
		s.failJob(context.WithoutCancel(ctx), job, fmt.Sprintf("enqueue failed: %v", err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation job")
	}

	s.logger.Sugar().Infow("generation job queued",
		"job_id", job.ID, "content_type", contentType, "version", job.Version, "total_tasks", job.TotalTasks)
	resp := dto.NewGenerationJobResponse(job)
	return &resp, nil
}

// GetJob returns one job row for status polling.
func (s *GenerationService) GetJob(ctx context.Context, id string) (*dto.GenerationJobResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation job")
	}
	resp := dto.NewGenerationJobResponse(job)
	return &resp, nil
}

// ListRecent returns the latest jobs for a content type.
func (s *GenerationService) ListRecent(ctx context.Context, contentType models.ContentType, limit int) ([]dto.GenerationJobResponse, error) {
	rows, err := s.repo.ListRecent(ctx, contentType, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list generation jobs")
	}
	out := make([]dto.GenerationJobResponse, 0, len(rows))
	for i := range rows {
		out = append(out, dto.NewGenerationJobResponse(&rows[i]))
	}
	return out, nil
}

// Subscribe registers a live progress listener for the content type.
func (s *GenerationService) Subscribe(contentType models.ContentType) (<-chan events.Event, func()) {
	return s.events.Subscribe(generationTopic(contentType))
}

// Handle drives one batch run. It is the queue worker callback.
func (s *GenerationService) Handle(ctx context.Context, queued jobs.Job) error {
	task, ok := queued.Payload.(generationTask)
	if !ok {
		s.logger.Sugar().Errorw("unexpected generation payload", "job_id", queued.ID)
		return nil
	}
	topic := generationTopic(task.ContentType)

	job, err := s.repo.GetByID(ctx, task.JobID)
	if err != nil {
		s.logger.Sugar().Errorw("generation job row missing", "job_id", task.JobID, "error", err)
		return nil
	}

	startedAt := time.Now().UTC()
	running := models.GenerationStatusRunning
	if err := s.repo.Update(ctx, job.ID, repository.UpdateJobParams{Status: &running, StartedAt: &startedAt}); err != nil {
		s.logger.Sugar().Errorw("failed to mark job running", "job_id", job.ID, "error", err)
	}

	// Credentials are checked once per batch so a misconfigured backend
	// fails fast without touching stored content.
	if err := s.gen.Validate(); err != nil {
		s.failJob(ctx, job, err.Error())
		s.events.Publish(topic, models.EventError, models.ErrorEvent{Error: err.Error()})
		return nil
	}

	items, err := s.checklist.List(ctx)
	if err != nil {
		s.failJob(ctx, job, fmt.Sprintf("load checklist: %v", err))
		s.events.Publish(topic, models.EventError, models.ErrorEvent{Error: "failed to load checklist"})
		return nil
	}

	total := len(items) * len(task.Languages)
	completed := 0
	failed := 0

	for i, item := range items {
		select {
		case <-ctx.Done():
			s.failJob(context.WithoutCancel(ctx), job, "generation cancelled")
			s.events.Publish(topic, models.EventError, models.ErrorEvent{Error: "generation cancelled"})
			return nil
		default:
		}

		s.events.Publish(topic, models.EventProgress, models.ProgressEvent{
			Phase:   "generating",
			Current: i + 1,
			Total:   len(items),
			ItemID:  item.ID,
		})

		for _, language := range task.Languages {
			callStart := time.Now()
			text, genErr := s.generateOne(ctx, task.ContentType, item, language)
			if genErr == nil {
				entry := &models.CacheEntry{
					ContentType: task.ContentType,
					ItemID:      item.ID,
					Category:    item.Category,
					Title:       item.Title,
					Content:     text,
					Language:    language,
					Version:     job.Version,
					CreatedAt:   time.Now().UTC(),
				}
				genErr = s.entries.UpsertEntry(ctx, entry)
			}
			s.metrics.RecordGenerationItem(string(task.ContentType), genErr == nil, time.Since(callStart))

			if genErr != nil {
				failed++
				s.logger.Sugar().Warnw("generation task failed",
					"job_id", job.ID, "item_id", item.ID, "language", language, "error", genErr)
				s.events.Publish(topic, models.EventItemError, models.ItemErrorEvent{
					ItemID: item.ID,
					Error:  genErr.Error(),
				})
				continue
			}

			completed++
			percent := 0
			if total > 0 {
				percent = completed * 100 / total
			}
			s.events.Publish(topic, models.EventItemComplete, models.ItemCompleteEvent{
				CompletedTasks: completed,
				TotalTasks:     total,
				Percent:        percent,
			})
		}

		s.persistProgress(ctx, job.ID, completed, failed)

		if s.cfg.InterCallDelay > 0 && i < len(items)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.InterCallDelay):
			}
		}
	}

	finishedAt := time.Now().UTC()
	done := models.GenerationStatusCompleted
	totalTasks := total
	if err := s.repo.Update(ctx, job.ID, repository.UpdateJobParams{
		Status:         &done,
		TotalTasks:     &totalTasks,
		CompletedTasks: &completed,
		FailedTasks:    &failed,
		FinishedAt:     &finishedAt,
	}); err != nil {
		s.logger.Sugar().Errorw("failed to finalise job", "job_id", job.ID, "error", err)
	}
	s.metrics.RecordGenerationJob(string(task.ContentType), string(done))

	s.events.Publish(topic, models.EventComplete, models.CompleteEvent{
		Version:        job.Version,
		TotalItems:     len(items),
		CompletedTasks: completed,
	})
	s.logger.Sugar().Infow("generation job finished",
		"job_id", job.ID, "version", job.Version, "completed", completed, "failed", failed)
	return nil
}

func (s *GenerationService) generateOne(ctx context.Context, contentType models.ContentType, item models.ChecklistItem, language models.Language) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ItemTimeout)
	defer cancel()
	return s.gen.Generate(callCtx, generator.Request{
		ContentType: contentType,
		Item:        item,
		Language:    language,
	})
}

func (s *GenerationService) persistProgress(ctx context.Context, jobID string, completed, failed int) {
	if err := s.repo.Update(ctx, jobID, repository.UpdateJobParams{
		CompletedTasks: &completed,
		FailedTasks:    &failed,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to persist job progress", "job_id", jobID, "error", err)
	}
}

func (s *GenerationService) failJob(ctx context.Context, job *models.GenerationJob, message string) {
	failedStatus := models.GenerationStatusFailed
	finishedAt := time.Now().UTC()
	if err := s.repo.Update(ctx, job.ID, repository.UpdateJobParams{
		Status:       &failedStatus,
		ErrorMessage: &message,
		FinishedAt:   &finishedAt,
	}); err != nil {
		s.logger.Sugar().Errorw("failed to mark job failed", "job_id", job.ID, "error", err)
	}
	s.metrics.RecordGenerationJob(string(job.ContentType), string(failedStatus))
}

var versionTagUnsafe = regexp.MustCompile(`[^a-z0-9._-]+`)

// buildVersionTag derives the cache version written by a batch:
// {timestamp}_{provider}_{model}, lowercased with unsafe runs collapsed.
func buildVersionTag(now time.Time, provider, model string) string {
	tag := fmt.Sprintf("%s_%s_%s", now.Format("20060102T150405"), provider, model)
	tag = strings.ToLower(tag)
	return versionTagUnsafe.ReplaceAllString(tag, "_")
}
