package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

type generationStoreStub struct {
	jobs map[string]*models.GenerationJob
}

func newGenerationStoreStub() *generationStoreStub {
	return &generationStoreStub{jobs: map[string]*models.GenerationJob{}}
}

func (s *generationStoreStub) Create(ctx context.Context, job *models.GenerationJob) error {
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *generationStoreStub) GetByID(ctx context.Context, id string) (*models.GenerationJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *job
	return &clone, nil
}

func (s *generationStoreStub) FindActive(ctx context.Context, contentType models.ContentType) (*models.GenerationJob, error) {
	for _, job := range s.jobs {
		if job.ContentType == contentType && job.Status.Active() {
			clone := *job
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *generationStoreStub) ListRecent(ctx context.Context, contentType models.ContentType, limit int) ([]models.GenerationJob, error) {
	var result []models.GenerationJob
	for _, job := range s.jobs {
		if job.ContentType == contentType {
			result = append(result, *job)
		}
	}
	return result, nil
}

func (s *generationStoreStub) Update(ctx context.Context, id string, params repository.UpdateJobParams) error {
	job, ok := s.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.TotalTasks != nil {
		job.TotalTasks = *params.TotalTasks
	}
	if params.CompletedTasks != nil {
		job.CompletedTasks = *params.CompletedTasks
	}
	if params.FailedTasks != nil {
		job.FailedTasks = *params.FailedTasks
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.StartedAt != nil {
		job.StartedAt = params.StartedAt
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

type checklistStub struct {
	items []models.ChecklistItem
}

func (s checklistStub) List(ctx context.Context) ([]models.ChecklistItem, error) {
	return s.items, nil
}

type entryWriterStub struct {
	entries []models.CacheEntry
}

func (s *entryWriterStub) UpsertEntry(ctx context.Context, entry *models.CacheEntry) error {
	s.entries = append(s.entries, *entry)
	return nil
}

type generatorStub struct {
	validateErr error
	failItems   map[string]bool
}

func (g generatorStub) Validate() error { return g.validateErr }

func (g generatorStub) Generate(ctx context.Context, req generator.Request) (string, error) {
	if g.failItems[req.Item.ID] {
		return "", errors.New("backend rejected request")
	}
	return fmt.Sprintf("generated %s/%s", req.Item.ID, req.Language), nil
}

func (g generatorStub) Provider() string { return "gemini" }

func (g generatorStub) Model() string { return "gemini-2.0-flash" }

func testChecklist(n int) []models.ChecklistItem {
	items := make([]models.ChecklistItem, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, models.ChecklistItem{
			ID:             fmt.Sprintf("item-%d", i),
			Category:       "security",
			Title:          fmt.Sprintf("Item %d", i),
			Description:    "check this",
			AssessmentType: models.AssessmentTypeTechnical,
			SortOrder:      i,
		})
	}
	return items
}

func newGenerationServiceForTest(t *testing.T, gen generator.Generator, items []models.ChecklistItem) (*GenerationService, *generationStoreStub, *entryWriterStub) {
	t.Helper()
	store := newGenerationStoreStub()
	writer := &entryWriterStub{}
	broadcaster := events.NewBroadcaster(256, zap.NewNop())
	svc := NewGenerationService(store, checklistStub{items: items}, writer, gen, broadcaster, nil, config.GenerationConfig{
		Languages:   []string{"ko"},
		ItemTimeout: time.Second,
	}, zap.NewNop())
	return svc, store, writer
}

func drainEvents(ch <-chan events.Event, cancel func()) []events.Event {
	cancel()
	var drained []events.Event
	for event := range ch {
		drained = append(drained, event)
	}
	return drained
}

func countEvents(drained []events.Event, name string) int {
	count := 0
	for _, event := range drained {
		if event.Name == name {
			count++
		}
	}
	return count
}

func TestGenerationHandleContinuesPastItemFailure(t *testing.T) {
	gen := generatorStub{failItems: map[string]bool{"item-2": true}}
	svc, store, writer := newGenerationServiceForTest(t, gen, testChecklist(3))

	job := &models.GenerationJob{
		ID:          "job-1",
		ContentType: models.ContentTypeAdvice,
		Version:     "v1",
		Status:      models.GenerationStatusQueued,
		TotalTasks:  3,
	}
	require.NoError(t, store.Create(context.Background(), job))

	ch, cancel := svc.Subscribe(models.ContentTypeAdvice)
	require.NoError(t, svc.Handle(context.Background(), jobs.Job{
		ID:      job.ID,
		Payload: generationTask{JobID: job.ID, ContentType: models.ContentTypeAdvice, Languages: []models.Language{models.LanguageKorean}},
	}))
	drained := drainEvents(ch, cancel)

	final := store.jobs[job.ID]
	assert.Equal(t, models.GenerationStatusCompleted, final.Status)
	assert.Equal(t, 2, final.CompletedTasks)
	assert.Equal(t, 1, final.FailedTasks)
	require.NotNil(t, final.FinishedAt)

	require.Len(t, writer.entries, 2)
	assert.Equal(t, "item-1", writer.entries[0].ItemID)
	assert.Equal(t, "item-3", writer.entries[1].ItemID)
	assert.Equal(t, "v1", writer.entries[0].Version)

	assert.Equal(t, 3, countEvents(drained, models.EventProgress))
	assert.Equal(t, 2, countEvents(drained, models.EventItemComplete))
	assert.Equal(t, 1, countEvents(drained, models.EventItemError))
	assert.Equal(t, 1, countEvents(drained, models.EventComplete))
	assert.Equal(t, 0, countEvents(drained, models.EventError))
}

func TestGenerationHandleValidationFailureWritesNothing(t *testing.T) {
	gen := generatorStub{validateErr: errors.New("generation API key is not configured")}
	svc, store, writer := newGenerationServiceForTest(t, gen, testChecklist(2))

	job := &models.GenerationJob{
		ID:          "job-1",
		ContentType: models.ContentTypeAdvice,
		Version:     "v1",
		Status:      models.GenerationStatusQueued,
	}
	require.NoError(t, store.Create(context.Background(), job))

	ch, cancel := svc.Subscribe(models.ContentTypeAdvice)
	require.NoError(t, svc.Handle(context.Background(), jobs.Job{
		ID:      job.ID,
		Payload: generationTask{JobID: job.ID, ContentType: models.ContentTypeAdvice, Languages: []models.Language{models.LanguageKorean}},
	}))
	drained := drainEvents(ch, cancel)

	assert.Equal(t, models.GenerationStatusFailed, store.jobs[job.ID].Status)
	require.NotNil(t, store.jobs[job.ID].ErrorMessage)
	assert.Empty(t, writer.entries)
	assert.Equal(t, 1, countEvents(drained, models.EventError))
	assert.Equal(t, 0, countEvents(drained, models.EventItemComplete))
}

func TestGenerationStartRejectsSecondJob(t *testing.T) {
	svc, store, _ := newGenerationServiceForTest(t, generatorStub{}, testChecklist(2))

	queue := jobs.NewQueue("generation-test", func(ctx context.Context, job jobs.Job) error { return nil }, jobs.QueueConfig{Workers: 1, Logger: zap.NewNop()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()
	svc.BindQueue(queue)

	first, err := svc.Start(context.Background(), models.ContentTypeAdvice, "op-1", dto.StartGenerationRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.GenerationStatusQueued, first.Status)
	assert.Equal(t, 2, first.TotalTasks)

	_, err = svc.Start(context.Background(), models.ContentTypeAdvice, "op-1", dto.StartGenerationRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrJobAlreadyRunning.Code, appErrors.FromError(err).Code)

	// A different content type gets its own slot.
	_, err = svc.Start(context.Background(), models.ContentTypeVirtualEvidence, "op-1", dto.StartGenerationRequest{})
	require.NoError(t, err)

	// A finished job frees the slot.
	done := models.GenerationStatusCompleted
	require.NoError(t, store.Update(context.Background(), first.ID, repository.UpdateJobParams{Status: &done}))
	_, err = svc.Start(context.Background(), models.ContentTypeAdvice, "op-1", dto.StartGenerationRequest{})
	require.NoError(t, err)
}

func TestGenerationStartRequiresChecklist(t *testing.T) {
	svc, _, _ := newGenerationServiceForTest(t, generatorStub{}, nil)
	queue := jobs.NewQueue("generation-test", func(ctx context.Context, job jobs.Job) error { return nil }, jobs.QueueConfig{Workers: 1, Logger: zap.NewNop()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()
	svc.BindQueue(queue)

	_, err := svc.Start(context.Background(), models.ContentTypeAdvice, "op-1", dto.StartGenerationRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestBuildVersionTag(t *testing.T) {
	at := time.Date(2025, 7, 15, 9, 30, 0, 0, time.UTC)
	tag := buildVersionTag(at, "Gemini", "gemini-2.0-flash")
	assert.Equal(t, "20250715t093000_gemini_gemini-2.0-flash", tag)

	messy := buildVersionTag(at, "My Provider", "model//v2 (beta)")
	assert.Equal(t, "20250715t093000_my_provider_model_v2_beta_", messy)
}
