package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aiready/selfcheck-api/internal/dto"
	"github.com/aiready/selfcheck-api/internal/models"
	"github.com/aiready/selfcheck-api/internal/repository"
	appErrors "github.com/aiready/selfcheck-api/pkg/errors"
)

type versionStoreStub struct {
	versions map[string]*models.AssessmentVersion
	items    map[string][]models.AssessmentItem
	legacy   map[string][]models.AssessmentItem
	clock    time.Time
}

func newVersionStoreStub() *versionStoreStub {
	return &versionStoreStub{
		versions: map[string]*models.AssessmentVersion{},
		items:    map[string][]models.AssessmentItem{},
		legacy:   map[string][]models.AssessmentItem{},
		clock:    time.Now().UTC().Add(time.Hour),
	}
}

func (s *versionStoreStub) tick() time.Time {
	s.clock = s.clock.Add(time.Minute)
	return s.clock
}

func (s *versionStoreStub) ListByOwner(ctx context.Context, ownerID string, includeInactive bool, sortKey string) ([]models.AssessmentVersion, error) {
	var result []models.AssessmentVersion
	for _, v := range s.versions {
		if v.OwnerID != ownerID {
			continue
		}
		if !includeInactive && !v.IsActive {
			continue
		}
		result = append(result, *v)
	}
	sort.Slice(result, func(i, j int) bool {
		switch sortKey {
		case "createdAt":
			return result[i].CreatedAt.After(result[j].CreatedAt)
		case "updatedAt":
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		default:
			return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name)
		}
	})
	return result, nil
}

func (s *versionStoreStub) GetByID(ctx context.Context, id string) (*models.AssessmentVersion, error) {
	v, ok := s.versions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *v
	return &clone, nil
}

func (s *versionStoreStub) FindByName(ctx context.Context, ownerID, name string) (*models.AssessmentVersion, error) {
	for _, v := range s.versions {
		if v.OwnerID == ownerID && strings.EqualFold(v.Name, name) {
			clone := *v
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *versionStoreStub) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	count := 0
	for _, v := range s.versions {
		if v.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (s *versionStoreStub) Create(ctx context.Context, version *models.AssessmentVersion) error {
	for _, v := range s.versions {
		if v.OwnerID == version.OwnerID && strings.EqualFold(v.Name, version.Name) {
			return repository.ErrDuplicateKey
		}
	}
	if version.IsActive {
		for _, v := range s.versions {
			if v.OwnerID == version.OwnerID {
				v.IsActive = false
			}
		}
	}
	clone := *version
	s.versions[version.ID] = &clone
	return nil
}

func (s *versionStoreStub) Update(ctx context.Context, id string, name, description *string) error {
	v, ok := s.versions[id]
	if !ok {
		return sql.ErrNoRows
	}
	if name != nil {
		v.Name = *name
	}
	if description != nil {
		v.Description = description
	}
	v.UpdatedAt = s.tick()
	return nil
}

func (s *versionStoreStub) Activate(ctx context.Context, ownerID, versionID string) error {
	target, ok := s.versions[versionID]
	if !ok || target.OwnerID != ownerID {
		return sql.ErrNoRows
	}
	for _, v := range s.versions {
		if v.OwnerID == ownerID {
			v.IsActive = false
		}
	}
	target.IsActive = true
	target.UpdatedAt = s.tick()
	return nil
}

func (s *versionStoreStub) DeleteWithSuccessor(ctx context.Context, ownerID, versionID, successorID string) error {
	target, ok := s.versions[versionID]
	if !ok || target.OwnerID != ownerID {
		return sql.ErrNoRows
	}
	if successorID != "" {
		for _, v := range s.versions {
			if v.OwnerID == ownerID {
				v.IsActive = false
			}
		}
		if successor, ok := s.versions[successorID]; ok {
			successor.IsActive = true
			successor.UpdatedAt = s.tick()
		}
	}
	delete(s.versions, versionID)
	delete(s.items, versionID)
	return nil
}

func (s *versionStoreStub) Duplicate(ctx context.Context, sourceID string, duplicate *models.AssessmentVersion) error {
	clone := *duplicate
	s.versions[duplicate.ID] = &clone
	copied := make([]models.AssessmentItem, 0, len(s.items[sourceID]))
	for _, item := range s.items[sourceID] {
		item.VersionID = &duplicate.ID
		copied = append(copied, item)
	}
	s.items[duplicate.ID] = copied
	return nil
}

func (s *versionStoreStub) ListItems(ctx context.Context, versionID string) ([]models.AssessmentItem, error) {
	return append([]models.AssessmentItem(nil), s.items[versionID]...), nil
}

func (s *versionStoreStub) UpsertItem(ctx context.Context, item *models.AssessmentItem) error {
	item.LastUpdated = s.tick()
	existing := s.items[*item.VersionID]
	for i, candidate := range existing {
		if candidate.ItemID == item.ItemID && candidate.AssessmentType == item.AssessmentType {
			existing[i] = *item
			return nil
		}
	}
	s.items[*item.VersionID] = append(existing, *item)
	return nil
}

func (s *versionStoreStub) Progress(ctx context.Context, versionID string) (*models.VersionProgress, error) {
	progress := &models.VersionProgress{}
	for _, item := range s.items[versionID] {
		progress.TotalItems++
		if item.Met != nil {
			progress.CompletedItems++
		}
	}
	progress.CompletionPercentage = progress.Percentage()
	return progress, nil
}

func (s *versionStoreStub) CountLegacyItems(ctx context.Context, ownerID string) (int, error) {
	return len(s.legacy[ownerID]), nil
}

func (s *versionStoreStub) MigrateLegacy(ctx context.Context, version *models.AssessmentVersion) (int, error) {
	for _, v := range s.versions {
		if v.OwnerID == version.OwnerID {
			return 0, sql.ErrNoRows
		}
	}
	clone := *version
	s.versions[version.ID] = &clone
	migrated := s.legacy[version.OwnerID]
	for i := range migrated {
		migrated[i].VersionID = &version.ID
	}
	s.items[version.ID] = migrated
	delete(s.legacy, version.OwnerID)
	return len(migrated), nil
}

// gatedVersionStore lets two goroutines both observe the zero-version state
// before either is allowed to migrate, reproducing simultaneous triggers.
type gatedVersionStore struct {
	*versionStoreStub
	mu      sync.Mutex
	barrier sync.WaitGroup
}

func (s *gatedVersionStore) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	s.mu.Lock()
	count, err := s.versionStoreStub.CountByOwner(ctx, ownerID)
	s.mu.Unlock()
	if count == 0 {
		s.barrier.Done()
		s.barrier.Wait()
	}
	return count, err
}

func (s *gatedVersionStore) CountLegacyItems(ctx context.Context, ownerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versionStoreStub.CountLegacyItems(ctx, ownerID)
}

func (s *gatedVersionStore) MigrateLegacy(ctx context.Context, version *models.AssessmentVersion) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versionStoreStub.MigrateLegacy(ctx, version)
}

func (s *gatedVersionStore) Progress(ctx context.Context, versionID string) (*models.VersionProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versionStoreStub.Progress(ctx, versionID)
}

func newVersionServiceForTest(t *testing.T) (*VersionService, *versionStoreStub) {
	t.Helper()
	store := newVersionStoreStub()
	return NewVersionService(store, zap.NewNop()), store
}

func activeVersions(store *versionStoreStub, ownerID string) []string {
	var ids []string
	for id, v := range store.versions {
		if v.OwnerID == ownerID && v.IsActive {
			ids = append(ids, id)
		}
	}
	return ids
}

func TestVersionServiceCreateFirstVersionIsActive(t *testing.T) {
	svc, store := newVersionServiceForTest(t)

	first, err := svc.Create(context.Background(), "user-1", dto.CreateVersionRequest{Name: "Initial"})
	require.NoError(t, err)
	assert.True(t, first.IsActive)

	second, err := svc.Create(context.Background(), "user-1", dto.CreateVersionRequest{Name: "Draft"})
	require.NoError(t, err)
	assert.False(t, second.IsActive)

	require.Len(t, activeVersions(store, "user-1"), 1)
}

func TestVersionServiceCreateRejectsDuplicateName(t *testing.T) {
	svc, _ := newVersionServiceForTest(t)

	_, err := svc.Create(context.Background(), "user-1", dto.CreateVersionRequest{Name: "Initial"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), "user-1", dto.CreateVersionRequest{Name: "initial"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicateName.Code, appErr.Code)
}

// blindNameVersionStore never finds names, forcing Create to rely on the
// store's unique-key backstop the way a lost check-then-insert race would.
type blindNameVersionStore struct {
	*versionStoreStub
}

func (s *blindNameVersionStore) FindByName(ctx context.Context, ownerID, name string) (*models.AssessmentVersion, error) {
	return nil, sql.ErrNoRows
}

func TestVersionServiceCreateDuplicateNameBackstop(t *testing.T) {
	store := &blindNameVersionStore{versionStoreStub: newVersionStoreStub()}
	svc := NewVersionService(store, zap.NewNop())

	_, err := svc.Create(context.Background(), "user-1", dto.CreateVersionRequest{Name: "Initial"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), "user-1", dto.CreateVersionRequest{Name: "initial"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateName.Code, appErrors.FromError(err).Code)
}

func TestVersionServiceActivateIsIdempotent(t *testing.T) {
	svc, store := newVersionServiceForTest(t)

	first, err := svc.Create(context.Background(), "user-1", dto.CreateVersionRequest{Name: "A"})
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), "user-1", dto.CreateVersionRequest{Name: "B"})
	require.NoError(t, err)

	activated, alreadyActive, err := svc.Activate(context.Background(), "user-1", second.ID)
	require.NoError(t, err)
	assert.False(t, alreadyActive)
	assert.True(t, activated.IsActive)
	require.Len(t, activeVersions(store, "user-1"), 1)
	assert.False(t, store.versions[first.ID].IsActive)

	_, alreadyActive, err = svc.Activate(context.Background(), "user-1", second.ID)
	require.NoError(t, err)
	assert.True(t, alreadyActive)
	require.Len(t, activeVersions(store, "user-1"), 1)
}

func TestVersionServiceActivateForeignVersion(t *testing.T) {
	svc, _ := newVersionServiceForTest(t)

	mine, err := svc.Create(context.Background(), "user-1", dto.CreateVersionRequest{Name: "Mine"})
	require.NoError(t, err)

	_, _, err = svc.Activate(context.Background(), "user-2", mine.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestVersionServiceDuplicateIsIndependent(t *testing.T) {
	svc, store := newVersionServiceForTest(t)

	source, err := svc.Create(context.Background(), "user-1", dto.CreateVersionRequest{Name: "Source"})
	require.NoError(t, err)

	met := true
	_, err = svc.SaveItem(context.Background(), "user-1", dto.SaveItemRequest{
		ItemID:         "item-1",
		AssessmentType: models.AssessmentTypeTechnical,
		Met:            &met,
		Response:       "done",
	})
	require.NoError(t, err)

	duplicated, err := svc.Duplicate(context.Background(), "user-1", source.ID, dto.DuplicateVersionRequest{Name: "Copy"})
	require.NoError(t, err)
	assert.False(t, duplicated.IsActive)
	require.Len(t, store.items[duplicated.ID], 1)

	// Editing the source after duplication must not touch the copy.
	notMet := false
	_, err = svc.SaveItem(context.Background(), "user-1", dto.SaveItemRequest{
		ItemID:         "item-1",
		AssessmentType: models.AssessmentTypeTechnical,
		Met:            &notMet,
	})
	require.NoError(t, err)

	require.NotNil(t, store.items[duplicated.ID][0].Met)
	assert.True(t, *store.items[duplicated.ID][0].Met)
	require.NotNil(t, store.items[source.ID][0].Met)
	assert.False(t, *store.items[source.ID][0].Met)
}

func TestVersionServiceDeleteActiveActivatesSuccessor(t *testing.T) {
	svc, store := newVersionServiceForTest(t)

	first, err := svc.Create(context.Background(), "user-1", dto.CreateVersionRequest{Name: "A"})
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), "user-1", dto.CreateVersionRequest{Name: "B"})
	require.NoError(t, err)
	third, err := svc.Create(context.Background(), "user-1", dto.CreateVersionRequest{Name: "C"})
	require.NoError(t, err)

	// Touch the second version so it is the most recently updated sibling.
	name := "B2"
	_, err = svc.Update(context.Background(), "user-1", second.ID, dto.UpdateVersionRequest{Name: &name})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "user-1", first.ID))

	require.Len(t, activeVersions(store, "user-1"), 1)
	assert.True(t, store.versions[second.ID].IsActive)
	assert.False(t, store.versions[third.ID].IsActive)
	_, ok := store.versions[first.ID]
	assert.False(t, ok)
}

func TestVersionServiceDeleteLastVersion(t *testing.T) {
	svc, store := newVersionServiceForTest(t)

	only, err := svc.Create(context.Background(), "user-1", dto.CreateVersionRequest{Name: "Only"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), "user-1", only.ID))
	assert.Empty(t, store.versions)
}

func TestVersionServiceMigrateLegacy(t *testing.T) {
	svc, store := newVersionServiceForTest(t)
	met := true
	store.legacy["user-1"] = []models.AssessmentItem{
		{OwnerID: "user-1", ItemID: "item-1", AssessmentType: models.AssessmentTypePrerequisites, Met: &met},
		{OwnerID: "user-1", ItemID: "item-2", AssessmentType: models.AssessmentTypeTechnical},
	}

	version, err := svc.MigrateLegacy(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, version)
	assert.Equal(t, MigratedVersionName, version.Name)
	assert.True(t, version.IsActive)
	require.NotNil(t, version.Progress)
	assert.Equal(t, 2, version.Progress.TotalItems)
	assert.Equal(t, 1, version.Progress.CompletedItems)
	assert.Equal(t, 50, version.Progress.CompletionPercentage)

	// A second call is a no-op now that versions exist.
	again, err := svc.MigrateLegacy(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, again)
	require.Len(t, store.versions, 1)
}

func TestVersionServiceMigrateLegacyConcurrentCallers(t *testing.T) {
	base := newVersionStoreStub()
	base.legacy["user-1"] = []models.AssessmentItem{
		{OwnerID: "user-1", ItemID: "item-1", AssessmentType: models.AssessmentTypeTechnical},
	}
	store := &gatedVersionStore{versionStoreStub: base}
	store.barrier.Add(2)
	svc := NewVersionService(store, zap.NewNop())

	results := make([]*dto.VersionResponse, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			version, err := svc.MigrateLegacy(context.Background(), "user-1")
			assert.NoError(t, err)
			results[i] = version
		}(i)
	}
	wg.Wait()

	// Exactly one caller migrates; the other sees a no-op. The owner ends up
	// with a single active "Default" version either way.
	require.Len(t, base.versions, 1)
	require.Len(t, activeVersions(base, "user-1"), 1)
	migrations := 0
	for _, result := range results {
		if result != nil {
			migrations++
		}
	}
	assert.Equal(t, 1, migrations)
	assert.Empty(t, base.legacy["user-1"])
}

func TestVersionServiceListTriggersMigration(t *testing.T) {
	svc, store := newVersionServiceForTest(t)
	store.legacy["user-1"] = []models.AssessmentItem{
		{OwnerID: "user-1", ItemID: "item-1", AssessmentType: models.AssessmentTypeTechnical},
	}

	versions, err := svc.List(context.Background(), "user-1", dto.ListVersionsQuery{})
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, MigratedVersionName, versions[0].Name)
	assert.Empty(t, store.legacy["user-1"])
}

func TestVersionServiceSaveItemWithoutVersions(t *testing.T) {
	svc, _ := newVersionServiceForTest(t)

	_, err := svc.SaveItem(context.Background(), "user-1", dto.SaveItemRequest{
		ItemID:         "item-1",
		AssessmentType: models.AssessmentTypeTechnical,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestVersionServiceSaveItemOverwrites(t *testing.T) {
	svc, store := newVersionServiceForTest(t)

	version, err := svc.Create(context.Background(), "user-1", dto.CreateVersionRequest{Name: "Active"})
	require.NoError(t, err)

	met := true
	_, err = svc.SaveItem(context.Background(), "user-1", dto.SaveItemRequest{
		ItemID:         "item-1",
		AssessmentType: models.AssessmentTypeTechnical,
		Met:            &met,
		Response:       "first answer",
	})
	require.NoError(t, err)

	_, err = svc.SaveItem(context.Background(), "user-1", dto.SaveItemRequest{
		ItemID:         "item-1",
		AssessmentType: models.AssessmentTypeTechnical,
		Response:       "revised answer",
	})
	require.NoError(t, err)

	require.Len(t, store.items[version.ID], 1)
	saved := store.items[version.ID][0]
	assert.Nil(t, saved.Met)
	assert.Equal(t, "revised answer", saved.Response)
}

func TestVersionServiceUpdateKeepsOwnName(t *testing.T) {
	svc, _ := newVersionServiceForTest(t)

	version, err := svc.Create(context.Background(), "user-1", dto.CreateVersionRequest{Name: "Same"})
	require.NoError(t, err)

	name := "Same"
	description := "refreshed"
	updated, err := svc.Update(context.Background(), "user-1", version.ID, dto.UpdateVersionRequest{Name: &name, Description: &description})
	require.NoError(t, err)
	assert.Equal(t, "Same", updated.Name)
	assert.Equal(t, "refreshed", updated.Description)
}

func TestVersionServiceGetUnknownVersion(t *testing.T) {
	svc, _ := newVersionServiceForTest(t)
	_, err := svc.Get(context.Background(), "user-1", "missing")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
