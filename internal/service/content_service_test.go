package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aiready/selfcheck-api/internal/dto"
	"github.com/aiready/selfcheck-api/internal/models"
	appErrors "github.com/aiready/selfcheck-api/pkg/errors"
)

type entryKey struct {
	contentType models.ContentType
	itemID      string
	language    models.Language
	version     string
}

type contentStoreStub struct {
	entries  map[entryKey]models.CacheEntry
	pointers map[models.ContentType]string
	getCalls int
}

func newContentStoreStub() *contentStoreStub {
	return &contentStoreStub{
		entries:  map[entryKey]models.CacheEntry{},
		pointers: map[models.ContentType]string{},
	}
}

func (s *contentStoreStub) put(entry models.CacheEntry) {
	s.entries[entryKey{entry.ContentType, entry.ItemID, entry.Language, entry.Version}] = entry
}

func (s *contentStoreStub) GetEntry(ctx context.Context, contentType models.ContentType, itemID string, language models.Language, version string) (*models.CacheEntry, error) {
	s.getCalls++
	entry, ok := s.entries[entryKey{contentType, itemID, language, version}]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &entry, nil
}

func (s *contentStoreStub) BulkUpsertEntries(ctx context.Context, entries []models.CacheEntry) error {
	for _, entry := range entries {
		s.put(entry)
	}
	return nil
}

func (s *contentStoreStub) ListVersions(ctx context.Context, contentType models.ContentType) ([]models.CacheVersionInfo, error) {
	counts := map[string]int{}
	for key := range s.entries {
		if key.contentType == contentType {
			counts[key.version]++
		}
	}
	var infos []models.CacheVersionInfo
	for version, count := range counts {
		infos = append(infos, models.CacheVersionInfo{Version: version, ItemCount: count})
	}
	return infos, nil
}

func (s *contentStoreStub) ListEntriesByVersion(ctx context.Context, contentType models.ContentType, version string) ([]models.CacheEntry, error) {
	var entries []models.CacheEntry
	for key, entry := range s.entries {
		if key.contentType == contentType && key.version == version {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *contentStoreStub) CountByVersion(ctx context.Context, contentType models.ContentType, version string) (int, error) {
	count := 0
	for key := range s.entries {
		if key.contentType == contentType && key.version == version {
			count++
		}
	}
	return count, nil
}

func (s *contentStoreStub) LanguageCounts(ctx context.Context, version string) (map[models.Language]int, error) {
	counts := map[models.Language]int{}
	for key := range s.entries {
		if key.version == version {
			counts[key.language]++
		}
	}
	return counts, nil
}

func (s *contentStoreStub) DeleteByContentType(ctx context.Context, contentType models.ContentType) (int, error) {
	deleted := 0
	for key := range s.entries {
		if key.contentType == contentType {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *contentStoreStub) GetActivePointer(ctx context.Context, contentType models.ContentType) (*models.ActiveCachePointer, error) {
	version, ok := s.pointers[contentType]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.ActiveCachePointer{ContentType: contentType, Version: version}, nil
}

func (s *contentStoreStub) SetActivePointer(ctx context.Context, pointer *models.ActiveCachePointer) error {
	s.pointers[pointer.ContentType] = pointer.Version
	return nil
}

type readThroughStub struct {
	values map[string][]byte
}

func newReadThroughStub() *readThroughStub {
	return &readThroughStub{values: map[string][]byte{}}
}

func (r *readThroughStub) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := r.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *readThroughStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.values[key] = raw
	return nil
}

func (r *readThroughStub) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range r.values {
		if strings.HasPrefix(key, prefix) {
			delete(r.values, key)
		}
	}
	return nil
}

func newContentServiceForTest(t *testing.T) (*ContentService, *contentStoreStub, *readThroughStub) {
	t.Helper()
	store := newContentStoreStub()
	redis := newReadThroughStub()
	svc := NewContentService(store, redis, nil, nil, time.Minute, zap.NewNop(), true)
	return svc, store, redis
}

func seedVersion(store *contentStoreStub, contentType models.ContentType, version string, items ...string) {
	for _, itemID := range items {
		for _, language := range []models.Language{models.LanguageKorean, models.LanguageEnglish} {
			store.put(models.CacheEntry{
				ContentType: contentType,
				ItemID:      itemID,
				Category:    "security",
				Title:       "Title " + itemID,
				Content:     "content for " + itemID + " in " + string(language),
				Language:    language,
				Version:     version,
				CreatedAt:   time.Now().UTC(),
			})
		}
	}
}

func TestContentServiceGetWithoutActivePointer(t *testing.T) {
	svc, store, _ := newContentServiceForTest(t)
	seedVersion(store, models.ContentTypeAdvice, "v1", "item-1")

	_, err := svc.GetContent(context.Background(), models.ContentTypeAdvice, "item-1", models.LanguageKorean, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestContentServiceGetResolvesActivePointer(t *testing.T) {
	svc, store, _ := newContentServiceForTest(t)
	seedVersion(store, models.ContentTypeAdvice, "v1", "item-1")
	seedVersion(store, models.ContentTypeAdvice, "v2", "item-1")
	store.pointers[models.ContentTypeAdvice] = "v2"

	content, err := svc.GetContent(context.Background(), models.ContentTypeAdvice, "item-1", models.LanguageEnglish, "")
	require.NoError(t, err)
	assert.Equal(t, "v2", content.Version)
	assert.Equal(t, models.LanguageEnglish, content.Language)
}

func TestContentServiceGetExplicitVersionBypassesPointer(t *testing.T) {
	svc, store, _ := newContentServiceForTest(t)
	seedVersion(store, models.ContentTypeAdvice, "v1", "item-1")
	store.pointers[models.ContentTypeAdvice] = "v2"

	content, err := svc.GetContent(context.Background(), models.ContentTypeAdvice, "item-1", models.LanguageKorean, "v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", content.Version)
}

func TestContentServiceActivePathUsesReadThrough(t *testing.T) {
	svc, store, _ := newContentServiceForTest(t)
	seedVersion(store, models.ContentTypeAdvice, "v1", "item-1")
	store.pointers[models.ContentTypeAdvice] = "v1"

	_, err := svc.GetContent(context.Background(), models.ContentTypeAdvice, "item-1", models.LanguageKorean, "")
	require.NoError(t, err)
	firstCalls := store.getCalls

	content, err := svc.GetContent(context.Background(), models.ContentTypeAdvice, "item-1", models.LanguageKorean, "")
	require.NoError(t, err)
	assert.Equal(t, "v1", content.Version)
	assert.Equal(t, firstCalls, store.getCalls)
}

func TestContentServiceSetActiveVersionRejectsEmpty(t *testing.T) {
	svc, store, _ := newContentServiceForTest(t)
	seedVersion(store, models.ContentTypeAdvice, "v1", "item-1")

	err := svc.SetActiveVersion(context.Background(), models.ContentTypeAdvice, "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEmptyVersion.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.pointers)
}

func TestContentServiceSetActiveVersionInvalidatesCache(t *testing.T) {
	svc, store, redis := newContentServiceForTest(t)
	seedVersion(store, models.ContentTypeAdvice, "v1", "item-1")
	seedVersion(store, models.ContentTypeAdvice, "v2", "item-1")
	store.pointers[models.ContentTypeAdvice] = "v1"

	// Warm the cache with v1 content.
	_, err := svc.GetContent(context.Background(), models.ContentTypeAdvice, "item-1", models.LanguageKorean, "")
	require.NoError(t, err)
	require.NotEmpty(t, redis.values)

	require.NoError(t, svc.SetActiveVersion(context.Background(), models.ContentTypeAdvice, "v2"))
	assert.Empty(t, redis.values)

	content, err := svc.GetContent(context.Background(), models.ContentTypeAdvice, "item-1", models.LanguageKorean, "")
	require.NoError(t, err)
	assert.Equal(t, "v2", content.Version)
}

func TestContentServiceStatsDefaultsToActiveVersion(t *testing.T) {
	svc, store, _ := newContentServiceForTest(t)
	seedVersion(store, models.ContentTypeAdvice, "v1", "item-1", "item-2")
	store.pointers[models.ContentTypeAdvice] = "v1"

	stats, err := svc.Stats(context.Background(), models.ContentTypeAdvice, "")
	require.NoError(t, err)
	assert.Equal(t, "v1", stats.Version)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Counts[models.LanguageKorean])
	assert.Equal(t, 2, stats.Counts[models.LanguageEnglish])
}

func TestContentServiceBundleRoundTrip(t *testing.T) {
	svc, store, _ := newContentServiceForTest(t)
	seedVersion(store, models.ContentTypeAdvice, "v1", "item-1", "item-2")

	bundle, err := svc.ExportBundle(context.Background(), models.ContentTypeAdvice, "v1")
	require.NoError(t, err)
	assert.Equal(t, 4, bundle.TotalItems)
	assert.Equal(t, 2, bundle.KoCount)
	assert.Equal(t, 2, bundle.EnCount)

	// Importing the exported bundle again converges on the same state.
	imported, err := svc.ImportBundle(context.Background(), models.ContentTypeAdvice, *bundle)
	require.NoError(t, err)
	assert.Equal(t, 4, imported)

	stats, err := svc.Stats(context.Background(), models.ContentTypeAdvice, "v1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
}

func TestContentServiceImportBundleIntoEmptyStore(t *testing.T) {
	source, sourceStore, _ := newContentServiceForTest(t)
	seedVersion(sourceStore, models.ContentTypeVirtualEvidence, "v9", "item-1")
	bundle, err := source.ExportBundle(context.Background(), models.ContentTypeVirtualEvidence, "v9")
	require.NoError(t, err)

	target, targetStore, _ := newContentServiceForTest(t)
	imported, err := target.ImportBundle(context.Background(), models.ContentTypeVirtualEvidence, *bundle)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)

	require.NoError(t, target.SetActiveVersion(context.Background(), models.ContentTypeVirtualEvidence, "v9"))
	assert.Equal(t, "v9", targetStore.pointers[models.ContentTypeVirtualEvidence])
}

func TestContentServiceImportBundleRejectsBadLanguage(t *testing.T) {
	svc, _, _ := newContentServiceForTest(t)
	_, err := svc.ImportBundle(context.Background(), models.ContentTypeAdvice, dto.CacheBundle{
		Version: "v1",
		Items:   []dto.CacheBundleItem{{ItemID: "item-1", Language: "fr", Content: "bonjour"}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestContentServiceClearKeepsPointer(t *testing.T) {
	svc, store, _ := newContentServiceForTest(t)
	seedVersion(store, models.ContentTypeAdvice, "v1", "item-1")
	store.pointers[models.ContentTypeAdvice] = "v1"

	deleted, err := svc.Clear(context.Background(), models.ContentTypeAdvice)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	// The stale pointer now reads as not-found rather than serving content.
	_, err = svc.GetContent(context.Background(), models.ContentTypeAdvice, "item-1", models.LanguageKorean, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
