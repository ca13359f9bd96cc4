package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aiready/selfcheck-api/internal/dto"
	"github.com/aiready/selfcheck-api/internal/models"
	appErrors "github.com/aiready/selfcheck-api/pkg/errors"
)

type contentStore interface {
	GetEntry(ctx context.Context, contentType models.ContentType, itemID string, language models.Language, version string) (*models.CacheEntry, error)
	BulkUpsertEntries(ctx context.Context, entries []models.CacheEntry) error
	ListVersions(ctx context.Context, contentType models.ContentType) ([]models.CacheVersionInfo, error)
	ListEntriesByVersion(ctx context.Context, contentType models.ContentType, version string) ([]models.CacheEntry, error)
	CountByVersion(ctx context.Context, contentType models.ContentType, version string) (int, error)
	LanguageCounts(ctx context.Context, version string) (map[models.Language]int, error)
	DeleteByContentType(ctx context.Context, contentType models.ContentType) (int, error)
	GetActivePointer(ctx context.Context, contentType models.ContentType) (*models.ActiveCachePointer, error)
	SetActivePointer(ctx context.Context, pointer *models.ActiveCachePointer) error
}

type contentReadThrough interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// ContentService owns the lifecycle of generated-content cache versions: the
// read path with the active-version pointer, promotion, bundles and stats.
type ContentService struct {
	repo      contentStore
	redis     contentReadThrough
	metrics   *MetricsService
	validator *validator.Validate
	ttl       time.Duration
	logger    *zap.Logger
	enabled   bool
}

// NewContentService constructs a ContentService. The redis layer is optional;
// passing nil disables read-through caching.
func NewContentService(repo contentStore, redis contentReadThrough, metrics *MetricsService, validate *validator.Validate, ttl time.Duration, logger *zap.Logger, cacheEnabled bool) *ContentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	svc := &ContentService{
		repo:      repo,
		redis:     redis,
		metrics:   metrics,
		validator: validate,
		ttl:       ttl,
		logger:    logger,
		enabled:   cacheEnabled,
	}
	svc.validator.RegisterValidation("cache_language", func(fl validator.FieldLevel) bool {
		return models.ValidLanguage(models.Language(fl.Field().String()))
	})
	return svc
}

// GetContent resolves one generated text. When no version is given the
// active pointer decides; a missing pointer reads as not-found so callers
// fall through to live generation or a placeholder.
func (s *ContentService) GetContent(ctx context.Context, contentType models.ContentType, itemID string, language models.Language, version string) (*dto.ContentResponse, error) {
	if !models.ValidContentType(contentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported content type")
	}
	if !models.ValidLanguage(language) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported language")
	}

	useActive := version == ""
	if useActive {
		if cached, ok := s.readThrough(ctx, contentType, itemID, language); ok {
			return cached, nil
		}
		pointer, err := s.repo.GetActivePointer(ctx, contentType)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "no active content version")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve active version")
		}
		version = pointer.Version
	}

	entry, err := s.repo.GetEntry(ctx, contentType, itemID, language, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "content not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load content")
	}

	resp := &dto.ContentResponse{
		ItemID:   entry.ItemID,
		Category: entry.Category,
		Title:    entry.Title,
		Content:  entry.Content,
		Language: entry.Language,
		Version:  entry.Version,
	}
	if useActive {
		s.writeThrough(ctx, contentType, itemID, language, resp)
	}
	return resp, nil
}

// ListVersions aggregates stored cache versions for a content type, newest
// first, marking which one the pointer currently selects.
func (s *ContentService) ListVersions(ctx context.Context, contentType models.ContentType) ([]models.CacheVersionInfo, string, error) {
	if !models.ValidContentType(contentType) {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported content type")
	}
	versions, err := s.repo.ListVersions(ctx, contentType)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cache versions")
	}
	active := ""
	pointer, err := s.repo.GetActivePointer(ctx, contentType)
	if err == nil {
		active = pointer.Version
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve active version")
	}
	return versions, active, nil
}

// SetActiveVersion promotes a cache version for every reader of the content
// type. Promoting a version with no entries is rejected.
func (s *ContentService) SetActiveVersion(ctx context.Context, contentType models.ContentType, version string) error {
	if !models.ValidContentType(contentType) {
		return appErrors.Clone(appErrors.ErrValidation, "unsupported content type")
	}
	count, err := s.repo.CountByVersion(ctx, contentType, version)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count version entries")
	}
	if count == 0 {
		return appErrors.Clone(appErrors.ErrEmptyVersion, fmt.Sprintf("cache version %q has no %s entries", version, contentType))
	}
	pointer := &models.ActiveCachePointer{ContentType: contentType, Version: version}
	if err := s.repo.SetActivePointer(ctx, pointer); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set active version")
	}
	s.invalidate(ctx, contentType)
	s.logger.Sugar().Infow("active content version changed", "content_type", contentType, "version", version)
	return nil
}

// Stats counts entries per language for one version. With no version given
// the content type's active pointer decides.
func (s *ContentService) Stats(ctx context.Context, contentType models.ContentType, version string) (*models.CacheStats, error) {
	if version == "" {
		pointer, err := s.repo.GetActivePointer(ctx, contentType)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "no active content version")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve active version")
		}
		version = pointer.Version
	}
	counts, err := s.repo.LanguageCounts(ctx, version)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute cache stats")
	}
	stats := &models.CacheStats{Version: version, Counts: counts}
	for _, count := range counts {
		stats.Total += count
	}
	return stats, nil
}

// ExportBundle serialises a whole cache version into a portable bundle.
func (s *ContentService) ExportBundle(ctx context.Context, contentType models.ContentType, version string) (*dto.CacheBundle, error) {
	if !models.ValidContentType(contentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported content type")
	}
	entries, err := s.repo.ListEntriesByVersion(ctx, contentType, version)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export bundle")
	}
	if len(entries) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "cache version not found")
	}

	bundle := &dto.CacheBundle{
		Version:    version,
		ExportedAt: time.Now().UTC(),
		TotalItems: len(entries),
		Items:      make([]dto.CacheBundleItem, 0, len(entries)),
	}
	for _, entry := range entries {
		switch entry.Language {
		case models.LanguageKorean:
			bundle.KoCount++
		case models.LanguageEnglish:
			bundle.EnCount++
		}
		bundle.Items = append(bundle.Items, dto.CacheBundleItem{
			ItemID:    entry.ItemID,
			Category:  entry.Category,
			Title:     entry.Title,
			Content:   entry.Content,
			Language:  entry.Language,
			CreatedAt: entry.CreatedAt,
		})
	}
	return bundle, nil
}

// ImportBundle writes the bundle's entries under its own version tag.
// Importing the same bundle twice converges on the same end state.
func (s *ContentService) ImportBundle(ctx context.Context, contentType models.ContentType, bundle dto.CacheBundle) (int, error) {
	if !models.ValidContentType(contentType) {
		return 0, appErrors.Clone(appErrors.ErrValidation, "unsupported content type")
	}
	if err := s.validator.Struct(bundle); err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	entries := make([]models.CacheEntry, 0, len(bundle.Items))
	for _, item := range bundle.Items {
		entries = append(entries, models.CacheEntry{
			ContentType: contentType,
			ItemID:      item.ItemID,
			Category:    item.Category,
			Title:       item.Title,
			Content:     item.Content,
			Language:    item.Language,
			Version:     bundle.Version,
			CreatedAt:   item.CreatedAt,
		})
	}
	if err := s.repo.BulkUpsertEntries(ctx, entries); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to import bundle")
	}
	s.invalidate(ctx, contentType)
	return len(entries), nil
}

// Clear deletes every entry of the content type. The active pointer is left
// in place: reads against it then return not-found, a safe fail-closed state.
func (s *ContentService) Clear(ctx context.Context, contentType models.ContentType) (int, error) {
	if !models.ValidContentType(contentType) {
		return 0, appErrors.Clone(appErrors.ErrValidation, "unsupported content type")
	}
	deleted, err := s.repo.DeleteByContentType(ctx, contentType)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear cache")
	}
	s.invalidate(ctx, contentType)
	return deleted, nil
}

func contentCacheKey(contentType models.ContentType, itemID string, language models.Language) string {
	return fmt.Sprintf("content:%s:%s:%s", contentType, language, itemID)
}

func (s *ContentService) readThrough(ctx context.Context, contentType models.ContentType, itemID string, language models.Language) (*dto.ContentResponse, bool) {
	if !s.enabled || s.redis == nil {
		return nil, false
	}
	var cached dto.ContentResponse
	start := time.Now()
	err := s.redis.Get(ctx, contentCacheKey(contentType, itemID, language), &cached)
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	}
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("content cache get failed", zap.Error(err))
		}
		return nil, false
	}
	return &cached, true
}

func (s *ContentService) writeThrough(ctx context.Context, contentType models.ContentType, itemID string, language models.Language, resp *dto.ContentResponse) {
	if !s.enabled || s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, contentCacheKey(contentType, itemID, language), resp, s.ttl); err != nil {
		s.logger.Warn("content cache set failed", zap.Error(err))
	}
}

func (s *ContentService) invalidate(ctx context.Context, contentType models.ContentType) {
	if !s.enabled || s.redis == nil {
		return
	}
	if err := s.redis.DeleteByPattern(ctx, fmt.Sprintf("content:%s:*", contentType)); err != nil {
		s.logger.Warn("content cache invalidation failed", zap.Error(err))
	}
}
