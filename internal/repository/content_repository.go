package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aiready/selfcheck-api/internal/models"
)

// ContentRepository persists generated cache entries and the per-type active
// version pointer.
type ContentRepository struct {
	db *sqlx.DB
}

// NewContentRepository constructs the repository.
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

const entryColumns = `content_type, item_id, category, title, content, language, version, created_at`

// GetEntry fetches one generated text.
func (r *ContentRepository) GetEntry(ctx context.Context, contentType models.ContentType, itemID string, language models.Language, version string) (*models.CacheEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM content_cache
WHERE content_type = $1 AND item_id = $2 AND language = $3 AND version = $4`, entryColumns)
	var entry models.CacheEntry
	if err := r.db.GetContext(ctx, &entry, query, contentType, itemID, language, version); err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpsertEntry writes one generated text, overwriting a previous row under the
// same (content_type, item_id, language, version) key.
func (r *ContentRepository) UpsertEntry(ctx context.Context, entry *models.CacheEntry) error {
	const query = `INSERT INTO content_cache (content_type, item_id, category, title, content, language, version, created_at)
VALUES (:content_type, :item_id, :category, :title, :content, :language, :version, :created_at)
ON CONFLICT (content_type, item_id, language, version)
DO UPDATE SET category = EXCLUDED.category, title = EXCLUDED.title, content = EXCLUDED.content, created_at = EXCLUDED.created_at`
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// BulkUpsertEntries writes a batch of entries in one transaction, used by
// bundle import so a partial import never commits.
func (r *ContentRepository) BulkUpsertEntries(ctx context.Context, entries []models.CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk entry tx: %w", err)
	}
	const query = `INSERT INTO content_cache (content_type, item_id, category, title, content, language, version, created_at)
VALUES (:content_type, :item_id, :category, :title, :content, :language, :version, :created_at)
ON CONFLICT (content_type, item_id, language, version)
DO UPDATE SET category = EXCLUDED.category, title = EXCLUDED.title, content = EXCLUDED.content, created_at = EXCLUDED.created_at`
	for i := range entries {
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = time.Now().UTC()
		}
		if _, err := tx.NamedExecContext(ctx, query, entries[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("bulk upsert cache entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk entry tx: %w", err)
	}
	return nil
}

// ListVersions aggregates stored entries per version tag, newest first.
func (r *ContentRepository) ListVersions(ctx context.Context, contentType models.ContentType) ([]models.CacheVersionInfo, error) {
	const query = `SELECT version, COUNT(*) AS item_count, MIN(created_at) AS created_at
FROM content_cache WHERE content_type = $1
GROUP BY version ORDER BY MIN(created_at) DESC`
	var versions []models.CacheVersionInfo
	if err := r.db.SelectContext(ctx, &versions, query, contentType); err != nil {
		return nil, fmt.Errorf("list cache versions: %w", err)
	}
	return versions, nil
}

// ListEntriesByVersion returns every entry of one version for export.
func (r *ContentRepository) ListEntriesByVersion(ctx context.Context, contentType models.ContentType, version string) ([]models.CacheEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM content_cache
WHERE content_type = $1 AND version = $2 ORDER BY language, item_id`, entryColumns)
	var entries []models.CacheEntry
	if err := r.db.SelectContext(ctx, &entries, query, contentType, version); err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	return entries, nil
}

// CountByVersion counts entries under a version for one content type.
func (r *ContentRepository) CountByVersion(ctx context.Context, contentType models.ContentType, version string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM content_cache WHERE content_type = $1 AND version = $2`, contentType, version); err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return count, nil
}

// LanguageCounts aggregates entry counts per language for one version.
func (r *ContentRepository) LanguageCounts(ctx context.Context, version string) (map[models.Language]int, error) {
	const query = `SELECT language, COUNT(*) AS item_count FROM content_cache WHERE version = $1 GROUP BY language`
	rows := []struct {
		Language  models.Language `db:"language"`
		ItemCount int             `db:"item_count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, version); err != nil {
		return nil, fmt.Errorf("language counts: %w", err)
	}
	counts := make(map[models.Language]int, len(rows))
	for _, row := range rows {
		counts[row.Language] = row.ItemCount
	}
	return counts, nil
}

// DeleteByContentType bulk-deletes every entry of one content type. The
// active pointer is intentionally left untouched.
func (r *ContentRepository) DeleteByContentType(ctx context.Context, contentType models.ContentType) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM content_cache WHERE content_type = $1`, contentType)
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		deleted = 0
	}
	return int(deleted), nil
}

// GetActivePointer resolves the active version for a content type.
func (r *ContentRepository) GetActivePointer(ctx context.Context, contentType models.ContentType) (*models.ActiveCachePointer, error) {
	const query = `SELECT content_type, version, updated_at FROM active_cache_versions WHERE content_type = $1`
	var pointer models.ActiveCachePointer
	if err := r.db.GetContext(ctx, &pointer, query, contentType); err != nil {
		return nil, err
	}
	return &pointer, nil
}

// SetActivePointer upserts the single pointer row for a content type.
func (r *ContentRepository) SetActivePointer(ctx context.Context, pointer *models.ActiveCachePointer) error {
	const query = `INSERT INTO active_cache_versions (content_type, version, updated_at)
VALUES (:content_type, :version, :updated_at)
ON CONFLICT (content_type)
DO UPDATE SET version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`
	pointer.UpdatedAt = time.Now().UTC()
	if _, err := r.db.NamedExecContext(ctx, query, pointer); err != nil {
		return fmt.Errorf("set active pointer: %w", err)
	}
	return nil
}
