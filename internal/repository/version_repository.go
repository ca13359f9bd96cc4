package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/aiready/selfcheck-api/internal/models"
)

// ErrDuplicateKey reports a unique constraint violation. The partial unique
// index ux_assessment_versions_owner_lower_name on (owner_id, LOWER(name))
// backstops the service-level name check under concurrent writes.
var ErrDuplicateKey = errors.New("duplicate key")

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// VersionRepository persists assessment versions and their items. Every
// multi-step invariant (single active version, cascade delete, legacy
// migration) runs inside one transaction.
type VersionRepository struct {
	db *sqlx.DB
}

// NewVersionRepository constructs the repository.
func NewVersionRepository(db *sqlx.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

const versionColumns = `id, owner_id, name, description, is_active, created_at, updated_at`

var versionSortColumns = map[string]string{
	"name":      "LOWER(name) ASC",
	"createdAt": "created_at DESC",
	"updatedAt": "updated_at DESC",
}

// ListByOwner returns the owner's versions with the requested ordering.
func (r *VersionRepository) ListByOwner(ctx context.Context, ownerID string, includeInactive bool, sortKey string) ([]models.AssessmentVersion, error) {
	order, ok := versionSortColumns[sortKey]
	if !ok {
		order = versionSortColumns["name"]
	}
	query := fmt.Sprintf(`SELECT %s FROM assessment_versions WHERE owner_id = $1`, versionColumns)
	if !includeInactive {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY ` + order

	var versions []models.AssessmentVersion
	if err := r.db.SelectContext(ctx, &versions, query, ownerID); err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return versions, nil
}

// GetByID fetches a single version.
func (r *VersionRepository) GetByID(ctx context.Context, id string) (*models.AssessmentVersion, error) {
	query := fmt.Sprintf(`SELECT %s FROM assessment_versions WHERE id = $1`, versionColumns)
	var version models.AssessmentVersion
	if err := r.db.GetContext(ctx, &version, query, id); err != nil {
		return nil, err
	}
	return &version, nil
}

// FindByName resolves a version by owner and case-insensitive name.
func (r *VersionRepository) FindByName(ctx context.Context, ownerID, name string) (*models.AssessmentVersion, error) {
	query := fmt.Sprintf(`SELECT %s FROM assessment_versions WHERE owner_id = $1 AND LOWER(name) = LOWER($2)`, versionColumns)
	var version models.AssessmentVersion
	if err := r.db.GetContext(ctx, &version, query, ownerID, name); err != nil {
		return nil, err
	}
	return &version, nil
}

// CountByOwner returns how many versions the owner has.
func (r *VersionRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM assessment_versions WHERE owner_id = $1`, ownerID); err != nil {
		return 0, fmt.Errorf("count versions: %w", err)
	}
	return count, nil
}

// Create inserts a version. When the version is created active, every sibling
// is deactivated in the same transaction.
func (r *VersionRepository) Create(ctx context.Context, version *models.AssessmentVersion) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create version tx: %w", err)
	}
	if version.IsActive {
		if _, err := tx.ExecContext(ctx, `UPDATE assessment_versions SET is_active = FALSE WHERE owner_id = $1`, version.OwnerID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("deactivate siblings: %w", err)
		}
	}
	const query = `INSERT INTO assessment_versions (id, owner_id, name, description, is_active, created_at, updated_at)
VALUES (:id, :owner_id, :name, :description, :is_active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, version); err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create version tx: %w", err)
	}
	return nil
}

// Update applies partial metadata changes.
func (r *VersionRepository) Update(ctx context.Context, id string, name, description *string) error {
	sets := []string{"updated_at = $1"}
	args := []interface{}{time.Now().UTC()}
	if name != nil {
		args = append(args, *name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if description != nil {
		args = append(args, *description)
		sets = append(sets, fmt.Sprintf("description = $%d", len(args)))
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE assessment_versions SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("update version: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Activate flips the owner's active pointer to the target version. The
// deactivate/activate pair commits atomically so readers never observe zero
// or two active versions.
func (r *VersionRepository) Activate(ctx context.Context, ownerID, versionID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activate tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE assessment_versions SET is_active = FALSE, updated_at = NOW() WHERE owner_id = $1 AND is_active = TRUE`, ownerID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("deactivate versions: %w", err)
	}
	result, err := tx.ExecContext(ctx, `UPDATE assessment_versions SET is_active = TRUE, updated_at = NOW() WHERE id = $1 AND owner_id = $2`, versionID, ownerID)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("activate version: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		_ = tx.Rollback()
		return sql.ErrNoRows
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit activate tx: %w", err)
	}
	return nil
}

// DeleteWithSuccessor removes a version and its items. When successorID is
// set, the successor is activated in the same transaction so the owner is
// never left without an active version.
func (r *VersionRepository) DeleteWithSuccessor(ctx context.Context, ownerID, versionID, successorID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete version tx: %w", err)
	}
	if successorID != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE assessment_versions SET is_active = FALSE WHERE owner_id = $1`, ownerID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("deactivate versions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE assessment_versions SET is_active = TRUE, updated_at = NOW() WHERE id = $1 AND owner_id = $2`, successorID, ownerID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("activate successor: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM assessment_items WHERE version_id = $1`, versionID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete version items: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM assessment_versions WHERE id = $1 AND owner_id = $2`, versionID, ownerID)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete version: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		_ = tx.Rollback()
		return sql.ErrNoRows
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete version tx: %w", err)
	}
	return nil
}

// Duplicate inserts the copy and clones every source item onto it in one
// transaction. The copy's items are independent rows from commit onward.
func (r *VersionRepository) Duplicate(ctx context.Context, sourceID string, duplicate *models.AssessmentVersion) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin duplicate tx: %w", err)
	}
	const insertVersion = `INSERT INTO assessment_versions (id, owner_id, name, description, is_active, created_at, updated_at)
VALUES (:id, :owner_id, :name, :description, :is_active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertVersion, duplicate); err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert duplicate version: %w", err)
	}
	const copyItems = `INSERT INTO assessment_items (version_id, owner_id, item_id, assessment_type, met, response, last_updated)
SELECT $1, owner_id, item_id, assessment_type, met, response, NOW()
FROM assessment_items WHERE version_id = $2`
	if _, err := tx.ExecContext(ctx, copyItems, duplicate.ID, sourceID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("copy items: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit duplicate tx: %w", err)
	}
	return nil
}

// ListItems returns all answers of one version.
func (r *VersionRepository) ListItems(ctx context.Context, versionID string) ([]models.AssessmentItem, error) {
	const query = `SELECT version_id, owner_id, item_id, assessment_type, met, response, last_updated
FROM assessment_items WHERE version_id = $1 ORDER BY assessment_type, item_id`
	var items []models.AssessmentItem
	if err := r.db.SelectContext(ctx, &items, query, versionID); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// UpsertItem saves one answer, overwriting a previous answer for the same
// (version, item, type) key.
func (r *VersionRepository) UpsertItem(ctx context.Context, item *models.AssessmentItem) error {
	const query = `INSERT INTO assessment_items (version_id, owner_id, item_id, assessment_type, met, response, last_updated)
VALUES (:version_id, :owner_id, :item_id, :assessment_type, :met, :response, :last_updated)
ON CONFLICT (version_id, item_id, assessment_type)
DO UPDATE SET met = EXCLUDED.met, response = EXCLUDED.response, last_updated = EXCLUDED.last_updated`
	item.LastUpdated = time.Now().UTC()
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	return nil
}

// Progress computes answer completion for one version. Items with met unset
// do not count as completed.
func (r *VersionRepository) Progress(ctx context.Context, versionID string) (*models.VersionProgress, error) {
	const query = `SELECT COUNT(*) AS total_items, COUNT(met) AS completed_items
FROM assessment_items WHERE version_id = $1`
	var progress models.VersionProgress
	if err := r.db.GetContext(ctx, &progress, query, versionID); err != nil {
		return nil, fmt.Errorf("version progress: %w", err)
	}
	progress.CompletionPercentage = progress.Percentage()
	return &progress, nil
}

// CountLegacyItems counts pre-versioning rows awaiting migration.
func (r *VersionRepository) CountLegacyItems(ctx context.Context, ownerID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM assessment_items WHERE owner_id = $1 AND version_id IS NULL`, ownerID); err != nil {
		return 0, fmt.Errorf("count legacy items: %w", err)
	}
	return count, nil
}

// MigrateLegacy creates the owner's first version and re-parents every
// unversioned row onto it atomically. The insert only succeeds while the
// owner still has zero versions, so concurrent triggers cannot commit two
// first versions; the loser gets sql.ErrNoRows. Returns the number of
// migrated rows.
func (r *VersionRepository) MigrateLegacy(ctx context.Context, version *models.AssessmentVersion) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin migrate tx: %w", err)
	}
	const insertVersion = `INSERT INTO assessment_versions (id, owner_id, name, description, is_active, created_at, updated_at)
SELECT $1, $2, $3, $4, $5, $6, $7
WHERE NOT EXISTS (SELECT 1 FROM assessment_versions WHERE owner_id = $2)`
	inserted, err := tx.ExecContext(ctx, insertVersion,
		version.ID, version.OwnerID, version.Name, version.Description, version.IsActive, version.CreatedAt, version.UpdatedAt)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("insert migrated version: %w", err)
	}
	if affected, err := inserted.RowsAffected(); err == nil && affected == 0 {
		_ = tx.Rollback()
		return 0, sql.ErrNoRows
	}
	result, err := tx.ExecContext(ctx, `UPDATE assessment_items SET version_id = $1 WHERE owner_id = $2 AND version_id IS NULL`, version.ID, version.OwnerID)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("reparent legacy items: %w", err)
	}
	migrated, err := result.RowsAffected()
	if err != nil {
		migrated = 0
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit migrate tx: %w", err)
	}
	return int(migrated), nil
}
