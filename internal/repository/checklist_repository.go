package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/aiready/selfcheck-api/internal/models"
)

// ChecklistRepository reads the fixed readiness checklist definition.
type ChecklistRepository struct {
	db *sqlx.DB
}

// NewChecklistRepository constructs the repository.
func NewChecklistRepository(db *sqlx.DB) *ChecklistRepository {
	return &ChecklistRepository{db: db}
}

const checklistColumns = `id, category, title, description, assessment_type, mandatory, notes, sort_order`

// List returns every checklist item in display order.
func (r *ChecklistRepository) List(ctx context.Context) ([]models.ChecklistItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM checklist_items ORDER BY sort_order, id`, checklistColumns)
	var items []models.ChecklistItem
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list checklist items: %w", err)
	}
	return items, nil
}

// ListByType returns the checklist items of one section.
func (r *ChecklistRepository) ListByType(ctx context.Context, assessmentType models.AssessmentType) ([]models.ChecklistItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM checklist_items WHERE assessment_type = $1 ORDER BY sort_order, id`, checklistColumns)
	var items []models.ChecklistItem
	if err := r.db.SelectContext(ctx, &items, query, assessmentType); err != nil {
		return nil, fmt.Errorf("list checklist items by type: %w", err)
	}
	return items, nil
}

// GetByID fetches one checklist item.
func (r *ChecklistRepository) GetByID(ctx context.Context, id string) (*models.ChecklistItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM checklist_items WHERE id = $1`, checklistColumns)
	var item models.ChecklistItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}
