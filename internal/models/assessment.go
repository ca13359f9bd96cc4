package models

import "time"

// AssessmentType distinguishes the checklist sections.
type AssessmentType string

const (
	AssessmentTypePrerequisites AssessmentType = "prerequisites"
	AssessmentTypeTechnical     AssessmentType = "technical"
)

// ValidAssessmentType reports whether the value is a known section.
func ValidAssessmentType(t AssessmentType) bool {
	return t == AssessmentTypePrerequisites || t == AssessmentTypeTechnical
}

// AssessmentVersion is a named snapshot of one owner's checklist answers.
// At most one version per owner is active at any time.
type AssessmentVersion struct {
	ID          string    `db:"id" json:"id"`
	OwnerID     string    `db:"owner_id" json:"owner_id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// AssessmentItem is one checklist answer owned by exactly one version.
// Met is tri-state: nil means not yet assessed.
type AssessmentItem struct {
	VersionID      *string        `db:"version_id" json:"version_id,omitempty"`
	OwnerID        string         `db:"owner_id" json:"owner_id"`
	ItemID         string         `db:"item_id" json:"item_id"`
	AssessmentType AssessmentType `db:"assessment_type" json:"assessment_type"`
	Met            *bool          `db:"met" json:"met"`
	Response       string         `db:"response" json:"response"`
	LastUpdated    time.Time      `db:"last_updated" json:"last_updated"`
}

// VersionProgress summarises answer completion for one version.
type VersionProgress struct {
	TotalItems           int `db:"total_items" json:"totalItems"`
	CompletedItems       int `db:"completed_items" json:"completedItems"`
	CompletionPercentage int `json:"completionPercentage"`
}

// Percentage computes the rounded completion ratio, 0 when empty.
func (p VersionProgress) Percentage() int {
	if p.TotalItems == 0 {
		return 0
	}
	return int(float64(p.CompletedItems)/float64(p.TotalItems)*100 + 0.5)
}

// ChecklistItem is one entry of the fixed readiness checklist definition.
type ChecklistItem struct {
	ID             string         `db:"id" json:"id"`
	Category       string         `db:"category" json:"category"`
	Title          string         `db:"title" json:"title"`
	Description    string         `db:"description" json:"description"`
	AssessmentType AssessmentType `db:"assessment_type" json:"assessment_type"`
	Mandatory      bool           `db:"mandatory" json:"mandatory"`
	Notes          string         `db:"notes" json:"notes"`
	SortOrder      int            `db:"sort_order" json:"sort_order"`
}
