package dto

import "time"

// ExportedItem is one checklist answer in a version export, joined with the
// checklist definition so mandatory/notes survive the round trip.
type ExportedItem struct {
	ItemID    string `json:"itemId"`
	Category  string `json:"category"`
	Title     string `json:"title"`
	Mandatory bool   `json:"mandatory"`
	Met       string `json:"met"`
	Response  string `json:"response"`
	Notes     string `json:"notes"`
}

// VersionExportInfo carries the exported version's metadata.
type VersionExportInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// VersionExport is the portable JSON rendering of a whole version.
type VersionExport struct {
	Version        string            `json:"version"`
	ExportDate     time.Time         `json:"exportDate"`
	VersionInfo    VersionExportInfo `json:"versionInfo"`
	AssessmentData AssessmentData    `json:"assessmentData"`
	Metadata       map[string]int    `json:"metadata"`
}

// AssessmentData groups exported answers by checklist section.
type AssessmentData struct {
	Prerequisites []ExportedItem `json:"prerequisites"`
	Technical     []ExportedItem `json:"technical"`
}
