package dto

import (
	"time"

	"github.com/aiready/selfcheck-api/internal/models"
)

// ContentResponse carries one generated text for an item.
type ContentResponse struct {
	ItemID   string          `json:"itemId"`
	Category string          `json:"category,omitempty"`
	Title    string          `json:"title,omitempty"`
	Content  string          `json:"content"`
	Language models.Language `json:"language"`
	Version  string          `json:"version"`
}

// SetActiveVersionRequest promotes a cache version for a content type.
type SetActiveVersionRequest struct {
	Version string `json:"version" binding:"required"`
}

// CacheBundleItem is one entry of a portable cache export.
type CacheBundleItem struct {
	ItemID    string          `json:"itemId" validate:"required"`
	Category  string          `json:"category"`
	Title     string          `json:"title"`
	Content   string          `json:"content" validate:"required"`
	Language  models.Language `json:"language" validate:"required,cache_language"`
	CreatedAt time.Time       `json:"createdAt"`
}

// CacheBundle is a self-contained export of one cache version.
type CacheBundle struct {
	Version    string            `json:"version" validate:"required"`
	ExportedAt time.Time         `json:"exportedAt"`
	TotalItems int               `json:"totalItems"`
	KoCount    int               `json:"koCount"`
	EnCount    int               `json:"enCount"`
	Items      []CacheBundleItem `json:"items" validate:"required,min=1,dive"`
}
