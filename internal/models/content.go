package models

import "time"

// ContentType enumerates the generated-content families.
type ContentType string

const (
	ContentTypeAdvice          ContentType = "advice"
	ContentTypeVirtualEvidence ContentType = "virtual_evidence"
)

// ValidContentType reports whether the value is a known content family.
func ValidContentType(t ContentType) bool {
	return t == ContentTypeAdvice || t == ContentTypeVirtualEvidence
}

// Language enumerates supported content languages.
type Language string

const (
	LanguageKorean  Language = "ko"
	LanguageEnglish Language = "en"
)

// ValidLanguage reports whether the value is a supported language.
func ValidLanguage(l Language) bool {
	return l == LanguageKorean || l == LanguageEnglish
}

// CacheEntry is one generated text, unique per
// (content_type, item_id, language, version).
type CacheEntry struct {
	ContentType ContentType `db:"content_type" json:"content_type"`
	ItemID      string      `db:"item_id" json:"item_id"`
	Category    string      `db:"category" json:"category"`
	Title       string      `db:"title" json:"title"`
	Content     string      `db:"content" json:"content"`
	Language    Language    `db:"language" json:"language"`
	Version     string      `db:"version" json:"version"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// ActiveCachePointer designates the cache version all default reads use for
// one content type. Global across users; one row per type.
type ActiveCachePointer struct {
	ContentType ContentType `db:"content_type" json:"content_type"`
	Version     string      `db:"version" json:"version"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// CacheVersionInfo aggregates stored entries for one version tag.
type CacheVersionInfo struct {
	Version   string    `db:"version" json:"version"`
	ItemCount int       `db:"item_count" json:"itemCount"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// CacheStats counts entries per language for one version tag.
type CacheStats struct {
	Version string           `json:"version"`
	Total   int              `json:"total"`
	Counts  map[Language]int `json:"counts"`
}
