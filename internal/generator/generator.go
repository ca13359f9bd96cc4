package generator

import (
	"context"
	"fmt"

	"github.com/aiready/selfcheck-api/internal/models"
)

// Request describes one generation task.
type Request struct {
	ContentType models.ContentType
	Item        models.ChecklistItem
	Language    models.Language
}

// Generator produces advisory text for one checklist item in one language.
// Implementations may fail per call; the coordinator treats each call as
// individually recoverable.
type Generator interface {
	// Validate checks preconditions (credentials, model identity) before a
	// batch starts. A failure here aborts the whole job with no writes.
	Validate() error
	// Generate returns the text for one request, honoring ctx deadlines.
	Generate(ctx context.Context, req Request) (string, error)
	// Provider and Model identify the backend; both feed the version tag.
	Provider() string
	Model() string
}

// TemplateGenerator renders deterministic placeholder text. It backs
// development environments and tests where no LLM credentials exist.
type TemplateGenerator struct{}

// NewTemplateGenerator constructs the static generator.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

func (g *TemplateGenerator) Validate() error { return nil }

func (g *TemplateGenerator) Generate(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	if req.Language == models.LanguageKorean {
		return fmt.Sprintf("%s 항목을 점검하세요: %s", req.Item.Title, req.Item.Description), nil
	}
	return fmt.Sprintf("Review the %q checklist item: %s", req.Item.Title, req.Item.Description), nil
}

func (g *TemplateGenerator) Provider() string { return "template" }

func (g *TemplateGenerator) Model() string { return "static" }
