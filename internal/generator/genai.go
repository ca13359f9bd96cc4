package generator

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/aiready/selfcheck-api/internal/models"
	"github.com/aiready/selfcheck-api/pkg/config"
)

// GenAIGenerator produces advisory text through the Google GenAI API.
type GenAIGenerator struct {
	client   *genai.Client
	provider string
	model    string
	apiKey   string
}

// NewGenAIGenerator builds the client. Construction succeeds without
// credentials; Validate rejects the batch before any call is made.
func NewGenAIGenerator(cfg config.GenerationConfig) (*GenAIGenerator, error) {
	g := &GenAIGenerator{
		provider: cfg.Provider,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
	}
	if g.provider == "" {
		g.provider = "gemini"
	}
	if g.model == "" {
		g.model = "gemini-2.0-flash"
	}
	if g.apiKey == "" {
		return g, nil
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: g.apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *GenAIGenerator) Validate() error {
	if g.apiKey == "" || g.client == nil {
		return fmt.Errorf("generation API key is not configured")
	}
	return nil
}

func (g *GenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if g.client == nil {
		return "", fmt.Errorf("genai client not initialised")
	}

	contents := []*genai.Content{
		genai.NewContentFromText(buildPrompt(req), genai.RoleUser),
	}
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("genai generate failed: %w", err)
	}
	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("genai returned empty response")
	}
	return text, nil
}

func (g *GenAIGenerator) Provider() string { return g.provider }

func (g *GenAIGenerator) Model() string { return g.model }

func buildPrompt(req Request) string {
	language := "English"
	if req.Language == models.LanguageKorean {
		language = "Korean"
	}

	var b strings.Builder
	switch req.ContentType {
	case models.ContentTypeVirtualEvidence:
		b.WriteString("Write a realistic example of evidence a team could provide to show the following readiness checklist item is satisfied.\n")
	default:
		b.WriteString("Write practical advice for satisfying the following readiness checklist item.\n")
	}
	fmt.Fprintf(&b, "Respond in %s with 2-4 concise paragraphs, no markdown headings.\n\n", language)
	fmt.Fprintf(&b, "Category: %s\nItem: %s\nDetails: %s\n", req.Item.Category, req.Item.Title, req.Item.Description)
	return b.String()
}
