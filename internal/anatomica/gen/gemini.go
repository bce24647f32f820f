package gen

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultModel = "gemini-1.5-pro"

// Config configures the Gemini-backed generator.
type Config struct {
	// APIKey authenticates against the Gemini API. Required.
	APIKey string

	// Model is the generation model. Defaults to gemini-1.5-pro when empty.
	Model string
}

// Gemini implements Generator using the Google Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini generator. The returned generator is safe for
// concurrent use.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gen: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("gen: create client: %w", err)
	}

	return &Gemini{client: client, model: cfg.Model}, nil
}

// Generate sends the prompt to the model and returns the first candidate's
// first text part, trimmed. A well-formed response with no extractable text
// yields ("", nil).
func (g *Gemini) Generate(ctx context.Context, promptText string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(promptText, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gen: generate content: %w", err)
	}

	return extractText(resp), nil
}

// extractText walks candidates[0].content.parts[0].text with nil checks at
// every hop; any missing link yields the empty string rather than an error.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return ""
	}
	return strings.TrimSpace(content.Parts[0].Text)
}
