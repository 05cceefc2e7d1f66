// Package gemini adapts Google's Gemini API to ports.TextGenerator.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/core/ports"
)

// Generator implements ports.TextGenerator with the Gemini API.
type Generator struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGenerator creates a Gemini-backed generator.
func NewGenerator(ctx context.Context, apiKey, model string, temperature float32) (*Generator, error) {
	if apiKey == "" {
		return nil, errors.New("genai: API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &Generator{client: client, model: model, temperature: temperature}, nil
}

// Generate sends the conversation and returns the model's text.
func (g *Generator) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	contents := Contents(req.Turns)
	if len(contents) == 0 {
		return "", errors.New("genai: empty conversation")
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if req.Instructions != "" {
		config.SystemInstruction = genai.NewContentFromText(req.Instructions, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("genai generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("genai: empty response")
	}
	return text, nil
}

// Contents converts chat turns to Gemini contents. Empty turns are dropped
// and any role other than "model" or "assistant" is sent as the user.
func Contents(turns []domain.ChatTurn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		var role genai.Role = genai.RoleUser
		if t.Role == "model" || t.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}
	return contents
}
