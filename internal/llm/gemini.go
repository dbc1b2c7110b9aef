// Package llm holds the language-model provider clients. Each client is
// built from its own credential; a missing credential yields a client that
// reports itself unconfigured and fails every call with ErrNotConfigured.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

var ErrNotConfigured = errors.New("provider not configured")

// Gemini serves general-family generation and vision extraction.
type Gemini struct {
	client      *genai.Client
	visionModel string
	log         *zap.SugaredLogger
}

func NewGemini(ctx context.Context, apiKey, visionModel string, log *zap.SugaredLogger) (*Gemini, error) {
	g := &Gemini{visionModel: visionModel, log: log}
	if apiKey == "" {
		return g, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *Gemini) Configured() bool { return g != nil && g.client != nil }

func (g *Gemini) Close() {
	if g.client == nil {
		return
	}
	if err := g.client.Close(); err != nil {
		g.log.Warnw("error closing GenAI client", "error", err)
	}
}

// Generate sends one combined prompt to the named model.
func (g *Gemini) Generate(ctx context.Context, model, prompt string) (string, error) {
	if !g.Configured() {
		return "", ErrNotConfigured
	}
	resp, err := g.client.GenerativeModel(model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini %s generation failed: %w", model, err)
	}
	return responseText(resp)
}

// ExtractText asks the vision model to read a document or image.
func (g *Gemini) ExtractText(ctx context.Context, data []byte, mimeType, instruction string) (string, error) {
	if !g.Configured() {
		return "", ErrNotConfigured
	}
	resp, err := g.client.GenerativeModel(g.visionModel).GenerateContent(ctx,
		genai.Text(instruction),
		genai.Blob{MIMEType: mimeType, Data: data},
	)
	if err != nil {
		return "", fmt.Errorf("gemini vision extraction failed: %w", err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("gemini returned an empty or non-text response")
	}
	return text.String(), nil
}
