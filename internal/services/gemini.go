package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/apperr"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const advisorSystemInstruction = "You are an agricultural advisor for smallholder farmers. " +
	"Use the farmer's profile, location, weather and recent conversation to give practical, concise advice. " +
	"Answer in the farmer's preferred language when one is given. " +
	"If the context does not contain what you need, say so instead of guessing."

// LanguageModel produces a completion for a prompt.
type LanguageModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiModel calls Google's Gemini API.
type GeminiModel struct {
	client    *genai.Client
	modelName string
}

// NewGeminiModel returns apperr.ErrNotConfigured when apiKey is empty.
func NewGeminiModel(ctx context.Context, apiKey, modelName string) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, apperr.ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiModel{client: client, modelName: modelName}, nil
}

func (g *GeminiModel) Close() error {
	return g.client.Close()
}

func (g *GeminiModel) Generate(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(advisorSystemInstruction)},
	}
	temp := float32(0.4)
	model.GenerationConfig = genai.GenerationConfig{Temperature: &temp}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.WriteString(string(txt))
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("gemini returned an empty answer")
	}
	return strings.TrimSpace(out.String()), nil
}
