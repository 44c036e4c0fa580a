package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiConfig configures GeminiGenerator.
type GeminiConfig struct {
	APIKey          string
	Model           string  // Defaults to gemini-1.5-flash
	Temperature     float32 // 0 keeps the model default
	MaxOutputTokens int32   // 0 keeps the model default
	SystemPrompt    string
}

// GeminiGenerator generates responses with the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
	logger *slog.Logger
}

// NewGeminiGenerator creates the API client.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig, opts ...option.ClientOption) (*GeminiGenerator, error) {
	if cfg.APIKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	name := cfg.Model
	if name == "" {
		name = "gemini-1.5-flash"
	}
	model := client.GenerativeModel(name)
	if cfg.Temperature > 0 {
		model.SetTemperature(cfg.Temperature)
	}
	if cfg.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(cfg.MaxOutputTokens)
	}
	if cfg.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(cfg.SystemPrompt)}}
	}

	return &GeminiGenerator{
		client: client,
		model:  model,
		name:   name,
		logger: slog.Default().With("component", "generation.gemini"),
	}, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, c map[string]any) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(BuildPrompt(prompt, c)))
	if err != nil {
		return "", &Error{Generator: g.name, Cause: err}
	}
	text, err := responseText(resp)
	if err != nil {
		return "", &Error{Generator: g.name, Cause: err}
	}
	g.logger.Debug("Response generated", "model", g.name, "length", len(text))
	return text, nil
}

// Close releases the API client.
func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

var errEmptyResponse = errors.New("model returned no text")

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errEmptyResponse
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", errEmptyResponse
	}
	return b.String(), nil
}
