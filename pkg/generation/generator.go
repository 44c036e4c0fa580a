package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Apology is returned to the caller whenever generation fails.
const Apology = "I apologize, but I encountered an error while processing your request. Please try again."

// governanceNotice is appended to every prompt sent to a model.
const governanceNotice = "IMPORTANT: This is an AI-generated response. Please verify all information independently. " +
	"This response is for informational purposes only and should not be considered as professional advice."

// Generator produces a response for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, context map[string]any) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string, context map[string]any) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string, c map[string]any) (string, error) {
	return f(ctx, prompt, c)
}

// BuildPrompt prefixes the request context as JSON and appends the
// governance notice.
func BuildPrompt(prompt string, c map[string]any) string {
	var b strings.Builder
	if len(c) > 0 {
		if data, err := json.MarshalIndent(c, "", "  "); err == nil {
			b.WriteString("Context: ")
			b.Write(data)
			b.WriteString("\n\nUser Request: ")
		}
	}
	b.WriteString(prompt)
	b.WriteString("\n\n")
	b.WriteString(governanceNotice)
	return b.String()
}

// StaticGenerator answers every prompt from a fixed table, falling back to
// a default response. It is used for local runs and tests.
type StaticGenerator struct {
	responses map[string]string
	fallback  string
}

// NewStaticGenerator creates a generator; responses maps a lower-cased
// keyword to the response used when the prompt contains it.
func NewStaticGenerator(fallback string, responses map[string]string) *StaticGenerator {
	if fallback == "" {
		fallback = "This is an AI-generated response for informational purposes only."
	}
	table := make(map[string]string, len(responses))
	for k, v := range responses {
		table[strings.ToLower(k)] = v
	}
	return &StaticGenerator{responses: table, fallback: fallback}
}

// Generate implements Generator. Keywords are tried in sorted order.
func (s *StaticGenerator) Generate(ctx context.Context, prompt string, _ map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lower := strings.ToLower(prompt)
	keys := make([]string, 0, len(s.responses))
	for k := range s.responses {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(lower, k) {
			return s.responses[k], nil
		}
	}
	return s.fallback, nil
}

// Error wraps a generator failure with the generator name.
type Error struct {
	Generator string
	Cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("generation failed [generator=%s]: %v", e.Generator, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}
