package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"mercator-hq/aegis/pkg/governance"
	"mercator-hq/aegis/pkg/telemetry/tracing"
)

// SourceHTTP identifies results of the remote classifier.
const SourceHTTP = "http"

// HTTPConfig configures an HTTPClassifier.
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration

	// RequestsPerSecond and Burst bound the outbound call rate. Calls beyond
	// the limit wait for a token or fail when the context ends first.
	RequestsPerSecond float64
	Burst             int
}

// HTTPClassifier calls a remote moderation endpoint. The endpoint receives
// {"input": text} and answers {"flagged", "categories", "confidence"}.
type HTTPClassifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewHTTPClassifier creates a remote classifier.
func NewHTTPClassifier(cfg HTTPConfig) (*HTTPClassifier, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("moderation endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &HTTPClassifier{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(limit, cfg.Burst),
	}, nil
}

type moderationRequest struct {
	Input string `json:"input"`
}

type moderationResponse struct {
	Flagged    bool               `json:"flagged"`
	Categories map[string]float64 `json:"categories"`
	Confidence float64            `json:"confidence"`
}

// Moderate implements Classifier.
func (c *HTTPClassifier) Moderate(ctx context.Context, text string) (governance.ModerationResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return governance.ModerationResult{}, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(moderationRequest{Input: text})
	if err != nil {
		return governance.ModerationResult{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return governance.ModerationResult{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	tracing.Inject(ctx, req.Header)

	resp, err := c.client.Do(req)
	if err != nil {
		return governance.ModerationResult{}, fmt.Errorf("moderation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return governance.ModerationResult{}, fmt.Errorf("moderation service returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out moderationResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return governance.ModerationResult{}, fmt.Errorf("failed to decode moderation response: %w", err)
	}

	cats := make(map[string]float64, len(out.Categories))
	for k, v := range out.Categories {
		cats[k] = governance.Clamp(v)
	}
	return governance.ModerationResult{
		Flagged:    out.Flagged,
		Categories: cats,
		Confidence: governance.Clamp(out.Confidence),
		Source:     SourceHTTP,
	}, nil
}
