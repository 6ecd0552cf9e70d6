package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-ports/contextmgr/internal/httpjson"
)

const (
	defaultAnthropicBase = "https://api.anthropic.com"
	anthropicVersion     = "2023-06-01"
	defaultMaxTokens     = 1000
)

// Anthropic calls the Anthropic Messages API.
type Anthropic struct {
	Model     string
	APIKey    string // #nosec G117 -- APIKey is an intentional field name for the Anthropic authentication token
	BaseURL   string
	MaxTokens int
	// MaxRetries bounds attempts on 429 and 5xx responses.
	MaxRetries int
	// RetryDelay is the first backoff interval; it doubles per attempt.
	RetryDelay time.Duration
	client     *http.Client
}

// NewAnthropic returns an Anthropic generator. baseURL defaults to the public endpoint.
func NewAnthropic(model, apiKey, baseURL string, maxTokens int) *Anthropic {
	if baseURL == "" {
		baseURL = defaultAnthropicBase
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Anthropic{
		Model:      model,
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		MaxTokens:  maxTokens,
		MaxRetries: 3,
		RetryDelay: time.Second,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

// Generate sends prompt as a single user message and returns the text reply.
func (a *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":      a.Model,
		"max_tokens": a.MaxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	headers := map[string]string{
		"x-api-key":         a.APIKey,
		"anthropic-version": anthropicVersion,
	}

	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}

	attempts := max(a.MaxRetries, 1)
	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			delay := a.RetryDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("anthropic generate: %w", errors.Join(ctx.Err(), lastErr))
			case <-time.After(delay):
			}
		}

		lastErr = httpjson.Do(ctx, a.client, http.MethodPost, a.BaseURL+"/v1/messages", headers, reqBody, &resp)
		if lastErr == nil {
			break
		}
		if !httpjson.IsTransient(lastErr) {
			return "", fmt.Errorf("anthropic generate: %w", lastErr)
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("anthropic generate: after %d attempts: %w", attempts, lastErr)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "" || block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic generate: empty response content")
	}
	return sb.String(), nil
}
