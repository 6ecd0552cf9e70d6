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

const defaultOpenAIBase = "https://api.openai.com/v1"

// OpenAI speaks the OpenAI chat completions and embeddings protocol, which
// OpenRouter and most self-hosted gateways also accept.
type OpenAI struct {
	Model     string
	APIKey    string // #nosec G117 -- bearer token sent in the Authorization header
	BaseURL   string
	MaxTokens int
	client    *http.Client
}

// NewOpenAI returns an OpenAI client. An empty baseURL selects api.openai.com.
func NewOpenAI(model, apiKey, baseURL string) *OpenAI {
	if baseURL == "" {
		baseURL = defaultOpenAIBase
	}
	return &OpenAI{
		Model:   model,
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: time.Minute},
	}
}

// WithMaxTokens caps completion length. Zero leaves the server default.
func (o *OpenAI) WithMaxTokens(n int) *OpenAI {
	o.MaxTokens = n
	return o
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (o *OpenAI) post(ctx context.Context, path string, in, out any) error {
	headers := map[string]string{"Authorization": "Bearer " + o.APIKey}
	return httpjson.Do(ctx, o.client, http.MethodPost, o.BaseURL+path, headers, in, out)
}

// Generate sends prompt as a single user message and returns the first choice.
func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{
		Model:     o.Model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: o.MaxTokens,
	}
	var resp chatResponse
	if err := o.post(ctx, "/chat/completions", req, &resp); err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("openai generate: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the vector for a single text.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. Results are placed by their
// reported index, so every input must come back exactly once.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var resp embeddingResponse
	if err := o.post(ctx, "/embeddings", embeddingRequest{Model: o.Model, Input: texts}, &resp); err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embed: empty data in response")
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: expected %d results, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai embed: result index %d out of range [0, %d)", d.Index, len(texts))
		}
		if out[d.Index] != nil {
			return nil, fmt.Errorf("openai embed: duplicate result index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
