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

const defaultOllamaBase = "http://localhost:11434"

// Ollama talks to a local Ollama server. It serves as both Generator and
// Embedder; Model names whichever model the role needs.
type Ollama struct {
	Model   string
	BaseURL string
	client  *http.Client
}

// NewOllama returns an Ollama client. Local models can be slow to load, so
// requests time out after two minutes.
func NewOllama(model, baseURL string) *Ollama {
	return &Ollama{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (o *Ollama) post(ctx context.Context, path string, in, out any) error {
	return httpjson.Do(ctx, o.client, http.MethodPost, o.BaseURL+path, nil, in, out)
}

// Generate returns the complete (non-streamed) reply to prompt.
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	var resp ollamaGenerateResponse
	if err := o.post(ctx, "/api/generate", ollamaGenerateRequest{Model: o.Model, Prompt: prompt}, &resp); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if resp.Response == "" {
		return "", errors.New("ollama generate: empty response")
	}
	return resp.Response, nil
}

// Embed returns the vector for a single text.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one /api/embed call, preserving order.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var resp ollamaEmbedResponse
	if err := o.post(ctx, "/api/embed", ollamaEmbedRequest{Model: o.Model, Input: texts}, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: %d texts, %d embeddings", len(texts), len(resp.Embeddings))
	}
	for i, v := range resp.Embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("ollama embed: empty embedding for text %d", i)
		}
	}
	return resp.Embeddings, nil
}
