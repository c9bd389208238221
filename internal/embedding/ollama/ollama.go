// Package ollama embeds text with a locally running Ollama model.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"ragchat/internal/domain"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "nomic-embed-text"
	DefaultTimeout = 30 * time.Second
)

// Config configures the local embedder.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Embedder calls the Ollama embeddings endpoint.
type Embedder struct {
	client  *http.Client
	baseURL string
	model   string

	// dimMu guards the lazily learned dimension; one embedder may serve
	// concurrent ingestion jobs.
	dimMu     sync.Mutex
	dimension int
}

var _ domain.Embedder = (*Embedder)(nil)

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func New(cfg Config) *Embedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Embedder{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
	}
}

func (e *Embedder) Name() string { return "ollama" }

// Dimension is learned from the first embedding; the model decides it.
func (e *Embedder) Dimension() int {
	e.dimMu.Lock()
	defer e.dimMu.Unlock()
	return e.dimension
}

func (e *Embedder) rememberDimension(n int) {
	e.dimMu.Lock()
	defer e.dimMu.Unlock()
	if e.dimension == 0 {
		e.dimension = n
	}
}

func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &domain.BackendError{Op: "ollama embed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, &domain.BackendError{
			Op:  "ollama embed",
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(msg)),
		}
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, &domain.BackendError{Op: "ollama embed", Err: fmt.Errorf("empty embedding")}
	}
	e.rememberDimension(len(out.Embedding))
	return out.Embedding, nil
}

// EmbedMany issues one request per text: Ollama has no batch endpoint.
// Large batches pay one round trip per chunk, so prefer a hosted batch
// provider when ingesting big documents.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		v, err := e.EmbedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}
