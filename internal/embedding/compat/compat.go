// Package compat embeds text through any OpenAI-compatible embeddings
// endpoint (LM Studio, llama.cpp server, self-hosted gateways). One call
// per text: compatible servers disagree on batch input handling, so the
// lowest common denominator wins. Large ingestions should prefer the
// hosted batch provider.
package compat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"ragchat/internal/domain"
)

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Embedder is a minimal client for /v1-style embeddings endpoints.
type Embedder struct {
	baseURL    string
	apiKey     string
	model      string
	client     *http.Client
	maxRetries int

	// dimMu guards the lazily learned dimension; one embedder may serve
	// concurrent ingestion jobs.
	dimMu     sync.Mutex
	dimension int
}

var _ domain.Embedder = (*Embedder)(nil)

// New fails with a ConfigError when the named credential is absent.
func New(cfg Config) (*Embedder, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, &domain.ConfigError{Name: cfg.APIKeyEnv}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = 5
	}
	return &Embedder{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		client:     &http.Client{Timeout: timeout},
		maxRetries: retries,
	}, nil
}

func (e *Embedder) Name() string { return "compat" }

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
	type reqBody struct {
		Input  string `json:"input,omitempty"`
		Prompt string `json:"prompt,omitempty"`
		Model  string `json:"model"`
	}
	url := fmt.Sprintf("%s/embeddings", e.baseURL)
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		data, _ := json.Marshal(reqBody{Input: text, Prompt: text, Model: e.model})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.apiKey)

		resp, err := e.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt < e.maxRetries {
				time.Sleep(retryDelay(attempt))
				continue
			}
			return nil, &domain.BackendError{Op: "compat embeddings", Err: err}
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			// Respect Retry-After if provided.
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					_ = resp.Body.Close()
					time.Sleep(time.Duration(secs) * time.Second)
				} else {
					_ = resp.Body.Close()
					time.Sleep(retryDelay(attempt))
				}
			} else {
				_ = resp.Body.Close()
				time.Sleep(retryDelay(attempt))
			}
			if attempt < e.maxRetries {
				continue
			}
			return nil, &domain.BackendError{Op: "compat embeddings", Err: fmt.Errorf("status %s", resp.Status)}
		}

		if resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, &domain.BackendError{Op: "compat embeddings", Err: fmt.Errorf("status %s", resp.Status)}
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			if attempt < e.maxRetries {
				time.Sleep(retryDelay(attempt))
				continue
			}
			return nil, err
		}
		if v := decodeEmbedding(payload); v != nil {
			e.rememberDimension(len(v))
			return v, nil
		}
		if attempt < e.maxRetries {
			time.Sleep(retryDelay(attempt))
			continue
		}
	}
	return nil, errors.New("no embedding returned")
}

// EmbedMany loops over EmbedOne; see the package comment on batching.
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

// decodeEmbedding tries the OpenAI response shape first, then the
// Ollama-native one that some compatible servers emit.
func decodeEmbedding(payload []byte) []float64 {
	var openaiOut struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil {
		if len(openaiOut.Data) > 0 && len(openaiOut.Data[0].Embedding) > 0 {
			return openaiOut.Data[0].Embedding
		}
	}
	var nativeOut struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &nativeOut); err == nil {
		if len(nativeOut.Embedding) > 0 {
			return nativeOut.Embedding
		}
	}
	return nil
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
