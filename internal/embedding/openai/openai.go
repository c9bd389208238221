// Package openai embeds text through the hosted OpenAI embeddings API.
// Batches go out as a single call, which is the cheapest way to ingest
// large documents.
package openai

import (
	"context"
	"fmt"
	"os"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"ragchat/internal/domain"
)

const DefaultModel = "text-embedding-3-small"

// Config configures the hosted batch embedder. APIKeyEnv names the
// environment variable holding the credential.
type Config struct {
	APIKeyEnv string
	Model     string
}

// Embedder wraps the OpenAI embeddings endpoint.
type Embedder struct {
	client *openai.Client
	model  string

	// dimMu guards the lazily learned dimension; one embedder may serve
	// concurrent ingestion jobs.
	dimMu     sync.Mutex
	dimension int
}

var _ domain.Embedder = (*Embedder)(nil)

// New fails with a ConfigError when the credential is absent.
func New(cfg Config) (*Embedder, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, &domain.ConfigError{Name: cfg.APIKeyEnv}
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	dim := 1536
	if model == "text-embedding-3-large" {
		dim = 3072
	}
	return &Embedder{
		client:    openai.NewClient(key),
		model:     model,
		dimension: dim,
	}, nil
}

func (e *Embedder) Name() string { return "openai" }

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
	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedMany sends the whole batch in one call; the response preserves
// input order via the per-item index.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, &domain.BackendError{Op: "openai embeddings", Err: err}
	}
	if len(resp.Data) != len(texts) {
		return nil, &domain.BackendError{
			Op:  "openai embeddings",
			Err: fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)),
		}
	}
	vectors := make([][]float64, len(texts))
	for _, item := range resp.Data {
		v := make([]float64, len(item.Embedding))
		for i, x := range item.Embedding {
			v[i] = float64(x)
		}
		vectors[item.Index] = v
	}
	if len(vectors[0]) > 0 {
		e.rememberDimension(len(vectors[0]))
	}
	return vectors, nil
}
