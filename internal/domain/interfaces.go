package domain

import (
	"context"
	"io"
)

// Embedder converts free text into a numeric vector representation.
// Implementations are selected by configuration and must be interchangeable.
type Embedder interface {
	Name() string
	// EmbedOne embeds a single text.
	EmbedOne(ctx context.Context, text string) ([]float64, error)
	// EmbedMany embeds a batch, preserving input order. Implementations
	// should issue as few backend calls as their API allows.
	EmbedMany(ctx context.Context, texts []string) ([][]float64, error)
	// Dimension reports the vector length. It may be zero until the first
	// embedding has been produced when the model is not known up front.
	Dimension() int
}

// Generator synthesizes an answer from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Transcriber turns recorded audio into text. An empty transcript means no
// speech was recognized and is not an error.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}
