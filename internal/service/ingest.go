// Package service wires the ingestion and answer pipelines and the
// conversation bookkeeping on top of the vector store gateway.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"ragchat/internal/chunker"
	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// Ingestor turns documents and audio into indexed chunks.
type Ingestor struct {
	embedder    domain.Embedder
	store       vectorstore.Store
	transcriber domain.Transcriber
	cols        Collections
	log         *slog.Logger
	chunkSize   int
	overlap     int
}

// NewIngestor creates the ingestion pipeline. transcriber may be nil when
// audio ingestion is not configured.
func NewIngestor(embedder domain.Embedder, store vectorstore.Store, transcriber domain.Transcriber,
	cols Collections, chunkSize, overlap int, log *slog.Logger) *Ingestor {
	if chunkSize <= 0 {
		chunkSize = chunker.DefaultChunkSize
	}
	if overlap < 0 {
		overlap = chunker.DefaultOverlap
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{
		embedder:    embedder,
		store:       store,
		transcriber: transcriber,
		cols:        cols,
		log:         log,
		chunkSize:   chunkSize,
		overlap:     overlap,
	}
}

// IngestDocument reads a UTF-8 text document, chunks it, embeds the chunks
// in one batch and upserts them. Returns the number of inserted chunks.
// Unlike the answer path, ingestion failures propagate to the caller.
func (in *Ingestor) IngestDocument(ctx context.Context, filename string, r io.Reader) (int, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", filename, err)
	}
	if !utf8.Valid(raw) {
		return 0, &domain.DecodeError{Source: filename, Reason: "not valid UTF-8 text"}
	}
	return in.ingestText(ctx, filename, string(raw))
}

// IngestAudio transcribes an audio file and indexes the transcript the
// same way a document is indexed. A transcript with no recognized speech
// is an ingestion failure: there is nothing to index.
func (in *Ingestor) IngestAudio(ctx context.Context, filename string, audio io.Reader) (int, error) {
	if in.transcriber == nil {
		return 0, &domain.ConfigError{Name: "transcriber"}
	}
	text, err := in.transcriber.Transcribe(ctx, filename, audio)
	if err != nil {
		return 0, fmt.Errorf("transcribe %s: %w", filename, err)
	}
	if strings.TrimSpace(text) == "" {
		return 0, &domain.DecodeError{Source: filename, Reason: "transcription produced no text"}
	}
	return in.ingestText(ctx, filename, text)
}

func (in *Ingestor) ingestText(ctx context.Context, filename, text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, &domain.DecodeError{Source: filename, Reason: "no text extracted"}
	}

	chunks, err := chunker.Split(text, in.chunkSize, in.overlap)
	if err != nil {
		return 0, fmt.Errorf("chunk %s: %w", filename, err)
	}
	if len(chunks) == 0 {
		return 0, &domain.DecodeError{Source: filename, Reason: "no text extracted"}
	}

	// One batched call bounds the outbound fan-out however many chunks
	// the document produced.
	vectors, err := in.embedder.EmbedMany(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed chunks of %s: %w", filename, err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	if err := in.store.EnsureCollection(ctx, in.cols.Documents, len(vectors[0])); err != nil {
		return 0, fmt.Errorf("ensure document collection: %w", err)
	}

	points := make([]vectorstore.Point, len(chunks))
	for i, text := range chunks {
		points[i] = vectorstore.Point{
			ID:     uuid.NewString(),
			Vector: vectors[i],
			Payload: map[string]any{
				"text":   text,
				"source": filename,
			},
		}
	}
	if err := in.store.Upsert(ctx, in.cols.Documents, points); err != nil {
		return 0, fmt.Errorf("upsert chunks of %s: %w", filename, err)
	}

	in.log.Info("document ingested", "source", filename, "chunks", len(chunks))
	return len(chunks), nil
}
