// Package openai transcribes audio through the hosted Whisper API.
package openai

import (
	"context"
	"io"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"ragchat/internal/domain"
)

const DefaultModel = "whisper-1"

// Config configures the transcriber. APIKeyEnv names the environment
// variable holding the credential.
type Config struct {
	APIKeyEnv string
	Model     string
}

// Transcriber wraps the audio transcription endpoint.
type Transcriber struct {
	client *openai.Client
	model  string
}

var _ domain.Transcriber = (*Transcriber)(nil)

// New fails with a ConfigError when the credential is absent.
func New(cfg Config) (*Transcriber, error) {
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
	return &Transcriber{client: openai.NewClient(key), model: model}, nil
}

// Transcribe returns the recognized text. An empty transcript means no
// speech was recognized and is not an error; unsupported formats and
// backend outages surface as BackendError.
func (t *Transcriber) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: filename,
		Reader:   audio,
	})
	if err != nil {
		return "", &domain.BackendError{Op: "transcription", Err: err}
	}
	return resp.Text, nil
}
