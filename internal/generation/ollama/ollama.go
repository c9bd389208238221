// Package ollama synthesizes answers with a locally running Ollama model.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"ragchat/internal/domain"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2"
	DefaultTimeout = 120 * time.Second
)

const systemPrompt = `You are a helpful assistant. Answer clearly and to the point using only the provided context. If the context is empty or does not contain the answer, say you don't know.`

// Config configures the local generator.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Generator calls the Ollama generate endpoint.
type Generator struct {
	client  *http.Client
	baseURL string
	model   string
	log     *slog.Logger
}

var _ domain.Generator = (*Generator)(nil)

type generateRequest struct {
	Model  string `json:"model"`
	System string `json:"system"`
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func New(cfg Config, log *slog.Logger) *Generator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		log:     log,
	}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  g.model,
		System: systemPrompt,
		Prompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	if tokens, err := countTokens(string(body)); err == nil {
		g.log.Debug("sending prompt to ollama", "model", g.model, "prompt_tokens", tokens)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", &domain.BackendError{Op: "ollama generate", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", &domain.BackendError{
			Op:  "ollama generate",
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(msg)),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.BackendError{Op: "ollama generate", Err: err}
	}
	g.log.Debug("ollama answered", "took", time.Since(start))

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err == nil && out.Response != "" {
		return out.Response, nil
	}

	// Streaming responses arrive as concatenated JSON chunks; stitch them.
	var answer string
	dec := json.NewDecoder(bytes.NewReader(raw))
	for dec.More() {
		var chunk generateResponse
		if err := dec.Decode(&chunk); err != nil {
			break
		}
		answer += chunk.Response
	}
	return answer, nil
}

// countTokens sizes the outgoing prompt with a GPT-compatible encoding;
// close enough for capacity logging across local models.
func countTokens(text string) (int, error) {
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}
