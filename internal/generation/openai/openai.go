// Package openai synthesizes answers through the OpenAI chat completion
// API.
package openai

import (
	"context"
	"errors"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"ragchat/internal/domain"
)

const DefaultModel = openai.GPT4oMini

const systemPrompt = `You are a helpful assistant. Use the retrieved context to answer the question. If the answer is not in the context, say you don't know, but try to be helpful based on the context provided.`

// Config configures the hosted generator. APIKeyEnv names the environment
// variable holding the credential.
type Config struct {
	APIKeyEnv string
	Model     string
}

// Generator wraps chat completion behind the Generator capability.
type Generator struct {
	client *openai.Client
	model  string
}

var _ domain.Generator = (*Generator)(nil)

// New fails with a ConfigError when the credential is absent.
func New(cfg Config) (*Generator, error) {
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
	return &Generator{client: openai.NewClient(key), model: model}, nil
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", &domain.BackendError{Op: "chat completion", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &domain.BackendError{Op: "chat completion", Err: errors.New("no completion choices returned")}
	}
	return resp.Choices[0].Message.Content, nil
}
