// Package cli defines the command tree. Services are assembled once in
// the persistent pre-run and shared by all commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/embedding/compat"
	embollama "ragchat/internal/embedding/ollama"
	embopenai "ragchat/internal/embedding/openai"
	genollama "ragchat/internal/generation/ollama"
	genopenai "ragchat/internal/generation/openai"
	"ragchat/internal/service"
	"ragchat/internal/transcribe/openai"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/memory"
	"ragchat/internal/vectorstore/qdrant"
)

var (
	cfgPath string
	verbose bool

	appCfg    *config.AppConfig
	logger    *slog.Logger
	convos    *service.Conversations
	assistant *service.Assistant
	ingestor  *service.Ingestor
)

var rootCmd = &cobra.Command{
	Use:   "ragchat",
	Short: "Chat with your documents",
	Long: `ragchat indexes documents and audio into a vector store and answers
questions about them, keeping the conversation history alongside the
documents in the same store.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func setup(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var err error
	if cfgPath == "" {
		appCfg, _, err = config.LoadDefault()
	} else {
		appCfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := buildStore(appCfg)
	if err != nil {
		return err
	}
	embedder, err := buildEmbedder(appCfg)
	if err != nil {
		return err
	}
	generator, err := buildGenerator(appCfg)
	if err != nil {
		return err
	}
	transcriber, err := buildTranscriber(appCfg)
	if err != nil {
		return err
	}

	cols := service.Collections{
		Documents:     appCfg.Collections.Documents,
		Chats:         appCfg.Collections.Chats,
		Conversations: appCfg.Collections.Conversations,
		Folders:       appCfg.Collections.Folders,
	}
	convos = service.NewConversations(store, cols, logger)
	assistant = service.NewAssistant(embedder, generator, transcriber, convos, logger)
	ingestor = service.NewIngestor(embedder, store, transcriber, cols,
		appCfg.Chunker.ChunkSize, appCfg.Chunker.Overlap, logger)
	return nil
}

func buildStore(cfg *config.AppConfig) (vectorstore.Store, error) {
	switch cfg.VectorStore.Type {
	case "qdrant", "":
		if cfg.VectorStore.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		return qdrant.NewStore(qdrant.Config{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			Timeout:    time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
			MaxRetries: cfg.VectorStore.Qdrant.MaxRetries,
		}, logger), nil
	case "memory":
		return memory.NewStore(logger), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

func buildEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "ollama", "":
		ecfg := embollama.Config{}
		if cfg.Embedder.Ollama != nil {
			ecfg = embollama.Config{
				BaseURL: cfg.Embedder.Ollama.BaseURL,
				Model:   cfg.Embedder.Ollama.Model,
				Timeout: time.Duration(cfg.Embedder.Ollama.TimeoutSecs) * time.Second,
			}
		}
		return embollama.New(ecfg), nil
	case "openai":
		ecfg := embopenai.Config{}
		if cfg.Embedder.OpenAI != nil {
			ecfg = embopenai.Config{
				APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
				Model:     cfg.Embedder.OpenAI.Model,
			}
		}
		return embopenai.New(ecfg)
	case "compat":
		ecfg := compat.Config{}
		if cfg.Embedder.Compat != nil {
			ecfg = compat.Config{
				BaseURL:    cfg.Embedder.Compat.BaseURL,
				APIKeyEnv:  cfg.Embedder.Compat.APIKeyEnv,
				Model:      cfg.Embedder.Compat.Model,
				Timeout:    time.Duration(cfg.Embedder.Compat.TimeoutSecs) * time.Second,
				MaxRetries: cfg.Embedder.Compat.MaxRetries,
			}
		}
		return compat.New(ecfg)
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func buildGenerator(cfg *config.AppConfig) (domain.Generator, error) {
	switch cfg.Generator.Type {
	case "ollama", "":
		gcfg := genollama.Config{}
		if cfg.Generator.Ollama != nil {
			gcfg = genollama.Config{
				BaseURL: cfg.Generator.Ollama.BaseURL,
				Model:   cfg.Generator.Ollama.Model,
				Timeout: time.Duration(cfg.Generator.Ollama.TimeoutSecs) * time.Second,
			}
		}
		return genollama.New(gcfg, logger), nil
	case "openai":
		gcfg := genopenai.Config{}
		if cfg.Generator.OpenAI != nil {
			gcfg = genopenai.Config{
				APIKeyEnv: cfg.Generator.OpenAI.APIKeyEnv,
				Model:     cfg.Generator.OpenAI.Model,
			}
		}
		return genopenai.New(gcfg)
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Generator.Type)
	}
}

// buildTranscriber returns nil when transcription is not configured;
// audio ingestion then fails with a configuration error.
func buildTranscriber(cfg *config.AppConfig) (domain.Transcriber, error) {
	switch cfg.Transcriber.Type {
	case "none", "":
		return nil, nil
	case "whisper", "openai":
		return openai.New(openai.Config{
			APIKeyEnv: cfg.Transcriber.APIKeyEnv,
			Model:     cfg.Transcriber.Model,
		})
	default:
		return nil, fmt.Errorf("unknown transcriber: %s", cfg.Transcriber.Type)
	}
}
