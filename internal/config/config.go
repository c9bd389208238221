package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OllamaEmbedderConfig configures the local Ollama embedder.
type OllamaEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OpenAIEmbedderConfig configures the hosted OpenAI embedder.
type OpenAIEmbedderConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// CompatEmbedderConfig configures an OpenAI-compatible embeddings endpoint.
type CompatEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	Ollama *OllamaEmbedderConfig `yaml:"ollama,omitempty"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Compat *CompatEmbedderConfig `yaml:"compat,omitempty"`
}

// OllamaGeneratorConfig configures the local Ollama generator.
type OllamaGeneratorConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OpenAIGeneratorConfig configures the hosted chat completion generator.
type OpenAIGeneratorConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// GeneratorConfig selects and configures the answer generator.
type GeneratorConfig struct {
	Type   string                 `yaml:"type"`
	Ollama *OllamaGeneratorConfig `yaml:"ollama,omitempty"`
	OpenAI *OpenAIGeneratorConfig `yaml:"openai,omitempty"`
}

// TranscriberConfig configures audio transcription. Audio ingestion is
// disabled when Type is empty or "none".
type TranscriberConfig struct {
	Type      string `yaml:"type"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// CollectionsConfig names the backend collections.
type CollectionsConfig struct {
	Documents     string `yaml:"documents"`
	Chats         string `yaml:"chats"`
	Conversations string `yaml:"conversations"`
	Folders       string `yaml:"folders"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	Overlap   int `yaml:"overlap"`
}

// RetrievalConfig configures the answer pipeline.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Collections CollectionsConfig `yaml:"collections"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragchat/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragchat/config.yaml and
// returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragchat", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Embedder: EmbedderConfig{
			Type:   "ollama",
			Ollama: &OllamaEmbedderConfig{BaseURL: "http://localhost:11434", Model: "nomic-embed-text"},
		},
		Generator: GeneratorConfig{
			Type:   "ollama",
			Ollama: &OllamaGeneratorConfig{BaseURL: "http://localhost:11434", Model: "llama3.2"},
		},
		Transcriber: TranscriberConfig{Type: "none"},
		VectorStore: VectorStoreConfig{
			Type:   "qdrant",
			Qdrant: &QdrantConfig{URL: "http://localhost:6333"},
		},
		Collections: CollectionsConfig{
			Documents:     "documents",
			Chats:         "chats",
			Conversations: "conversations",
			Folders:       "folders",
		},
		Chunker:   ChunkerConfig{ChunkSize: 800, Overlap: 100},
		Retrieval: RetrievalConfig{TopK: 5},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "ollama"
	}
	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "ollama"
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "qdrant"
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant == nil {
		cfg.VectorStore.Qdrant = &QdrantConfig{}
	}
	if cfg.VectorStore.Qdrant != nil && cfg.VectorStore.Qdrant.URL == "" {
		cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
	}
	if cfg.Collections.Documents == "" {
		cfg.Collections.Documents = "documents"
	}
	if cfg.Collections.Chats == "" {
		cfg.Collections.Chats = "chats"
	}
	if cfg.Collections.Conversations == "" {
		cfg.Collections.Conversations = "conversations"
	}
	if cfg.Collections.Folders == "" {
		cfg.Collections.Folders = "folders"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 800
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 100
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
}
