// Package config loads application configuration from an optional YAML
// file, a .env file, and environment variable overrides, in that order
// of increasing precedence.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Port       string  `yaml:"port"`
	CORSOrigin string  `yaml:"cors_origin"`
	RateRPS    float64 `yaml:"rate_rps"`
	RateBurst  int     `yaml:"rate_burst"`
}

// AuthConfig configures token signing.
type AuthConfig struct {
	Secret        string `yaml:"secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
}

// TokenTTL returns the configured token lifetime.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLHours) * time.Hour
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig configures uploaded file storage.
type StorageConfig struct {
	Dir string `yaml:"dir"`
}

// OllamaConfig configures the model gateway.
type OllamaConfig struct {
	BaseURL    string `yaml:"base_url"`
	EmbedModel string `yaml:"embed_model"`
	ChatModel  string `yaml:"chat_model"`
}

// QdrantConfig configures the vector store connection.
type QdrantConfig struct {
	Addr       string `yaml:"addr"`
	Collection string `yaml:"collection"`
}

// NATSConfig configures the re-index job bus. An empty URL disables it.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// ChunkingConfig configures the text splitter.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// Config is the root application configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Ollama   OllamaConfig   `yaml:"ollama"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	NATS     NATSConfig     `yaml:"nats"`
	Chunking ChunkingConfig `yaml:"chunking"`
	TopK     int            `yaml:"top_k"`

	MetricsPort int `yaml:"metrics_port"`
}

// Load reads configuration from path. A missing file is not an error;
// defaults and environment variables still apply. A .env file in the
// working directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTP.Port = envOr("PORT", cfg.HTTP.Port)
	cfg.HTTP.CORSOrigin = envOr("CORS_ORIGIN", cfg.HTTP.CORSOrigin)
	cfg.Auth.Secret = envOr("AUTH_SECRET", cfg.Auth.Secret)
	cfg.Database.Path = envOr("DATABASE_PATH", cfg.Database.Path)
	cfg.Storage.Dir = envOr("STORAGE_DIR", cfg.Storage.Dir)
	cfg.Ollama.BaseURL = envOr("OLLAMA_URL", cfg.Ollama.BaseURL)
	cfg.Ollama.EmbedModel = envOr("EMBED_MODEL", cfg.Ollama.EmbedModel)
	cfg.Ollama.ChatModel = envOr("CHAT_MODEL", cfg.Ollama.ChatModel)
	cfg.Qdrant.Addr = envOr("QDRANT_URL", cfg.Qdrant.Addr)
	cfg.Qdrant.Collection = envOr("QDRANT_COLLECTION", cfg.Qdrant.Collection)
	cfg.NATS.URL = envOr("NATS_URL", cfg.NATS.URL)
	cfg.TopK = envIntOr("TOP_K", cfg.TopK)
	cfg.Chunking.Size = envIntOr("CHUNK_SIZE", cfg.Chunking.Size)
	cfg.Chunking.Overlap = envIntOr("CHUNK_OVERLAP", cfg.Chunking.Overlap)
	cfg.MetricsPort = envIntOr("METRICS_PORT", cfg.MetricsPort)
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port == "" {
		cfg.HTTP.Port = "8080"
	}
	if cfg.HTTP.CORSOrigin == "" {
		cfg.HTTP.CORSOrigin = "*"
	}
	if cfg.HTTP.RateRPS == 0 {
		cfg.HTTP.RateRPS = 20
	}
	if cfg.HTTP.RateBurst == 0 {
		cfg.HTTP.RateBurst = 40
	}
	if cfg.Auth.Secret == "" {
		cfg.Auth.Secret = "dev-secret-change-me"
	}
	if cfg.Auth.TokenTTLHours == 0 {
		cfg.Auth.TokenTTLHours = 24
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "docsense.db"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "uploads"
	}
	if cfg.Ollama.BaseURL == "" {
		cfg.Ollama.BaseURL = "http://localhost:11434"
	}
	if cfg.Ollama.EmbedModel == "" {
		cfg.Ollama.EmbedModel = "nomic-embed-text"
	}
	if cfg.Ollama.ChatModel == "" {
		cfg.Ollama.ChatModel = "llama3.1:8b"
	}
	if cfg.Qdrant.Addr == "" {
		cfg.Qdrant.Addr = "localhost:6334"
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = "firm_documents"
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 900
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 120
	}
	if cfg.TopK == 0 {
		cfg.TopK = 4
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = 9091
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
