package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Port != "8080" {
		t.Fatalf("expected default port, got %q", cfg.HTTP.Port)
	}
	if cfg.Chunking.Size != 900 || cfg.Chunking.Overlap != 120 {
		t.Fatalf("expected chunking defaults, got %+v", cfg.Chunking)
	}
	if cfg.TopK != 4 {
		t.Fatalf("expected top_k 4, got %d", cfg.TopK)
	}
	if cfg.Qdrant.Collection != "firm_documents" {
		t.Fatalf("expected default collection, got %q", cfg.Qdrant.Collection)
	}
	if cfg.Auth.TokenTTL() != 24*time.Hour {
		t.Fatalf("expected default ttl, got %v", cfg.Auth.TokenTTL())
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("http:\n  port: \"9000\"\nchunking:\n  size: 500\n  overlap: 50\ntop_k: 7\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Port != "9000" {
		t.Fatalf("expected port 9000, got %q", cfg.HTTP.Port)
	}
	if cfg.Chunking.Size != 500 || cfg.Chunking.Overlap != 50 {
		t.Fatalf("expected file chunking, got %+v", cfg.Chunking)
	}
	if cfg.TopK != 7 {
		t.Fatalf("expected top_k 7, got %d", cfg.TopK)
	}
	if cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Fatalf("unset fields keep defaults, got %q", cfg.Ollama.EmbedModel)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("http:\n  port: \"9000\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "7777")
	t.Setenv("TOP_K", "9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Port != "7777" {
		t.Fatalf("env should win, got %q", cfg.HTTP.Port)
	}
	if cfg.TopK != 9 {
		t.Fatalf("env should win, got %d", cfg.TopK)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("http: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
