package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Chunking.Window != 512 || cfg.Chunking.Overlap != 64 {
		t.Errorf("unexpected chunking defaults %+v", cfg.Chunking)
	}
	if cfg.Retrieval.DefaultK != 8 || cfg.Retrieval.MaxK != 50 {
		t.Errorf("unexpected retrieval defaults %+v", cfg.Retrieval)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CHUNK_OVERLAP", "0")
	t.Setenv("EMBEDDING_DIMS", "768")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.LogLevel)
	}
	if cfg.Chunking.Overlap != 0 {
		t.Errorf("expected explicit zero overlap, got %d", cfg.Chunking.Overlap)
	}
	if cfg.Embedding.Dims != 768 {
		t.Errorf("expected dims 768, got %d", cfg.Embedding.Dims)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.json")
	raw := []byte(`{"log_level":"warn","server":{"host":"127.0.0.1","port":9000},"chunking":{"window":256,"overlap":32}}`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("APP_CONFIG_FILE", path)
	// 环境变量优先于配置文件。
	t.Setenv("SERVER_PORT", "9001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" || cfg.Server.Host != "127.0.0.1" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("env should override file, got port %d", cfg.Server.Port)
	}
	if cfg.Chunking.Window != 256 {
		t.Errorf("expected window 256, got %d", cfg.Chunking.Window)
	}
}

func TestLoadRejectsBadChunking(t *testing.T) {
	t.Setenv("CHUNK_WINDOW", "10")
	t.Setenv("CHUNK_OVERLAP", "10")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when overlap >= window")
	}
}
