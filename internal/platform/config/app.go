package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"searchweave/internal/search"
)

// AppConfig 全局配置。启动时统一加载，再按模块提取使用。
type AppConfig struct {
	LogLevel  string          `json:"log_level"`
	LogFormat string          `json:"log_format"`
	Server    ServerConfig    `json:"server"`
	Artifacts ArtifactsConfig `json:"artifacts"`
	Chunking  ChunkingConfig  `json:"chunking"`
	Embedding EmbeddingConfig `json:"embedding"`
	Rerank    RerankConfig    `json:"rerank"`
	Redis     RedisConfig     `json:"redis"`
	Database  DatabaseConfig  `json:"database"`
	Auth      AuthConfig      `json:"auth"`
	Retrieval search.Config   `json:"retrieval"`
}

type ServerConfig struct {
	Host                string `json:"host"`
	Port                int    `json:"port"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
}

// ArtifactsConfig 离线产物位置。服务端只读加载，缺失即启动失败。
type ArtifactsConfig struct {
	Dir string `json:"dir"`
}

type ChunkingConfig struct {
	Window  int `json:"window"`  // 词元窗口
	Overlap int `json:"overlap"` // 词元重叠
}

type EmbeddingConfig struct {
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	Model          string `json:"model"`
	Dims           int    `json:"dims"`
	BatchSize      int    `json:"batch_size"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type RerankConfig struct {
	BaseURL        string `json:"base_url"` // 为空表示不启用重排
	APIKey         string `json:"api_key"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type RedisConfig struct {
	URL        string `json:"url"` // 为空表示不启用页缓存
	TTLSeconds int    `json:"ttl_seconds"`
}

type DatabaseConfig struct {
	URL          string `json:"url"` // 为空表示不启用文档元数据库
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"` // 为空表示接口不鉴权
	JWTIssuer string `json:"jwt_issuer"`
}

// Default 返回默认配置。
func Default() *AppConfig {
	return &AppConfig{
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 60,
		},
		Artifacts: ArtifactsConfig{
			Dir: "data/artifacts",
		},
		Chunking: ChunkingConfig{
			Window:  512,
			Overlap: 64,
		},
		Embedding: EmbeddingConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "text-embedding-3-small",
			Dims:           1536,
			BatchSize:      64,
			TimeoutSeconds: 60,
		},
		Rerank: RerankConfig{
			TimeoutSeconds: 30,
		},
		Redis: RedisConfig{
			TTLSeconds: 300,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Retrieval: *search.DefaultConfig(),
	}
}

// Load 加载全局配置：默认值 -> 配置文件 -> 环境变量。
// 配置文件路径通过 APP_CONFIG_FILE 指定（JSON）。
func Load() (*AppConfig, error) {
	// .env 非必需，忽略错误
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv("APP_CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Chunking.Overlap < 0 || cfg.Chunking.Overlap >= cfg.Chunking.Window {
		return nil, fmt.Errorf("config: chunk overlap %d must satisfy 0 <= overlap < window %d",
			cfg.Chunking.Overlap, cfg.Chunking.Window)
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")

	setString(&cfg.Server.Host, "SERVER_HOST")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setInt(&cfg.Server.ReadTimeoutSeconds, "SERVER_READ_TIMEOUT_SECONDS")
	setInt(&cfg.Server.WriteTimeoutSeconds, "SERVER_WRITE_TIMEOUT_SECONDS")

	setString(&cfg.Artifacts.Dir, "ARTIFACTS_DIR")

	setInt(&cfg.Chunking.Window, "CHUNK_WINDOW")
	setIntAllowZero(&cfg.Chunking.Overlap, "CHUNK_OVERLAP")

	setString(&cfg.Embedding.BaseURL, "EMBEDDING_BASE_URL")
	setString(&cfg.Embedding.APIKey, "EMBEDDING_API_KEY")
	setString(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	setInt(&cfg.Embedding.Dims, "EMBEDDING_DIMS")
	setInt(&cfg.Embedding.BatchSize, "EMBEDDING_BATCH_SIZE")
	setInt(&cfg.Embedding.TimeoutSeconds, "EMBEDDING_TIMEOUT_SECONDS")

	setString(&cfg.Rerank.BaseURL, "RERANK_BASE_URL")
	setString(&cfg.Rerank.APIKey, "RERANK_API_KEY")
	setString(&cfg.Rerank.Model, "RERANK_MODEL")
	setInt(&cfg.Rerank.TimeoutSeconds, "RERANK_TIMEOUT_SECONDS")

	setString(&cfg.Redis.URL, "REDIS_URL")
	setIntAllowZero(&cfg.Redis.TTLSeconds, "CACHE_TTL_SECONDS")

	setString(&cfg.Database.URL, "DATABASE_URL")
	setInt(&cfg.Database.MaxOpenConns, "DATABASE_MAX_OPEN_CONNS")
	setInt(&cfg.Database.MaxIdleConns, "DATABASE_MAX_IDLE_CONNS")

	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.JWTIssuer, "JWT_ISSUER")

	setInt(&cfg.Retrieval.OverfetchFactor, "SEARCH_OVERFETCH_FACTOR")
	setInt(&cfg.Retrieval.MinOverfetch, "SEARCH_MIN_OVERFETCH")
	setInt(&cfg.Retrieval.MaxPreviewChars, "SEARCH_MAX_PREVIEW_CHARS")
	setIntAllowZero(&cfg.Retrieval.UpstreamRetries, "SEARCH_UPSTREAM_RETRIES")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

func setIntAllowZero(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*dst = n
		}
	}
}
