package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"searchweave/internal/api"
	"searchweave/internal/corpus"
	"searchweave/internal/db/postgres"
	redisdb "searchweave/internal/db/redis"
	"searchweave/internal/index"
	"searchweave/internal/ingest"
	"searchweave/internal/platform/config"
	applog "searchweave/internal/platform/log"
	"searchweave/internal/search"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(applog.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	// 语料快照与向量索引缺一不可：完整性问题直接拒绝启动，不带病服务。
	store, err := corpus.Load(filepath.Join(cfg.Artifacts.Dir, ingest.ChunksFile))
	if err != nil {
		applog.Fatalf("❌ Failed to load chunk snapshot: %v", err)
	}
	applog.Infof("✅ Chunk snapshot loaded (%d chunks, %d documents)", store.Len(), len(store.Documents()))

	idx, err := index.Load(
		filepath.Join(cfg.Artifacts.Dir, ingest.IDsFile),
		filepath.Join(cfg.Artifacts.Dir, ingest.VectorsFile),
	)
	if err != nil {
		applog.Fatalf("❌ Failed to load vector index: %v", err)
	}
	if idx.Len() != store.Len() {
		applog.Fatalf("❌ Index has %d vectors but snapshot has %d chunks", idx.Len(), store.Len())
	}
	applog.Infof("✅ Vector index loaded (%d vectors, dim %d)", idx.Len(), idx.Dim())

	if cfg.Embedding.APIKey == "" {
		applog.Fatal("❌ EMBEDDING_API_KEY is required")
	}
	embedder := search.NewHTTPEmbedder(search.HTTPEmbedderConfig{
		BaseURL:        cfg.Embedding.BaseURL,
		APIKey:         cfg.Embedding.APIKey,
		Model:          cfg.Embedding.Model,
		Dims:           cfg.Embedding.Dims,
		BatchSize:      cfg.Embedding.BatchSize,
		TimeoutSeconds: cfg.Embedding.TimeoutSeconds,
	})
	applog.Infof("✅ Embedder initialized (model: %s, dims: %d)", cfg.Embedding.Model, cfg.Embedding.Dims)

	engine, err := search.NewEngine(store, idx, embedder, &cfg.Retrieval)
	if err != nil {
		applog.Fatalf("❌ Failed to build search engine: %v", err)
	}

	if cfg.Rerank.BaseURL != "" {
		engine.SetReranker(search.NewHTTPReranker(search.HTTPRerankerConfig{
			BaseURL:        cfg.Rerank.BaseURL,
			APIKey:         cfg.Rerank.APIKey,
			Model:          cfg.Rerank.Model,
			TimeoutSeconds: cfg.Rerank.TimeoutSeconds,
		}))
		applog.Infof("✅ Reranker initialized (model: %s)", cfg.Rerank.Model)
	}

	if cfg.Redis.URL != "" {
		if opt, err := goredis.ParseURL(cfg.Redis.URL); err == nil {
			engine.SetCache(redisdb.NewPageCache(goredis.NewClient(opt), cfg.Redis.TTLSeconds))
			applog.Infof("✅ Page cache initialized (TTL: %ds)", cfg.Redis.TTLSeconds)
		} else {
			applog.Warnf("⚠️  Redis URL invalid, page cache disabled: %v", err)
		}
	}

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	serverConfig.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	serverConfig.JWTSecret = cfg.Auth.JWTSecret
	serverConfig.JWTIssuer = cfg.Auth.JWTIssuer
	server := api.NewServer(serverConfig, engine, store)

	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			applog.Fatalf("❌ Failed to open database: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

		if err := db.Ping(); err != nil {
			applog.Fatalf("❌ Failed to ping database: %v", err)
		}
		applog.Info("✅ Connected to PostgreSQL")

		repo := postgres.NewDocRepository(db)
		migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := repo.EnsureTable(migrateCtx); err != nil {
			applog.Warnf("⚠️  Failed to ensure documents table: %v", err)
		} else {
			applog.Info("✅ Documents table ready")
			server.SetDocRepository(repo)
		}
		migrateCancel()
	} else {
		applog.Info("ℹ️  No DATABASE_URL set, serving document metadata from snapshot")
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		applog.Info("🔄 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			applog.Errorf("❌ Server shutdown error: %v", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		applog.Fatalf("❌ Server error: %v", err)
	}

	applog.Info("👋 Server stopped")
}
