package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"searchweave/internal/db/postgres"
	redisdb "searchweave/internal/db/redis"
	"searchweave/internal/ingest"
	"searchweave/internal/platform/config"
	applog "searchweave/internal/platform/log"
	"searchweave/internal/search"
	"searchweave/internal/segment"
)

// 离线索引构建：扫描文档目录，解析 → 切块 → 嵌入 → 落盘产物。
// 产物目录整体替换，服务端重启后生效。
func main() {
	inputDir := flag.String("input", "data/docs", "directory of source documents")
	outDir := flag.String("out", "", "artifacts output directory (default: config ARTIFACTS_DIR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(applog.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	if *outDir == "" {
		*outDir = cfg.Artifacts.Dir
	}

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

	chunker, err := segment.NewChunker(segment.WordTokenizer{}, cfg.Chunking.Window, cfg.Chunking.Overlap)
	if err != nil {
		applog.Fatalf("❌ Invalid chunking config: %v", err)
	}
	applog.Infof("✅ Chunker ready (window: %d, overlap: %d)", cfg.Chunking.Window, cfg.Chunking.Overlap)

	pipeline := ingest.NewPipeline(chunker, embedder)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	start := time.Now()
	res, err := pipeline.Build(ctx, *inputDir)
	if err != nil {
		applog.Fatalf("❌ Build failed: %v", err)
	}
	applog.Infof("✅ Corpus built (%d documents, %d chunks, %s)",
		len(res.Docs), len(res.Records), time.Since(start).Round(time.Second))

	if err := pipeline.WriteArtifacts(res, *outDir); err != nil {
		applog.Fatalf("❌ Failed to write artifacts: %v", err)
	}
	applog.Infof("✅ Artifacts written to %s", *outDir)

	if cfg.Database.URL != "" {
		registerDocuments(ctx, cfg, res)
	}
	if cfg.Redis.URL != "" {
		invalidatePageCache(ctx, cfg)
	}

	applog.Info("👋 Index build complete")
}

// registerDocuments 把文档元数据登记到 PostgreSQL，供 /documents 查询。
// 登记失败只告警：产物已落盘，服务端有快照兜底。
func registerDocuments(ctx context.Context, cfg *config.AppConfig, res *ingest.BuildResult) {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		applog.Warnf("⚠️  Failed to open database: %v", err)
		return
	}
	defer db.Close()

	repo := postgres.NewDocRepository(db)
	if err := repo.EnsureTable(ctx); err != nil {
		applog.Warnf("⚠️  Failed to ensure documents table: %v", err)
		return
	}

	chunkCounts := make(map[string]int)
	for _, rec := range res.Records {
		chunkCounts[rec.DocID]++
	}
	if err := repo.Upsert(ctx, res.Docs, chunkCounts); err != nil {
		applog.Warnf("⚠️  Failed to register documents: %v", err)
		return
	}
	applog.Infof("✅ %d documents registered in PostgreSQL", len(res.Docs))
}

// invalidatePageCache 语料换代后旧页缓存全部作废。
func invalidatePageCache(ctx context.Context, cfg *config.AppConfig) {
	opt, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		applog.Warnf("⚠️  Redis URL invalid, cache not invalidated: %v", err)
		return
	}
	cache := redisdb.NewPageCache(goredis.NewClient(opt), cfg.Redis.TTLSeconds)
	cache.InvalidateAll(ctx)
	applog.Info("✅ Page cache invalidated")
}
