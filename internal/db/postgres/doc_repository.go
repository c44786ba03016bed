package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"searchweave/internal/corpus"
)

// DocRepository 文档元数据的 PostgreSQL 存储。
// 索引构建时登记，服务端 /documents 查询用；检索路径不依赖它。
type DocRepository struct {
	db *sql.DB
}

// NewDocRepository 创建 PostgreSQL 存储。
func NewDocRepository(db *sql.DB) *DocRepository {
	return &DocRepository{db: db}
}

// EnsureTable 确保 documents 表存在。
func (r *DocRepository) EnsureTable(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS documents (
		doc_id      VARCHAR(128) PRIMARY KEY,
		title       TEXT NOT NULL DEFAULT '',
		year        INT,
		source_url  TEXT NOT NULL DEFAULT '',
		filename    TEXT NOT NULL DEFAULT '',
		chunk_count INT NOT NULL DEFAULT 0,
		indexed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_documents_year ON documents(year DESC);
	`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Upsert 登记一批文档（重建语料时覆盖旧记录）。
func (r *DocRepository) Upsert(ctx context.Context, docs []corpus.Document, chunkCounts map[string]int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (doc_id, title, year, source_url, filename, chunk_count, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (doc_id) DO UPDATE SET
			title = EXCLUDED.title,
			year = EXCLUDED.year,
			source_url = EXCLUDED.source_url,
			filename = EXCLUDED.filename,
			chunk_count = EXCLUDED.chunk_count,
			indexed_at = EXCLUDED.indexed_at`)
	if err != nil {
		return fmt.Errorf("postgres: prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, d := range docs {
		var year any
		if d.Year > 0 {
			year = d.Year
		}
		if _, err := stmt.ExecContext(ctx, d.DocID, d.Title, year, d.SourceURL, d.Filename, chunkCounts[d.DocID], now); err != nil {
			return fmt.Errorf("postgres: upsert document %s: %w", d.DocID, err)
		}
	}
	return tx.Commit()
}

// DocEntry 文档列表条目。
type DocEntry struct {
	corpus.Document
	ChunkCount int       `json:"chunk_count"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// List 返回全部已登记文档（doc_id 升序）。
func (r *DocRepository) List(ctx context.Context) ([]DocEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT doc_id, title, COALESCE(year, 0), source_url, filename, chunk_count, indexed_at
		FROM documents ORDER BY doc_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list documents: %w", err)
	}
	defer rows.Close()

	var out []DocEntry
	for rows.Next() {
		var e DocEntry
		if err := rows.Scan(&e.DocID, &e.Title, &e.Year, &e.SourceURL, &e.Filename, &e.ChunkCount, &e.IndexedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan document: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get 按 doc_id 查询；不存在返回 nil, nil。
func (r *DocRepository) Get(ctx context.Context, docID string) (*DocEntry, error) {
	var e DocEntry
	err := r.db.QueryRowContext(ctx, `
		SELECT doc_id, title, COALESCE(year, 0), source_url, filename, chunk_count, indexed_at
		FROM documents WHERE doc_id = $1`, docID).
		Scan(&e.DocID, &e.Title, &e.Year, &e.SourceURL, &e.Filename, &e.ChunkCount, &e.IndexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get document %s: %w", docID, err)
	}
	return &e, nil
}
