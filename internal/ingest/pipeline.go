package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"searchweave/internal/corpus"
	"searchweave/internal/index"
	applog "searchweave/internal/platform/log"
	"searchweave/internal/search"
	"searchweave/internal/segment"
)

// 产物文件名。服务端按同名加载。
const (
	ChunksFile   = "chunks.jsonl"
	IDsFile      = "ids.json"
	VectorsFile  = "vectors.bin"
	ManifestFile = "manifest.json"
)

// Pipeline 离线构建管线：发现 → 解析 → 切分 → 向量化 → 写产物。
// 顺序批处理，与在线服务互不交叠；服务端通过重启换入新快照。
type Pipeline struct {
	parsers  *ParserRegistry
	chunker  *segment.Chunker
	embedder search.Embedder
}

// NewPipeline 创建构建管线。
func NewPipeline(chunker *segment.Chunker, embedder search.Embedder) *Pipeline {
	return &Pipeline{
		parsers:  NewParserRegistry(),
		chunker:  chunker,
		embedder: embedder,
	}
}

// BuildResult 一次构建的完整快照。
type BuildResult struct {
	Docs    []corpus.Document
	Records []corpus.Record
	Index   *index.VectorIndex
}

// Manifest 构建清单，随产物一起落盘。
type Manifest struct {
	BuildID   string    `json:"build_id"`
	BuiltAt   time.Time `json:"built_at"`
	Documents int       `json:"documents"`
	Chunks    int       `json:"chunks"`
	Dim       int       `json:"dim"`
	Window    int       `json:"window"`
	Overlap   int       `json:"overlap"`
}

var reYear = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// Build 遍历输入目录，把每个可解析文件变成一篇文档的块与向量。
// 不可解析的文件跳过并告警，解析成功但内容为空的文件同样跳过。
func (p *Pipeline) Build(ctx context.Context, inputDir string) (*BuildResult, error) {
	var files []string
	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: walk %s: %w", inputDir, err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("ingest: no input files under %s", inputDir)
	}

	res := &BuildResult{}
	seen := make(map[string]string) // 内容哈希 -> filename，重复内容只入库一次

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, records, hash, err := p.buildOne(ctx, path)
		if err != nil {
			applog.Warn("[Ingest] Skipping file", "file", path, "error", err)
			continue
		}
		if doc == nil {
			continue
		}
		if prev, dup := seen[hash]; dup {
			applog.Warn("[Ingest] Duplicate document content, skipping", "file", path, "already_indexed_as", prev)
			continue
		}
		seen[hash] = doc.Filename
		res.Docs = append(res.Docs, *doc)
		res.Records = append(res.Records, records...)
	}
	if len(res.Records) == 0 {
		return nil, fmt.Errorf("ingest: no chunks produced from %s", inputDir)
	}

	if err := p.embedAll(ctx, res); err != nil {
		return nil, err
	}

	applog.Info("[Ingest] Build complete",
		"documents", len(res.Docs),
		"chunks", len(res.Records),
		"dim", res.Index.Dim(),
	)
	return res, nil
}

func (p *Pipeline) buildOne(ctx context.Context, path string) (*corpus.Document, []corpus.Record, string, error) {
	filename := filepath.Base(path)

	parser, err := p.parsers.Get(filename)
	if err != nil {
		return nil, nil, "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, "", err
	}
	defer f.Close()

	parsed, err := parser.Parse(f, filename)
	if err != nil {
		return nil, nil, "", err
	}
	if parsed.Content == "" {
		return nil, nil, "", nil
	}

	hash := contentHash(parsed.Content)
	doc := corpus.Document{
		DocID:    docIDFrom(filename, hash),
		Title:    parsed.Title,
		Filename: filename,
	}
	if doc.Title == "" {
		doc.Title = titleFromFilename(filename)
	}
	if m := reYear.FindString(filename); m != "" {
		fmt.Sscanf(m, "%d", &doc.Year)
	}

	chunks, err := p.chunker.Split(doc.DocID, parsed.Content)
	if err != nil {
		return nil, nil, "", err
	}

	records := make([]corpus.Record, len(chunks))
	for i, c := range chunks {
		records[i] = corpus.Record{
			Chunk:     c,
			Title:     doc.Title,
			Year:      doc.Year,
			SourceURL: doc.SourceURL,
			Filename:  doc.Filename,
		}
	}
	applog.Info("[Ingest] Document chunked", "doc_id", doc.DocID, "file", filename, "chunks", len(chunks))
	return &doc, records, hash, nil
}

// embedAll 批量向量化全部块并构建索引。向量 L2 归一化后入库，
// 索引里的内积即余弦相似度。
func (p *Pipeline) embedAll(ctx context.Context, res *BuildResult) error {
	texts := make([]string, len(res.Records))
	for i, r := range res.Records {
		texts[i] = r.Text
	}

	vecs, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("ingest: embed corpus: %w", err)
	}
	if len(vecs) != len(res.Records) {
		return fmt.Errorf("ingest: got %d vectors for %d chunks", len(vecs), len(res.Records))
	}

	idx, err := index.New(p.embedder.Dims())
	if err != nil {
		return err
	}
	for i, v := range vecs {
		if err := index.L2Normalize(v); err != nil {
			return fmt.Errorf("ingest: chunk %s: %w", res.Records[i].ChunkID, err)
		}
		if err := idx.Add(res.Records[i].ChunkID, v); err != nil {
			return err
		}
	}
	res.Index = idx
	return nil
}

// WriteArtifacts 把快照写为 chunks.jsonl + ids.json + vectors.bin + manifest.json。
func (p *Pipeline) WriteArtifacts(res *BuildResult, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("ingest: mkdir %s: %w", outDir, err)
	}

	f, err := os.Create(filepath.Join(outDir, ChunksFile))
	if err != nil {
		return fmt.Errorf("ingest: create chunks file: %w", err)
	}
	enc := json.NewEncoder(f)
	for _, rec := range res.Records {
		if err := enc.Encode(rec); err != nil {
			f.Close()
			return fmt.Errorf("ingest: write chunk %s: %w", rec.ChunkID, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("ingest: close chunks file: %w", err)
	}

	if err := res.Index.Save(filepath.Join(outDir, IDsFile), filepath.Join(outDir, VectorsFile)); err != nil {
		return err
	}

	manifest := Manifest{
		BuildID:   uuid.New().String(),
		BuiltAt:   time.Now().UTC(),
		Documents: len(res.Docs),
		Chunks:    len(res.Records),
		Dim:       res.Index.Dim(),
		Window:    p.chunker.Window(),
		Overlap:   p.chunker.Overlap(),
	}
	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("ingest: marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, ManifestFile), raw, 0o644); err != nil {
		return fmt.Errorf("ingest: write manifest: %w", err)
	}

	applog.Info("[Ingest] Artifacts written", "dir", outDir, "build_id", manifest.BuildID)
	return nil
}

// DocID 由文件名主干与内容哈希派生：稳定、可读，同一输入永远得到同一 ID。
func DocID(filename, content string) string {
	return docIDFrom(filename, contentHash(content))
}

func contentHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", h[:4])
}

func docIDFrom(filename, hash string) string {
	return slug(strings.TrimSuffix(filename, filepath.Ext(filename))) + "-" + hash
}

func slug(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	prevDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

func titleFromFilename(filename string) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	stem = strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	return strings.TrimSpace(stem)
}
