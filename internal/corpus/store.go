package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	applog "searchweave/internal/platform/log"
)

// Store 只读的 chunk 快照。离线构建一次，服务路径并发读取，
// 加载完成后不再发生任何变更，因此读取无需加锁。
type Store struct {
	byID  map[string]*Chunk
	byDoc map[string][]*Chunk // Position 升序
	docs  map[string]*Document
}

// NewStore 从内存中的文档与块构建快照。
func NewStore(docs []Document, chunks []Chunk) (*Store, error) {
	s := &Store{
		byID:  make(map[string]*Chunk, len(chunks)),
		byDoc: make(map[string][]*Chunk),
		docs:  make(map[string]*Document, len(docs)),
	}
	for i := range docs {
		d := docs[i]
		if d.DocID == "" {
			return nil, fmt.Errorf("corpus: document %d has empty doc_id", i)
		}
		s.docs[d.DocID] = &d
	}
	for i := range chunks {
		c := chunks[i]
		if err := s.insert(&c); err != nil {
			return nil, err
		}
	}
	if err := s.finish(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load 读取 chunks.jsonl 快照。文件缺失或为空是致命的配置错误。
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open %s: %w", path, err)
	}
	defer f.Close()

	s := &Store{
		byID:  make(map[string]*Chunk),
		byDoc: make(map[string][]*Chunk),
		docs:  make(map[string]*Document),
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("corpus: %s line %d: %w", path, line, err)
		}
		if _, ok := s.docs[rec.DocID]; !ok {
			s.docs[rec.DocID] = &Document{
				DocID:     rec.DocID,
				Title:     rec.Title,
				Year:      rec.Year,
				SourceURL: rec.SourceURL,
				Filename:  rec.Filename,
			}
		}
		c := rec.Chunk
		if err := s.insert(&c); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("corpus: read %s: %w", path, err)
	}
	if len(s.byID) == 0 {
		return nil, fmt.Errorf("corpus: %s contains no chunks", path)
	}
	if err := s.finish(); err != nil {
		return nil, err
	}

	applog.Info("[Corpus] Snapshot loaded",
		"path", path,
		"documents", len(s.docs),
		"chunks", len(s.byID),
	)
	return s, nil
}

func (s *Store) insert(c *Chunk) error {
	if c.ChunkID == "" || c.DocID == "" {
		return fmt.Errorf("corpus: chunk with empty id (chunk_id=%q doc_id=%q)", c.ChunkID, c.DocID)
	}
	if _, dup := s.byID[c.ChunkID]; dup {
		return fmt.Errorf("corpus: duplicate chunk_id %s", c.ChunkID)
	}
	s.byID[c.ChunkID] = c
	s.byDoc[c.DocID] = append(s.byDoc[c.DocID], c)
	return nil
}

// finish 按 Position 排序每个文档的块并校验顺序严格递增。
// 同一文档内出现重复 Position 说明快照已损坏，拒绝加载。
func (s *Store) finish() error {
	for docID, list := range s.byDoc {
		sort.Slice(list, func(i, j int) bool { return list[i].Position < list[j].Position })
		for i := 1; i < len(list); i++ {
			if list[i].Position == list[i-1].Position {
				return fmt.Errorf("corpus: document %s has duplicate position %d (chunks %s, %s)",
					docID, list[i].Position, list[i-1].ChunkID, list[i].ChunkID)
			}
		}
	}
	return nil
}

// Chunk 按 chunk_id 查找。
func (s *Store) Chunk(chunkID string) (*Chunk, bool) {
	c, ok := s.byID[chunkID]
	return c, ok
}

// Document 按 doc_id 查找文档元数据。
func (s *Store) Document(docID string) (*Document, bool) {
	d, ok := s.docs[docID]
	return d, ok
}

// Documents 返回全部文档元数据（doc_id 升序）。
func (s *Store) Documents() []Document {
	out := make([]Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocID < out[j].DocID })
	return out
}

// DocChunkCount 返回文档的块数量。
func (s *Store) DocChunkCount(docID string) int {
	return len(s.byDoc[docID])
}

// Len 返回快照中的块总数。
func (s *Store) Len() int { return len(s.byID) }

// Window 返回以 center 为中心、两侧各最多 n 个相邻块的窗口，
// 以及窗口的 [minPos, maxPos]。窗口绝不跨越文档边界；
// 位于文档首尾时窗口自然收缩。center 不存在时返回 ok=false。
func (s *Store) Window(chunkID string, n int) (chunks []*Chunk, minPos, maxPos int, ok bool) {
	center, found := s.byID[chunkID]
	if !found {
		return nil, 0, 0, false
	}
	list := s.byDoc[center.DocID]

	// Position 可能不连续（退化块被下游过滤），用序号索引而不是位置算术。
	idx := sort.Search(len(list), func(i int) bool { return list[i].Position >= center.Position })
	if idx >= len(list) || list[idx].ChunkID != center.ChunkID {
		return []*Chunk{center}, center.Position, center.Position, true
	}

	lo := idx - n
	if lo < 0 {
		lo = 0
	}
	hi := idx + n
	if hi > len(list)-1 {
		hi = len(list) - 1
	}
	window := list[lo : hi+1]
	return window, window[0].Position, window[len(window)-1].Position, true
}
