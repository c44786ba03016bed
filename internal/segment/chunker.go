package segment

import (
	"fmt"

	"searchweave/internal/corpus"
)

// AlignmentError 词元偏移无法唯一对齐到原文时返回。
type AlignmentError struct {
	DocID  string
	Index  int // 出错的词元序号
	Reason string
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("segment: alignment failed for doc %s at token %d: %s", e.DocID, e.Index, e.Reason)
}

// Chunker 将归一化文档文本切为互相重叠、按位置排序的窗口。
// 窗口大小与重叠均以词元计；相同输入与参数产生字节一致的切分边界。
type Chunker struct {
	window  int
	overlap int
	tok     Tokenizer
}

// NewChunker 创建分块器，要求 0 ≤ overlap < window。
func NewChunker(tok Tokenizer, window, overlap int) (*Chunker, error) {
	if window <= 0 {
		return nil, fmt.Errorf("segment: window must be positive, got %d", window)
	}
	if overlap < 0 || overlap >= window {
		return nil, fmt.Errorf("segment: overlap must satisfy 0 <= overlap < window, got overlap=%d window=%d", overlap, window)
	}
	return &Chunker{window: window, overlap: overlap, tok: tok}, nil
}

// Window 返回窗口大小（词元）。
func (c *Chunker) Window() int { return c.window }

// Overlap 返回重叠大小（词元）。
func (c *Chunker) Overlap() int { return c.overlap }

// Split 切分整个词元流：无间隙、不丢尾部文本。
// 每个块覆盖 [start, min(start+W, total))，下一块从 start+W-O 开始。
// 末块可能短于窗口甚至完全落在上一块的重叠区内——仍然照常产出，
// 过滤退化块是下游的事。
func (c *Chunker) Split(docID, text string) ([]corpus.Chunk, error) {
	tokens := c.tok.Tokenize(text)
	if len(tokens) == 0 {
		return nil, nil
	}
	if err := c.checkAlignment(docID, text, tokens); err != nil {
		return nil, err
	}

	var chunks []corpus.Chunk
	total := len(tokens)
	step := c.window - c.overlap

	for start, pos := 0, 0; ; start, pos = start+step, pos+1 {
		end := start + c.window
		if end > total {
			end = total
		}
		charStart := tokens[start].Start
		charEnd := tokens[end-1].End
		chunks = append(chunks, corpus.Chunk{
			ChunkID:    ChunkID(docID, pos),
			DocID:      docID,
			Position:   pos,
			TokenStart: start,
			TokenEnd:   end,
			CharStart:  charStart,
			CharEnd:    charEnd,
			Text:       text[charStart:charEnd],
		})
		if end >= total {
			break
		}
	}
	return chunks, nil
}

// ChunkID 由 doc_id 与块位置派生，同一输入永远得到同一 ID。
func ChunkID(docID string, position int) string {
	return fmt.Sprintf("%s_chunk%04d", docID, position)
}

// checkAlignment 校验词元偏移单调、在界且与原文逐字一致。
func (c *Chunker) checkAlignment(docID, text string, tokens []Token) error {
	prevEnd := 0
	for i, t := range tokens {
		if t.Start < prevEnd || t.End <= t.Start || t.End > len(text) {
			return &AlignmentError{DocID: docID, Index: i, Reason: fmt.Sprintf("offsets [%d,%d) out of order or out of range", t.Start, t.End)}
		}
		if text[t.Start:t.End] != t.Text {
			return &AlignmentError{DocID: docID, Index: i, Reason: "token text does not match source span"}
		}
		prevEnd = t.End
	}
	return nil
}
