package index

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	applog "searchweave/internal/platform/log"
)

// 向量快照二进制格式（little-endian）：
//   u32 dim, u32 count, 然后 count 行 float32[dim]。
// ids.json 是与行序一一对应的 JSON 字符串数组。

// Load 读取 ids.json + vectors.bin 并装载为只读索引。
// 产物缺失、为空或 ids/行数错位都是启动期致命错误。
func Load(idsPath, vectorsPath string) (*VectorIndex, error) {
	raw, err := os.ReadFile(idsPath)
	if err != nil {
		return nil, fmt.Errorf("index: read %s: %w", idsPath, err)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("index: parse %s: %w", idsPath, err)
	}

	f, err := os.Open(vectorsPath)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", vectorsPath, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, &IntegrityError{Reason: fmt.Sprintf("%s: truncated header", vectorsPath)}
	}
	dim := int(binary.LittleEndian.Uint32(header[0:4]))
	count := int(binary.LittleEndian.Uint32(header[4:8]))
	if dim <= 0 || count <= 0 {
		return nil, &IntegrityError{Reason: fmt.Sprintf("%s: empty snapshot (dim=%d count=%d)", vectorsPath, dim, count)}
	}
	if count != len(ids) {
		return nil, &IntegrityError{Reason: fmt.Sprintf("%s has %d rows but %s has %d ids", vectorsPath, count, idsPath, len(ids))}
	}

	vecs := make([][]float32, count)
	row := make([]byte, dim*4)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, row); err != nil {
			return nil, &IntegrityError{Reason: fmt.Sprintf("%s: truncated at row %d", vectorsPath, i)}
		}
		vec := make([]float32, dim)
		for j := 0; j < dim; j++ {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(row[j*4 : j*4+4]))
		}
		vecs[i] = vec
	}
	// 多余字节说明产物与 header 不符。
	if _, err := r.Peek(1); err == nil {
		return nil, &IntegrityError{Reason: fmt.Sprintf("%s: trailing bytes beyond %d rows", vectorsPath, count)}
	}

	x, err := Build(ids, vecs)
	if err != nil {
		return nil, err
	}
	applog.Info("[Index] Snapshot loaded",
		"ids", idsPath,
		"vectors", vectorsPath,
		"count", count,
		"dim", dim,
	)
	return x, nil
}

// Save 将索引写为 ids.json + vectors.bin 两个产物。
func (x *VectorIndex) Save(idsPath, vectorsPath string) error {
	raw, err := json.Marshal(x.ids)
	if err != nil {
		return fmt.Errorf("index: marshal ids: %w", err)
	}
	if err := os.WriteFile(idsPath, raw, 0o644); err != nil {
		return fmt.Errorf("index: write %s: %w", idsPath, err)
	}

	f, err := os.Create(vectorsPath)
	if err != nil {
		return fmt.Errorf("index: create %s: %w", vectorsPath, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(x.dim))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(x.vecs)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("index: write header: %w", err)
	}
	var buf [4]byte
	for _, vec := range x.vecs {
		for _, v := range vec {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			if _, err := w.Write(buf[:]); err != nil {
				return fmt.Errorf("index: write vector: %w", err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("index: flush %s: %w", vectorsPath, err)
	}
	return nil
}
