package index

import (
	"fmt"
	"math"
	"sort"
)

// IntegrityError 语料产物损坏：维度不一致、ids 与向量矩阵错位等。
// 加载期遇到必须快速失败，绝不带病服务。
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return "index: integrity violation: " + e.Reason
}

// DimensionMismatchError 插入或查询向量的维度与索引不符。
type DimensionMismatchError struct {
	ChunkID string // 查询向量时为空
	Got     int
	Want    int
}

func (e *DimensionMismatchError) Error() string {
	if e.ChunkID != "" {
		return fmt.Sprintf("index: vector for %s has dim %d, index dim %d", e.ChunkID, e.Got, e.Want)
	}
	return fmt.Sprintf("index: query dim %d != index dim %d", e.Got, e.Want)
}

// Hit 一次查询的单个候选。
type Hit struct {
	ChunkID string
	Score   float64
}

// VectorIndex 精确暴力内积检索。每个 chunk_id 对应一行向量，
// 行 i 恒等于 ids[i]。向量按生产时的归一化状态原样存储与检索：
// 本索引假定入库向量已 L2 归一化（内积即余弦相似度），不代调用方归一化。
// 构建完成后只读，并发查询无需加锁。
type VectorIndex struct {
	dim  int
	ids  []string
	vecs [][]float32
}

// New 创建给定维度的空索引。
func New(dim int) (*VectorIndex, error) {
	if dim <= 0 {
		return nil, &IntegrityError{Reason: fmt.Sprintf("dimension must be positive, got %d", dim)}
	}
	return &VectorIndex{dim: dim}, nil
}

// Dim 返回索引维度。
func (x *VectorIndex) Dim() int { return x.dim }

// Len 返回索引中的向量数。
func (x *VectorIndex) Len() int { return len(x.ids) }

// Add 插入一条向量；维度不符立即报 DimensionMismatchError，不静默降级。
func (x *VectorIndex) Add(chunkID string, vec []float32) error {
	if len(vec) != x.dim {
		return &DimensionMismatchError{ChunkID: chunkID, Got: len(vec), Want: x.dim}
	}
	x.ids = append(x.ids, chunkID)
	x.vecs = append(x.vecs, vec)
	return nil
}

// Build 从 ids 数组与向量矩阵批量装载快照。
// 行数与 id 数不相等是完整性故障而不是可忽略的告警。
func Build(ids []string, vecs [][]float32) (*VectorIndex, error) {
	if len(ids) != len(vecs) {
		return nil, &IntegrityError{Reason: fmt.Sprintf("ids count %d != vector rows %d", len(ids), len(vecs))}
	}
	if len(ids) == 0 {
		return nil, &IntegrityError{Reason: "empty snapshot"}
	}
	x, err := New(len(vecs[0]))
	if err != nil {
		return nil, err
	}
	for i := range ids {
		if err := x.Add(ids[i], vecs[i]); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// Search 返回与查询向量内积最高的 topN 个 chunk id，
// 降序排列，同分时按 chunk_id 升序——排序必须确定，分页才站得住。
func (x *VectorIndex) Search(query []float32, topN int) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, &DimensionMismatchError{Got: len(query), Want: x.dim}
	}
	if topN <= 0 || len(x.vecs) == 0 {
		return nil, nil
	}

	hits := make([]Hit, len(x.vecs))
	for i := range x.vecs {
		hits[i] = Hit{ChunkID: x.ids[i], Score: dot(query, x.vecs[i])}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if topN > len(hits) {
		topN = len(hits)
	}
	return hits[:topN], nil
}

// L2Normalize 原地归一化；零向量报错而不是除零。
func L2Normalize(v []float32) error {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return &IntegrityError{Reason: "zero-norm vector"}
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
