package index

import (
	"errors"
	"math"
	"testing"
)

func TestSearchOrdersByScoreDescending(t *testing.T) {
	x, err := Build(
		[]string{"a", "b", "c"},
		[][]float32{
			{0.1, 0.9},
			{0.9, 0.1},
			{0.5, 0.5},
		},
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	hits, err := x.Search([]float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"b", "c", "a"}
	for i, id := range want {
		if hits[i].ChunkID != id {
			t.Errorf("hit %d: expected %s, got %s", i, id, hits[i].ChunkID)
		}
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("scores not descending at %d", i)
		}
	}
}

func TestSearchTieBreaksByChunkID(t *testing.T) {
	// 三个相同向量同分，必须按 chunk_id 升序。
	vec := []float32{0.6, 0.8}
	x, err := Build(
		[]string{"zz", "aa", "mm"},
		[][]float32{vec, vec, vec},
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	hits, err := x.Search([]float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"aa", "mm", "zz"}
	for i, id := range want {
		if hits[i].ChunkID != id {
			t.Errorf("hit %d: expected %s, got %s", i, id, hits[i].ChunkID)
		}
	}
}

func TestSearchTopNClamped(t *testing.T) {
	x, _ := Build([]string{"a", "b"}, [][]float32{{1, 0}, {0, 1}})

	hits, err := x.Search([]float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}

	hits, err = x.Search([]float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ChunkID != "a" {
		t.Fatalf("expected single hit a, got %v", hits)
	}
}

func TestAddDimensionMismatch(t *testing.T) {
	x, err := New(3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = x.Add("a", []float32{1, 2})
	var dm *DimensionMismatchError
	if !errors.As(err, &dm) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
	if dm.Got != 2 || dm.Want != 3 {
		t.Errorf("expected got=2 want=3, got %+v", dm)
	}
}

func TestSearchQueryDimensionMismatch(t *testing.T) {
	x, _ := Build([]string{"a"}, [][]float32{{1, 0}})

	_, err := x.Search([]float32{1, 0, 0}, 1)
	var dm *DimensionMismatchError
	if !errors.As(err, &dm) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
}

func TestBuildRejectsMisalignedSnapshot(t *testing.T) {
	_, err := Build([]string{"a", "b"}, [][]float32{{1, 0}})
	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IntegrityError for id/row mismatch, got %v", err)
	}

	_, err = Build(nil, nil)
	if !errors.As(err, &ie) {
		t.Fatalf("expected IntegrityError for empty snapshot, got %v", err)
	}
}

func TestL2Normalize(t *testing.T) {
	v := []float32{3, 4}
	if err := L2Normalize(v); err != nil {
		t.Fatalf("L2Normalize: %v", err)
	}
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("expected unit norm, got %f", sum)
	}

	if err := L2Normalize([]float32{0, 0}); err == nil {
		t.Fatal("expected error for zero-norm vector")
	}
}
