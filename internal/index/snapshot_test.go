package index

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func snapshotPaths(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "ids.json"), filepath.Join(dir, "vectors.bin")
}

func TestSnapshotRoundTrip(t *testing.T) {
	x, err := Build(
		[]string{"a", "b", "c"},
		[][]float32{
			{0.25, -1.5, 3},
			{1, 0, 0},
			{0, 0.5, -0.5},
		},
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	idsPath, vectorsPath := snapshotPaths(t)
	if err := x.Save(idsPath, vectorsPath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(idsPath, vectorsPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Dim() != 3 || loaded.Len() != 3 {
		t.Fatalf("expected dim 3 len 3, got dim %d len %d", loaded.Dim(), loaded.Len())
	}

	// 行序与 ids 对应关系必须保持：查询结果与保存前一致。
	before, _ := x.Search([]float32{1, 0, 0}, 3)
	after, _ := loaded.Search([]float32{1, 0, 0}, 3)
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("hit %d differs after reload: %v vs %v", i, before[i], after[i])
		}
	}
}

func TestLoadRejectsIDCountMismatch(t *testing.T) {
	x, _ := Build([]string{"a", "b"}, [][]float32{{1, 0}, {0, 1}})
	idsPath, vectorsPath := snapshotPaths(t)
	if err := x.Save(idsPath, vectorsPath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// ids.json 少一条：行数与 id 数错位必须快速失败。
	if err := os.WriteFile(idsPath, []byte(`["a"]`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Load(idsPath, vectorsPath)
	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
}

func TestLoadRejectsTruncatedVectors(t *testing.T) {
	x, _ := Build([]string{"a", "b"}, [][]float32{{1, 0}, {0, 1}})
	idsPath, vectorsPath := snapshotPaths(t)
	if err := x.Save(idsPath, vectorsPath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(vectorsPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := os.WriteFile(vectorsPath, raw[:len(raw)-4], 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err = Load(idsPath, vectorsPath)
	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IntegrityError for truncated file, got %v", err)
	}
}

func TestLoadRejectsTrailingBytes(t *testing.T) {
	x, _ := Build([]string{"a"}, [][]float32{{1, 0}})
	idsPath, vectorsPath := snapshotPaths(t)
	if err := x.Save(idsPath, vectorsPath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	f, err := os.OpenFile(vectorsPath, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.Write([]byte{0xde, 0xad}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f.Close()

	_, err = Load(idsPath, vectorsPath)
	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IntegrityError for trailing bytes, got %v", err)
	}
}

func TestLoadRejectsMissingFiles(t *testing.T) {
	idsPath, vectorsPath := snapshotPaths(t)
	if _, err := Load(idsPath, vectorsPath); err == nil {
		t.Fatal("expected error for missing artifacts")
	}
}
