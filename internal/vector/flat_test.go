package vector

import (
	"context"
	"math"
	"path/filepath"
	"testing"
)

func TestFlatIndex_AddSearch(t *testing.T) {
	idx, err := NewFlatIndex(3, MetricIP)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	if err := idx.Add(ctx, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Rows() != 3 {
		t.Errorf("Rows=%d", idx.Rows())
	}

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Offset != 0 {
		t.Errorf("top hit should be offset 0, got %d", hits[0].Offset)
	}
	if hits[1].Offset != 1 {
		t.Errorf("second hit should be offset 1, got %d", hits[1].Offset)
	}
}

func TestFlatIndex_OffsetsFollowInsertionOrder(t *testing.T) {
	idx, _ := NewFlatIndex(2, MetricIP)
	ctx := context.Background()
	if err := idx.Add(ctx, [][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(ctx, [][]float32{{0, 1}, {0.5, 0.5}}); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(ctx, []float32{0, 1}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].Offset != 1 {
		t.Errorf("vector added second must live at offset 1, got %d", hits[0].Offset)
	}
}

func TestFlatIndex_TopKPrefixConsistency(t *testing.T) {
	idx, _ := NewFlatIndex(2, MetricIP)
	ctx := context.Background()
	vecs := [][]float32{{1, 0}, {0.8, 0.6}, {0.6, 0.8}, {0, 1}, {-1, 0}}
	if err := idx.Add(ctx, vecs); err != nil {
		t.Fatal(err)
	}
	query := []float32{1, 0}
	full, err := idx.Search(ctx, query, 5)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(full); i++ {
		if full[i].Score > full[i-1].Score {
			t.Errorf("scores not non-increasing at %d: %v > %v", i, full[i].Score, full[i-1].Score)
		}
	}
	for m := 1; m <= 5; m++ {
		partial, err := idx.Search(ctx, query, m)
		if err != nil {
			t.Fatal(err)
		}
		if len(partial) != m {
			t.Fatalf("search k=%d returned %d hits", m, len(partial))
		}
		for i := range partial {
			if partial[i] != full[i] {
				t.Errorf("k=%d: hit %d = %+v, want prefix of full %+v", m, i, partial[i], full[i])
			}
		}
	}
}

func TestFlatIndex_L2Metric(t *testing.T) {
	idx, _ := NewFlatIndex(2, MetricL2)
	ctx := context.Background()
	if err := idx.Add(ctx, [][]float32{{0, 1}, {1, 0}}); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].Offset != 1 {
		t.Errorf("nearest under L2 should be offset 1, got %d", hits[0].Offset)
	}
	if hits[0].Score != 0 {
		t.Errorf("exact match distance = %v, want 0", hits[0].Score)
	}
	if got := MetricL2.Similarity(hits[1].Score); math.Abs(got) > 1e-6 {
		t.Errorf("orthogonal unit vectors: similarity = %v, want 0", got)
	}
}

func TestFlatIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewFlatIndex(3, MetricIP)
	ctx := context.Background()
	if err := idx.Add(ctx, [][]float32{{1, 0}}); err == nil {
		t.Error("expected error adding 2-dim vector to 3-dim index")
	}
	if idx.Rows() != 0 {
		t.Errorf("failed add must not append, Rows=%d", idx.Rows())
	}
	if _, err := idx.Search(ctx, []float32{1, 0}, 1); err == nil {
		t.Error("expected error searching with 2-dim query")
	}
}

func TestFlatIndex_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photos.idx")
	ctx := context.Background()

	idx, _ := NewFlatIndex(2, MetricIP)
	vecs := [][]float32{{1, 0}, {0.6, 0.8}, {0, 1}}
	if err := idx.Add(ctx, vecs); err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewFlatIndex(2, MetricIP)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Rows() != 3 {
		t.Fatalf("loaded Rows=%d, want 3", loaded.Rows())
	}
	query := []float32{0.6, 0.8}
	want, _ := idx.Search(ctx, query, 3)
	got, err := loaded.Search(ctx, query, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if got[i].Offset != want[i].Offset {
			t.Errorf("hit %d offset = %d, want %d", i, got[i].Offset, want[i].Offset)
		}
		if math.Abs(got[i].Score-want[i].Score) > 1e-6 {
			t.Errorf("hit %d score = %v, want %v", i, got[i].Score, want[i].Score)
		}
	}
}

func TestFlatIndex_LoadMissingFileIsNoop(t *testing.T) {
	idx, _ := NewFlatIndex(2, MetricIP)
	if err := idx.Load(filepath.Join(t.TempDir(), "absent.idx")); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if idx.Rows() != 0 {
		t.Errorf("Rows=%d", idx.Rows())
	}
}

func TestFlatIndex_LoadDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photos.idx")
	ctx := context.Background()
	idx, _ := NewFlatIndex(3, MetricIP)
	_ = idx.Add(ctx, [][]float32{{1, 0, 0}})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	other, _ := NewFlatIndex(2, MetricIP)
	if err := other.Load(path); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestNew_UnknownType(t *testing.T) {
	if _, err := New("hnsw", 4, MetricIP); err == nil {
		t.Error("expected error for unknown index type")
	}
}

func TestNew_DefaultsToFlat(t *testing.T) {
	idx, err := New("", 4, MetricIP)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Type() != string(IndexTypeFlat) {
		t.Errorf("Type=%s", idx.Type())
	}
}

func TestMetric_Similarity(t *testing.T) {
	if got := MetricIP.Similarity(0.75); got != 0.75 {
		t.Errorf("ip similarity passes through, got %v", got)
	}
	// unit vectors at distance^2 = 2 are orthogonal
	if got := MetricL2.Similarity(2); got != 0 {
		t.Errorf("l2 similarity of orthogonal vectors = %v, want 0", got)
	}
	if got := MetricL2.Similarity(0); got != 1 {
		t.Errorf("l2 similarity of identical vectors = %v, want 1", got)
	}
	if got := LegacySimilarity(0); got != 1 {
		t.Errorf("legacy similarity at 0 = %v, want 1", got)
	}
	if got := LegacySimilarity(1); got != 0.5 {
		t.Errorf("legacy similarity at 1 = %v, want 0.5", got)
	}
}
