package index

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pixseek/pixseek/internal/cache"
	"github.com/pixseek/pixseek/internal/embedding"
	"github.com/pixseek/pixseek/internal/fetch"
	"github.com/pixseek/pixseek/internal/persist"
	"github.com/pixseek/pixseek/internal/record"
	"github.com/pixseek/pixseek/internal/vector"
)

// countingEmbedder wraps another embedder and counts calls.
type countingEmbedder struct {
	embedding.Embedder
	textCalls  int
	imageCalls int
}

func (c *countingEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	c.textCalls++
	return c.Embedder.EmbedText(ctx, text)
}

func (c *countingEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	c.imageCalls++
	return c.Embedder.EmbedImage(ctx, data)
}

// colorEmbedder maps images onto fixed two-dimensional axes by content.
type colorEmbedder struct{}

func (colorEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	if text == "red" {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

func (colorEmbedder) EmbedImage(_ context.Context, data []byte) ([]float32, error) {
	if bytes.Contains(data, []byte("red")) {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

func (colorEmbedder) Dimensions() int { return 2 }
func (colorEmbedder) Close() error    { return nil }

func newManagerWith(t *testing.T, e embedding.Embedder, qc *cache.QueryCache) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	opts := []Option{}
	if qc != nil {
		opts = append(opts, WithQueryCache(qc))
	}
	m, err := NewManager(
		e,
		fetch.NewFetcher(0),
		persist.Paths{
			IndexPath:   filepath.Join(dir, "photos.idx"),
			RecordsPath: filepath.Join(dir, "records.json"),
			BackupPath:  filepath.Join(dir, "embeddings.bin"),
		},
		string(vector.IndexTypeFlat),
		vector.MetricIP,
		opts...,
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	return m, dir
}

func TestSearch_TwoAxisSeparation(t *testing.T) {
	m, dir := newManagerWith(t, colorEmbedder{}, nil)
	ctx := context.Background()

	recs := []record.Record{
		writeColorPhoto(t, dir, "red1", "red apple"),
		writeColorPhoto(t, dir, "blue1", "blue sky"),
		writeColorPhoto(t, dir, "red2", "red barn"),
		writeColorPhoto(t, dir, "blue2", "blue sea"),
	}
	report, err := m.Build(ctx, &sliceSource{records: recs})
	if err != nil {
		t.Fatal(err)
	}
	if report.Indexed != 4 {
		t.Fatalf("Indexed=%d", report.Indexed)
	}

	results, err := m.SearchByVector(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("results=%d", len(results))
	}
	for _, r := range results {
		if r.Record.ItemID != "red1" && r.Record.ItemID != "red2" {
			t.Errorf("query on the red axis returned %s", r.Record.ItemID)
		}
		if r.Score != 1 {
			t.Errorf("aligned unit vectors: score=%v, want 1", r.Score)
		}
	}

	results, err = m.SearchByText(ctx, "red", 2)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Record.ItemID != "red1" && r.Record.ItemID != "red2" {
			t.Errorf("text query returned %s", r.Record.ItemID)
		}
	}
}

func writeColorPhoto(t *testing.T, dir, id, content string) record.Record {
	t.Helper()
	path := filepath.Join(dir, id+".jpg")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return record.Record{ItemID: id, SourceURI: path, Public: true}
}

func TestSearch_CacheHitSkipsEncode(t *testing.T) {
	counter := &countingEmbedder{Embedder: embedding.NewMockEmbedder(8)}
	m, dir := newManagerWith(t, counter, cache.New(time.Hour))
	ctx := context.Background()

	rec := writePhoto(t, dir, "a")
	if _, err := m.Build(ctx, &sliceSource{records: []record.Record{rec}}); err != nil {
		t.Fatal(err)
	}
	baseline := counter.textCalls

	first, err := m.SearchByText(ctx, "sunset", 1)
	if err != nil {
		t.Fatal(err)
	}
	if counter.textCalls != baseline+1 {
		t.Fatalf("first search: textCalls=%d, want %d", counter.textCalls, baseline+1)
	}

	second, err := m.SearchByText(ctx, "sunset", 1)
	if err != nil {
		t.Fatal(err)
	}
	if counter.textCalls != baseline+1 {
		t.Errorf("cached search must not re-encode, textCalls=%d", counter.textCalls)
	}
	if len(first) != len(second) || first[0].Record.ItemID != second[0].Record.ItemID {
		t.Errorf("cached result differs: %+v vs %+v", first, second)
	}

	// different k is a different cache key
	if _, err := m.SearchByText(ctx, "sunset", 3); err != nil {
		t.Fatal(err)
	}
	if counter.textCalls != baseline+2 {
		t.Errorf("different top-k must encode again, textCalls=%d", counter.textCalls)
	}
}
