// Package integration exercises the full catalog → events → index path the
// way the server wires it.
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pixseek/pixseek/internal/cache"
	"github.com/pixseek/pixseek/internal/catalog"
	"github.com/pixseek/pixseek/internal/embedding"
	"github.com/pixseek/pixseek/internal/events"
	"github.com/pixseek/pixseek/internal/fetch"
	"github.com/pixseek/pixseek/internal/index"
	"github.com/pixseek/pixseek/internal/persist"
	"github.com/pixseek/pixseek/internal/vector"
)

const testDimensions = 8

type env struct {
	dir      string
	catalog  *catalog.Catalog
	manager  *index.Manager
	pipeline *events.Pipeline
	paths    persist.Paths
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()

	cat, err := catalog.Open(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cat.Close() })

	paths := persist.Paths{
		IndexPath:   filepath.Join(dir, "photos.idx"),
		RecordsPath: filepath.Join(dir, "records.json"),
		BackupPath:  filepath.Join(dir, "embeddings.bin"),
	}
	manager, err := index.NewManager(
		embedding.NewMockEmbedder(testDimensions),
		fetch.NewFetcher(0),
		paths,
		string(vector.IndexTypeFlat),
		vector.MetricIP,
		index.WithQueryCache(cache.New(time.Hour)),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { manager.Close() })
	if err := manager.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	pipeline := events.NewPipeline(manager, 32, zap.NewNop())
	pipeline.Start(context.Background())
	t.Cleanup(pipeline.Stop)

	return &env{dir: dir, catalog: cat, manager: manager, pipeline: pipeline, paths: paths}
}

func (e *env) addPhoto(t *testing.T, name string, public bool) *catalog.Photo {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte("pixels-"+name), 0644); err != nil {
		t.Fatal(err)
	}
	photo := &catalog.Photo{SourceURI: path, Title: name, Public: public}
	if err := e.catalog.Create(context.Background(), photo); err != nil {
		t.Fatal(err)
	}
	if err := e.pipeline.Publish(events.Event{
		Kind:   events.KindItemCreated,
		Record: catalog.PhotoRecord(photo),
	}); err != nil {
		t.Fatal(err)
	}
	return photo
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestIntegration_CatalogToSearch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var photos []*catalog.Photo
	for i := 0; i < 5; i++ {
		photos = append(photos, e.addPhoto(t, fmt.Sprintf("p%d.jpg", i), true))
	}
	e.addPhoto(t, "private.jpg", false)

	// only the five public photos should reach the index
	waitFor(t, "public photos indexed", func() bool { return e.manager.Count() == 5 })

	data, err := os.ReadFile(photos[2].SourceURI)
	if err != nil {
		t.Fatal(err)
	}
	results, err := e.manager.SearchByImage(ctx, data, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("results=%d", len(results))
	}
	if results[0].Record.SourceURI != photos[2].SourceURI {
		t.Errorf("top hit=%q, want %q", results[0].Record.SourceURI, photos[2].SourceURI)
	}
}

func TestIntegration_VisibilityAndDeleteFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	photo := e.addPhoto(t, "subject.jpg", true)
	e.addPhoto(t, "other.jpg", true)
	waitFor(t, "photos indexed", func() bool { return e.manager.Count() == 2 })

	hidden, err := e.catalog.SetVisibility(ctx, photo.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.pipeline.Publish(events.Event{
		Kind:   events.KindVisibilityChanged,
		Record: catalog.PhotoRecord(hidden),
		Public: false,
	}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "photo hidden", func() bool { return !e.manager.Contains(photo.ID) })
	if e.manager.Count() != 1 {
		t.Errorf("count=%d after hide", e.manager.Count())
	}

	shown, err := e.catalog.SetVisibility(ctx, photo.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.pipeline.Publish(events.Event{
		Kind:   events.KindVisibilityChanged,
		Record: catalog.PhotoRecord(shown),
		Public: true,
	}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "photo shown", func() bool { return e.manager.Contains(photo.ID) })

	if err := e.catalog.Delete(ctx, photo.ID); err != nil {
		t.Fatal(err)
	}
	if err := e.pipeline.Publish(events.Event{
		Kind:   events.KindItemDeleted,
		ItemID: photo.ID,
	}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "photo deleted", func() bool { return !e.manager.Contains(photo.ID) })
	if e.manager.Count() != 1 {
		t.Errorf("count=%d after delete", e.manager.Count())
	}
}

func TestIntegration_RebuildAndRestart(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		e.addPhoto(t, fmt.Sprintf("r%d.jpg", i), true)
	}
	waitFor(t, "photos indexed", func() bool { return e.manager.Count() == 4 })

	// rebuild from the catalog must be idempotent
	report, err := e.manager.Build(ctx, catalog.NewPager(e.catalog, 2))
	if err != nil {
		t.Fatal(err)
	}
	if report.Indexed != 4 {
		t.Errorf("rebuild indexed=%d", report.Indexed)
	}
	if len(report.Failed) != 0 {
		t.Errorf("rebuild failed=%v", report.Failed)
	}

	// a fresh manager over the same files picks up where we left off
	restarted, err := index.NewManager(
		embedding.NewMockEmbedder(testDimensions),
		fetch.NewFetcher(0),
		e.paths,
		string(vector.IndexTypeFlat),
		vector.MetricIP,
	)
	if err != nil {
		t.Fatal(err)
	}
	defer restarted.Close()
	if err := restarted.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if restarted.Count() != 4 {
		t.Errorf("restarted count=%d", restarted.Count())
	}
	if restarted.State() != index.StateReady {
		t.Errorf("restarted state=%s", restarted.State())
	}
}
