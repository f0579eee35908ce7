package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCatalog_CreateGet(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()

	p := &Photo{SourceURI: "/photos/a.jpg", Title: "sunset", Owner: "nina", Public: true,
		Extra: map[string]any{"camera": "x100"}}
	if err := c.Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	if p.ID == "" {
		t.Fatal("Create should assign an ID")
	}

	got, err := c.Get(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "sunset" || !got.Public || got.Extra["camera"] != "x100" {
		t.Errorf("got %+v", got)
	}

	byURI, err := c.GetBySourceURI(ctx, "/photos/a.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if byURI.ID != p.ID {
		t.Errorf("GetBySourceURI returned %s, want %s", byURI.ID, p.ID)
	}
}

func TestCatalog_GetMissing(t *testing.T) {
	c := testCatalog(t)
	if _, err := c.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCatalog_Delete(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()
	p := &Photo{SourceURI: "a.jpg", Public: true}
	if err := c.Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("photo still present after delete: %v", err)
	}
	if err := c.Delete(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestCatalog_SetVisibility(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()
	p := &Photo{SourceURI: "a.jpg", Public: false}
	if err := c.Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	updated, err := c.SetVisibility(ctx, p.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !updated.Public {
		t.Error("photo should be public after update")
	}
	count, err := c.CountPublic(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("CountPublic=%d", count)
	}
}

func TestCatalog_ListPublicSkipsPrivate(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()
	for i, pub := range []bool{true, false, true} {
		if err := c.Create(ctx, &Photo{SourceURI: filepath.Join("/p", string(rune('a'+i))+".jpg"), Public: pub}); err != nil {
			t.Fatal(err)
		}
	}
	photos, err := c.ListPublic(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(photos) != 2 {
		t.Fatalf("len=%d", len(photos))
	}
	for _, p := range photos {
		if !p.Public {
			t.Errorf("private photo in public listing: %+v", p)
		}
	}
}

func TestCatalog_ListPublicCorruptExtra(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()
	p := &Photo{SourceURI: "a.jpg", Public: true, Extra: map[string]any{"k": "v"}}
	if err := c.Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	if _, err := c.db.ExecContext(ctx,
		`UPDATE photos SET extra = ? WHERE id = ?`, "{not json", p.ID); err != nil {
		t.Fatal(err)
	}

	// a row with unparsable extra must surface, same as in Get
	if _, err := c.ListPublic(ctx, 0, 10); err == nil {
		t.Error("ListPublic should fail on corrupt extra JSON")
	}
	if _, err := c.Get(ctx, p.ID); err == nil {
		t.Error("Get should fail on corrupt extra JSON")
	}
}

func TestPager_PagesThroughAll(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := c.Create(ctx, &Photo{SourceURI: filepath.Join("/p", string(rune('a'+i))+".jpg"), Public: true}); err != nil {
			t.Fatal(err)
		}
	}

	pager := NewPager(c, 2)
	var total int
	seen := map[string]bool{}
	for {
		page, err := pager.NextPage(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(page) == 0 {
			break
		}
		for _, r := range page {
			if seen[r.ItemID] {
				t.Errorf("duplicate record %s across pages", r.ItemID)
			}
			seen[r.ItemID] = true
		}
		total += len(page)
	}
	if total != 5 {
		t.Errorf("paged %d records, want 5", total)
	}
}
