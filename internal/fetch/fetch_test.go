package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestFetcher_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(path, []byte("jpeg bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	f := NewFetcher(0)
	data, err := f.Bytes(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "jpeg bytes" {
		t.Errorf("got %q", data)
	}
}

func TestFetcher_LocalFileMissing(t *testing.T) {
	f := NewFetcher(0)
	if _, err := f.Bytes(context.Background(), filepath.Join(t.TempDir(), "absent.jpg")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFetcher_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote bytes"))
	}))
	defer srv.Close()

	f := NewFetcher(0)
	data, err := f.Bytes(context.Background(), srv.URL+"/photo.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "remote bytes" {
		t.Errorf("got %q", data)
	}
}

func TestFetcher_HTTPNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(0)
	if _, err := f.Bytes(context.Background(), srv.URL+"/gone.jpg"); err == nil {
		t.Error("expected error for 404")
	}
}

func TestFetcher_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := NewFetcher(0)
	if _, err := f.Bytes(ctx, srv.URL); err == nil {
		t.Error("expected error for canceled context")
	}
}
