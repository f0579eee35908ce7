// Package catalog stores photo metadata in SQLite. It is the system of
// record the search index is built from: a bulk rebuild pages through the
// public photos here, and per-photo changes flow to the index as events.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound reports that no photo has the requested ID.
var ErrNotFound = errors.New("photo not found")

// Photo is one catalog row.
type Photo struct {
	ID        string         `json:"id"`
	SourceURI string         `json:"source_uri"`
	Title     string         `json:"title,omitempty"`
	Owner     string         `json:"owner,omitempty"`
	Public    bool           `json:"public"`
	Extra     map[string]any `json:"extra,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Catalog wraps the SQLite database.
type Catalog struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at dbPath and initializes the
// schema. Parent directories are created if they do not exist.
func Open(dbPath string) (*Catalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS photos (
		id TEXT PRIMARY KEY,
		source_uri TEXT NOT NULL,
		title TEXT,
		owner TEXT,
		public INTEGER NOT NULL DEFAULT 0,
		extra TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_photos_public_created ON photos(public, created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_photos_source_uri ON photos(source_uri);
	`
	_, err := db.Exec(schema)
	return err
}

// Create inserts a photo. A missing ID is filled with a new UUID.
func (c *Catalog) Create(ctx context.Context, p *Photo) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	extraJSON, err := json.Marshal(p.Extra)
	if err != nil {
		return fmt.Errorf("failed to marshal extra: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO photos (id, source_uri, title, owner, public, extra, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SourceURI, p.Title, p.Owner, p.Public, string(extraJSON), p.CreatedAt,
	)
	return err
}

// Get returns a photo by ID.
func (c *Catalog) Get(ctx context.Context, id string) (*Photo, error) {
	return c.getWhere(ctx, "id = ?", id)
}

// GetBySourceURI returns the photo whose source URI matches.
func (c *Catalog) GetBySourceURI(ctx context.Context, uri string) (*Photo, error) {
	return c.getWhere(ctx, "source_uri = ?", uri)
}

func (c *Catalog) getWhere(ctx context.Context, where string, arg any) (*Photo, error) {
	var p Photo
	var extraJSON string

	err := c.db.QueryRowContext(ctx,
		`SELECT id, source_uri, title, owner, public, extra, created_at
		 FROM photos WHERE `+where, arg,
	).Scan(&p.ID, &p.SourceURI, &p.Title, &p.Owner, &p.Public, &extraJSON, &p.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if extraJSON != "" && extraJSON != "null" {
		if err := json.Unmarshal([]byte(extraJSON), &p.Extra); err != nil {
			return nil, fmt.Errorf("failed to unmarshal extra: %w", err)
		}
	}
	return &p, nil
}

// Delete removes a photo by ID.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVisibility flips the public flag and returns the updated photo.
func (c *Catalog) SetVisibility(ctx context.Context, id string, public bool) (*Photo, error) {
	result, err := c.db.ExecContext(ctx,
		`UPDATE photos SET public = ? WHERE id = ?`, public, id)
	if err != nil {
		return nil, err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return nil, ErrNotFound
	}
	return c.Get(ctx, id)
}

// ListPublic returns public photos in creation order with offset and limit.
func (c *Catalog) ListPublic(ctx context.Context, offset, limit int) ([]*Photo, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, source_uri, title, owner, public, extra, created_at
		 FROM photos WHERE public = 1 ORDER BY created_at, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []*Photo
	for rows.Next() {
		var p Photo
		var extraJSON string
		if err := rows.Scan(&p.ID, &p.SourceURI, &p.Title, &p.Owner, &p.Public, &extraJSON, &p.CreatedAt); err != nil {
			return nil, err
		}
		if extraJSON != "" && extraJSON != "null" {
			if err := json.Unmarshal([]byte(extraJSON), &p.Extra); err != nil {
				return nil, fmt.Errorf("failed to unmarshal extra: %w", err)
			}
		}
		photos = append(photos, &p)
	}
	return photos, rows.Err()
}

// CountPublic returns the number of public photos.
func (c *Catalog) CountPublic(ctx context.Context) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM photos WHERE public = 1`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}
