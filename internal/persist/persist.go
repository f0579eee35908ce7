// Package persist reads and writes the on-disk triple that backs the index:
// the index file, the ordered records file, and the raw embeddings backup.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pixseek/pixseek/internal/record"
	"github.com/pixseek/pixseek/internal/vector"
)

// ErrNoBundle reports that no saved state exists at the configured paths.
var ErrNoBundle = errors.New("no saved index state")

// Paths locates the three artifacts. An empty BackupPath disables the raw
// embeddings backup, which also disables removal.
type Paths struct {
	IndexPath   string
	RecordsPath string
	BackupPath  string
}

// Bundle is a consistent snapshot of everything the index manager persists.
// The invariant tying the three together: Records[i] describes the vector at
// index row i, and Backup[i] is that vector's raw value.
type Bundle struct {
	Index   vector.Index
	Records []record.Record
	Backup  [][]float32
}

// Save writes the bundle. Each artifact is written to a temp file in its
// directory and renamed into place, so a crash mid-save leaves the previous
// files intact.
func Save(paths Paths, b Bundle) error {
	if err := b.Index.Save(paths.IndexPath); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	if err := writeRecords(paths.RecordsPath, b.Records); err != nil {
		return fmt.Errorf("save records: %w", err)
	}
	if paths.BackupPath != "" {
		if err := writeBackup(paths.BackupPath, b.Index.Dimension(), b.Backup); err != nil {
			return fmt.Errorf("save backup: %w", err)
		}
	}
	return nil
}

// Load reads saved state. A missing records file means no bundle exists and
// returns ErrNoBundle. A missing backup file is tolerated: the bundle loads
// with a nil Backup and the caller decides what that disables.
func Load(paths Paths, indexType string, dimension int, metric vector.Metric) (*Bundle, error) {
	records, err := readRecords(paths.RecordsPath)
	if err != nil {
		return nil, err
	}

	idx, err := vector.New(indexType, dimension, metric)
	if err != nil {
		return nil, err
	}
	if err := idx.Load(paths.IndexPath); err != nil {
		idx.Close()
		return nil, fmt.Errorf("load index: %w", err)
	}

	backup, err := readBackup(paths.BackupPath, dimension)
	if err != nil {
		idx.Close()
		return nil, err
	}

	return &Bundle{Index: idx, Records: records, Backup: backup}, nil
}

func writeRecords(path string, records []record.Record) error {
	if path == "" {
		return fmt.Errorf("records path not configured")
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	return atomicWrite(path, data)
}

func readRecords(path string) ([]record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoBundle
		}
		return nil, fmt.Errorf("read records: %w", err)
	}
	var store record.Store
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return store.Records(), nil
}

func writeBackup(path string, dimension int, backup [][]float32) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".backup-*")
	if err != nil {
		return fmt.Errorf("create backup temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := vector.WriteMatrix(tmp, dimension, backup); err != nil {
		tmp.Close()
		return fmt.Errorf("write backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close backup temp: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func readBackup(path string, dimension int) ([][]float32, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open backup: %w", err)
	}
	defer file.Close()
	dim, rows, err := vector.ReadMatrix(file)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	if dim != dimension {
		return nil, fmt.Errorf("backup dimension mismatch: file has %d, expected %d", dim, dimension)
	}
	return rows, nil
}

func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".write-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
