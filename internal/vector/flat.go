package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FlatIndex is an exact brute-force index over float32 rows. It mirrors a flat
// ANN index: append-only storage where row i is the i-th vector ever added.
// Safe for concurrent use; Add takes the write lock, Search the read lock.
type FlatIndex struct {
	dimension int
	metric    Metric
	rows      [][]float32
	mu        sync.RWMutex
}

// NewFlatIndex creates an empty flat index with the given dimension and metric.
func NewFlatIndex(dimension int, metric Metric) (*FlatIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	if !metric.Valid() {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	return &FlatIndex{dimension: dimension, metric: metric}, nil
}

// Type returns the index type identifier.
func (f *FlatIndex) Type() string {
	return string(IndexTypeFlat)
}

// Add appends rows. Each vector must match the index dimension; a mismatch
// fails the whole batch before anything is appended.
func (f *FlatIndex) Add(ctx context.Context, vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != f.dimension {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), f.dimension)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range vectors {
		row := make([]float32, f.dimension)
		copy(row, v)
		f.rows = append(f.rows, row)
	}
	return nil
}

// Search scans all rows and returns up to k hits ordered best-first under the
// metric. Returns fewer than k hits when the index holds fewer rows.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != f.dimension {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimension)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || len(f.rows) == 0 {
		return nil, nil
	}
	hits := make([]Hit, len(f.rows))
	for i, row := range f.rows {
		var raw float64
		if f.metric == MetricL2 {
			raw = SquaredL2(query, row)
		} else {
			raw = InnerProduct(query, row)
		}
		hits[i] = Hit{Offset: i, Score: raw}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return f.metric.Better(hits[i].Score, hits[j].Score)
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Rows returns the number of vectors currently stored.
func (f *FlatIndex) Rows() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rows)
}

// Dimension returns the fixed dimension set at construction.
func (f *FlatIndex) Dimension() int {
	return f.dimension
}

// Metric returns the comparison metric set at construction.
func (f *FlatIndex) Metric() Metric {
	return f.metric
}

// Save persists the index to path, creating parent directories as needed.
// Format: dimension (uint32), row count (uint32), then rows of
// dimension*4 little-endian float32 bytes.
func (f *FlatIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer file.Close()
	if err := WriteMatrix(file, f.dimension, f.rows); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// Load replaces the in-memory rows with the contents of path. The stored
// dimension must match. A missing file is not an error; the index is unchanged.
func (f *FlatIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()
	dim, rows, err := ReadMatrix(file)
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	if dim != f.dimension {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, f.dimension)
	}
	f.mu.Lock()
	f.rows = rows
	f.mu.Unlock()
	return nil
}

// Close is a no-op for FlatIndex.
func (f *FlatIndex) Close() error {
	return nil
}

// WriteMatrix writes a float32 matrix as dimension (uint32), row count
// (uint32), then row data in little-endian order. It is the on-disk layout
// shared by the flat index file and the raw embeddings backup.
func WriteMatrix(w io.Writer, dimension int, rows [][]float32) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(dimension)); err != nil {
		return fmt.Errorf("write dimension: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(rows))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	buf := make([]byte, dimension*4)
	for _, row := range rows {
		if len(row) != dimension {
			return fmt.Errorf("row dimension mismatch: got %d, expected %d", len(row), dimension)
		}
		for i, v := range row {
			binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	return nil
}

// ReadMatrix is the inverse of WriteMatrix.
func ReadMatrix(r io.Reader) (dimension int, rows [][]float32, err error) {
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return 0, nil, fmt.Errorf("read dimension: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return 0, nil, fmt.Errorf("read count: %w", err)
	}
	rows = make([][]float32, 0, n)
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, nil, fmt.Errorf("read row %d: %w", i, err)
		}
		row := make([]float32, dim)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4 : (j+1)*4]))
		}
		rows = append(rows, row)
	}
	return int(dim), rows, nil
}
