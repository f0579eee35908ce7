// Package vector provides flat vector indexes with offset-addressed rows.
package vector

import "context"

// Hit is a single search result: the row offset of the matched vector and its
// raw score (inner product or squared L2 distance, depending on the metric).
// Offsets may be negative or past the populated range when the index holds
// fewer than k rows; callers must filter those before dereferencing.
type Hit struct {
	Offset int
	Score  float64
}

// Index stores fixed-dimension vectors in append order and searches them.
// Row offsets are stable: Add appends rows at count-before + i and never
// reorders existing rows. There is no remove; removal means rebuilding a new
// index from a retained copy of the vectors.
type Index interface {
	Add(ctx context.Context, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Rows() int
	Dimension() int
	Metric() Metric
	Save(path string) error
	Load(path string) error
	Close() error
	Type() string
}
