package vector

import "fmt"

// IndexType selects the index implementation.
type IndexType string

const (
	// IndexTypeFlat is the in-process exact index. Default; fine for
	// collections up to the low hundreds of thousands of photos.
	IndexTypeFlat IndexType = "flat"
	// IndexTypeFAISS wraps a FAISS IndexFlat for larger collections.
	// Requires the FAISS library and building with -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// New creates an index of the given type. An empty type means flat.
func New(indexType string, dimension int, metric Metric) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeFlat, "":
		return NewFlatIndex(dimension, metric)
	case IndexTypeFAISS:
		return NewFAISSIndex(dimension, metric)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat, faiss)", indexType)
	}
}

// IsFAISSAvailable returns true if FAISS support is compiled in
// (build tag -tags=faiss with CGO).
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1, MetricIP)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
