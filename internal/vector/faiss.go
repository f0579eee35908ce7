//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"
)

// FAISSIndex wraps a FAISS IndexFlat. For IndexFlat the labels FAISS returns
// are row offsets in insertion order, which is exactly the Hit contract, so
// no ID remapping is needed. FAISS search may return -1 labels when the index
// holds fewer than k rows; those pass through for the caller to filter.
type FAISSIndex struct {
	index     *C.FaissIndex
	dimension int
	metric    Metric
	mu        sync.RWMutex
}

// NewFAISSIndex creates a FAISS IndexFlatIP or IndexFlatL2 per the metric.
func NewFAISSIndex(dimension int, metric Metric) (*FAISSIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	if !metric.Valid() {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}

	var index *C.FaissIndex
	var ret C.int
	if metric == MetricL2 {
		var flat *C.FaissIndexFlatL2
		ret = C.faiss_IndexFlatL2_new_with(&flat, C.idx_t(dimension))
		index = (*C.FaissIndex)(unsafe.Pointer(flat))
	} else {
		var flat *C.FaissIndexFlatIP
		ret = C.faiss_IndexFlatIP_new_with(&flat, C.idx_t(dimension))
		index = (*C.FaissIndex)(unsafe.Pointer(flat))
	}
	if ret != 0 {
		return nil, fmt.Errorf("create FAISS index: %s", faissLastError())
	}
	return &FAISSIndex{index: index, dimension: dimension, metric: metric}, nil
}

func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}

// Add appends rows at offsets count-before + i.
func (f *FAISSIndex) Add(ctx context.Context, vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	flat := make([]float32, len(vectors)*f.dimension)
	for i, v := range vectors {
		if len(v) != f.dimension {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), f.dimension)
		}
		copy(flat[i*f.dimension:(i+1)*f.dimension], v)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	ret := C.faiss_Index_add(f.index, C.idx_t(len(vectors)), (*C.float)(unsafe.Pointer(&flat[0])))
	if ret != 0 {
		return fmt.Errorf("add vectors: %s", faissLastError())
	}
	return nil
}

// Search returns up to k hits ordered best-first by FAISS.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != f.dimension {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimension)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || int(C.faiss_Index_ntotal(f.index)) == 0 {
		return nil, nil
	}

	scores := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&scores[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search: %s", faissLastError())
	}

	hits := make([]Hit, 0, k)
	for i := 0; i < k; i++ {
		hits = append(hits, Hit{Offset: int(labels[i]), Score: float64(scores[i])})
	}
	return hits, nil
}

// Rows returns the number of vectors currently stored.
func (f *FAISSIndex) Rows() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return int(C.faiss_Index_ntotal(f.index))
}

// Dimension returns the fixed dimension set at construction.
func (f *FAISSIndex) Dimension() int {
	return f.dimension
}

// Metric returns the comparison metric set at construction.
func (f *FAISSIndex) Metric() Metric {
	return f.metric
}

// Save writes the index in FAISS native format.
func (f *FAISSIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	if ret := C.faiss_write_index_fname(f.index, cPath); ret != 0 {
		return fmt.Errorf("write FAISS index: %s", faissLastError())
	}
	return nil
}

// Load replaces the index with the contents of path. A missing file is not an
// error; the index is unchanged.
func (f *FAISSIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var loaded *C.FaissIndex
	if ret := C.faiss_read_index_fname(cPath, 0, &loaded); ret != 0 {
		return fmt.Errorf("read FAISS index: %s", faissLastError())
	}
	if int(C.faiss_Index_d(loaded)) != f.dimension {
		C.faiss_Index_free(loaded)
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", int(C.faiss_Index_d(loaded)), f.dimension)
	}

	f.mu.Lock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
	}
	f.index = loaded
	f.mu.Unlock()
	return nil
}

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}
