package index

import "errors"

// Failure categories for index operations. Callers branch on these with
// errors.Is; the wrapped message carries the detail.
var (
	// ErrIndexNotReady means there is nothing to search yet: the index was
	// never built or failed to load.
	ErrIndexNotReady = errors.New("index not ready")

	// ErrSourceUnavailable means a photo's bytes could not be fetched from
	// its source URI.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrDimensionMismatch means a vector's dimension does not match the
	// index.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrConsistency means the index, records, and embeddings backup
	// disagree in a way that cannot be reconciled for this operation.
	ErrConsistency = errors.New("index state inconsistent")

	// ErrPersistence means the in-memory state mutated but could not be
	// written to disk.
	ErrPersistence = errors.New("persistence failed")
)
