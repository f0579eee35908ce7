package embedding

import (
	"context"
	"crypto/sha256"
	"math"

	"github.com/pixseek/pixseek/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests. It derives a
// fixed-dimension unit vector from a hash of the input, so the same text or
// image bytes always map to the same embedding.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder producing deterministic embeddings of
// the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

// EmbedText returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.fromSeed(HashString(text)), nil
}

// EmbedImage returns a deterministic embedding based on a digest of the bytes.
func (e *MockEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	sum := sha256.Sum256(data)
	seed := 0
	for _, b := range sum[:8] {
		seed = 31*seed + int(b)
	}
	if seed < 0 {
		seed = -seed
	}
	return e.fromSeed(seed), nil
}

func (e *MockEmbedder) fromSeed(seed int) []float32 {
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(seed*(i+1)))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
