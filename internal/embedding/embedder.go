// Package embedding produces CLIP-style vector embeddings for text and images.
package embedding

import "context"

// Embedder maps text and image bytes into one shared vector space, so a text
// query can be compared against image vectors directly.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, data []byte) ([]float32, error)
	Dimensions() int
	Close() error
}
