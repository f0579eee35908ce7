package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/pixseek/pixseek/internal/record"
	"github.com/pixseek/pixseek/internal/vector"
)

// Result is one search match: the record and its similarity score, where
// higher is more similar regardless of the underlying metric.
type Result struct {
	Record record.Record `json:"record"`
	Score  float64       `json:"score"`
}

// SearchByText embeds the query text and returns up to k matches, best first.
func (m *Manager) SearchByText(ctx context.Context, query string, k int) ([]Result, error) {
	cacheKey := fmt.Sprintf("text:%d:%s", k, query)
	if cached, ok := m.cachedResults(cacheKey); ok {
		return cached, nil
	}

	vec, err := m.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := m.SearchByVector(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	m.cacheResults(cacheKey, results)
	return results, nil
}

// SearchByImage embeds the image bytes and returns up to k matches, best
// first. Results are cached by a digest of the bytes.
func (m *Manager) SearchByImage(ctx context.Context, data []byte, k int) ([]Result, error) {
	sum := sha256.Sum256(data)
	cacheKey := fmt.Sprintf("image:%d:%s", k, hex.EncodeToString(sum[:]))
	if cached, ok := m.cachedResults(cacheKey); ok {
		return cached, nil
	}

	vec, err := m.embedder.EmbedImage(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("embed image: %w", err)
	}
	results, err := m.SearchByVector(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	m.cacheResults(cacheKey, results)
	return results, nil
}

// SearchByVector searches with a raw query vector. Hits whose offsets fall
// outside the record range are dropped, so every returned result carries a
// real record.
func (m *Manager) SearchByVector(ctx context.Context, query []float32, k int) ([]Result, error) {
	if len(query) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d dims, index expects %d",
			ErrDimensionMismatch, len(query), m.dimension)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.idx == nil || m.state == StateUninitialized {
		return nil, ErrIndexNotReady
	}
	// a built-but-empty index is searchable, it just has nothing to say
	if k <= 0 || m.store.Len() == 0 {
		return nil, nil
	}

	hits, err := m.idx.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		if hit.Offset < 0 || hit.Offset >= m.store.Len() {
			continue
		}
		results = append(results, Result{
			Record: m.store.At(hit.Offset),
			Score:  m.metric.Similarity(hit.Score),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// LegacyScore converts a squared-L2 distance to the historical 1/(1+d)
// similarity, kept for clients that still expect the old scale.
func LegacyScore(distance float64) float64 {
	return vector.LegacySimilarity(distance)
}

func (m *Manager) cachedResults(key string) ([]Result, bool) {
	if m.queryCache == nil {
		return nil, false
	}
	v, ok := m.queryCache.Get(key)
	if !ok {
		return nil, false
	}
	results, ok := v.([]Result)
	return results, ok
}

func (m *Manager) cacheResults(key string, results []Result) {
	if m.queryCache != nil {
		m.queryCache.Set(key, results)
	}
}
