package embedding

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// EmbeddingCache is an LRU cache over computed embeddings with two key
// namespaces: text queries are keyed by the query string, images by a digest
// of their raw bytes. Vectors are copied on the way in and out, so a cached
// embedding can never be mutated by a caller holding the returned slice.
type EmbeddingCache struct {
	capacity int
	mu       sync.Mutex
	entries  map[string]*list.Element
	lru      *list.List
}

type cacheEntry struct {
	key string
	vec []float32
}

// NewEmbeddingCache creates a cache holding up to capacity embeddings across
// both namespaces. capacity <= 0 means 1024.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &EmbeddingCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// GetText returns the cached embedding for a text query.
func (c *EmbeddingCache) GetText(text string) ([]float32, bool) {
	return c.get("t:" + text)
}

// SetText stores the embedding for a text query.
func (c *EmbeddingCache) SetText(text string, vec []float32) {
	c.set("t:"+text, vec)
}

// GetImage returns the cached embedding for an image by its content digest.
func (c *EmbeddingCache) GetImage(data []byte) ([]float32, bool) {
	return c.get(imageKey(data))
}

// SetImage stores the embedding for an image by its content digest.
func (c *EmbeddingCache) SetImage(data []byte, vec []float32) {
	c.set(imageKey(data), vec)
}

// Len returns the number of cached embeddings.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func imageKey(data []byte) string {
	sum := sha256.Sum256(data)
	return "i:" + hex.EncodeToString(sum[:])
}

// get promotes the entry, so it takes the write lock.
func (c *EmbeddingCache) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	stored := elem.Value.(*cacheEntry).vec
	out := make([]float32, len(stored))
	copy(out, stored)
	return out, true
}

func (c *EmbeddingCache) set(key string, vec []float32) {
	stored := make([]float32, len(vec))
	copy(stored, vec)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).vec = stored
		return
	}

	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, vec: stored})
	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
}
