package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/corpora-dev/corpora/internal/ai"
	"github.com/corpora-dev/corpora/internal/chunker"
)

// ChunkParams are the chunking parameters folded into every cache key.
type ChunkParams struct {
	Size    int
	Overlap int
}

// WrapCacheToEmbedder decorates an embedder with the durable embedding
// cache. Batch calls look up each text individually and only send the
// misses to the backend.
func WrapCacheToEmbedder(e ai.IEmbedder, cache *Cache, params ChunkParams) ai.IEmbedder {
	if e == nil || cache == nil {
		return e
	}
	return &cachedEmbedder{next: e, cache: cache, params: params}
}

type cachedEmbedder struct {
	next   ai.IEmbedder
	cache  *Cache
	params ChunkParams
}

func (c *cachedEmbedder) key(text string) Key {
	return Key{
		ContentHash:  chunker.HashText(text),
		ModelName:    c.next.ModelName(),
		ChunkSize:    c.params.Size,
		ChunkOverlap: c.params.Overlap,
	}
}

func (c *cachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if vec, ok := c.cache.Get(ctx, key); ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit")
		return cloneVector(vec), nil
	}
	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Put(ctx, key, vec)
	return vec, nil
}

func (c *cachedEmbedder) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if vec, ok := c.cache.Get(ctx, c.key(text)); ok {
			out[i] = cloneVector(vec)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	computed, err := c.next.EmbedBatch(ctx, missTexts, batchSize)
	if err != nil {
		return nil, err
	}
	for j, vec := range computed {
		i := missIdx[j]
		out[i] = vec
		c.cache.Put(ctx, c.key(texts[i]), vec)
	}
	logutil.GetLogger(ctx).Debug("batch embedding completed",
		zap.Int("total", len(texts)),
		zap.Int("cache_hits", len(texts)-len(missTexts)),
		zap.Int("computed", len(missTexts)))
	return out, nil
}

func (c *cachedEmbedder) ModelName() string {
	return c.next.ModelName()
}

// WrapLruCacheToEmbedder puts a bounded in-memory tier in front of an
// embedder. Useful on top of the durable cache to skip file reads for
// hot chunks.
func WrapLruCacheToEmbedder(e ai.IEmbedder, params ChunkParams, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:   e,
		params: params,
		cache:  expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next   ai.IEmbedder
	params ChunkParams
	cache  *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) key(text string) string {
	return Key{
		ContentHash:  chunker.HashText(text),
		ModelName:    l.next.ModelName(),
		ChunkSize:    l.params.Size,
		ChunkOverlap: l.params.Overlap,
	}.String()
}

func (l *lruEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := l.key(text)
	if cached, ok := l.cache.Get(key); ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit (lru)")
		return cloneVector(cached), nil
	}
	res, err := l.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, cloneVector(res))
	return res, nil
}

func (l *lruEmbedder) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if cached, ok := l.cache.Get(l.key(text)); ok {
			out[i] = cloneVector(cached)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	computed, err := l.next.EmbedBatch(ctx, missTexts, batchSize)
	if err != nil {
		return nil, err
	}
	for j, vec := range computed {
		i := missIdx[j]
		out[i] = vec
		l.cache.Add(l.key(texts[i]), cloneVector(vec))
	}
	return out, nil
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func cloneVector(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
