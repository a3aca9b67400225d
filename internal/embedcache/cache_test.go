package embedcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corpora-dev/corpora/internal/ai"
	"github.com/corpora-dev/corpora/internal/blobstore"
)

func newTestCache(t *testing.T) (*Cache, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := blobstore.NewLocal(dir)
	require.NoError(t, err)
	return New(store), dir
}

func TestKey_DeterministicAndParamSensitive(t *testing.T) {
	base := Key{ContentHash: "abc", ModelName: "m1", ChunkSize: 500, ChunkOverlap: 50}
	require.Equal(t, base.String(), base.String())

	other := base
	other.ChunkSize = 400
	require.NotEqual(t, base.String(), other.String())

	other = base
	other.ModelName = "m2"
	require.NotEqual(t, base.String(), other.String())
}

func TestCache_PutGetRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	key := Key{ContentHash: "h", ModelName: "m", ChunkSize: 500, ChunkOverlap: 50}

	_, ok := cache.Get(ctx, key)
	require.False(t, ok)

	cache.Put(ctx, key, []float32{0.1, 0.2, 0.3})
	vec, ok := cache.Get(ctx, key)
	require.True(t, ok)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	require.Equal(t, 1, cache.Count(ctx))
}

func TestCache_CorruptEntryIsMiss(t *testing.T) {
	cache, dir := newTestCache(t)
	ctx := context.Background()
	key := Key{ContentHash: "h", ModelName: "m", ChunkSize: 500, ChunkOverlap: 50}

	cache.Put(ctx, key, []float32{1, 2})
	require.NoError(t, os.WriteFile(filepath.Join(dir, key.String()), []byte("not json"), 0o644))

	_, ok := cache.Get(ctx, key)
	require.False(t, ok)
}

func TestCache_Clear(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.Put(ctx, Key{ContentHash: "a", ModelName: "m"}, []float32{1})
	cache.Put(ctx, Key{ContentHash: "b", ModelName: "m"}, []float32{2})
	require.Equal(t, 2, cache.Count(ctx))

	require.NoError(t, cache.Clear(ctx))
	require.Equal(t, 0, cache.Count(ctx))
}

type countingEmbedder struct {
	calls int
	vec   []float32
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.vec, nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	c.calls += len(texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = c.vec
	}
	return out, nil
}

func (c *countingEmbedder) ModelName() string { return "counting" }

func TestCachedEmbedder_SkipsRecomputation(t *testing.T) {
	cache, _ := newTestCache(t)
	backing := &countingEmbedder{vec: []float32{1, 0, 0}}
	emb := WrapCacheToEmbedder(backing, cache, ChunkParams{Size: 500, Overlap: 50})
	ctx := context.Background()

	first, err := emb.Embed(ctx, "some chunk text")
	require.NoError(t, err)
	second, err := emb.Embed(ctx, "some chunk text")
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, backing.calls)
}

func TestCachedEmbedder_BatchOnlyComputesMisses(t *testing.T) {
	cache, _ := newTestCache(t)
	backing := &countingEmbedder{vec: []float32{0.5}}
	emb := WrapCacheToEmbedder(backing, cache, ChunkParams{Size: 500, Overlap: 50})
	ctx := context.Background()

	_, err := emb.Embed(ctx, "already cached")
	require.NoError(t, err)
	require.Equal(t, 1, backing.calls)

	vectors, err := emb.EmbedBatch(ctx, []string{"already cached", "fresh one"}, 8)
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	require.Equal(t, 2, backing.calls)
}

func TestLruEmbedder_FrontsBackingEmbedder(t *testing.T) {
	backing := &countingEmbedder{vec: []float32{1}}
	emb := WrapLruCacheToEmbedder(backing, ChunkParams{Size: 500, Overlap: 50}, 16, time.Minute)
	ctx := context.Background()

	_, err := emb.Embed(ctx, "hot text")
	require.NoError(t, err)
	_, err = emb.Embed(ctx, "hot text")
	require.NoError(t, err)
	require.Equal(t, 1, backing.calls)
}

var _ ai.IEmbedder = (*countingEmbedder)(nil)
