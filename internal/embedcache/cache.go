package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/corpora-dev/corpora/internal/blobstore"
)

// Key identifies an embedding by everything that went into computing it:
// the normalized chunk text, the model, and the chunking parameters that
// produced the text. Identical text chunked differently is not conflated.
type Key struct {
	ContentHash  string
	ModelName    string
	ChunkSize    int
	ChunkOverlap int
}

func (k Key) String() string {
	raw := fmt.Sprintf("%s|%s|%d|%d", k.ContentHash, k.ModelName, k.ChunkSize, k.ChunkOverlap)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

type entry struct {
	ModelName string    `json:"model_name"`
	Dim       int       `json:"dim"`
	Vector    []float32 `json:"vector"`
	Ctime     int64     `json:"ctime"`
}

// Cache is a content-addressed store of computed embeddings. One blob per
// key, so partial corruption is confined to a single entry; a corrupted
// entry reads as a miss and is recomputed.
type Cache struct {
	store blobstore.Store
}

func New(store blobstore.Store) *Cache {
	return &Cache{store: store}
}

func (c *Cache) Get(ctx context.Context, key Key) ([]float32, bool) {
	data, ok, err := c.store.Open(ctx, key.String())
	if err != nil {
		logutil.GetLogger(ctx).Warn("embedding cache read failed", zap.String("key", key.String()), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil || len(e.Vector) == 0 {
		logutil.GetLogger(ctx).Warn("corrupt embedding cache entry, treating as miss", zap.String("key", key.String()), zap.Error(err))
		return nil, false
	}
	return e.Vector, true
}

func (c *Cache) Put(ctx context.Context, key Key, vector []float32) {
	data, err := json.Marshal(entry{
		ModelName: key.ModelName,
		Dim:       len(vector),
		Vector:    vector,
		Ctime:     time.Now().Unix(),
	})
	if err != nil {
		logutil.GetLogger(ctx).Warn("encode embedding cache entry failed", zap.Error(err))
		return
	}
	if err := c.store.Save(ctx, key.String(), data); err != nil {
		logutil.GetLogger(ctx).Warn("embedding cache write failed", zap.String("key", key.String()), zap.Error(err))
	}
}

func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

func (c *Cache) Count(ctx context.Context) int {
	keys, err := c.store.List(ctx)
	if err != nil {
		logutil.GetLogger(ctx).Warn("embedding cache list failed", zap.Error(err))
		return 0
	}
	return len(keys)
}
