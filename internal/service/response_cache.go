package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/corpora-dev/corpora/internal/blobstore"
	"github.com/corpora-dev/corpora/internal/model"
)

// ResponseCache stores finished query results, one blob per cache
// key. The pipeline is its only writer.
type ResponseCache struct {
	store blobstore.Store
}

func NewResponseCache(store blobstore.Store) *ResponseCache {
	return &ResponseCache{store: store}
}

// ResponseCacheKey derives the deterministic key for one query shape.
func ResponseCacheKey(query string, topK int, modelIdentity string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", query, topK, modelIdentity)))
	return hex.EncodeToString(sum[:])
}

func (c *ResponseCache) Get(ctx context.Context, key string) (*model.QueryResult, bool) {
	data, ok, err := c.store.Open(ctx, key)
	if err != nil {
		logutil.GetLogger(ctx).Warn("read cached response failed, treating as miss",
			zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var result model.QueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		logutil.GetLogger(ctx).Warn("corrupt cached response, treating as miss",
			zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &result, true
}

// Put is best-effort: a failed write is logged and the result is
// simply not cached.
func (c *ResponseCache) Put(ctx context.Context, key string, result *model.QueryResult) {
	data, err := json.Marshal(result)
	if err != nil {
		logutil.GetLogger(ctx).Warn("encode response for cache failed", zap.Error(err))
		return
	}
	if err := c.store.Save(ctx, key, data); err != nil {
		logutil.GetLogger(ctx).Warn("write cached response failed",
			zap.String("key", key), zap.Error(err))
	}
}

func (c *ResponseCache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

func (c *ResponseCache) Count(ctx context.Context) int {
	keys, err := c.store.List(ctx)
	if err != nil {
		logutil.GetLogger(ctx).Warn("list cached responses failed", zap.Error(err))
		return 0
	}
	return len(keys)
}
