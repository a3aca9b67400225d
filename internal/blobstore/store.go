package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Store is a keyed blob store used for the per-entry cache files of the
// embedding cache and the response cache. Writes to distinct keys are
// independent; a write to one key must be atomic so concurrent readers
// never observe a partial entry.
type Store interface {
	Save(ctx context.Context, key string, data []byte) error
	// Open returns the stored bytes, or ok=false when the key is absent.
	Open(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
	// Clear removes every entry. Safe to call concurrently with reads;
	// readers that lose the race simply miss.
	Clear(ctx context.Context) error
}

type Factory func(args interface{}) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(kind string, args interface{}) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(kind))
	if key == "" {
		return nil, fmt.Errorf("blob store type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported blob store type: %s", kind)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("store config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode store config: %w", err)
	}
	return nil
}

func validKey(key string) error {
	if key == "" {
		return fmt.Errorf("blob key is required")
	}
	if strings.Contains(key, "/") || strings.Contains(key, "\\") || strings.Contains(key, "..") {
		return fmt.Errorf("invalid blob key: %s", key)
	}
	return nil
}
