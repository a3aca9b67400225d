package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type localConfig struct {
	Dir string `json:"dir"`
}

type localStore struct {
	dir string
}

func init() {
	Register("local", createLocalStore)
}

func createLocalStore(args interface{}) (Store, error) {
	config := &localConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("local store dir is required")
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &localStore{dir: config.Dir}, nil
}

// NewLocal returns a store rooted at dir. One file per key.
func NewLocal(dir string) (Store, error) {
	return createLocalStore(&localConfig{Dir: dir})
}

func (s *localStore) Save(ctx context.Context, key string, data []byte) error {
	_ = ctx
	if err := validKey(key); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	// Write-to-temp then rename so a concurrent reader never sees a
	// partial entry.
	tmp, err := os.CreateTemp(s.dir, key+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, key)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (s *localStore) Open(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	if err := validKey(key); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *localStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	if err := validKey(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *localStore) List(ctx context.Context) ([]string, error) {
	_ = ctx
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.Contains(entry.Name(), ".tmp-") {
			continue
		}
		keys = append(keys, entry.Name())
	}
	return keys, nil
}

func (s *localStore) Clear(ctx context.Context) error {
	keys, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
