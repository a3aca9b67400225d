package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	DataDir    string           `json:"data_dir"`
	Index      IndexConfig      `json:"index"`
	Chunking   ChunkingConfig   `json:"chunking"`
	Embedding  []ProviderConfig `json:"embedding"`
	Generation []ProviderConfig `json:"generation"`
	Retrieval  RetrievalConfig  `json:"retrieval"`
	Cache      CacheConfig      `json:"cache"`
	Database   DatabaseConfig   `json:"database"`
	Schedule   ScheduleConfig   `json:"schedule"`
	LogConfig  logger.LogConfig `json:"log_config"`
}

type IndexConfig struct {
	Dim    int    `json:"dim"`
	Metric string `json:"metric"`
	Kind   string `json:"kind"`
	NList  int    `json:"nlist"`
	NProbe int    `json:"nprobe"`
}

type ChunkingConfig struct {
	SizeTokens    int `json:"size_tokens"`
	OverlapTokens int `json:"overlap_tokens"`
	CharsPerToken int `json:"chars_per_token"`
}

// ProviderConfig names one backend plus its provider-specific args
// (api key, base url and the like). Order in the list is fallback
// order.
type ProviderConfig struct {
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	Args     json.RawMessage `json:"args"`
}

type RetrievalConfig struct {
	TopK             int `json:"top_k"`
	MaxContextTokens int `json:"max_context_tokens"`
	BatchSize        int `json:"batch_size"`
}

type CacheConfig struct {
	Store   StoreConfig `json:"store"`
	LruSize int         `json:"lru_size"`
	LruTTL  int         `json:"lru_ttl_seconds"`
}

type StoreConfig struct {
	Type string   `json:"type"`
	Dir  string   `json:"dir"`
	S3   S3Config `json:"s3"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
	UsePath   bool   `json:"use_path_style"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type ScheduleConfig struct {
	SyncSpec  string   `json:"sync_spec"`
	FlushSpec string   `json:"flush_spec"`
	Sources   []string `json:"sources"`
	Tables    []string `json:"tables"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Index.Dim <= 0 {
		return fmt.Errorf("index.dim is required")
	}
	if c.Index.Metric == "" {
		c.Index.Metric = "cosine"
	}
	if c.Index.Kind == "" {
		c.Index.Kind = "flat"
	}
	if c.Chunking.SizeTokens == 0 {
		c.Chunking.SizeTokens = 500
	}
	if c.Chunking.OverlapTokens == 0 {
		c.Chunking.OverlapTokens = 50
	}
	if c.Chunking.CharsPerToken == 0 {
		c.Chunking.CharsPerToken = 4
	}
	if c.Chunking.OverlapTokens >= c.Chunking.SizeTokens {
		return fmt.Errorf("chunking.overlap_tokens must be smaller than chunking.size_tokens")
	}
	if len(c.Embedding) == 0 {
		return fmt.Errorf("at least one embedding provider is required")
	}
	for i, p := range c.Embedding {
		if p.Provider == "" || p.Model == "" {
			return fmt.Errorf("embedding[%d] provider and model are required", i)
		}
	}
	for i, p := range c.Generation {
		if p.Provider == "" {
			return fmt.Errorf("generation[%d] provider is required", i)
		}
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.MaxContextTokens == 0 {
		c.Retrieval.MaxContextTokens = 3000
	}
	if c.Retrieval.BatchSize == 0 {
		c.Retrieval.BatchSize = 32
	}
	if c.Cache.Store.Type == "" {
		c.Cache.Store.Type = "local"
	}
	switch c.Cache.Store.Type {
	case "local":
		// dir defaults under data_dir, resolved at wiring time
	case "s3":
		s3 := c.Cache.Store.S3
		if s3.Endpoint == "" || s3.Bucket == "" || s3.SecretID == "" || s3.SecretKey == "" {
			return fmt.Errorf("cache.store.s3 endpoint/bucket/secret_id/secret_key are required for s3 store")
		}
	default:
		return fmt.Errorf("cache.store.type must be local or s3")
	}
	if c.Cache.LruSize == 0 {
		c.Cache.LruSize = 1024
	}
	if c.Cache.LruTTL == 0 {
		c.Cache.LruTTL = 600
	}
	if c.Schedule.SyncSpec == "" {
		c.Schedule.SyncSpec = "@every 10m"
	}
	if c.Schedule.FlushSpec == "" {
		c.Schedule.FlushSpec = "@every 5m"
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	return nil
}
