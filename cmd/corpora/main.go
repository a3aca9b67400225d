package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/corpora-dev/corpora/internal/ai"
	"github.com/corpora-dev/corpora/internal/blobstore"
	"github.com/corpora-dev/corpora/internal/chunker"
	"github.com/corpora-dev/corpora/internal/config"
	"github.com/corpora-dev/corpora/internal/db"
	"github.com/corpora-dev/corpora/internal/embedcache"
	"github.com/corpora-dev/corpora/internal/extractor"
	"github.com/corpora-dev/corpora/internal/job"
	"github.com/corpora-dev/corpora/internal/schedule"
	"github.com/corpora-dev/corpora/internal/service"
	"github.com/corpora-dev/corpora/internal/vectorindex"
)

type app struct {
	cfg    *config.Config
	ingest *service.IngestService
	rag    *service.RAGService
	index  *vectorindex.Store
	sqlDB  *sql.DB
}

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "corpora",
		Short: "corpora retrieval pipeline",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json", "path to config.json")

	rootCmd.AddCommand(
		newIngestCmd(&configPath),
		newQueryCmd(&configPath),
		newStatsCmd(&configPath),
		newRebuildCmd(&configPath),
		newClearCacheCmd(&configPath),
		newRunCmd(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}

func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	ctx := context.Background()
	logutil.GetLogger(ctx).Info("config loaded", zap.String("config", configPath))

	metric, err := vectorindex.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, err
	}
	kind, err := vectorindex.ParseKind(cfg.Index.Kind)
	if err != nil {
		return nil, err
	}
	index, err := vectorindex.New(cfg.Index.Dim, metric, kind, vectorindex.Options{
		NList:  cfg.Index.NList,
		NProbe: cfg.Index.NProbe,
	})
	if err != nil {
		return nil, err
	}
	indexDir := filepath.Join(cfg.DataDir, "index")
	if ok, err := index.Load(ctx, indexDir); err != nil {
		return nil, err
	} else if ok {
		logutil.GetLogger(ctx).Info("index snapshot loaded", zap.String("dir", indexDir))
	}

	embedStore, err := newCacheStore(cfg, "embed_cache")
	if err != nil {
		return nil, fmt.Errorf("embedding cache store: %w", err)
	}
	respStore, err := newCacheStore(cfg, "response_cache")
	if err != nil {
		return nil, fmt.Errorf("response cache store: %w", err)
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	chunkParams := embedcache.ChunkParams{
		Size:    cfg.Chunking.SizeTokens,
		Overlap: cfg.Chunking.OverlapTokens,
	}
	cachedEmbedder := embedcache.WrapCacheToEmbedder(embedder, embedcache.New(embedStore), chunkParams)
	cachedEmbedder = embedcache.WrapLruCacheToEmbedder(cachedEmbedder, chunkParams,
		cfg.Cache.LruSize, time.Duration(cfg.Cache.LruTTL)*time.Second)

	generators, err := buildGenerators(cfg)
	if err != nil {
		return nil, err
	}

	ch, err := chunker.New(chunker.Config{
		ChunkSizeTokens: cfg.Chunking.SizeTokens,
		OverlapTokens:   cfg.Chunking.OverlapTokens,
		CharsPerToken:   cfg.Chunking.CharsPerToken,
	})
	if err != nil {
		return nil, err
	}

	var sqlDB *sql.DB
	var tables *extractor.TableExtractor
	if cfg.Database.DSN != "" || cfg.Database.Host != "" {
		sqlDB, err = db.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		tables = extractor.NewTableExtractor(sqlDB)
	}

	ingest, err := service.NewIngestService(ch, cachedEmbedder, index, tables, indexDir, cfg.Retrieval.BatchSize)
	if err != nil {
		return nil, err
	}
	rag := service.NewRAGService(index, embedder, generators, service.NewResponseCache(respStore), service.RAGOptions{
		TopK:             cfg.Retrieval.TopK,
		MaxContextTokens: cfg.Retrieval.MaxContextTokens,
		CharsPerToken:    cfg.Chunking.CharsPerToken,
	})
	return &app{cfg: cfg, ingest: ingest, rag: rag, index: index, sqlDB: sqlDB}, nil
}

func (a *app) close() {
	if a.sqlDB != nil {
		a.sqlDB.Close()
	}
}

func newCacheStore(cfg *config.Config, name string) (blobstore.Store, error) {
	store := cfg.Cache.Store
	switch store.Type {
	case "s3":
		s3 := store.S3
		s3.Prefix = filepath.Join(s3.Prefix, name)
		return blobstore.New("s3", s3)
	default:
		dir := store.Dir
		if dir == "" {
			dir = cfg.DataDir
		}
		return blobstore.New("local", map[string]interface{}{"dir": filepath.Join(dir, name)})
	}
}

func buildEmbedder(cfg *config.Config) (ai.IEmbedder, error) {
	entries := make([]ai.EmbedderEntry, 0, len(cfg.Embedding))
	for _, pc := range cfg.Embedding {
		provider, err := ai.NewEmbedProvider(pc.Provider, rawArgs(pc.Args))
		if err != nil {
			return nil, fmt.Errorf("embedding provider %s: %w", pc.Provider, err)
		}
		entries = append(entries, ai.EmbedderEntry{
			Name:     pc.Provider,
			Embedder: ai.NewEmbedder(provider, pc.Model),
		})
	}
	embedder := ai.NewGroupEmbedder(entries)
	if embedder == nil {
		return nil, fmt.Errorf("no embedding provider configured")
	}
	return embedder, nil
}

func buildGenerators(cfg *config.Config) ([]ai.GeneratorEntry, error) {
	entries := make([]ai.GeneratorEntry, 0, len(cfg.Generation)+1)
	hasTemplate := false
	for _, pc := range cfg.Generation {
		provider, err := ai.NewProvider(pc.Provider, rawArgs(pc.Args))
		if err != nil {
			return nil, fmt.Errorf("generation provider %s: %w", pc.Provider, err)
		}
		entries = append(entries, ai.GeneratorEntry{
			Name:      pc.Provider,
			Generator: ai.NewGenerator(provider, pc.Model),
		})
		if pc.Provider == "template" {
			hasTemplate = true
		}
	}
	if !hasTemplate {
		// the deterministic tier keeps queries answerable offline
		provider, err := ai.NewProvider("template", nil)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ai.GeneratorEntry{
			Name:      "template",
			Generator: ai.NewGenerator(provider, ""),
		})
	}
	return entries, nil
}

func rawArgs(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil
	}
	return args
}

func newIngestCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [paths...]",
		Short: "ingest documents into the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()
			totalFiles, totalChunks := 0, 0
			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					return err
				}
				if info.IsDir() {
					files, chunks, err := a.ingest.IngestDir(ctx, path)
					if err != nil {
						return err
					}
					totalFiles += files
					totalChunks += chunks
					continue
				}
				chunks, err := a.ingest.IngestFile(ctx, path)
				if err != nil {
					return err
				}
				if chunks > 0 {
					totalFiles++
				}
				totalChunks += chunks
			}
			if err := a.ingest.SaveIndex(ctx); err != nil {
				return err
			}
			fmt.Printf("ingested %d files, %d chunks\n", totalFiles, totalChunks)
			return nil
		},
	}
	return cmd
}

func newQueryCmd(configPath *string) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "ask a question against the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			result, err := a.rag.Query(cmd.Context(), args[0], topK)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of chunks to retrieve (0 = config default)")
	return cmd
}

func newStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "show pipeline and index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			out, err := json.MarshalIndent(a.rag.Stats(cmd.Context()), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func newRebuildCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "rebuild the index, compacting out removed records",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()
			if err := a.index.Rebuild(ctx); err != nil {
				return err
			}
			if err := a.ingest.SaveIndex(ctx); err != nil {
				return err
			}
			fmt.Println("index rebuilt")
			return nil
		},
	}
}

func newClearCacheCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "drop all cached responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.rag.ClearCache(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("response cache cleared")
			return nil
		},
	}
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run scheduled corpus sync and index flush jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := context.Background()

			scheduler := schedule.NewCronScheduler()
			syncJob := job.NewCorpusSyncJob(a.ingest, a.cfg.Schedule.Sources, a.cfg.Schedule.Tables)
			if err := scheduler.AddJob(syncJob, a.cfg.Schedule.SyncSpec); err != nil {
				return err
			}
			if err := scheduler.AddJob(job.NewIndexFlushJob(a.ingest), a.cfg.Schedule.FlushSpec); err != nil {
				return err
			}

			// one sync on startup so the process is useful immediately
			if err := syncJob.Run(ctx); err != nil {
				logutil.GetLogger(ctx).Warn("initial corpus sync failed", zap.Error(err))
			}
			scheduler.Start(ctx)
			logutil.GetLogger(ctx).Info("scheduler started")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			logutil.GetLogger(ctx).Info("shutting down")
			scheduler.Stop()
			if err := a.ingest.SaveIndex(ctx); err != nil {
				logutil.GetLogger(ctx).Error("final index save failed", zap.Error(err))
			}
			return nil
		},
	}
}
