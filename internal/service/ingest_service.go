package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/corpora-dev/corpora/internal/ai"
	"github.com/corpora-dev/corpora/internal/chunker"
	"github.com/corpora-dev/corpora/internal/extractor"
	"github.com/corpora-dev/corpora/internal/model"
	"github.com/corpora-dev/corpora/internal/pkg/errs"
	"github.com/corpora-dev/corpora/internal/vectorindex"
)

const manifestFileName = "manifest.json"

// IngestService moves documents into the index: extract, chunk, embed
// through the cache, add, save. A manifest of source content hashes
// lets repeated ingests skip unchanged files.
type IngestService struct {
	chunker   *chunker.Chunker
	embedder  ai.IEmbedder
	index     *vectorindex.Store
	tables    *extractor.TableExtractor
	indexDir  string
	batchSize int

	mu       sync.Mutex
	manifest map[string]string
}

func NewIngestService(ch *chunker.Chunker, embedder ai.IEmbedder, index *vectorindex.Store, tables *extractor.TableExtractor, indexDir string, batchSize int) (*IngestService, error) {
	if batchSize <= 0 {
		batchSize = 32
	}
	s := &IngestService{
		chunker:   ch,
		embedder:  embedder,
		index:     index,
		tables:    tables,
		indexDir:  indexDir,
		batchSize: batchSize,
		manifest:  map[string]string{},
	}
	if err := s.loadManifest(); err != nil {
		return nil, err
	}
	return s, nil
}

// IngestFile processes one document and returns the number of chunks
// admitted. Unchanged files (same content hash as last time) are
// skipped with a zero count.
func (s *IngestService) IngestFile(ctx context.Context, path string) (int, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("file", path))
	ext, err := extractor.ForPath(path)
	if err != nil {
		return 0, err
	}
	text, err := ext.Extract(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("document unavailable: %w", err)
	}

	contentHash := chunker.HashText(text)
	s.mu.Lock()
	prev, seen := s.manifest[path]
	s.mu.Unlock()
	if seen && prev == contentHash {
		logger.Debug("source unchanged, skipping")
		return 0, nil
	}
	if seen {
		logger.Warn("source content changed, chunks of the previous version stay until rebuild")
	}

	count, err := s.ingestText(ctx, text, path, model.ChunkTypeText)
	if err != nil {
		return 0, err
	}
	s.rememberSource(ctx, path, contentHash)
	logger.Info("file ingested", zap.Int("chunks", count))
	return count, nil
}

// IngestDir walks dir and ingests every supported file. Per-file
// failures are logged and skipped, never fatal for the batch.
func (s *IngestService) IngestDir(ctx context.Context, dir string) (files int, chunks int, err error) {
	logger := logutil.GetLogger(ctx).With(zap.String("dir", dir))
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, err := extractor.ForPath(path); err != nil {
			return nil
		}
		n, err := s.IngestFile(ctx, path)
		if err != nil {
			if errs.IsNotReady(err) {
				logger.Info("index not trained yet, document deferred to the next sync",
					zap.String("file", path))
			} else {
				logger.Warn("skipping document", zap.String("file", path), zap.Error(err))
			}
			return nil
		}
		if n > 0 {
			files++
			chunks += n
		}
		return nil
	})
	if walkErr != nil {
		return files, chunks, fmt.Errorf("walk %s: %w", dir, walkErr)
	}
	return files, chunks, nil
}

// IngestTable renders one database table to text and ingests it.
func (s *IngestService) IngestTable(ctx context.Context, table string) (int, error) {
	if s.tables == nil {
		return 0, fmt.Errorf("%w: no database configured for table ingestion", errs.ErrValidation)
	}
	text, err := s.tables.ExtractTable(ctx, table)
	if err != nil {
		return 0, fmt.Errorf("document unavailable: %w", err)
	}
	sourceID := "table:" + table
	contentHash := chunker.HashText(text)
	s.mu.Lock()
	prev, seen := s.manifest[sourceID]
	s.mu.Unlock()
	if seen && prev == contentHash {
		return 0, nil
	}
	count, err := s.ingestText(ctx, text, sourceID, model.ChunkTypeTabular)
	if err != nil {
		return 0, err
	}
	s.rememberSource(ctx, sourceID, contentHash)
	logutil.GetLogger(ctx).Info("table ingested", zap.String("table", table), zap.Int("chunks", count))
	return count, nil
}

func (s *IngestService) ingestText(ctx context.Context, text, sourceID string, chunkType model.ChunkType) (int, error) {
	chunks := s.chunker.Chunk(ctx, text, sourceID, chunkType, 1, 1)
	if len(chunks) == 0 {
		return 0, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("embed chunks of %s: %w", sourceID, err)
	}
	records := make([]vectorindex.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorindex.Record{
			Text:     c.Text,
			Metadata: c.Meta(),
			Vector:   vectors[i],
		}
	}
	if _, err := s.index.Add(ctx, records); err != nil {
		return 0, fmt.Errorf("index chunks of %s: %w", sourceID, err)
	}
	return len(chunks), nil
}

// SaveIndex flushes the index snapshot to the configured directory.
func (s *IngestService) SaveIndex(ctx context.Context) error {
	return s.index.Save(ctx, s.indexDir)
}

func (s *IngestService) rememberSource(ctx context.Context, sourceID, contentHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest[sourceID] = contentHash
	data, err := json.MarshalIndent(s.manifest, "", "  ")
	if err != nil {
		logutil.GetLogger(ctx).Warn("encode ingest manifest failed", zap.Error(err))
		return
	}
	if err := os.MkdirAll(s.indexDir, 0o755); err != nil {
		logutil.GetLogger(ctx).Warn("create index dir failed", zap.Error(err))
		return
	}
	if err := os.WriteFile(filepath.Join(s.indexDir, manifestFileName), data, 0o644); err != nil {
		logutil.GetLogger(ctx).Warn("write ingest manifest failed", zap.Error(err))
	}
}

func (s *IngestService) loadManifest() error {
	data, err := os.ReadFile(filepath.Join(s.indexDir, manifestFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read ingest manifest: %w", err)
	}
	if err := json.Unmarshal(data, &s.manifest); err != nil {
		// a broken manifest only costs re-embedding, the cache absorbs it
		s.manifest = map[string]string{}
	}
	return nil
}
