package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/corpora-dev/corpora/internal/ai"
	"github.com/corpora-dev/corpora/internal/model"
	"github.com/corpora-dev/corpora/internal/pkg/errs"
	"github.com/corpora-dev/corpora/internal/vectorindex"
)

const (
	sourcePreviewChars = 200

	noResultsAnswer = "I don't have any relevant documents to answer your question. " +
		"Please make sure you have ingested some documents first."
	failureAnswer = "I apologize, but I encountered an error while processing your question. " +
		"Please try again."
)

const promptTemplate = `You are a helpful assistant with access to the following knowledge base documents:

%s

Question: %s

Instructions:
- Answer the question concisely and accurately based on the provided documents
- Use specific information from the documents when possible
- If the answer is not in the documents, say so clearly
- Include relevant references to document sources
- Keep your response focused and helpful

Answer:`

type RAGOptions struct {
	TopK             int
	MaxContextTokens int
	CharsPerToken    int
}

// RAGService runs the query pipeline: cache check, query embedding,
// retrieval, prompt construction, generation with fallback, response
// packaging and cache store.
type RAGService struct {
	index      *vectorindex.Store
	embedder   ai.IEmbedder
	generators []ai.GeneratorEntry
	respCache  *ResponseCache
	opts       RAGOptions
}

func NewRAGService(index *vectorindex.Store, embedder ai.IEmbedder, generators []ai.GeneratorEntry, respCache *ResponseCache, opts RAGOptions) *RAGService {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.MaxContextTokens <= 0 {
		opts.MaxContextTokens = 3000
	}
	if opts.CharsPerToken <= 0 {
		opts.CharsPerToken = 4
	}
	return &RAGService{
		index:      index,
		embedder:   embedder,
		generators: generators,
		respCache:  respCache,
		opts:       opts,
	}
}

// Query answers one question against the index. Backend failures
// degrade through the generator chain; a hard failure still yields a
// well-formed apologetic result. Only an empty query is the caller's
// error.
func (s *RAGService) Query(ctx context.Context, query string, topK int) (*model.QueryResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", errs.ErrValidation)
	}
	if topK <= 0 {
		topK = s.opts.TopK
	}
	logger := logutil.GetLogger(ctx).With(zap.String("query", query), zap.Int("top_k", topK))
	start := time.Now()

	cacheKey := ResponseCacheKey(query, topK, s.embedder.ModelName())
	if cached, ok := s.respCache.Get(ctx, cacheKey); ok {
		logger.Debug("answering from response cache")
		cached.Cached = true
		return cached, nil
	}

	// query embeddings skip the durable cache, query text rarely repeats
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		logger.Error("embed query failed", zap.Error(err))
		return s.failResult(start), nil
	}
	hits, err := s.index.Query(ctx, vector, topK)
	if err != nil {
		logger.Error("retrieval failed", zap.Error(err))
		return s.failResult(start), nil
	}
	if len(hits) == 0 {
		logger.Debug("no documents retrieved")
		return &model.QueryResult{
			Answer:         noResultsAnswer,
			Sources:        []model.Source{},
			ModelUsed:      "none",
			ProcessingTime: time.Since(start).Seconds(),
		}, nil
	}

	prompt := s.buildPrompt(ctx, query, hits)
	answer, modelUsed, err := s.generate(ctx, prompt)
	if err != nil {
		logger.Error("all generation backends failed", zap.Error(err))
		return s.failResult(start), nil
	}

	result := &model.QueryResult{
		Answer:         strings.TrimSpace(answer),
		Sources:        buildSources(hits),
		ModelUsed:      modelUsed,
		ProcessingTime: time.Since(start).Seconds(),
		CachedAt:       time.Now(),
	}
	s.respCache.Put(ctx, cacheKey, result)
	logger.Debug("query answered",
		zap.String("model_used", modelUsed),
		zap.Int("sources", len(result.Sources)),
		zap.Float64("processing_time", result.ProcessingTime))
	return result, nil
}

// buildPrompt renders hits into the instructional template. Total
// rendered context is capped; lowest-ranked chunks are dropped first
// and a chunk is never cut in the middle.
func (s *RAGService) buildPrompt(ctx context.Context, query string, hits []model.SearchHit) string {
	var sb strings.Builder
	usedTokens := 0
	kept := 0
	for _, hit := range hits {
		block := renderChunk(hit)
		blockTokens := len(block) / s.opts.CharsPerToken
		if kept > 0 && usedTokens+blockTokens > s.opts.MaxContextTokens {
			break
		}
		sb.WriteString(block)
		usedTokens += blockTokens
		kept++
	}
	if kept < len(hits) {
		logutil.GetLogger(ctx).Debug("context budget reached, dropping lowest-ranked chunks",
			zap.Int("kept", kept), zap.Int("retrieved", len(hits)))
	}
	return fmt.Sprintf(promptTemplate, sb.String(), query)
}

func renderChunk(hit model.SearchHit) string {
	source := "Unknown"
	if v, ok := hit.Metadata["source_id"]; ok {
		source = v.Str
	}
	page := "N/A"
	if v, ok := hit.Metadata["page_or_row"]; ok {
		page = fmt.Sprintf("%d", v.Int)
	}
	return fmt.Sprintf("\n--- Document %d (Source: %s, Page: %s, Relevance: %.3f) ---\n%s\n",
		hit.Rank, source, page, hit.Score, hit.Text)
}

// generate walks the fallback chain in order and returns the first
// answer together with the backend's name.
func (s *RAGService) generate(ctx context.Context, prompt string) (string, string, error) {
	logger := logutil.GetLogger(ctx)
	var lastErr error
	for _, entry := range s.generators {
		if entry.Generator == nil {
			continue
		}
		text, err := entry.Generator.Generate(ctx, prompt)
		if err != nil {
			if errs.IsUnavailable(err) {
				logger.Debug("generation backend unavailable, falling through",
					zap.String("backend", entry.Name), zap.Error(err))
			} else {
				logger.Warn("generation backend failed, falling through",
					zap.String("backend", entry.Name), zap.Error(err))
			}
			lastErr = err
			continue
		}
		return text, entry.Name, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no generation backend configured", errs.ErrUnavailable)
	}
	return "", "", lastErr
}

func (s *RAGService) failResult(start time.Time) *model.QueryResult {
	return &model.QueryResult{
		Answer:         failureAnswer,
		Sources:        []model.Source{},
		ModelUsed:      "none",
		ProcessingTime: time.Since(start).Seconds(),
	}
}

func buildSources(hits []model.SearchHit) []model.Source {
	sources := make([]model.Source, 0, len(hits))
	for _, hit := range hits {
		sources = append(sources, model.Source{
			Text:     previewText(hit.Text),
			Metadata: hit.Metadata,
			Score:    hit.Score,
			Rank:     hit.Rank,
		})
	}
	return sources
}

func previewText(text string) string {
	runes := []rune(text)
	if len(runes) <= sourcePreviewChars {
		return text
	}
	return string(runes[:sourcePreviewChars]) + "..."
}

// ClearCache drops all cached responses.
func (s *RAGService) ClearCache(ctx context.Context) error {
	return s.respCache.Clear(ctx)
}

func (s *RAGService) Stats(ctx context.Context) model.PipelineStats {
	backends := make([]model.BackendStatus, 0, len(s.generators))
	for _, entry := range s.generators {
		available := entry.Generator != nil && entry.Generator.Available()
		backends = append(backends, model.BackendStatus{Name: entry.Name, Available: available})
	}
	return model.PipelineStats{
		CachedResponses: s.respCache.Count(ctx),
		Backends:        backends,
		EmbeddingModel:  s.embedder.ModelName(),
		Index:           s.index.Stats(ctx),
	}
}
