package vectorindex

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/corpora-dev/corpora/internal/model"
	"github.com/corpora-dev/corpora/internal/pkg/errs"
)

// Record is one admission to the store: text and metadata travel with
// the vector and come back out in search hits.
type Record struct {
	Text     string
	Metadata model.Metadata
	Vector   []float32
}

type record struct {
	ChunkID  string         `json:"chunk_id"`
	Text     string         `json:"text"`
	Metadata model.Metadata `json:"metadata"`
	Removed  bool           `json:"removed"`
}

type Options struct {
	NList  int
	NProbe int
}

// Store is the durable nearest-neighbor index plus its metadata side
// table. All mutation goes through the exclusive lock; queries share
// a read lock.
type Store struct {
	mu      sync.RWMutex
	dim     int
	metric  Metric
	kind    Kind
	opts    Options
	inner   innerIndex
	records []record
	idToPos map[string]int
	removed int
	path    string
}

func New(dim int, metric Metric, kind Kind, opts Options) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: embedding dim must be positive, got %d", errs.ErrValidation, dim)
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	return &Store{
		dim:     dim,
		metric:  metric,
		kind:    kind,
		opts:    opts,
		inner:   newInner(dim, metric, kind, opts),
		idToPos: make(map[string]int),
	}, nil
}

func newInner(dim int, metric Metric, kind Kind, opts Options) innerIndex {
	if kind == KindIVF {
		return newIVFIndex(dim, metric, opts.NList, opts.NProbe)
	}
	return newFlatIndex(dim, metric)
}

// Add admits records in order and returns one chunk id per record.
// Every vector is dimension-checked before anything is inserted, so a
// rejected batch leaves the store untouched.
func (s *Store) Add(ctx context.Context, recs []Record) ([]string, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	vectors := make([][]float32, len(recs))
	for i, r := range recs {
		if len(r.Vector) != s.dim {
			return nil, fmt.Errorf("%w: vector %d has dim %d, index dim is %d",
				errs.ErrValidation, i, len(r.Vector), s.dim)
		}
		vec := cloneVec(r.Vector)
		if s.metric == MetricCosine {
			normalize(vec)
		}
		vectors[i] = vec
	}
	if err := s.inner.add(vectors); err != nil {
		return nil, err
	}
	ids := make([]string, len(recs))
	for i, r := range recs {
		id := uuid.NewString()
		pos := len(s.records)
		s.records = append(s.records, record{
			ChunkID:  id,
			Text:     r.Text,
			Metadata: r.Metadata.Clone(),
		})
		s.idToPos[id] = pos
		ids[i] = id
	}
	return ids, nil
}

// Query returns up to k non-removed records ranked by similarity,
// scores non-increasing, rank starting at 1. An empty index yields an
// empty result.
func (s *Store) Query(ctx context.Context, vector []float32, k int) ([]model.SearchHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", errs.ErrValidation, k)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(vector) != s.dim {
		return nil, fmt.Errorf("%w: query vector has dim %d, index dim is %d",
			errs.ErrValidation, len(vector), s.dim)
	}
	query := cloneVec(vector)
	if s.metric == MetricCosine {
		normalize(query)
	}
	cands := s.inner.search(query, k, s.keepActive)
	return s.toHits(cands), nil
}

// FilterQuery over-fetches 2k nearest neighbors and keeps the first k
// whose metadata exact-matches every filter key. Fewer than k
// survivors are returned as-is.
func (s *Store) FilterQuery(ctx context.Context, filter model.Metadata, vector []float32, k int) ([]model.SearchHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", errs.ErrValidation, k)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(vector) != s.dim {
		return nil, fmt.Errorf("%w: query vector has dim %d, index dim is %d",
			errs.ErrValidation, len(vector), s.dim)
	}
	query := cloneVec(vector)
	if s.metric == MetricCosine {
		normalize(query)
	}
	cands := s.inner.search(query, 2*k, s.keepActive)
	kept := cands[:0]
	for _, c := range cands {
		if s.records[c.pos].Metadata.Matches(filter) {
			kept = append(kept, c)
		}
		if len(kept) == k {
			break
		}
	}
	return s.toHits(kept), nil
}

// Remove soft-deletes a record. The vector stays in the inner index
// until Rebuild; it just stops matching.
func (s *Store) Remove(ctx context.Context, chunkID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.idToPos[chunkID]
	if !ok {
		return false
	}
	s.records[pos].Removed = true
	delete(s.idToPos, chunkID)
	s.removed++
	return true
}

// Clear swaps in a fresh empty index. On-disk snapshots are untouched
// until the next Save.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner = newInner(s.dim, s.metric, s.kind, s.opts)
	s.records = nil
	s.idToPos = make(map[string]int)
	s.removed = 0
}

// Rebuild reconstructs the inner index from surviving records,
// compacting out soft-deleted positions. Chunk ids are preserved. The
// store is only swapped once the rebuilt index is complete.
func (s *Store) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	survivors := make([]record, 0, len(s.records)-s.removed)
	vectors := make([][]float32, 0, len(s.records)-s.removed)
	for pos, rec := range s.records {
		if rec.Removed {
			continue
		}
		survivors = append(survivors, rec)
		vectors = append(vectors, s.inner.vectorAt(pos))
	}

	inner := newInner(s.dim, s.metric, s.kind, s.opts)
	if len(vectors) > 0 {
		if err := inner.add(vectors); err != nil {
			return err
		}
	}
	idToPos := make(map[string]int, len(survivors))
	for pos, rec := range survivors {
		idToPos[rec.ChunkID] = pos
	}
	s.inner = inner
	s.records = survivors
	s.idToPos = idToPos
	s.removed = 0
	return nil
}

func (s *Store) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records) - s.removed
}

func (s *Store) Stats(ctx context.Context) model.IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.IndexStats{
		TotalRecords:  len(s.records),
		ActiveRecords: len(s.records) - s.removed,
		Removed:       s.removed,
		EmbeddingDim:  s.dim,
		Metric:        string(s.metric),
		IndexKind:     string(s.kind),
		Trained:       s.inner.trained(),
		Path:          s.path,
	}
}

func (s *Store) keepActive(pos int) bool {
	return !s.records[pos].Removed
}

func (s *Store) toHits(cands []candidate) []model.SearchHit {
	hits := make([]model.SearchHit, 0, len(cands))
	for i, c := range cands {
		rec := s.records[c.pos]
		hits = append(hits, model.SearchHit{
			ChunkID:  rec.ChunkID,
			Text:     rec.Text,
			Metadata: rec.Metadata.Clone(),
			Score:    c.score,
			Rank:     i + 1,
		})
	}
	return hits
}
