package vectorindex

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corpora-dev/corpora/internal/pkg/errs"
)

// clusteredRecords builds `perCluster` points around each of four
// well-separated anchor directions in 8 dims.
func clusteredRecords(perCluster int) []Record {
	anchors := [][]float32{
		{1, 0, 0, 0, 0, 0, 0, 0},
		{0, 0, 1, 0, 0, 0, 0, 0},
		{0, 0, 0, 0, 1, 0, 0, 0},
		{0, 0, 0, 0, 0, 0, 1, 0},
	}
	var recs []Record
	for ci, anchor := range anchors {
		for i := 0; i < perCluster; i++ {
			vec := cloneVec(anchor)
			// small per-point jitter on a secondary axis
			vec[(ci*2+1)%8] = 0.05 * float32(i+1)
			recs = append(recs, Record{
				Text:   fmt.Sprintf("cluster %d point %d", ci, i),
				Vector: vec,
			})
		}
	}
	return recs
}

func TestIVF_UntrainedSmallBatchRejected(t *testing.T) {
	s, err := New(8, MetricCosine, KindIVF, Options{NList: 4, NProbe: 2})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Add(ctx, []Record{{Text: "lonely", Vector: unitVec(8, 0)}})
	require.ErrorIs(t, err, errs.ErrNotReady)
	require.Equal(t, 0, s.Count(ctx))
	require.False(t, s.Stats(ctx).Trained)
}

func TestIVF_TrainsOnFirstSufficientBatch(t *testing.T) {
	s, err := New(8, MetricCosine, KindIVF, Options{NList: 4, NProbe: 4})
	require.NoError(t, err)
	ctx := context.Background()

	recs := clusteredRecords(8)
	ids, err := s.Add(ctx, recs)
	require.NoError(t, err)
	require.Len(t, ids, len(recs))
	require.True(t, s.Stats(ctx).Trained)

	// nprobe == nlist makes the probe exhaustive, so the top hit is exact
	query := cloneVec(recs[10].Vector)
	hits, err := s.Query(ctx, query, 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Equal(t, ids[10], hits[0].ChunkID)
	require.InDelta(t, 1.0, float64(hits[0].Score), 1e-5)

	// later single-record inserts go straight in
	_, err = s.Add(ctx, []Record{{Text: "straggler", Vector: unitVec(8, 0)}})
	require.NoError(t, err)
}

func TestIVF_ProbeSubsetStillFindsOwnCluster(t *testing.T) {
	s, err := New(8, MetricCosine, KindIVF, Options{NList: 4, NProbe: 1})
	require.NoError(t, err)
	ctx := context.Background()

	recs := clusteredRecords(8)
	ids, err := s.Add(ctx, recs)
	require.NoError(t, err)

	// the query sits on its cluster's anchor, so probing one list is enough
	query := cloneVec(recs[0].Vector)
	hits, err := s.Query(ctx, query, 1)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Equal(t, ids[0], hits[0].ChunkID)
}

func TestIVF_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(8, MetricCosine, KindIVF, Options{NList: 4, NProbe: 4})
	require.NoError(t, err)
	ctx := context.Background()

	recs := clusteredRecords(6)
	_, err = s.Add(ctx, recs)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, dir))

	restored, err := New(8, MetricCosine, KindIVF, Options{NList: 4, NProbe: 4})
	require.NoError(t, err)
	ok, err := restored.Load(ctx, dir)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, restored.Stats(ctx).Trained)

	query := cloneVec(recs[5].Vector)
	want, err := s.Query(ctx, query, 5)
	require.NoError(t, err)
	got, err := restored.Query(ctx, query, 5)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestIVF_RebuildRetrains(t *testing.T) {
	s, err := New(8, MetricCosine, KindIVF, Options{NList: 4, NProbe: 4})
	require.NoError(t, err)
	ctx := context.Background()

	recs := clusteredRecords(8)
	ids, err := s.Add(ctx, recs)
	require.NoError(t, err)
	require.True(t, s.Remove(ctx, ids[3]))

	require.NoError(t, s.Rebuild(ctx))
	stats := s.Stats(ctx)
	require.Equal(t, len(recs)-1, stats.TotalRecords)
	require.Equal(t, 0, stats.Removed)
	require.True(t, stats.Trained)

	hits, err := s.Query(ctx, cloneVec(recs[4].Vector), 1)
	require.NoError(t, err)
	require.Equal(t, ids[4], hits[0].ChunkID)
}
