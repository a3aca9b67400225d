package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corpora-dev/corpora/internal/chunker"
	"github.com/corpora-dev/corpora/internal/vectorindex"
)

func newIngestFixture(t *testing.T) (*IngestService, *vectorindex.Store, string) {
	t.Helper()
	ch, err := chunker.New(chunker.Config{ChunkSizeTokens: 50, OverlapTokens: 5})
	require.NoError(t, err)
	index, err := vectorindex.New(3, vectorindex.MetricCosine, vectorindex.KindFlat, vectorindex.Options{})
	require.NoError(t, err)
	indexDir := t.TempDir()
	svc, err := NewIngestService(ch, &fixedEmbedder{vec: []float32{1, 0, 0}}, index, nil, indexDir, 8)
	require.NoError(t, err)
	return svc, index, indexDir
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestFile_AddsChunksAndSkipsUnchanged(t *testing.T) {
	svc, index, _ := newIngestFixture(t)
	ctx := context.Background()
	docDir := t.TempDir()
	path := writeDoc(t, docDir, "note.txt", "First sentence here. Second sentence follows. Third one closes.")

	n, err := svc.IngestFile(ctx, path)
	require.NoError(t, err)
	require.Greater(t, n, 0)
	require.Equal(t, n, index.Count(ctx))

	again, err := svc.IngestFile(ctx, path)
	require.NoError(t, err)
	require.Equal(t, 0, again)
	require.Equal(t, n, index.Count(ctx))
}

func TestIngestFile_ManifestSurvivesRestart(t *testing.T) {
	svc, index, indexDir := newIngestFixture(t)
	ctx := context.Background()
	path := writeDoc(t, t.TempDir(), "note.txt", "Some stable content to remember.")

	n, err := svc.IngestFile(ctx, path)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	ch, err := chunker.New(chunker.Config{ChunkSizeTokens: 50, OverlapTokens: 5})
	require.NoError(t, err)
	restarted, err := NewIngestService(ch, &fixedEmbedder{vec: []float32{1, 0, 0}}, index, nil, indexDir, 8)
	require.NoError(t, err)

	again, err := restarted.IngestFile(ctx, path)
	require.NoError(t, err)
	require.Equal(t, 0, again)
}

func TestIngestFile_UnsupportedType(t *testing.T) {
	svc, _, _ := newIngestFixture(t)
	path := writeDoc(t, t.TempDir(), "image.png", "not text")
	_, err := svc.IngestFile(context.Background(), path)
	require.Error(t, err)
}

func TestIngestDir_SkipsFailuresAndUnsupported(t *testing.T) {
	svc, index, _ := newIngestFixture(t)
	ctx := context.Background()
	docDir := t.TempDir()
	writeDoc(t, docDir, "good.txt", "A perfectly fine document. It has sentences.")
	writeDoc(t, docDir, "readme.md", "# Heading\n\nMarkdown body text here.")
	writeDoc(t, docDir, "binary.dat", "ignored")

	files, chunks, err := svc.IngestDir(ctx, docDir)
	require.NoError(t, err)
	require.Equal(t, 2, files)
	require.Greater(t, chunks, 0)
	require.Equal(t, chunks, index.Count(ctx))
}

func TestIngestFile_EmptyDocumentYieldsNoChunks(t *testing.T) {
	svc, index, _ := newIngestFixture(t)
	path := writeDoc(t, t.TempDir(), "empty.txt", "   \n\t  ")
	n, err := svc.IngestFile(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, 0, index.Count(context.Background()))
}

func TestSaveIndex_WritesSnapshot(t *testing.T) {
	svc, _, indexDir := newIngestFixture(t)
	ctx := context.Background()
	path := writeDoc(t, t.TempDir(), "note.txt", "Content worth saving. Definitely.")
	_, err := svc.IngestFile(ctx, path)
	require.NoError(t, err)

	require.NoError(t, svc.SaveIndex(ctx))
	_, err = os.Stat(filepath.Join(indexDir, "index.bin"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(indexDir, "meta.json"))
	require.NoError(t, err)
}
