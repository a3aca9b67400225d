package chunker

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corpora-dev/corpora/internal/model"
	"github.com/corpora-dev/corpora/internal/pkg/errs"
)

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{ChunkSizeTokens: 0})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = New(Config{ChunkSizeTokens: 10, OverlapTokens: -1})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = New(Config{ChunkSizeTokens: 10, OverlapTokens: 10})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestChunk_EmptyInput(t *testing.T) {
	c, err := New(Config{ChunkSizeTokens: 100, OverlapTokens: 10})
	require.NoError(t, err)

	require.Empty(t, c.Chunk(context.Background(), "", "doc", model.ChunkTypeText, 1, 1))
	require.Empty(t, c.Chunk(context.Background(), "   \n\t  ", "doc", model.ChunkTypeText, 1, 1))
}

func TestChunk_ThreeSentencesOneChunk(t *testing.T) {
	c, err := New(Config{ChunkSizeTokens: 100, OverlapTokens: 1, CharsPerToken: 1})
	require.NoError(t, err)

	chunks := c.Chunk(context.Background(), "A. B. C.", "doc", model.ChunkTypeText, 1, 1)
	require.Len(t, chunks, 1)
	require.Equal(t, "A. B. C.", chunks[0].Text)
	require.Equal(t, 0, chunks[0].Position.ChunkIndex)
}

func TestChunk_SplitAfterEachSentenceWithOverlap(t *testing.T) {
	c, err := New(Config{ChunkSizeTokens: 2, OverlapTokens: 1, CharsPerToken: 1})
	require.NoError(t, err)

	chunks := c.Chunk(context.Background(), "A. B. C.", "doc", model.ChunkTypeText, 1, 1)
	require.Len(t, chunks, 3)
	require.Equal(t, "A.", chunks[0].Text)
	require.Equal(t, "A. B.", chunks[1].Text)
	require.Equal(t, "B. C.", chunks[2].Text)
	for i, chunk := range chunks {
		require.Equal(t, i, chunk.Position.ChunkIndex)
	}
	// Each chunk after the first starts with the prior chunk's last word.
	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1].Text)
		require.True(t, strings.HasPrefix(chunks[i].Text, prevWords[len(prevWords)-1]))
	}
}

func TestChunk_OverlongSentenceIsNeverSplit(t *testing.T) {
	c, err := New(Config{ChunkSizeTokens: 5, OverlapTokens: 1, CharsPerToken: 1})
	require.NoError(t, err)

	long := "this single sentence is much longer than five tokens."
	chunks := c.Chunk(context.Background(), long, "doc", model.ChunkTypeText, 1, 1)
	require.Len(t, chunks, 1)
	require.Equal(t, long, chunks[0].Text)
	require.Greater(t, chunks[0].TokenEstimate, 5)
}

func TestChunk_TokenBound(t *testing.T) {
	cfg := Config{ChunkSizeTokens: 20, OverlapTokens: 4, CharsPerToken: 4}
	c, err := New(cfg)
	require.NoError(t, err)

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 30)
	chunks := c.Chunk(context.Background(), text, "doc", model.ChunkTypeText, 1, 1)
	require.NotEmpty(t, chunks)

	// Overlap seeding plus one sentence can push a chunk slightly past the
	// budget; a single sentence here is ~11 tokens.
	epsilon := 12
	for _, chunk := range chunks {
		require.LessOrEqual(t, chunk.TokenEstimate, cfg.ChunkSizeTokens+epsilon)
	}
}

func TestChunk_CoverageOfOriginalText(t *testing.T) {
	c, err := New(Config{ChunkSizeTokens: 6, OverlapTokens: 0, CharsPerToken: 1})
	require.NoError(t, err)

	text := "One. Two. Three. Four. Five."
	chunks := c.Chunk(context.Background(), text, "doc", model.ChunkTypeText, 1, 1)
	require.NotEmpty(t, chunks)

	// With zero overlap the chunks concatenate back to the cleaned input.
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		parts = append(parts, chunk.Text)
	}
	require.Equal(t, CleanText(text), strings.Join(parts, " "))
}

func TestChunk_MetadataFields(t *testing.T) {
	c, err := New(Config{ChunkSizeTokens: 100, OverlapTokens: 10})
	require.NoError(t, err)

	chunks := c.Chunk(context.Background(), "Hello world. Second sentence here.", "report.pdf", model.ChunkTypePage, 3, 12)
	require.Len(t, chunks, 1)
	chunk := chunks[0]
	require.Equal(t, "report.pdf", chunk.SourceID)
	require.Equal(t, model.ChunkTypePage, chunk.ChunkType)
	require.Equal(t, 3, chunk.Position.PageOrRow)
	require.Equal(t, 12, chunk.Position.Total)
	require.Equal(t, HashText(chunk.Text), chunk.ContentHash)
	require.False(t, chunk.CreatedAt.IsZero())

	meta := chunk.Meta()
	require.Equal(t, model.String("report.pdf"), meta["source_id"])
	require.Equal(t, model.Int(3), meta["page_or_row"])
}

func TestCleanText(t *testing.T) {
	require.Equal(t, "a b c", CleanText("a\n\n b \t c"))
	require.Equal(t, `he said "ok"`, CleanText("he said “ok”"))
	require.Equal(t, "keep. it, all!", CleanText("keep. it, all!\x00\x07"))
	require.Equal(t, "", CleanText(" \r\n "))
}

func TestSplitSentences(t *testing.T) {
	require.Equal(t, []string{"One.", "Two!", "Three?"}, SplitSentences("One. Two! Three?"))
	// Punctuation not followed by whitespace does not end a sentence.
	require.Equal(t, []string{"Version 1.2 shipped.", "Done."}, SplitSentences("Version 1.2 shipped. Done."))
	// Trailing text without boundary punctuation is kept as a final unit.
	require.Equal(t, []string{"First.", "no terminator"}, SplitSentences("First. no terminator"))
	require.Empty(t, SplitSentences(""))
}

func TestSummarize(t *testing.T) {
	require.Equal(t, Stats{}, Summarize(nil))

	c, err := New(Config{ChunkSizeTokens: 2, OverlapTokens: 0, CharsPerToken: 1})
	require.NoError(t, err)
	chunks := c.Chunk(context.Background(), "Aa. Bbbb.", "doc", model.ChunkTypeText, 1, 1)
	require.Len(t, chunks, 2)

	stats := Summarize(chunks)
	require.Equal(t, 2, stats.TotalChunks)
	require.Equal(t, 3, stats.MinTokens)
	require.Equal(t, 5, stats.MaxTokens)
}
