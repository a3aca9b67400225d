package chunker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/corpora-dev/corpora/internal/model"
	"github.com/corpora-dev/corpora/internal/pkg/errs"
)

const defaultCharsPerToken = 4

type Config struct {
	ChunkSizeTokens int
	OverlapTokens   int
	CharsPerToken   int
}

// Chunker converts extracted text into overlapping, metadata-tagged chunks
// sized for embedding. It performs no I/O.
type Chunker struct {
	cfg Config
}

func New(cfg Config) (*Chunker, error) {
	if cfg.ChunkSizeTokens <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", errs.ErrValidation, cfg.ChunkSizeTokens)
	}
	if cfg.OverlapTokens < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", errs.ErrValidation, cfg.OverlapTokens)
	}
	if cfg.OverlapTokens >= cfg.ChunkSizeTokens {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", errs.ErrValidation, cfg.OverlapTokens, cfg.ChunkSizeTokens)
	}
	if cfg.CharsPerToken <= 0 {
		cfg.CharsPerToken = defaultCharsPerToken
	}
	return &Chunker{cfg: cfg}, nil
}

func (c *Chunker) ChunkSize() int {
	return c.cfg.ChunkSizeTokens
}

func (c *Chunker) Overlap() int {
	return c.cfg.OverlapTokens
}

// Chunk splits text into chunk records. Empty or whitespace-only input
// yields an empty result. Sentences are never split: a single sentence
// longer than the chunk size is emitted as its own oversized chunk.
func (c *Chunker) Chunk(ctx context.Context, text string, sourceID string, chunkType model.ChunkType, pageOrRow, total int) []model.Chunk {
	cleaned := CleanText(text)
	if cleaned == "" {
		return nil
	}
	sentences := SplitSentences(cleaned)

	var chunks []model.Chunk
	var buf string
	bufTokens := 0
	chunkIndex := 0

	flush := func() {
		trimmed := strings.TrimSpace(buf)
		if trimmed == "" {
			return
		}
		chunks = append(chunks, c.newChunk(trimmed, sourceID, chunkType, pageOrRow, total, chunkIndex))
		chunkIndex++
	}

	for _, sentence := range sentences {
		sentenceTokens := c.estimateTokens(sentence)
		if bufTokens+sentenceTokens > c.cfg.ChunkSizeTokens && buf != "" {
			flush()
			overlap := c.overlapText(buf)
			if overlap != "" {
				buf = overlap + " " + sentence
			} else {
				buf = sentence
			}
			bufTokens = c.estimateTokens(buf)
			continue
		}
		if buf == "" {
			buf = sentence
		} else {
			buf += " " + sentence
		}
		bufTokens += sentenceTokens
	}
	flush()

	logutil.GetLogger(ctx).Debug("chunking completed",
		zap.String("source_id", sourceID),
		zap.Int("sentences", len(sentences)),
		zap.Int("chunks", len(chunks)))
	return chunks
}

func (c *Chunker) newChunk(text, sourceID string, chunkType model.ChunkType, pageOrRow, total, chunkIndex int) model.Chunk {
	return model.Chunk{
		Text:      text,
		SourceID:  sourceID,
		ChunkType: chunkType,
		Position: model.Position{
			PageOrRow:  pageOrRow,
			Total:      total,
			ChunkIndex: chunkIndex,
		},
		TokenEstimate: c.estimateTokens(text),
		ContentHash:   HashText(text),
		CreatedAt:     time.Now().UTC(),
	}
}

func (c *Chunker) estimateTokens(text string) int {
	return len(text) / c.cfg.CharsPerToken
}

// overlapText returns the trailing overlap-tokens-worth of words from a
// closed chunk. Overlap is word-level, not token-exact.
func (c *Chunker) overlapText(text string) string {
	if c.cfg.OverlapTokens == 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) > c.cfg.OverlapTokens {
		words = words[len(words)-c.cfg.OverlapTokens:]
	}
	return strings.Join(words, " ")
}

// CleanText collapses whitespace runs into single spaces, drops control
// and other non-printable runes, and normalizes curly quotes. Standard
// punctuation is preserved.
func CleanText(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	lastSpace := true
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				sb.WriteByte(' ')
				lastSpace = true
			}
		case r == '‘' || r == '’':
			sb.WriteByte('\'')
			lastSpace = false
		case r == '“' || r == '”':
			sb.WriteByte('"')
			lastSpace = false
		case unicode.IsLetter(r) || unicode.IsDigit(r) || isKeptPunct(r):
			sb.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}

func isKeptPunct(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ';', ':', '-', '_', '(', ')', '[', ']', '{', '}', '"', '\'', '/', '%', '&', '+', '=', '@', '#', '$', '*':
		return true
	}
	return false
}

// SplitSentences splits cleaned text into sentence-like units at boundary
// punctuation (. ! ?) followed by whitespace. The punctuation stays with
// the sentence it closes.
func SplitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Consume a run of boundary punctuation ("...", "?!").
		j := i
		for j+1 < len(runes) {
			next := runes[j+1]
			if next != '.' && next != '!' && next != '?' {
				break
			}
			j++
		}
		if j+1 < len(runes) && !unicode.IsSpace(runes[j+1]) {
			i = j
			continue
		}
		sentence := strings.TrimSpace(string(runes[start : j+1]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		i = j
		start = j + 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// HashText returns the stable identity hash of a chunk's normalized text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Stats summarizes a chunking run.
type Stats struct {
	TotalChunks int     `json:"total_chunks"`
	TotalTokens int     `json:"total_tokens"`
	AvgTokens   float64 `json:"avg_tokens"`
	MinTokens   int     `json:"min_tokens"`
	MaxTokens   int     `json:"max_tokens"`
}

func Summarize(chunks []model.Chunk) Stats {
	stats := Stats{TotalChunks: len(chunks)}
	if len(chunks) == 0 {
		return stats
	}
	stats.MinTokens = chunks[0].TokenEstimate
	for _, c := range chunks {
		stats.TotalTokens += c.TokenEstimate
		if c.TokenEstimate < stats.MinTokens {
			stats.MinTokens = c.TokenEstimate
		}
		if c.TokenEstimate > stats.MaxTokens {
			stats.MaxTokens = c.TokenEstimate
		}
	}
	stats.AvgTokens = float64(stats.TotalTokens) / float64(len(chunks))
	return stats
}
