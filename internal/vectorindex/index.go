package vectorindex

import (
	"fmt"
	"math"
	"slices"

	"github.com/corpora-dev/corpora/internal/pkg/errs"
)

type Metric string

const (
	MetricCosine       Metric = "cosine"
	MetricL2           Metric = "l2"
	MetricInnerProduct Metric = "inner_product"
)

type Kind string

const (
	KindFlat Kind = "flat"
	KindIVF  Kind = "ivf"
)

func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, MetricL2, MetricInnerProduct:
		return Metric(s), nil
	}
	return "", fmt.Errorf("%w: unknown metric: %s", errs.ErrValidation, s)
}

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindFlat, KindIVF:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: unknown index kind: %s", errs.ErrValidation, s)
}

// candidate is an inner-index search result, position plus a
// "higher is better" score.
type candidate struct {
	pos   int
	score float32
}

// innerIndex holds the raw vectors and answers nearest-neighbor
// probes by position. The surrounding store owns locking, metadata
// and soft deletes.
type innerIndex interface {
	// add appends vectors at consecutive positions starting at len().
	add(vectors [][]float32) error
	// search returns up to k candidates with keep(pos) == true,
	// ordered by score descending, position ascending on ties.
	search(query []float32, k int, keep func(pos int) bool) []candidate
	vectorAt(pos int) []float32
	len() int
	trained() bool
}

func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

func l2Distance(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

// score maps the metric onto a single "higher is better" axis.
// For l2 that is the negated distance.
func score(metric Metric, query, vec []float32) float32 {
	switch metric {
	case MetricL2:
		return -l2Distance(query, vec)
	default:
		return dot(query, vec)
	}
}

// normalize scales vec to unit length in place. Zero vectors and
// already-normalized vectors pass through unchanged.
func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	if math.Abs(norm-1) < 1e-9 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// selectTop keeps the best k candidates, score descending with
// earlier positions winning ties.
func selectTop(cands []candidate, k int) []candidate {
	sortCandidates(cands)
	if len(cands) > k {
		cands = cands[:k]
	}
	return cands
}

func sortCandidates(cands []candidate) {
	// insertion-position tie break keeps ranking deterministic
	slices.SortFunc(cands, func(a, b candidate) int {
		if a.score > b.score {
			return -1
		}
		if a.score < b.score {
			return 1
		}
		return a.pos - b.pos
	})
}
