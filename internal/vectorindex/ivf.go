package vectorindex

import (
	"fmt"

	"github.com/corpora-dev/corpora/internal/pkg/errs"
)

const (
	defaultNList     = 16
	defaultNProbe    = 4
	kmeansIterations = 20
)

// ivfIndex is the approximate kind: vectors are bucketed under
// k-means centroids and only the nprobe closest buckets are scanned
// per query. Training happens on the first insert batch; a batch
// smaller than nlist cannot seed the centroids and is rejected.
type ivfIndex struct {
	metric    Metric
	dim       int
	nlist     int
	nprobe    int
	isTrained bool
	vectors   [][]float32
	centroids [][]float32
	lists     [][]int
}

func newIVFIndex(dim int, metric Metric, nlist int, nprobe int) *ivfIndex {
	if nlist <= 0 {
		nlist = defaultNList
	}
	if nprobe <= 0 {
		nprobe = defaultNProbe
	}
	if nprobe > nlist {
		nprobe = nlist
	}
	return &ivfIndex{metric: metric, dim: dim, nlist: nlist, nprobe: nprobe}
}

func (x *ivfIndex) add(vectors [][]float32) error {
	if !x.isTrained {
		if len(vectors) < x.nlist {
			return fmt.Errorf("%w: ivf index needs at least %d vectors to train, got %d",
				errs.ErrNotReady, x.nlist, len(vectors))
		}
		x.train(vectors)
	}
	for _, vec := range vectors {
		pos := len(x.vectors)
		x.vectors = append(x.vectors, vec)
		list := x.nearestCentroid(vec)
		x.lists[list] = append(x.lists[list], pos)
	}
	return nil
}

func (x *ivfIndex) search(query []float32, k int, keep func(pos int) bool) []candidate {
	if !x.isTrained || len(x.vectors) == 0 {
		return nil
	}
	probes := x.nearestCentroids(query, x.nprobe)
	cands := make([]candidate, 0, k*2)
	for _, list := range probes {
		for _, pos := range x.lists[list] {
			if keep != nil && !keep(pos) {
				continue
			}
			cands = append(cands, candidate{pos: pos, score: score(x.metric, query, x.vectors[pos])})
		}
	}
	return selectTop(cands, k)
}

func (x *ivfIndex) vectorAt(pos int) []float32 {
	return x.vectors[pos]
}

func (x *ivfIndex) len() int {
	return len(x.vectors)
}

func (x *ivfIndex) trained() bool {
	return x.isTrained
}

// train runs Lloyd's k-means over the sample, seeding centroids with
// an even spread of sample points.
func (x *ivfIndex) train(sample [][]float32) {
	x.centroids = make([][]float32, x.nlist)
	step := len(sample) / x.nlist
	for i := 0; i < x.nlist; i++ {
		x.centroids[i] = cloneVec(sample[i*step])
	}
	assign := make([]int, len(sample))
	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for i, vec := range sample {
			c := x.nearestCentroid(vec)
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}
		sums := make([][]float64, x.nlist)
		counts := make([]int, x.nlist)
		for i := range sums {
			sums[i] = make([]float64, x.dim)
		}
		for i, vec := range sample {
			c := assign[i]
			counts[c]++
			for d, v := range vec {
				sums[c][d] += float64(v)
			}
		}
		for c := range x.centroids {
			if counts[c] == 0 {
				// empty cluster keeps its previous centroid
				continue
			}
			for d := range x.centroids[c] {
				x.centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
		}
	}
	if x.metric == MetricCosine {
		for _, c := range x.centroids {
			normalize(c)
		}
	}
	x.lists = make([][]int, x.nlist)
	x.isTrained = true
}

func (x *ivfIndex) nearestCentroid(vec []float32) int {
	best := 0
	bestScore := score(x.metric, vec, x.centroids[0])
	for i := 1; i < len(x.centroids); i++ {
		if s := score(x.metric, vec, x.centroids[i]); s > bestScore {
			best = i
			bestScore = s
		}
	}
	return best
}

func (x *ivfIndex) nearestCentroids(vec []float32, n int) []int {
	cands := make([]candidate, len(x.centroids))
	for i, c := range x.centroids {
		cands[i] = candidate{pos: i, score: score(x.metric, vec, c)}
	}
	cands = selectTop(cands, n)
	out := make([]int, len(cands))
	for i, c := range cands {
		out[i] = c.pos
	}
	return out
}

func cloneVec(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
