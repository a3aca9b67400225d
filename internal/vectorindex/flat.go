package vectorindex

// flatIndex is the exact kind: brute-force scan over every stored
// vector.
type flatIndex struct {
	metric  Metric
	dim     int
	vectors [][]float32
}

func newFlatIndex(dim int, metric Metric) *flatIndex {
	return &flatIndex{metric: metric, dim: dim}
}

func (f *flatIndex) add(vectors [][]float32) error {
	f.vectors = append(f.vectors, vectors...)
	return nil
}

func (f *flatIndex) search(query []float32, k int, keep func(pos int) bool) []candidate {
	cands := make([]candidate, 0, len(f.vectors))
	for pos, vec := range f.vectors {
		if keep != nil && !keep(pos) {
			continue
		}
		cands = append(cands, candidate{pos: pos, score: score(f.metric, query, vec)})
	}
	return selectTop(cands, k)
}

func (f *flatIndex) vectorAt(pos int) []float32 {
	return f.vectors[pos]
}

func (f *flatIndex) len() int {
	return len(f.vectors)
}

func (f *flatIndex) trained() bool {
	return true
}
