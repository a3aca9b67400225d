package vectorindex

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/corpora-dev/corpora/internal/pkg/errs"
)

const (
	indexFileName = "index.bin"
	metaFileName  = "meta.json"

	snapshotVersion = uint16(1)
)

var snapshotMagic = [4]byte{'C', 'V', 'I', 'X'}

type snapshotMeta struct {
	Dim     int            `json:"dim"`
	Metric  Metric         `json:"metric"`
	Kind    Kind           `json:"kind"`
	Records []record       `json:"records"`
	IDToPos map[string]int `json:"id_to_pos"`
	Removed int            `json:"removed"`
}

// Save snapshots the index into dir: index.bin for the vector
// structure and meta.json for records and id maps. Both files are
// written to a temp name and renamed so a crashed save never leaves a
// half-written snapshot behind.
func (s *Store) Save(ctx context.Context, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create snapshot dir: %v", errs.ErrPersistence, err)
	}
	var buf bytes.Buffer
	if err := s.writeIndex(&buf); err != nil {
		return fmt.Errorf("%w: encode index: %v", errs.ErrPersistence, err)
	}
	meta := snapshotMeta{
		Dim:     s.dim,
		Metric:  s.metric,
		Kind:    s.kind,
		Records: s.records,
		IDToPos: s.idToPos,
		Removed: s.removed,
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("%w: encode metadata: %v", errs.ErrPersistence, err)
	}
	if err := writeAtomic(filepath.Join(dir, indexFileName), buf.Bytes()); err != nil {
		return fmt.Errorf("%w: write index file: %v", errs.ErrPersistence, err)
	}
	if err := writeAtomic(filepath.Join(dir, metaFileName), raw); err != nil {
		return fmt.Errorf("%w: write metadata file: %v", errs.ErrPersistence, err)
	}
	s.path = dir
	return nil
}

// Load restores a snapshot from dir. A missing snapshot returns
// (false, nil); a corrupt one is logged and the store starts empty. A
// dimension mismatch against the configured dim is a warning only,
// the loaded data governs.
func (s *Store) Load(ctx context.Context, dir string) (bool, error) {
	metaRaw, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: read metadata file: %v", errs.ErrPersistence, err)
	}
	indexRaw, err := os.ReadFile(filepath.Join(dir, indexFileName))
	if os.IsNotExist(err) {
		logutil.GetLogger(ctx).Warn("snapshot metadata present but index file missing, starting empty",
			zap.String("dir", dir))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: read index file: %v", errs.ErrPersistence, err)
	}

	var meta snapshotMeta
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		logutil.GetLogger(ctx).Warn("corrupt snapshot metadata, starting empty",
			zap.String("dir", dir), zap.Error(err))
		return false, nil
	}
	inner, err := readIndex(indexRaw, meta)
	if err != nil {
		logutil.GetLogger(ctx).Warn("corrupt snapshot index, starting empty",
			zap.String("dir", dir), zap.Error(err))
		return false, nil
	}
	if inner.len() != len(meta.Records) {
		logutil.GetLogger(ctx).Warn("snapshot index and metadata disagree, starting empty",
			zap.String("dir", dir),
			zap.Int("index_count", inner.len()),
			zap.Int("record_count", len(meta.Records)))
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if meta.Dim != s.dim {
		logutil.GetLogger(ctx).Warn("snapshot dimension differs from configuration, loaded data governs",
			zap.Int("configured_dim", s.dim), zap.Int("snapshot_dim", meta.Dim))
	}
	idToPos := meta.IDToPos
	if idToPos == nil {
		idToPos = make(map[string]int, len(meta.Records))
		for pos, rec := range meta.Records {
			if !rec.Removed {
				idToPos[rec.ChunkID] = pos
			}
		}
	}
	s.dim = meta.Dim
	s.metric = meta.Metric
	s.kind = meta.Kind
	s.inner = inner
	s.records = meta.Records
	s.idToPos = idToPos
	s.removed = meta.Removed
	s.path = dir
	return true, nil
}

func (s *Store) writeIndex(buf *bytes.Buffer) error {
	w := bufio.NewWriter(buf)
	if _, err := w.Write(snapshotMagic[:]); err != nil {
		return err
	}
	header := []any{
		snapshotVersion,
		kindCode(s.kind),
		metricCode(s.metric),
		uint32(s.dim),
		uint32(s.inner.len()),
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	for pos := 0; pos < s.inner.len(); pos++ {
		if err := binary.Write(w, binary.LittleEndian, s.inner.vectorAt(pos)); err != nil {
			return err
		}
	}
	if ivf, ok := s.inner.(*ivfIndex); ok {
		if err := writeIVFSection(w, ivf); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeIVFSection(w *bufio.Writer, ivf *ivfIndex) error {
	trainedFlag := uint8(0)
	if ivf.isTrained {
		trainedFlag = 1
	}
	for _, v := range []any{trainedFlag, uint32(ivf.nlist), uint32(ivf.nprobe)} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if !ivf.isTrained {
		return nil
	}
	for _, c := range ivf.centroids {
		if err := binary.Write(w, binary.LittleEndian, c); err != nil {
			return err
		}
	}
	for _, list := range ivf.lists {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(list))); err != nil {
			return err
		}
		for _, pos := range list {
			if err := binary.Write(w, binary.LittleEndian, uint32(pos)); err != nil {
				return err
			}
		}
	}
	return nil
}

func readIndex(raw []byte, meta snapshotMeta) (innerIndex, error) {
	r := bytes.NewReader(raw)
	var magic [4]byte
	if _, err := r.Read(magic[:]); err != nil || magic != snapshotMagic {
		return nil, fmt.Errorf("bad magic")
	}
	var (
		version      uint16
		kindB, metB  uint8
		dim32, count uint32
	)
	for _, v := range []any{&version, &kindB, &metB, &dim32, &count} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", version)
	}
	kind, metric := codeKind(kindB), codeMetric(metB)
	if kind == "" || metric == "" {
		return nil, fmt.Errorf("unknown kind/metric codes %d/%d", kindB, metB)
	}
	dim := int(dim32)
	vectors := make([][]float32, count)
	for i := range vectors {
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	if kind == KindFlat {
		idx := newFlatIndex(dim, metric)
		idx.vectors = vectors
		return idx, nil
	}
	return readIVFSection(r, dim, metric, vectors)
}

func readIVFSection(r *bytes.Reader, dim int, metric Metric, vectors [][]float32) (innerIndex, error) {
	var (
		trainedFlag   uint8
		nlist, nprobe uint32
	)
	for _, v := range []any{&trainedFlag, &nlist, &nprobe} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	idx := newIVFIndex(dim, metric, int(nlist), int(nprobe))
	idx.vectors = vectors
	if trainedFlag == 0 {
		if len(vectors) != 0 {
			return nil, fmt.Errorf("untrained ivf snapshot holds %d vectors", len(vectors))
		}
		return idx, nil
	}
	idx.centroids = make([][]float32, nlist)
	for i := range idx.centroids {
		c := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, c); err != nil {
			return nil, err
		}
		idx.centroids[i] = c
	}
	idx.lists = make([][]int, nlist)
	total := 0
	for i := range idx.lists {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		list := make([]int, n)
		for j := range list {
			var pos uint32
			if err := binary.Read(r, binary.LittleEndian, &pos); err != nil {
				return nil, err
			}
			if int(pos) >= len(vectors) {
				return nil, fmt.Errorf("posting list position %d out of range", pos)
			}
			list[j] = int(pos)
		}
		idx.lists[i] = list
		total += len(list)
	}
	if total != len(vectors) {
		return nil, fmt.Errorf("posting lists hold %d positions, index holds %d vectors", total, len(vectors))
	}
	idx.isTrained = true
	return idx, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func kindCode(k Kind) uint8 {
	if k == KindIVF {
		return 1
	}
	return 0
}

func codeKind(b uint8) Kind {
	switch b {
	case 0:
		return KindFlat
	case 1:
		return KindIVF
	}
	return ""
}

func metricCode(m Metric) uint8 {
	switch m {
	case MetricL2:
		return 1
	case MetricInnerProduct:
		return 2
	default:
		return 0
	}
}

func codeMetric(b uint8) Metric {
	switch b {
	case 0:
		return MetricCosine
	case 1:
		return MetricL2
	case 2:
		return MetricInnerProduct
	}
	return ""
}
