// Package ann wraps coder/hnsw as the approximate nearest-neighbor index,
// keyed by CVVI row index rather than string IDs, persisted as a single
// CHSW file: a length-framed header (magic, version, embedder id,
// dimension, node count) followed by the opaque graph export and a
// gob-encoded parameter block, with degraded-rebuild-on-corrupt-load
// semantics.
package ann

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/cassette-engine/cassette/internal/casserrors"
)

// Params are the graph construction parameters.
type Params struct {
	M             int
	EfConstruction int
	EfSearch      int
	MaxLayer      int
}

// DefaultParams matches M=16, ef_construction=200, max_layer=16.
func DefaultParams() Params {
	return Params{M: 16, EfConstruction: 200, EfSearch: 64, MaxLayer: 16}
}

// Index is an approximate nearest-neighbor index over row indices.
type Index struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[uint64]
	params     Params
	dim        int
	embedderID string
	degraded   bool
}

// New builds an empty index over vectors of the given dimension, produced
// by the named embedder. embedderID is carried through Save/Load so a CHSW
// file built for one embedder is rejected when loaded against another.
func New(dim int, embedderID string, params Params) *Index {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = params.M
	graph.EfSearch = params.EfSearch
	graph.Ml = 0.25

	return &Index{graph: graph, params: params, dim: dim, embedderID: embedderID}
}

// Add inserts or replaces the vector for rowIdx. Vectors are expected to
// already be L2-normalized so that the cosine distance coder/hnsw computes
// matches the dot-product similarity used elsewhere in the search core.
func (idx *Index) Add(rowIdx uint64, vec []float32) error {
	if len(vec) != idx.dim {
		return casserrors.New(casserrors.KindInvalidInput, "vector dimension mismatch").
			WithDetail("expected", fmt.Sprint(idx.dim)).
			WithDetail("got", fmt.Sprint(len(vec)))
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.graph.Add(hnsw.MakeNode(rowIdx, vec))
	return nil
}

// AddBatch inserts many vectors under a single lock acquisition.
func (idx *Index) AddBatch(rowIdxs []uint64, vecs [][]float32) error {
	if len(rowIdxs) != len(vecs) {
		return casserrors.New(casserrors.KindInvalidInput, "row index and vector count mismatch")
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i, v := range vecs {
		if len(v) != idx.dim {
			return casserrors.New(casserrors.KindInvalidInput, "vector dimension mismatch").
				WithDetail("index", fmt.Sprint(i))
		}
		idx.graph.Add(hnsw.MakeNode(rowIdxs[i], v))
	}
	return nil
}

// Hit is one approximate search result: a row index and its distance
// (1 - cosine similarity, ascending = closer).
type Hit struct {
	RowIdx   uint64
	Distance float32
}

// Search returns up to k approximate nearest neighbors of query, sorted by
// ascending distance. If ef > 0 it overrides the graph's configured
// EfSearch for this call only.
func (idx *Index) Search(ctx context.Context, query []float32, k int, ef int) ([]Hit, error) {
	if len(query) != idx.dim {
		return nil, casserrors.New(casserrors.KindInvalidInput, "query dimension mismatch")
	}
	if err := ctx.Err(); err != nil {
		return nil, casserrors.Wrap(casserrors.KindCancelled, "search cancelled", err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.graph.Len() == 0 {
		return nil, nil
	}

	prevEf := idx.graph.EfSearch
	if ef > 0 {
		idx.graph.EfSearch = ef
	}
	nodes := idx.graph.Search(query, k)
	if ef > 0 {
		idx.graph.EfSearch = prevEf
	}

	hits := make([]Hit, 0, len(nodes))
	for _, node := range nodes {
		dist := idx.graph.Distance(query, node.Value)
		hits = append(hits, Hit{RowIdx: node.Key, Distance: dist})
	}
	return hits, nil
}

// SearchWithFallback retries with a larger ef once if the first pass returns
// fewer than k hits, signaling to the caller that an exact scan may be
// needed if results are still short after the retry.
func (idx *Index) SearchWithFallback(ctx context.Context, query []float32, k int) (hits []Hit, exhausted bool, err error) {
	hits, err = idx.Search(ctx, query, k, idx.params.EfSearch)
	if err != nil {
		return nil, false, err
	}
	if len(hits) >= k {
		return hits, false, nil
	}
	widened, err := idx.Search(ctx, query, k, idx.params.EfSearch*4)
	if err != nil {
		return nil, false, err
	}
	if len(widened) < k {
		return widened, true, nil
	}
	return widened, false, nil
}

// Len returns the number of nodes in the graph (including any orphans left
// by a prior lazy delete).
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.graph.Len()
}

// Degraded reports whether this instance was constructed via a fallback
// rebuild after a corrupt on-disk graph could not be restored.
func (idx *Index) Degraded() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.degraded
}

// Save persists the graph as a single CHSW file: header, then the
// coder/hnsw graph export framed by a uint64 length, then a gob-encoded
// parameter block framed the same way. Written to a temp path, fsynced,
// and renamed into place.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "create ann index directory", err)
	}

	var graphBuf bytes.Buffer
	if err := idx.graph.Export(&graphBuf); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "export hnsw graph", err)
	}

	var dataBuf bytes.Buffer
	if err := gob.NewEncoder(&dataBuf).Encode(idx.params); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "encode ann params", err)
	}

	header := encodeCHSWHeader(chswHeader{
		Version:    chswVersion,
		EmbedderID: idx.embedderID,
		Dimension:  uint32(idx.dim),
		Count:      uint32(idx.graph.Len()),
	})

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "create temp ann index file", err)
	}
	if err := writeCHSW(f, header, graphBuf.Bytes(), dataBuf.Bytes()); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return casserrors.Wrap(casserrors.KindFailed, "fsync ann index file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return casserrors.Wrap(casserrors.KindFailed, "close ann index file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return casserrors.Wrap(casserrors.KindFailed, "rename ann index file", err)
	}

	if dirFile, err := os.Open(dir); err == nil {
		_ = dirFile.Sync()
		_ = dirFile.Close()
	}
	return nil
}

func writeCHSW(f *os.File, header, graphBytes, dataBytes []byte) error {
	if _, err := f.Write(header); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "write chsw header", err)
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(graphBytes)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "write graph length", err)
	}
	if _, err := f.Write(graphBytes); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "write graph bytes", err)
	}
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(dataBytes)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "write data length", err)
	}
	if _, err := f.Write(dataBytes); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "write data bytes", err)
	}
	return nil
}

// Load restores an index previously written by Save, validating the header
// magic, version, and dimension before importing the graph. Passing a
// non-empty expectedEmbedderID additionally rejects a file built for a
// different embedder. Any corruption -- bad magic, unsupported version, a
// dimension or embedder_id mismatch, truncated framing, or a graph the
// underlying library refuses to import -- returns a KindCorrupt error; the
// caller is expected to trigger a full rebuild from the vector index.
func Load(path string, expectedDim int, expectedEmbedderID string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, casserrors.Wrap(casserrors.KindCorrupt, "read ann index file", err)
	}

	h, err := decodeCHSWHeader(data)
	if err != nil {
		return nil, err
	}
	if expectedDim > 0 && int(h.Dimension) != expectedDim {
		return nil, casserrors.New(casserrors.KindCorrupt, "dimension mismatch").
			WithDetail("expected", fmt.Sprint(expectedDim)).
			WithDetail("got", fmt.Sprint(h.Dimension))
	}
	if expectedEmbedderID != "" && h.EmbedderID != expectedEmbedderID {
		return nil, casserrors.New(casserrors.KindCorrupt, "embedder_id mismatch").
			WithDetail("expected", expectedEmbedderID).
			WithDetail("got", h.EmbedderID)
	}

	graphBytes, pos, err := readCHSWBlock(data, h.headerLen, "graph")
	if err != nil {
		return nil, err
	}
	dataBytes, pos, err := readCHSWBlock(data, pos, "data")
	if err != nil {
		return nil, err
	}
	if pos != len(data) {
		return nil, casserrors.New(casserrors.KindCorrupt, "trailing bytes after data block")
	}

	var params Params
	if err := gob.NewDecoder(bytes.NewReader(dataBytes)).Decode(&params); err != nil {
		return nil, casserrors.Wrap(casserrors.KindCorrupt, "decode ann params", err)
	}

	idx := New(int(h.Dimension), h.EmbedderID, params)
	if err := idx.graph.Import(bufio.NewReader(bytes.NewReader(graphBytes))); err != nil {
		return nil, casserrors.Wrap(casserrors.KindCorrupt, "import hnsw graph", err)
	}
	return idx, nil
}

// LoadOrRebuild loads path, logging and falling back to a fresh degraded
// index on any corruption instead of propagating the error, so callers that
// can rebuild from the source vector index keep serving approximate search
// once the rebuild completes rather than hard-failing.
func LoadOrRebuild(path string, dim int, embedderID string, params Params, logger *slog.Logger) *Index {
	idx, err := Load(path, dim, embedderID)
	if err == nil {
		return idx
	}
	if logger != nil {
		logger.Warn("ann index load failed, falling back to degraded rebuild", slog.String("error", err.Error()), slog.String("path", path))
	}
	fresh := New(dim, embedderID, params)
	fresh.degraded = true
	return fresh
}
