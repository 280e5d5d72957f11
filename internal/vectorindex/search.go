package vectorindex

import (
	"container/heap"
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/cassette-engine/cassette/internal/casserrors"
	"github.com/cassette-engine/cassette/internal/simdsearch"
)

// parallelScanThreshold is the row count above which SearchTopK partitions
// the scan across goroutines.
const parallelScanThreshold = 10000

// partitionSize is the chunk size used for the parallel scan.
const partitionSize = 1024

// Filter restricts a search to rows matching every populated field.
// Unset pointer/slice fields impose no constraint.
type Filter struct {
	AgentID     *uint32
	WorkspaceID *uint32
	SourceID    *uint32
	Roles       []Role
	MinCreated  *int64
	MaxCreated  *int64
}

// Matches reports whether r satisfies every populated field of f. A nil
// filter matches everything.
func (f *Filter) Matches(r Row) bool {
	if f == nil {
		return true
	}
	if f.AgentID != nil && r.AgentID != *f.AgentID {
		return false
	}
	if f.WorkspaceID != nil && r.WorkspaceID != *f.WorkspaceID {
		return false
	}
	if f.SourceID != nil && r.SourceID != *f.SourceID {
		return false
	}
	if len(f.Roles) > 0 {
		ok := false
		for _, role := range f.Roles {
			if role == r.Role {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.MinCreated != nil && r.CreatedAtMs < *f.MinCreated {
		return false
	}
	if f.MaxCreated != nil && r.CreatedAtMs > *f.MaxCreated {
		return false
	}
	return true
}

// Result is one scored hit from a top-k search.
type Result struct {
	RowIdx int
	Row    Row
	Score  float32
}

// less implements the deterministic tie-break: score descending, then
// message_id ascending, then chunk_idx ascending.
func less(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Row.MessageID != b.Row.MessageID {
		return a.Row.MessageID < b.Row.MessageID
	}
	return a.Row.ChunkIdx < b.Row.ChunkIdx
}

// resultHeap is a bounded min-heap ordered so the worst-ranked survivor sits
// at the root, letting SearchTopK evict it in O(log k) when a better result
// arrives.
type resultHeap []Result

func (h resultHeap) Len() int { return len(h) }
func (h resultHeap) Less(i, j int) bool {
	// Min-heap on "worseness": root should be the least-good of the k kept.
	return less(h[j], h[i])
}
func (h resultHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x any)        { *h = append(*h, x.(Result)) }
func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func sortedFromHeap(h resultHeap) []Result {
	out := make([]Result, len(h))
	copy(out, h)
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if less(out[j], out[i]) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// SearchTopK scores every row matching filter against query with the
// dot-product similarity (embeddings are L2-normalized, so dot product
// equals cosine similarity), and returns the k best under the deterministic
// tie-break order. Rows are scanned sequentially below
// parallelScanThreshold and in fixed-size chunks via errgroup above it; both
// paths produce byte-identical output for the same input.
func (v *VectorIndex) SearchTopK(ctx context.Context, query []float32, k int, filter *Filter, simdEnabled bool) ([]Result, error) {
	if len(query) != v.Dimension {
		return nil, casserrors.New(casserrors.KindInvalidInput, "query dimension mismatch").
			WithDetail("expected", itoa(v.Dimension)).
			WithDetail("got", itoa(len(query)))
	}
	if k <= 0 {
		return nil, casserrors.New(casserrors.KindInvalidInput, "k must be positive")
	}

	if err := ctx.Err(); err != nil {
		return nil, casserrors.Wrap(casserrors.KindCancelled, "search cancelled", err)
	}

	n := v.Count()
	if n == 0 {
		return nil, nil
	}

	if n < parallelScanThreshold {
		return v.scanRange(0, n, query, k, filter, simdEnabled), nil
	}
	return v.scanParallel(ctx, query, k, filter, simdEnabled)
}

func (v *VectorIndex) scanRange(start, end int, query []float32, k int, filter *Filter, simdEnabled bool) []Result {
	h := &resultHeap{}
	heap.Init(h)
	for i := start; i < end; i++ {
		row := v.Rows[i]
		if !filter.Matches(row) {
			continue
		}
		score := v.score(i, query, simdEnabled)
		cand := Result{RowIdx: i, Row: row, Score: score}
		if h.Len() < k {
			heap.Push(h, cand)
		} else if less(cand, (*h)[0]) {
			heap.Pop(h)
			heap.Push(h, cand)
		}
	}
	return sortedFromHeap(*h)
}

func (v *VectorIndex) scanParallel(ctx context.Context, query []float32, k int, filter *Filter, simdEnabled bool) ([]Result, error) {
	n := v.Count()
	numChunks := (n + partitionSize - 1) / partitionSize
	partials := make([][]Result, numChunks)

	g, gctx := errgroup.WithContext(ctx)
	for c := 0; c < numChunks; c++ {
		c := c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return casserrors.Wrap(casserrors.KindCancelled, "search cancelled", err)
			}
			start := c * partitionSize
			end := start + partitionSize
			if end > n {
				end = n
			}
			partials[c] = v.scanRange(start, end, query, k, filter, simdEnabled)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := &resultHeap{}
	heap.Init(merged)
	for _, part := range partials {
		for _, cand := range part {
			if merged.Len() < k {
				heap.Push(merged, cand)
			} else if less(cand, (*merged)[0]) {
				heap.Pop(merged)
				heap.Push(merged, cand)
			}
		}
	}
	return sortedFromHeap(*merged), nil
}

func (v *VectorIndex) score(rowIdx int, query []float32, simdEnabled bool) float32 {
	if v.slabF32 != nil {
		vec := v.slabF32[rowIdx*v.Dimension : (rowIdx+1)*v.Dimension]
		return simdsearch.Dot(vec, query, simdEnabled)
	}
	start := rowIdx * v.Dimension
	return simdsearch.DotF16F32(v.slabF16[start:start+v.Dimension], query)
}

// SearchTopKCollapsed behaves like SearchTopK but keeps only the
// highest-scoring chunk per message_id, collapsing multi-chunk messages down
// to a single result each.
func (v *VectorIndex) SearchTopKCollapsed(ctx context.Context, query []float32, k int, filter *Filter, simdEnabled bool) ([]Result, error) {
	// Over-fetch to absorb duplicate message_ids being collapsed away, then
	// fall back to a full unfiltered-by-k scan if that still isn't enough.
	overfetch := k * 4
	if overfetch < k {
		overfetch = k
	}
	candidates, err := v.SearchTopK(ctx, query, overfetch, filter, simdEnabled)
	if err != nil {
		return nil, err
	}
	if len(candidates) == overfetch && overfetch < v.Count() {
		distinct := make(map[uint64]struct{}, len(candidates))
		for _, cand := range candidates {
			distinct[cand.Row.MessageID] = struct{}{}
		}
		if len(distinct) < k {
			candidates, err = v.SearchTopK(ctx, query, v.Count(), filter, simdEnabled)
			if err != nil {
				return nil, err
			}
		}
	}

	bestByMessage := make(map[uint64]Result, len(candidates))
	order := make([]uint64, 0, len(candidates))
	for _, cand := range candidates {
		existing, ok := bestByMessage[cand.Row.MessageID]
		if !ok {
			order = append(order, cand.Row.MessageID)
			bestByMessage[cand.Row.MessageID] = cand
			continue
		}
		if less(cand, existing) {
			bestByMessage[cand.Row.MessageID] = cand
		}
	}

	out := make([]Result, 0, len(order))
	for _, id := range order {
		out = append(out, bestByMessage[id])
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if less(out[j], out[i]) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
