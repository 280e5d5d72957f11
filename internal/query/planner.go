package query

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cassette-engine/cassette/internal/ann"
	"github.com/cassette-engine/cassette/internal/casserrors"
	"github.com/cassette-engine/cassette/internal/daemon"
	"github.com/cassette-engine/cassette/internal/embedregistry"
	"github.com/cassette-engine/cassette/internal/lexical"
	"github.com/cassette-engine/cassette/internal/storefilters"
	"github.com/cassette-engine/cassette/internal/telemetry"
	"github.com/cassette-engine/cassette/internal/vectorindex"
)

// Planner resolves a raw query string into a blended result set, fanning
// out to the lexical and vector legs in hybrid mode and optionally
// rescoring the top candidates through the warm daemon's reranker.
type Planner struct {
	Lexical     *lexical.Index
	VectorExact *vectorindex.VectorIndex
	VectorANN   *ann.Index
	Embedder    embedregistry.Embedder
	Daemon      *daemon.Client
	Cache       *Cache
	FilterMaps  storefilters.SemanticFilterMaps

	// Metrics records per-query latency/result telemetry (per-type query
	// counters, a search latency histogram, zero-result queries). Nil
	// disables recording.
	Metrics *telemetry.QueryMetrics

	SemanticWeight float64
}

func queryTypeForMode(mode Mode) telemetry.QueryType {
	switch mode {
	case ModeLexical:
		return telemetry.QueryTypeLexical
	case ModeVector:
		return telemetry.QueryTypeSemantic
	default:
		return telemetry.QueryTypeMixed
	}
}

// Options configure one Search call.
type Options struct {
	Mode        Mode
	Limit       int
	Approximate bool
	Rerank      bool
}

// Search runs the requested mode, consulting the cache first and filling
// it on a miss.
func (p *Planner) Search(ctx context.Context, rawQuery string, opts Options) ([]Blended, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, casserrors.Wrap(casserrors.KindCancelled, "search cancelled", err)
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	filters := ParseQuery(rawQuery)
	normalizedQuery := strings.ToLower(strings.TrimSpace(filters.Text))
	canonicalFilters := filters.CanonicalKey()

	if p.Cache != nil {
		if cached, ok := p.Cache.Get(opts.Mode, normalizedQuery, canonicalFilters, opts.Limit); ok {
			hits := cached.([]Blended)
			p.recordMetrics(rawQuery, opts.Mode, len(hits), time.Since(start))
			return hits, nil
		}
	}

	vecFilter, lexFilter, err := p.resolveFilters(ctx, filters)
	if err != nil {
		return nil, err
	}

	var (
		lexHits []LexHit
		vecHits []VecHit
	)

	switch opts.Mode {
	case ModeLexical:
		lexHits, err = p.searchLexical(ctx, filters.Text, lexFilter, opts.Limit)
	case ModeVector:
		vecHits, err = p.searchVector(ctx, filters.Text, vecFilter, opts.Limit, opts.Approximate)
	default:
		lexHits, vecHits, err = p.searchHybrid(ctx, filters.Text, lexFilter, vecFilter, opts.Limit, opts.Approximate)
	}
	if err != nil {
		return nil, err
	}

	weight := p.SemanticWeight
	if weight == 0 {
		weight = DefaultSemanticWeight
	}
	blended := Blend(lexHits, vecHits, weight)
	if len(blended) > opts.Limit {
		blended = blended[:opts.Limit]
	}

	// opts.Rerank candidates are rescored by the caller via
	// RerankWithContent once it has hydrated message content; the planner
	// has no access to row content itself.

	if p.Cache != nil {
		p.Cache.Put(opts.Mode, normalizedQuery, canonicalFilters, opts.Limit, blended)
	}
	p.recordMetrics(rawQuery, opts.Mode, len(blended), time.Since(start))
	return blended, nil
}

// recordMetrics is a no-op when no recorder is attached.
func (p *Planner) recordMetrics(rawQuery string, mode Mode, resultCount int, latency time.Duration) {
	if p.Metrics == nil {
		return
	}
	p.Metrics.Record(telemetry.QueryEvent{
		Query:       rawQuery,
		QueryType:   queryTypeForMode(mode),
		ResultCount: resultCount,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
}

// unknownFilterValue reports an invalid-input error for a filter clause
// that names an entity not found in FilterMaps, rather than silently
// dropping the constraint (which would widen the query beyond what the
// caller asked for).
func unknownFilterValue(field, value string) error {
	return casserrors.New(casserrors.KindInvalidInput, "unknown filter value").
		WithDetail("field", field).
		WithDetail("value", value)
}

func (p *Planner) resolveFilters(ctx context.Context, f Filters) (*vectorindex.Filter, *lexical.Filter, error) {
	var vecFilter vectorindex.Filter
	var lexFilter lexical.Filter
	hasFilter := false

	if f.Agent != "" {
		id, ok := uint32(0), false
		if p.FilterMaps != nil {
			id, ok = p.FilterMaps.AgentID(ctx, f.Agent)
		}
		if !ok {
			return nil, nil, unknownFilterValue("agent", f.Agent)
		}
		vecFilter.AgentID = &id
		lexFilter.AgentID = &id
		hasFilter = true
	}
	if f.Workspace != "" {
		id, ok := uint32(0), false
		if p.FilterMaps != nil {
			id, ok = p.FilterMaps.WorkspaceID(ctx, f.Workspace)
		}
		if !ok {
			return nil, nil, unknownFilterValue("workspace", f.Workspace)
		}
		vecFilter.WorkspaceID = &id
		lexFilter.WorkspaceID = &id
		hasFilter = true
	}
	if f.Source != "" {
		id, ok := uint32(0), false
		if p.FilterMaps != nil {
			id, ok = p.FilterMaps.SourceID(ctx, f.Source)
		}
		if !ok {
			return nil, nil, unknownFilterValue("source", f.Source)
		}
		vecFilter.SourceID = &id
		lexFilter.SourceID = &id
		hasFilter = true
	}
	if f.Since != nil {
		ms := f.Since.UnixMilli()
		vecFilter.MinCreated = &ms
		lexFilter.MinCreated = &ms
		hasFilter = true
	}
	if f.Before != nil {
		ms := f.Before.UnixMilli()
		vecFilter.MaxCreated = &ms
		lexFilter.MaxCreated = &ms
		hasFilter = true
	}

	if !hasFilter {
		return nil, nil, nil
	}
	return &vecFilter, &lexFilter, nil
}

func (p *Planner) searchLexical(ctx context.Context, text string, filter *lexical.Filter, limit int) ([]LexHit, error) {
	if p.Lexical == nil {
		return nil, nil
	}
	results, err := p.Lexical.Query(ctx, text, filter, limit*2)
	if err != nil {
		return nil, err
	}
	out := make([]LexHit, len(results))
	for i, r := range results {
		out[i] = LexHit{MessageID: r.MessageID, ChunkIdx: r.ChunkIdx, Score: r.Score}
	}
	return out, nil
}

func (p *Planner) searchVector(ctx context.Context, text string, filter *vectorindex.Filter, limit int, approximate bool) ([]VecHit, error) {
	if p.Embedder == nil {
		return nil, nil
	}
	queryVec, err := p.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if approximate && p.VectorANN != nil {
		return p.searchVectorApproximate(ctx, queryVec, filter, limit)
	}

	if p.VectorExact == nil {
		return nil, nil
	}
	results, err := p.VectorExact.SearchTopKCollapsed(ctx, queryVec, limit*2, filter, true)
	if err != nil {
		return nil, err
	}
	out := make([]VecHit, len(results))
	for i, r := range results {
		out[i] = VecHit{MessageID: r.Row.MessageID, ChunkIdx: r.Row.ChunkIdx, Score: float64(r.Score)}
	}
	return out, nil
}

// annKDoublingLimit bounds how many times searchVectorApproximate will
// double its requested k while trying to satisfy filter after a post-search
// filter pass leaves it short, rather than doubling without bound.
const annKDoublingLimit = 4

// searchVectorApproximate maps each HNSW hit's row index back to the
// authoritative CVVI row to recover its message_id/chunk_idx (the ANN
// graph key is an internal row index, not a result id), then applies
// filter post-search since the graph itself carries no filter metadata.
// If filtering leaves fewer than limit survivors and the graph had more to
// give, it re-queries with a doubled k before giving up.
func (p *Planner) searchVectorApproximate(ctx context.Context, queryVec []float32, filter *vectorindex.Filter, limit int) ([]VecHit, error) {
	if p.VectorExact == nil {
		return nil, nil
	}

	k := limit * 2
	var out []VecHit
	for attempt := 0; ; attempt++ {
		hits, _, err := p.VectorANN.SearchWithFallback(ctx, queryVec, k)
		if err != nil {
			return nil, err
		}

		out = out[:0]
		for _, h := range hits {
			if int(h.RowIdx) >= len(p.VectorExact.Rows) {
				continue
			}
			row := p.VectorExact.Rows[h.RowIdx]
			if !filter.Matches(row) {
				continue
			}
			out = append(out, VecHit{MessageID: row.MessageID, ChunkIdx: row.ChunkIdx, Score: float64(1 - h.Distance)})
		}

		if len(out) >= limit || len(hits) < k || attempt >= annKDoublingLimit {
			result := make([]VecHit, len(out))
			copy(result, out)
			return result, nil
		}
		k *= 2
	}
}

// searchHybrid runs the lexical and vector legs concurrently, degrading to
// whichever leg succeeds if the other fails rather than failing the whole
// search.
func (p *Planner) searchHybrid(ctx context.Context, text string, lexFilter *lexical.Filter, vecFilter *vectorindex.Filter, limit int, approximate bool) ([]LexHit, []VecHit, error) {
	var lexHits []LexHit
	var vecHits []VecHit
	var lexErr, vecErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexHits, lexErr = p.searchLexical(gctx, text, lexFilter, limit)
		return nil
	})
	g.Go(func() error {
		vecHits, vecErr = p.searchVector(gctx, text, vecFilter, limit, approximate)
		return nil
	})
	_ = g.Wait()

	if lexErr != nil && vecErr != nil {
		return nil, nil, casserrors.Wrap(casserrors.KindFailed, "both search legs failed", lexErr)
	}
	return lexHits, vecHits, nil
}

// RerankWithContent rescoring the blended candidates using their hydrated
// content, which the caller supplies after resolving message_ids to rows
// (the planner itself has no access to row content).
func (p *Planner) RerankWithContent(ctx context.Context, query string, candidates []Blended, content []string) ([]Blended, error) {
	if p.Daemon == nil || len(candidates) != len(content) {
		return candidates, nil
	}
	scores, err := p.Daemon.Rerank(ctx, query, content)
	if err != nil {
		return candidates, err
	}
	if len(scores) != len(candidates) {
		return candidates, nil
	}
	out := make([]Blended, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].Score = scores[i]
	}
	sortBlended(out)
	return out, nil
}
