package twotier

import (
	"context"
	"sort"
	"time"

	"github.com/cassette-engine/cassette/internal/casserrors"
	"github.com/cassette-engine/cassette/internal/embedregistry"
)

// QualityEmbedder is the subset of daemon.Client the quality tier needs:
// embedding the query text through the warm daemon's semantic model. Kept
// as a narrow interface (rather than importing internal/daemon directly) so
// tests can supply a fake without standing up a socket.
type QualityEmbedder interface {
	Embed(ctx context.Context, texts []string, embedderID string) ([][]float32, error)
}

// Searcher runs the two-tier progressive search: a fast, always-in-process
// pass followed by an optional quality-tier refinement through the warm
// daemon, two sequential phases over a shared candidate set.
type Searcher struct {
	Index   *Index
	Fast    embedregistry.Embedder
	Quality QualityEmbedder
	K       int
}

// Run embeds the query with the fast embedder, scores every row, and emits
// the Initial phase on the returned channel immediately. If the searcher is
// not fast_only and a quality embedder is configured, it then attempts the
// Refined phase, falling back to RefinementFailed on any error so the
// caller can keep the Initial results. The channel is closed after the
// final phase (Initial alone for fast_only, when no quality embedder is
// configured, or when the Initial phase carries an error; otherwise Initial
// followed by exactly one of Refined/RefinementFailed).
func (s *Searcher) Run(ctx context.Context, query string) <-chan Phase {
	out := make(chan Phase, 2)
	go func() {
		defer close(out)
		s.run(ctx, query, out)
	}()
	return out
}

func (s *Searcher) run(ctx context.Context, query string, out chan<- Phase) {
	k := s.K
	if k <= 0 {
		k = 10
	}

	start := time.Now()
	initial, fastScores, err := s.runInitial(ctx, query, k)
	if err != nil {
		out <- Phase{Kind: PhaseInitial, Err: err, LatencyMs: time.Since(start).Milliseconds()}
		return
	}
	out <- Phase{Kind: PhaseInitial, Results: initial, LatencyMs: time.Since(start).Milliseconds()}

	if s.Index.cfg.FastOnly || s.Quality == nil {
		return
	}
	if err := ctx.Err(); err != nil {
		out <- Phase{Kind: PhaseRefinementFailed, Err: casserrors.Wrap(casserrors.KindCancelled, "refinement cancelled", err)}
		return
	}

	refineStart := time.Now()
	refined, err := s.runRefine(ctx, query, initial, fastScores)
	if err != nil {
		out <- Phase{Kind: PhaseRefinementFailed, Err: err}
		return
	}
	out <- Phase{Kind: PhaseRefined, Results: refined, LatencyMs: time.Since(refineStart).Milliseconds()}
}

// scoredDoc pairs a document ID with a raw (unnormalized) score.
type scoredDoc struct {
	id    DocID
	score float64
}

// runInitial scores every row against the fast embedding of query and
// returns the top k results plus a lookup of raw fast scores by doc key, so
// runRefine can reuse them without rescoring.
func (s *Searcher) runInitial(ctx context.Context, query string, k int) ([]Result, map[string]float64, error) {
	if s.Fast == nil {
		return nil, nil, casserrors.New(casserrors.KindInvalidInput, "two-tier search requires a fast embedder")
	}
	vec, err := s.Fast.Embed(ctx, query)
	if err != nil {
		return nil, nil, casserrors.Wrap(casserrors.KindFailed, "embed query with fast embedder", err)
	}

	all := make([]scoredDoc, 0, len(s.Index.ids))
	for _, id := range s.Index.ids {
		row := s.Index.rows[id.key()]
		all = append(all, scoredDoc{id: id, score: dot(vec, row.FastVector)})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].id.key() < all[j].id.key()
	})
	if len(all) > k {
		all = all[:k]
	}

	raw := make([]float64, len(all))
	for i, c := range all {
		raw[i] = c.score
	}
	norm := minMaxNormalize(raw)
	fastScores := make(map[string]float64, len(all))
	results := make([]Result, len(all))
	for i, c := range all {
		fastScores[c.id.key()] = c.score
		results[i] = Result{ID: c.id, Score: norm[i], FastScore: c.score}
	}
	return results, fastScores, nil
}

// runRefine recomputes quality scores for the initial candidates (capped at
// MaxRefinementDocs) using their stored quality vectors, blends with the
// fast score, and resorts.
func (s *Searcher) runRefine(ctx context.Context, query string, initial []Result, fastScores map[string]float64) ([]Result, error) {
	limit := len(initial)
	if s.Index.cfg.MaxRefinementDocs > 0 && s.Index.cfg.MaxRefinementDocs < limit {
		limit = s.Index.cfg.MaxRefinementDocs
	}
	candidates := initial[:limit]

	vecs, err := s.Quality.Embed(ctx, []string{query}, s.Index.cfg.QualityEmbedderID)
	if err != nil {
		return nil, casserrors.Wrap(casserrors.KindFailed, "embed query with quality embedder", err)
	}
	if len(vecs) != 1 {
		return nil, casserrors.New(casserrors.KindFailed, "quality embedder returned unexpected vector count")
	}
	queryVec := vecs[0]

	qualityRaw := make([]float64, len(candidates))
	for i, c := range candidates {
		row, ok := s.Index.rows[c.ID.key()]
		if !ok || row.QualityVector == nil {
			qualityRaw[i] = 0
			continue
		}
		qualityRaw[i] = dot(queryVec, row.QualityVector)
	}
	qualityNorm := minMaxNormalize(qualityRaw)

	fastRaw := make([]float64, len(candidates))
	for i, c := range candidates {
		fastRaw[i] = fastScores[c.ID.key()]
	}
	fastNorm := minMaxNormalize(fastRaw)

	w := s.Index.cfg.QualityWeight
	if w == 0 {
		w = DefaultQualityWeight
	}

	out := make([]Result, len(candidates))
	for i, c := range candidates {
		out[i] = Result{
			ID:           c.ID,
			FastScore:    c.FastScore,
			QualityScore: qualityRaw[i],
			HasQuality:   true,
			Score:        (1-w)*fastNorm[i] + w*qualityNorm[i],
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID.key() < out[j].ID.key()
	})
	return out, nil
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// minMaxNormalize scales vals to [0,1]; a constant input normalizes to a
// uniform 1.0 rather than dividing by zero.
func minMaxNormalize(vals []float64) []float64 {
	if len(vals) == 0 {
		return nil
	}
	min, max := vals[0], vals[0]
	for _, v := range vals {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(vals))
	span := max - min
	for i, v := range vals {
		if span == 0 {
			out[i] = 1
			continue
		}
		out[i] = (v - min) / span
	}
	return out
}
