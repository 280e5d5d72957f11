package query

import (
	"context"
	"testing"

	"github.com/cassette-engine/cassette/internal/lexical"
	"github.com/cassette-engine/cassette/internal/telemetry"
	"github.com/cassette-engine/cassette/internal/vectorindex"
)

type fakeEmbedder struct {
	dim    int
	vector []float32
}

func (f *fakeEmbedder) ID() string        { return "fake" }
func (f *fakeEmbedder) Dimension() int    { return f.dim }
func (f *fakeEmbedder) IsSemantic() bool  { return true }
func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, nil
}
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

type fakeFilterMaps struct {
	agents map[string]uint32
}

func (f *fakeFilterMaps) AgentID(ctx context.Context, slug string) (uint32, bool) {
	id, ok := f.agents[slug]
	return id, ok
}
func (f *fakeFilterMaps) WorkspaceID(ctx context.Context, path string) (uint32, bool) { return 0, false }
func (f *fakeFilterMaps) SourceID(ctx context.Context, name string) (uint32, bool)    { return 0, false }

func newLexicalPlannerFixture(t *testing.T) *Planner {
	t.Helper()
	idx, err := lexical.Open("")
	if err != nil {
		t.Fatalf("lexical.Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	docs := []lexical.Doc{
		{MessageID: 1, ChunkIdx: 0, Content: "how do retries work in the client", AgentID: 1},
		{MessageID: 2, ChunkIdx: 0, Content: "completely unrelated content about cooking", AgentID: 2},
	}
	if err := idx.Index(context.Background(), docs); err != nil {
		t.Fatalf("Index: %v", err)
	}

	cache, err := NewCache(16)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	return &Planner{
		Lexical:        idx,
		Cache:          cache,
		FilterMaps:     &fakeFilterMaps{agents: map[string]uint32{"claude": 1}},
		SemanticWeight: DefaultSemanticWeight,
	}
}

func TestPlannerSearchLexicalModeReturnsMatchingDoc(t *testing.T) {
	p := newLexicalPlannerFixture(t)
	out, err := p.Search(context.Background(), "retries", Options{Mode: ModeLexical, Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out) != 1 || out[0].MessageID != 1 {
		t.Fatalf("results = %+v, want exactly message_id 1", out)
	}
}

func TestPlannerSearchCachesSecondCall(t *testing.T) {
	p := newLexicalPlannerFixture(t)
	ctx := context.Background()
	first, err := p.Search(ctx, "retries", Options{Mode: ModeLexical, Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	// Close the underlying index to prove the second call is served from cache,
	// not re-executed against the (now unusable) lexical index.
	p.Lexical.Close()

	second, err := p.Search(ctx, "retries", Options{Mode: ModeLexical, Limit: 10})
	if err != nil {
		t.Fatalf("Search (expected cache hit): %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("cached result length = %d, want %d", len(second), len(first))
	}
}

func TestPlannerSearchWithAgentFilterNarrowsResults(t *testing.T) {
	p := newLexicalPlannerFixture(t)
	out, err := p.Search(context.Background(), "agent:claude retries", Options{Mode: ModeLexical, Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out) != 1 || out[0].MessageID != 1 {
		t.Fatalf("results = %+v, want message_id 1 matching agent:claude", out)
	}
}

func TestPlannerSearchRejectsUnknownAgentFilter(t *testing.T) {
	p := newLexicalPlannerFixture(t)
	_, err := p.Search(context.Background(), "agent:nobody retries", Options{Mode: ModeLexical, Limit: 10})
	if err == nil {
		t.Fatal("expected error for unknown agent filter value")
	}
}

func TestPlannerSearchRejectsCancelledContext(t *testing.T) {
	p := newLexicalPlannerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Search(ctx, "retries", Options{Mode: ModeLexical, Limit: 10}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestPlannerSearchVectorModeExactIndex(t *testing.T) {
	query := []float32{1, 0, 0}
	entries := []vectorindex.Entry{
		{MessageID: 10, ChunkIdx: 0, Vector: []float32{1, 0, 0}},
		{MessageID: 11, ChunkIdx: 0, Vector: []float32{0, 1, 0}},
	}
	idx, err := vectorindex.Build("fake", "v1", 3, vectorindex.QuantF32, entries)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	p := &Planner{
		VectorExact:    idx,
		Embedder:       &fakeEmbedder{dim: 3, vector: query},
		SemanticWeight: DefaultSemanticWeight,
	}
	out, err := p.Search(context.Background(), "find it", Options{Mode: ModeVector, Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out) == 0 || out[0].MessageID != 10 {
		t.Fatalf("results = %+v, want top hit message_id 10", out)
	}
}

func TestRerankWithContentRewritesScoresAndOrder(t *testing.T) {
	p := &Planner{}
	candidates := []Blended{
		{MessageID: 1, Score: 0.1},
		{MessageID: 2, Score: 0.9},
	}
	// No daemon configured: candidates pass through unchanged.
	out, err := p.RerankWithContent(context.Background(), "q", candidates, []string{"a", "b"})
	if err != nil {
		t.Fatalf("RerankWithContent: %v", err)
	}
	if len(out) != 2 || out[0].MessageID != 1 {
		t.Fatalf("expected passthrough when no daemon configured, got %+v", out)
	}
}

func TestRerankWithContentMismatchedLengthsPassesThrough(t *testing.T) {
	p := &Planner{}
	candidates := []Blended{{MessageID: 1, Score: 0.1}}
	out, err := p.RerankWithContent(context.Background(), "q", candidates, []string{"a", "b"})
	if err != nil {
		t.Fatalf("RerankWithContent: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected passthrough on length mismatch, got %+v", out)
	}
}

func TestPlannerSearchRecordsQueryMetrics(t *testing.T) {
	p := newLexicalPlannerFixture(t)
	p.Metrics = telemetry.NewQueryMetrics(nil)

	if _, err := p.Search(context.Background(), "retries", Options{Mode: ModeLexical, Limit: 10}); err != nil {
		t.Fatalf("Search: %v", err)
	}

	snap := p.Metrics.Snapshot()
	if snap.TotalQueries != 1 {
		t.Fatalf("TotalQueries = %d, want 1", snap.TotalQueries)
	}
	if snap.QueryTypeCounts[telemetry.QueryTypeLexical] != 1 {
		t.Fatalf("QueryTypeCounts[lexical] = %d, want 1", snap.QueryTypeCounts[telemetry.QueryTypeLexical])
	}

	// A cached second call must still be recorded.
	if _, err := p.Search(context.Background(), "retries", Options{Mode: ModeLexical, Limit: 10}); err != nil {
		t.Fatalf("Search (cached): %v", err)
	}
	if snap := p.Metrics.Snapshot(); snap.TotalQueries != 2 {
		t.Fatalf("TotalQueries after cached call = %d, want 2", snap.TotalQueries)
	}
}
