package bakeoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cassette-engine/cassette/internal/embedregistry"
	"github.com/cassette-engine/cassette/internal/vectorindex"
)

func TestNDCGAtKPerfectRankingIsOne(t *testing.T) {
	require.InDelta(t, 1.0, NDCGAtK([]float64{3, 2, 1}, 10), 1e-9)
}

func TestNDCGAtKWorseRankingIsLower(t *testing.T) {
	perfect := NDCGAtK([]float64{3, 2, 1}, 10)
	worse := NDCGAtK([]float64{1, 2, 3}, 10)
	require.Less(t, worse, perfect)
}

func TestNDCGAtKEmptyIsZero(t *testing.T) {
	require.Equal(t, 0.0, NDCGAtK(nil, 10))
	require.Equal(t, 0.0, NDCGAtK([]float64{1, 2, 3}, 0))
}

func TestNDCGAtKNonFiniteTreatedAsZero(t *testing.T) {
	v := NDCGAtK([]float64{1, 1.0 / 0.0, -1}, 10)
	require.False(t, v < 0)
}

func TestStatsFromDurationsPercentiles(t *testing.T) {
	durs := make([]time.Duration, 100)
	for i := range durs {
		durs[i] = time.Duration(i+1) * time.Millisecond
	}
	stats := StatsFromDurations(durs)
	require.Equal(t, 100, stats.Samples)
	require.Equal(t, int64(1), stats.MinMs)
	require.Equal(t, int64(100), stats.MaxMs)
	require.Equal(t, int64(51), stats.P50Ms)
}

func TestStatsFromDurationsEmpty(t *testing.T) {
	require.Equal(t, LatencyStats{}, StatsFromDurations(nil))
}

func TestReportMeetsQualityThreshold(t *testing.T) {
	baseline := Report{NDCGAt10: 0.8}
	require.True(t, Report{NDCGAt10: 0.7}.MeetsQualityThreshold(baseline))
	require.False(t, Report{NDCGAt10: 0.5}.MeetsQualityThreshold(baseline))
}

func TestReportMeetsQualityThresholdZeroBaselineAlwaysPasses(t *testing.T) {
	require.True(t, Report{NDCGAt10: 0}.MeetsQualityThreshold(Report{NDCGAt10: 0}))
}

func TestComparisonFindWinnerPicksHighestQualityEligibleCandidate(t *testing.T) {
	baseline := Report{NDCGAt10: 0.5, ColdStartMs: 100, Latency: LatencyStats{P99Ms: 50}}
	c := Comparison{
		Baseline: baseline,
		Candidates: []Report{
			{EmbedderID: "a", Eligible: false, NDCGAt10: 0.9},
			{EmbedderID: "b", Eligible: true, NDCGAt10: 0.95, ColdStartMs: 500, Latency: LatencyStats{P99Ms: 100}},
			{EmbedderID: "c", Eligible: true, NDCGAt10: 0.6, ColdStartMs: 500, Latency: LatencyStats{P99Ms: 3000}},
		},
	}
	winner, ok := c.FindWinner()
	require.True(t, ok)
	require.Equal(t, "b", winner.EmbedderID)
}

func TestComparisonFindWinnerNoneEligible(t *testing.T) {
	c := Comparison{Candidates: []Report{{EmbedderID: "a", Eligible: false}}}
	_, ok := c.FindWinner()
	require.False(t, ok)
}

func TestRunComputesNDCGAgainstHashEmbedder(t *testing.T) {
	embedder := embedregistry.NewHashEmbedder()
	ctx := context.Background()

	texts := []string{"how do retries work", "authentication flow overview", "database migration steps"}
	entries := make([]vectorindex.Entry, len(texts))
	for i, text := range texts {
		vec, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		entries[i] = vectorindex.Entry{
			MessageID: uint64(i + 1),
			Role:      vectorindex.RoleAssistant,
			ChunkIdx:  0,
			Vector:    vec,
		}
	}
	idx, err := vectorindex.Build(embedder.ID(), "v1", embedder.Dimension(), vectorindex.QuantF32, entries)
	require.NoError(t, err)

	queries := []JudgedQuery{
		{Query: "authentication flow overview", Relevance: map[uint64]float64{2: 3, 1: 0, 3: 0}},
	}

	report, err := Run(ctx, embedder, idx, queries)
	require.NoError(t, err)
	require.Equal(t, embedder.ID(), report.EmbedderID)
	require.GreaterOrEqual(t, report.NDCGAt10, 0.0)
	require.LessOrEqual(t, report.NDCGAt10, 1.0)
	require.Equal(t, 1, report.Latency.Samples)
}
