package vectorindex

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cassette-engine/cassette/internal/casserrors"
)

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func randomEntries(t *testing.T, n, dim int, seed int64) []Entry {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	entries := make([]Entry, n)
	for i := 0; i < n; i++ {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = rng.Float32()*2 - 1
		}
		entries[i] = Entry{
			MessageID:   uint64(i + 1),
			CreatedAtMs: int64(i),
			AgentID:     uint32(i % 3),
			WorkspaceID: 1,
			SourceID:    1,
			Role:        Role(i % 4),
			ChunkIdx:    0,
			Vector:      normalize(vec),
		}
	}
	return entries
}

func TestBuildRejectsDimensionMismatch(t *testing.T) {
	entries := []Entry{{MessageID: 1, Vector: []float32{1, 2, 3}}}
	_, err := Build("hash-fnv1a-384", "v1", 4, QuantF32, entries)
	require.Error(t, err)
	require.Equal(t, casserrors.KindInvalidInput, casserrors.KindOf(err))
}

func TestSearchTopKExactF32(t *testing.T) {
	entries := randomEntries(t, 200, 32, 7)
	idx, err := Build("hash-fnv1a-384", "v1", 32, QuantF32, entries)
	require.NoError(t, err)

	query := entries[5].Vector
	results, err := idx.SearchTopK(context.Background(), query, 5, nil, false)
	require.NoError(t, err)
	require.Len(t, results, 5)
	require.Equal(t, entries[5].MessageID, results[0].Row.MessageID)
	require.InDelta(t, float32(1.0), results[0].Score, 1e-4)

	for i := 1; i < len(results); i++ {
		require.LessOrEqual(t, results[i].Score, results[i-1].Score)
	}
}

func TestSearchTopKFilterByRole(t *testing.T) {
	entries := randomEntries(t, 100, 16, 11)
	idx, err := Build("hash-fnv1a-384", "v1", 16, QuantF32, entries)
	require.NoError(t, err)

	wantRole := RoleAssistant
	filter := &Filter{Roles: []Role{wantRole}}
	results, err := idx.SearchTopK(context.Background(), entries[0].Vector, 10, filter, false)
	require.NoError(t, err)
	for _, r := range results {
		require.Equal(t, wantRole, r.Row.Role)
	}
}

func TestSearchTopKF16PreservesRanking(t *testing.T) {
	entries := randomEntries(t, 150, 48, 3)
	f32idx, err := Build("hash-fnv1a-384", "v1", 48, QuantF32, entries)
	require.NoError(t, err)
	f16idx, err := Build("hash-fnv1a-384", "v1", 48, QuantF16, entries)
	require.NoError(t, err)

	query := entries[9].Vector
	want, err := f32idx.SearchTopK(context.Background(), query, 5, nil, false)
	require.NoError(t, err)
	got, err := f16idx.SearchTopK(context.Background(), query, 5, nil, false)
	require.NoError(t, err)

	require.Equal(t, len(want), len(got))
	require.Equal(t, want[0].Row.MessageID, got[0].Row.MessageID)
}

func TestSearchTopKCollapsedDedupsByMessage(t *testing.T) {
	base := randomEntries(t, 5, 16, 20)
	entries := make([]Entry, 0, 10)
	for _, e := range base {
		entries = append(entries, e)
		dup := e
		dup.ChunkIdx = 1
		entries = append(entries, dup)
	}
	idx, err := Build("hash-fnv1a-384", "v1", 16, QuantF32, entries)
	require.NoError(t, err)

	results, err := idx.SearchTopKCollapsed(context.Background(), entries[0].Vector, 5, nil, false)
	require.NoError(t, err)

	seen := map[uint64]bool{}
	for _, r := range results {
		require.False(t, seen[r.Row.MessageID], "message_id repeated in collapsed results")
		seen[r.Row.MessageID] = true
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	entries := randomEntries(t, 50, 24, 42)
	idx, err := Build("hash-fnv1a-384", "v1", 24, QuantF32, entries)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "index.cvvi")
	require.NoError(t, idx.Save(path))

	loaded, err := Load(path, false)
	require.NoError(t, err)
	require.Equal(t, idx.EmbedderID, loaded.EmbedderID)
	require.Equal(t, idx.Dimension, loaded.Dimension)
	require.Equal(t, idx.Count(), loaded.Count())

	for i := range idx.Rows {
		require.Equal(t, idx.Rows[i].MessageID, loaded.Rows[i].MessageID)
	}

	query := entries[0].Vector
	want, err := idx.SearchTopK(context.Background(), query, 5, nil, false)
	require.NoError(t, err)
	got, err := loaded.SearchTopK(context.Background(), query, 5, nil, false)
	require.NoError(t, err)
	require.Equal(t, want[0].Row.MessageID, got[0].Row.MessageID)
}

func TestSaveLoadRoundTripF16Preconvert(t *testing.T) {
	entries := randomEntries(t, 20, 12, 99)
	idx, err := Build("hash-fnv1a-384", "v1", 12, QuantF16, entries)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "index.cvvi")
	require.NoError(t, idx.Save(path))

	loaded, err := Load(path, true)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	_ = loaded.VectorAt(0)
}

func TestLoadCorruptHeaderReturnsCorruptKind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.cvvi")
	require.NoError(t, os.WriteFile(path, []byte("not a cvvi file at all"), 0o644))

	_, err := Load(path, false)
	require.Error(t, err)
	require.Equal(t, casserrors.KindCorrupt, casserrors.KindOf(err))
}

func TestLoadTruncatedFileIsCorrupt(t *testing.T) {
	entries := randomEntries(t, 10, 8, 5)
	idx, err := Build("hash-fnv1a-384", "v1", 8, QuantF32, entries)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "index.cvvi")
	require.NoError(t, idx.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-10], 0o644))

	_, err = Load(path, false)
	require.Error(t, err)
	require.Equal(t, casserrors.KindCorrupt, casserrors.KindOf(err))
}

func TestSearchTopKEmptyIndexReturnsNoResults(t *testing.T) {
	idx, err := Build("hash-fnv1a-384", "v1", 16, QuantF32, nil)
	require.NoError(t, err)
	results, err := idx.SearchTopK(context.Background(), make([]float32, 16), 5, nil, false)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearchTopKParallelMatchesSequential(t *testing.T) {
	entries := randomEntries(t, 12000, 16, 123)
	idx, err := Build("hash-fnv1a-384", "v1", 16, QuantF32, entries)
	require.NoError(t, err)

	query := entries[500].Vector
	sequential := idx.scanRange(0, idx.Count(), query, 10, nil, false)
	parallel, err := idx.scanParallel(context.Background(), query, 10, nil, false)
	require.NoError(t, err)

	require.Equal(t, len(sequential), len(parallel))
	for i := range sequential {
		require.Equal(t, sequential[i].Row.MessageID, parallel[i].Row.MessageID)
		require.Equal(t, sequential[i].Row.ChunkIdx, parallel[i].Row.ChunkIdx)
	}
}
