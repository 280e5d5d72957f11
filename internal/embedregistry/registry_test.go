package embedregistry

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashEmbedderDeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder()
	v1, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	require.Equal(t, v1, v2)
	require.Len(t, v1, HashDimension)

	var norm float64
	for _, x := range v1 {
		norm += float64(x) * float64(x)
	}
	require.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestHashEmbedderEmptyBatchIsInvalid(t *testing.T) {
	e := NewHashEmbedder()
	_, err := e.EmbedBatch(context.Background(), nil)
	require.Error(t, err)
}

func TestRegistryBestAvailableFallsBackToHash(t *testing.T) {
	r := NewRegistry(t.TempDir())
	best := r.BestAvailable()
	require.Equal(t, HashDescriptorID, best.ID)
}

func TestRegistryGetCaseInsensitive(t *testing.T) {
	r := NewRegistry(t.TempDir())
	d, err := r.Get("HASH")
	require.NoError(t, err)
	require.Equal(t, HashDescriptorID, d.ID)
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry(t.TempDir())
	_, err := r.Get("nonexistent")
	require.Error(t, err)
}

func TestSemanticEmbedderUnavailableWithoutFiles(t *testing.T) {
	r := NewRegistry(t.TempDir())
	d, err := r.Get("minilm")
	require.NoError(t, err)
	_, err = NewSemanticEmbedder(d, t.TempDir(), DeterministicBackend{})
	require.Error(t, err)
}

func TestCachedEmbedderMemoizes(t *testing.T) {
	inner := NewHashEmbedder()
	c, err := NewCachedEmbedder(inner, 10)
	require.NoError(t, err)
	v1, err := c.Embed(context.Background(), "cache me")
	require.NoError(t, err)
	v2, err := c.Embed(context.Background(), "cache me")
	require.NoError(t, err)
	require.Equal(t, v1, v2)
}
