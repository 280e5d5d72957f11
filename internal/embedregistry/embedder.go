package embedregistry

import (
	"context"
	"math"

	"github.com/cassette-engine/cassette/internal/casserrors"
)

// Embedder is the uniform text->vector contract. Output vectors MUST be
// L2-normalized unless the descriptor declares otherwise; the vector and ANN
// indexes assume dot product equals cosine similarity. The contract holds
// for inputs pre-canonicalized by package canon.
type Embedder interface {
	ID() string
	Dimension() int
	IsSemantic() bool
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// newUnavailable builds a KindUnavailable error for a missing-files embedder load.
func newUnavailable(reason string) *casserrors.Error {
	return casserrors.New(casserrors.KindUnavailable, reason)
}

// newInvalidInput builds a KindInvalidInput error for empty/oversized batches.
func newInvalidInput(reason string) *casserrors.Error {
	return casserrors.New(casserrors.KindInvalidInput, reason)
}

// newFailed builds a KindFailed error for runtime embedder failures.
func newFailed(reason string, cause error) *casserrors.Error {
	return casserrors.Wrap(casserrors.KindFailed, reason, cause)
}

func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = val * inv
	}
	return out
}
