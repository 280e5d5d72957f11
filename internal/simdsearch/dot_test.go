package simdsearch

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimdScalarAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := make([]float32, 384)
	b := make([]float32, 384)
	for i := range a {
		a[i] = rng.Float32()*2 - 1
		b[i] = rng.Float32()*2 - 1
	}
	simd := DotF32(a, b)
	scalar := DotF32Scalar(a, b)
	require.InEpsilon(t, float64(scalar), float64(simd), 2e-4)
}

func TestF16RoundTrip(t *testing.T) {
	values := []float32{0, 1, -1, 0.5, -0.5, 3.14159, 100, -100, 0.001}
	for _, v := range values {
		h := F32ToF16(v)
		back := F16ToF32(h)
		require.InDelta(t, v, back, 1e-2)
	}
}

func TestDotF16F32MatchesF32(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	n := 64
	f32 := make([]float32, n)
	query := make([]float32, n)
	f16 := make([]uint16, n)
	for i := range f32 {
		f32[i] = rng.Float32()*2 - 1
		query[i] = rng.Float32()*2 - 1
		f16[i] = F32ToF16(f32[i])
	}
	exact := DotF32(f32, query)
	approx := DotF16F32(f16, query)
	require.InEpsilon(t, float64(exact), float64(approx), 2e-4+1e-3)
}
