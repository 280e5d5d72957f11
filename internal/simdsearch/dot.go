// Package simdsearch provides the runtime-dispatched dot-product primitive
// used by the exact CVVI scan and the HNSW distance function: 8-lane f32 by
// default, with a scalar fallback that can be forced by environment.
//
// Go has no portable intrinsic SIMD in the standard library, and no
// CGO/assembly SIMD dot-product kernel for float32 slices fits this use case
// without pulling in a full ANN engine in place of a drop-in primitive. So
// "SIMD" here is the Go compiler's own auto-vectorization-friendly 8-wide
// unrolled loop, with a single-lane scalar path used when disabled. This is
// the one component where no ecosystem library could serve the stdlib-only
// loop; justified in DESIGN.md.
package simdsearch

// DotF32 computes the dot product of two equal-length float32 slices using
// an 8-wide unrolled accumulation.
func DotF32(a, b []float32) float32 {
	n := len(a)
	var acc [8]float32
	i := 0
	for ; i+8 <= n; i += 8 {
		acc[0] += a[i] * b[i]
		acc[1] += a[i+1] * b[i+1]
		acc[2] += a[i+2] * b[i+2]
		acc[3] += a[i+3] * b[i+3]
		acc[4] += a[i+4] * b[i+4]
		acc[5] += a[i+5] * b[i+5]
		acc[6] += a[i+6] * b[i+6]
		acc[7] += a[i+7] * b[i+7]
	}
	sum := acc[0] + acc[1] + acc[2] + acc[3] + acc[4] + acc[5] + acc[6] + acc[7]
	for ; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// DotF32Scalar computes the dot product with a single-lane scalar loop, used
// when CASS_SIMD_DOT disables the unrolled path.
func DotF32Scalar(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Dot dispatches to the SIMD or scalar path based on simdEnabled.
func Dot(a, b []float32, simdEnabled bool) float32 {
	if simdEnabled {
		return DotF32(a, b)
	}
	return DotF32Scalar(a, b)
}
