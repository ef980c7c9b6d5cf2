// Package kernel implements the packed-lane element-wise kernels from
// SPEC_FULL.md §4.3. Each function operates on a lane-width slice
// standing in for an AVX register (8 lanes for float32, 4 for
// float64); the Go compiler can autovectorize these tight,
// fixed-stride loops on amd64/arm64 even without literal intrinsics.
package kernel

import (
	"math"

	"github.com/chewxy/math32"

	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// Width returns the packed-lane width for T.
func Width[T types.Float]() int { return types.Lane[T]() }

// Add computes dst[i] = a[i] + b[i] over a full lane.
func Add[T types.Float](dst, a, b []T) {
	for i := range dst {
		dst[i] = a[i] + b[i]
	}
}

// Sub computes dst[i] = a[i] - b[i].
func Sub[T types.Float](dst, a, b []T) {
	for i := range dst {
		dst[i] = a[i] - b[i]
	}
}

// Mul computes dst[i] = a[i] * b[i].
func Mul[T types.Float](dst, a, b []T) {
	for i := range dst {
		dst[i] = a[i] * b[i]
	}
}

// Div computes dst[i] = a[i] / b[i].
func Div[T types.Float](dst, a, b []T) {
	for i := range dst {
		dst[i] = a[i] / b[i]
	}
}

// FMA computes dst[i] = a[i]*b[i] + c[i].
func FMA[T types.Float](dst, a, b, c []T) {
	for i := range dst {
		dst[i] = a[i]*b[i] + c[i]
	}
}

// FAM computes dst[i] = a[i] + b[i]*c[i].
func FAM[T types.Float](dst, a, b, c []T) {
	for i := range dst {
		dst[i] = a[i] + b[i]*c[i]
	}
}

// Max computes dst[i] = max(a[i], b[i]).
func Max[T types.Float](dst, a, b []T) {
	for i := range dst {
		if a[i] > b[i] {
			dst[i] = a[i]
		} else {
			dst[i] = b[i]
		}
	}
}

// Relu computes dst[i] = max(a[i], 0).
func Relu[T types.Float](dst, a []T) {
	for i := range dst {
		if a[i] > 0 {
			dst[i] = a[i]
		} else {
			dst[i] = 0
		}
	}
}

// ReluMask zeroes grad[i] wherever input[i] <= 0, the packed
// compare-and-and from spec §4.6's relu backward rule.
func ReluMask[T types.Float](dst, grad, input []T) {
	for i := range dst {
		if input[i] > 0 {
			dst[i] = grad[i]
		} else {
			dst[i] = 0
		}
	}
}

// FlipSign computes dst[i] = -a[i].
func FlipSign[T types.Float](dst, a []T) {
	for i := range dst {
		dst[i] = -a[i]
	}
}

// Sqrt computes dst[i] = sqrt(a[i]).
func Sqrt[T types.Float](dst, a []T) {
	for i := range dst {
		switch v := any(a[i]).(type) {
		case float32:
			dst[i] = any(math32.Sqrt(v)).(T)
		case float64:
			dst[i] = any(math.Sqrt(v)).(T)
		}
	}
}

// Log computes dst[i] = log(a[i]), scalar per lane per spec §4.3.
func Log[T types.Float](dst, a []T) {
	for i := range dst {
		switch v := any(a[i]).(type) {
		case float32:
			dst[i] = any(math32.Log(v)).(T)
		case float64:
			dst[i] = any(math.Log(v)).(T)
		}
	}
}

// Exp computes dst[i] = exp(a[i]). The float64 instantiation is the
// scalar libm exp per spec §4.3; the float32 instantiation uses the
// range-reduced minimax polynomial fast-exp (FastExp32) since it is
// the hot path for softmax.
func Exp[T types.Float](dst, a []T) {
	for i := range dst {
		switch v := any(a[i]).(type) {
		case float32:
			dst[i] = any(FastExp32(v)).(T)
		case float64:
			dst[i] = any(math.Exp(v)).(T)
		}
	}
}

// expHi/expLo are the fast-exp accuracy envelope from spec §4.3/§9:
// outside this range the polynomial saturates instead of overflowing.
const (
	expHi float32 = 88.3762626647949
	expLo float32 = -88.3762626647949

	cephesLOG2EF float32 = 1.44269504088896341
	cephesExpC1  float32 = 0.693359375
	cephesExpC2  float32 = -2.12194440e-4

	cephesExpP0 float32 = 1.9875691500e-4
	cephesExpP1 float32 = 1.3981999507e-3
	cephesExpP2 float32 = 8.3334519073e-3
	cephesExpP3 float32 = 4.1665795894e-2
	cephesExpP4 float32 = 1.6666665459e-1
	cephesExpP5 float32 = 5.0000001201e-1
)

// FastExp32 is the six-coefficient (P0..P5) minimax polynomial approximation
// to exp(x) on [expLo, expHi], grounded on
// original_source/src/avx/avx_ops.h's _mm256_fast_exp_ps (itself
// adapted from Giovanni Garberoglio's avx_mathfun, zlib licensed).
// Exponent reassembly uses Float32frombits in place of the integer
// SIMD shift the C++ reference performs with _mm256_castsi256_ps.
func FastExp32(x float32) float32 {
	if x > expHi {
		x = expHi
	}
	if x < expLo {
		x = expLo
	}

	fx := x*cephesLOG2EF + 0.5
	fx = math32.Floor(fx)

	tmp := fx * cephesExpC1
	z := fx * cephesExpC2
	x = x - tmp
	x = x - z

	z = x * x
	y := cephesExpP0
	y = y*x + cephesExpP1
	y = y*x + cephesExpP2
	y = y*x + cephesExpP3
	y = y*x + cephesExpP4
	y = y*x + cephesExpP5
	y = y*z + x + 1

	// build 2^fx via direct exponent-bit manipulation, the scalar
	// analogue of the reference's _mm256_castsi256_ps/slli trick.
	n := int32(fx) + 127
	if n < 0 {
		n = 0
	}
	pow2 := math32.Float32frombits(uint32(n) << 23)

	return y * pow2
}
