// Package blas implements the row-major, compile-time-transpose gemm
// wrapper from SPEC_FULL.md §4.4, generalizing
// x/math/primitive/fp32/level3.go's Gemm_NN/NT/TN/TT quartet into one
// generic function parameterized by two transpose flags — Go has no
// non-type template parameters, so the four monomorphized C++
// functions (original_source/src/blas_wrapper.h's
// template<bool,bool> blas_mat_mul) collapse into two boolean
// arguments branched once per call instead of once per element.
package blas

import "github.com/nnfwd/gradflow/x/math/tensor/types"

// Gemm computes out = A·B (row-major, α=1, β=0 — no accumulation,
// matching spec §4.4) honoring transposeLeft/transposeRight.
//
// Physical layout: a is aRows×aCols row-major; b is bRows×bCols
// row-major. If transposeLeft, A is read as if logically Aᵀ (shape
// aCols×aRows); likewise for transposeRight and B. The inner
// (contracted) dimension must then agree, and out is
// (logical A rows)×(logical B cols) row-major.
func Gemm[T types.Float](transposeLeft, transposeRight bool, a []T, aRows, aCols int, b []T, bRows, bCols int, out []T) {
	logicalARows, inner := aRows, aCols
	if transposeLeft {
		logicalARows, inner = aCols, aRows
	}
	innerCheck, logicalBCols := bRows, bCols
	if transposeRight {
		innerCheck, logicalBCols = bCols, bRows
	}
	if inner != innerCheck {
		panic("blas.Gemm: inner dimensions mismatch")
	}

	switch {
	case !transposeLeft && !transposeRight:
		gemmNN(out, a, b, logicalARows, logicalBCols, inner, aCols, bCols)
	case !transposeLeft && transposeRight:
		gemmNT(out, a, b, logicalARows, logicalBCols, inner, aCols, bCols)
	case transposeLeft && !transposeRight:
		gemmTN(out, a, b, logicalARows, logicalBCols, inner, aCols, bCols)
	default:
		gemmTT(out, a, b, logicalARows, logicalBCols, inner, aCols, bCols)
	}
}

// gemmNN: out[M,N] = A[M,K] * B[K,N], all row-major, ldA=K' (aCols),
// ldB=N' (bCols). Unrolled by 4 along K the way level3.go's Gemm_NN is.
func gemmNN[T types.Float](out, a, b []T, m, n, k, ldA, ldB int) {
	for i := 0; i < m; i++ {
		aRow := a[i*ldA : i*ldA+k]
		cRow := out[i*n : i*n+n]
		for j := 0; j < n; j++ {
			var sum T
			pb := j
			kk := 0
			for ; kk+4 <= k; kk += 4 {
				sum += aRow[kk]*b[pb] + aRow[kk+1]*b[pb+ldB] + aRow[kk+2]*b[pb+2*ldB] + aRow[kk+3]*b[pb+3*ldB]
				pb += 4 * ldB
			}
			for ; kk < k; kk++ {
				sum += aRow[kk] * b[pb]
				pb += ldB
			}
			cRow[j] = sum
		}
	}
}

// gemmNT: out[M,N] = A[M,K] * B[N,K]ᵀ, B stored row-major N×K so each
// output element is a contiguous dot product of two rows.
func gemmNT[T types.Float](out, a, b []T, m, n, k, ldA, ldB int) {
	for i := 0; i < m; i++ {
		aRow := a[i*ldA : i*ldA+k]
		cRow := out[i*n : i*n+n]
		for j := 0; j < n; j++ {
			bRow := b[j*ldB : j*ldB+k]
			var sum T
			kk := 0
			for ; kk+4 <= k; kk += 4 {
				sum += aRow[kk]*bRow[kk] + aRow[kk+1]*bRow[kk+1] + aRow[kk+2]*bRow[kk+2] + aRow[kk+3]*bRow[kk+3]
			}
			for ; kk < k; kk++ {
				sum += aRow[kk] * bRow[kk]
			}
			cRow[j] = sum
		}
	}
}

// gemmTN: out[M,N] = A[K,M]ᵀ * B[K,N], A stored row-major K×M so
// column i of the logical Aᵀ is a strided read of column i of A.
func gemmTN[T types.Float](out, a, b []T, m, n, k, ldA, ldB int) {
	for i := 0; i < m; i++ {
		cRow := out[i*n : i*n+n]
		for j := 0; j < n; j++ {
			var sum T
			for kk := 0; kk < k; kk++ {
				sum += a[kk*ldA+i] * b[kk*ldB+j]
			}
			cRow[j] = sum
		}
	}
}

// gemmTT: out[M,N] = A[K,M]ᵀ * B[N,K]ᵀ, both operands strided.
func gemmTT[T types.Float](out, a, b []T, m, n, k, ldA, ldB int) {
	for i := 0; i < m; i++ {
		cRow := out[i*n : i*n+n]
		for j := 0; j < n; j++ {
			var sum T
			for kk := 0; kk < k; kk++ {
				sum += a[kk*ldA+i] * b[j*ldB+kk]
			}
			cRow[j] = sum
		}
	}
}
