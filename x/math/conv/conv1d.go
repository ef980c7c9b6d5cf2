// Package conv implements the im2col/col2im transforms that turn 1D and
// 2D convolution into a single gemm call, per SPEC_FULL.md §4.8. Grounded
// on original_source/src/expressions/ternary_operators/convolution_1d_operator.h
// (kernel/x im2col + bias folded as column 0, res_col2im) and
// binary_operators/convolution_2d_operator.h (the unbiased 2D variant).
// Forward and backward both reduce to x/math/primitive/blas.Gemm calls
// over the transformed matrices; nothing here touches SIMD lanes
// directly.
package conv

import (
	"github.com/nnfwd/gradflow/x/math/primitive/blas"
	"github.com/nnfwd/gradflow/x/math/tensor"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// Conv1DCache holds the im2col-transformed operands needed by
// Conv1DBackward, computed once in Conv1DForward.
type Conv1DCache[T types.Float] struct {
	KernelIm2Col tensor.Tensor[T] // [outChannels, 1+inChannels*kernelSize]
	XIm2Col      tensor.Tensor[T] // [batch*effectiveWidth, 1+inChannels*kernelSize]
	OutChannels  int
	InChannels   int
	KernelSize   int
	Batch        int
	FeatureSize  int
	EffectiveW   int
	Stride       int
	Pad          int
}

// kernelIm2Col1D folds kernel [outChannels,inChannels,kernelSize] and
// bias [outChannels] into [outChannels, 1+inChannels*kernelSize], bias
// occupying column 0, per convolution_1d_operator.h's kernel_im2col.
func kernelIm2Col1D[T types.Float](kernel, bias tensor.Tensor[T]) tensor.Tensor[T] {
	ks := kernel.Shape()
	outChannels, inChannels, kernelSize := ks.Dim(0), ks.Dim(1), ks.Dim(2)
	out := tensor.New[T](types.MustNew(outChannels, 1+inChannels*kernelSize))
	for oc := 0; oc < outChannels; oc++ {
		out.SetAt(bias.At(oc), oc, 0)
		for ic := 0; ic < inChannels; ic++ {
			for k := 0; k < kernelSize; k++ {
				out.SetAt(kernel.At(oc, ic, k), oc, 1+k+ic*kernelSize)
			}
		}
	}
	out.WrapForBroadcasting()
	return out
}

// xIm2Col1D expands x [batch,inChannels,featureSize] into
// [batch*effectiveWidth, 1+inChannels*kernelSize] with column 0 held at
// 1 to absorb the bias via the same matmul, per x_im2col. x is treated as
// zero-padded by pad on both ends of the feature axis before the kernel
// window slides across it.
func xIm2Col1D[T types.Float](x tensor.Tensor[T], inChannels, kernelSize, stride, pad int) (tensor.Tensor[T], int) {
	xs := x.Shape()
	batch, featureSize := xs.Dim(0), xs.Dim(2)
	effectiveWidth := (featureSize-kernelSize+2*pad)/stride + 1

	out := tensor.New[T](types.MustNew(batch*effectiveWidth, 1+inChannels*kernelSize))
	for b := 0; b < batch; b++ {
		for ic := 0; ic < inChannels; ic++ {
			for k := 0; k < kernelSize; k++ {
				for w := 0; w < effectiveWidth; w++ {
					idx := k + w*stride - pad
					var v T
					if idx >= 0 && idx < featureSize {
						v = x.At(b, ic, idx)
					}
					out.SetAt(v, b*effectiveWidth+w, 1+k+ic*kernelSize)
				}
			}
		}
	}
	for i := 0; i < batch*effectiveWidth; i++ {
		out.SetAt(1, i, 0)
	}
	out.WrapForBroadcasting()
	return out, effectiveWidth
}

// resCol2Im1D reshapes the [batch*effectiveWidth, outChannels] matmul
// result back into [batch, outChannels, effectiveWidth].
func resCol2Im1D[T types.Float](res tensor.Tensor[T], batch, outChannels, effectiveWidth int) tensor.Tensor[T] {
	out := tensor.New[T](types.MustNew(batch, outChannels, effectiveWidth))
	for b := 0; b < batch; b++ {
		for oc := 0; oc < outChannels; oc++ {
			for w := 0; w < effectiveWidth; w++ {
				out.SetAt(res.At(b*effectiveWidth+w, oc), b, oc, w)
			}
		}
	}
	out.WrapForBroadcasting()
	return out
}

// Conv1DForward computes the 1D convolution of x by kernel with bias,
// zero-padding x by pad on both ends of the feature axis, and returns the
// [batch,outChannels,effectiveWidth] result and the cache Conv1DBackward
// needs.
func Conv1DForward[T types.Float](kernel, x, bias tensor.Tensor[T], stride, pad int) (tensor.Tensor[T], Conv1DCache[T]) {
	ks := kernel.Shape()
	outChannels, inChannels, kernelSize := ks.Dim(0), ks.Dim(1), ks.Dim(2)

	kernelMat := kernelIm2Col1D(kernel, bias)
	xMat, effectiveWidth := xIm2Col1D(x, inChannels, kernelSize, stride, pad)

	resRows := xMat.Shape().Dim(0)
	resCols := kernelMat.Shape().Dim(0)
	resData := make([]T, resRows*resCols)
	blas.Gemm(false, true, xMat.Data(), resRows, xMat.Shape().Dim(1), kernelMat.Data(), kernelMat.Shape().Dim(0), kernelMat.Shape().Dim(1), resData)
	resMat, _ := tensor.FromSlice[T](types.MustNew(resRows, resCols), resData)

	batch := x.Shape().Dim(0)
	out := resCol2Im1D(resMat, batch, outChannels, effectiveWidth)

	cache := Conv1DCache[T]{
		KernelIm2Col: kernelMat,
		XIm2Col:      xMat,
		OutChannels:  outChannels,
		InChannels:   inChannels,
		KernelSize:   kernelSize,
		Batch:        batch,
		FeatureSize:  x.Shape().Dim(2),
		EffectiveW:   effectiveWidth,
		Stride:       stride,
		Pad:          pad,
	}
	return out, cache
}

// resIm2Col1D is the inverse of resCol2Im1D, reshaping an output-shaped
// gradient into the matmul-result layout.
func resIm2Col1D[T types.Float](grad tensor.Tensor[T], batch, outChannels, effectiveWidth int) tensor.Tensor[T] {
	out := tensor.New[T](types.MustNew(batch*effectiveWidth, outChannels))
	for b := 0; b < batch; b++ {
		for oc := 0; oc < outChannels; oc++ {
			for w := 0; w < effectiveWidth; w++ {
				out.SetAt(grad.At(b, oc, w), b*effectiveWidth+w, oc)
			}
		}
	}
	out.WrapForBroadcasting()
	return out
}

// kernelCol2Im1D splits a [outChannels, 1+inChannels*kernelSize]
// gradient matrix back into kernel and bias gradients.
func kernelCol2Im1D[T types.Float](gradMatrix tensor.Tensor[T], outChannels, inChannels, kernelSize int) (tensor.Tensor[T], tensor.Tensor[T]) {
	gradKernel := tensor.New[T](types.MustNew(outChannels, inChannels, kernelSize))
	gradBias := tensor.New[T](types.MustNew(outChannels))
	for oc := 0; oc < outChannels; oc++ {
		gradBias.SetAt(gradMatrix.At(oc, 0), oc)
		for ic := 0; ic < inChannels; ic++ {
			for k := 0; k < kernelSize; k++ {
				gradKernel.SetAt(gradMatrix.At(oc, 1+k+ic*kernelSize), oc, ic, k)
			}
		}
	}
	gradKernel.WrapForBroadcasting()
	gradBias.WrapForBroadcasting()
	return gradKernel, gradBias
}

// xCol2Im1D accumulates a [batch*effectiveWidth, 1+inChannels*kernelSize]
// gradient matrix back into the [batch,inChannels,featureSize] input
// gradient, summing over every kernel position that touched each input
// element (column 0, the bias column, is dropped) and cropping out the
// padding positions the forward pass synthesized.
func xCol2Im1D[T types.Float](gradMatrix tensor.Tensor[T], batch, inChannels, kernelSize, featureSize, stride, pad int) tensor.Tensor[T] {
	out := tensor.New[T](types.MustNew(batch, inChannels, featureSize))
	out.SetZero()
	effectiveWidth := (featureSize-kernelSize+2*pad)/stride + 1
	for b := 0; b < batch; b++ {
		for ic := 0; ic < inChannels; ic++ {
			for k := 0; k < kernelSize; k++ {
				for w := 0; w < effectiveWidth; w++ {
					idx := k + w*stride - pad
					if idx < 0 || idx >= featureSize {
						continue
					}
					out.SetAt(out.At(b, ic, idx)+gradMatrix.At(b*effectiveWidth+w, 1+k+ic*kernelSize), b, ic, idx)
				}
			}
		}
	}
	out.WrapForBroadcasting()
	return out
}

// Conv1DBackward computes gradients for kernel, x, and bias from a
// gradient shaped like Conv1DForward's output, mirroring
// convolution_1d_operator.h's backward_internal.
func Conv1DBackward[T types.Float](grad tensor.Tensor[T], cache Conv1DCache[T]) (kernelGrad, xGrad, biasGrad tensor.Tensor[T]) {
	gradMat := resIm2Col1D(grad, cache.Batch, cache.OutChannels, cache.EffectiveW)

	// x gradient: grad_im2col @ kernel_im2col, shaped like x_im2col.
	xRows := gradMat.Shape().Dim(0)
	xCols := cache.KernelIm2Col.Shape().Dim(1)
	xMatData := make([]T, xRows*xCols)
	blas.Gemm(false, false, gradMat.Data(), xRows, gradMat.Shape().Dim(1), cache.KernelIm2Col.Data(), cache.KernelIm2Col.Shape().Dim(0), cache.KernelIm2Col.Shape().Dim(1), xMatData)
	xMat, _ := tensor.FromSlice[T](types.MustNew(xRows, xCols), xMatData)
	xGrad = xCol2Im1D(xMat, cache.Batch, cache.InChannels, cache.KernelSize, cache.FeatureSize, cache.Stride, cache.Pad)

	// kernel/bias gradient: grad_im2colᵀ @ x_im2col, shaped like kernel_im2col.
	kRows := cache.OutChannels
	kCols := cache.XIm2Col.Shape().Dim(1)
	kMatData := make([]T, kRows*kCols)
	blas.Gemm(true, false, gradMat.Data(), gradMat.Shape().Dim(0), gradMat.Shape().Dim(1), cache.XIm2Col.Data(), cache.XIm2Col.Shape().Dim(0), cache.XIm2Col.Shape().Dim(1), kMatData)
	kMat, _ := tensor.FromSlice[T](types.MustNew(kRows, kCols), kMatData)
	kernelGrad, biasGrad = kernelCol2Im1D(kMat, cache.OutChannels, cache.InChannels, cache.KernelSize)

	return kernelGrad, xGrad, biasGrad
}
