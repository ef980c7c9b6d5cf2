package conv

import (
	"github.com/nnfwd/gradflow/x/math/primitive/blas"
	"github.com/nnfwd/gradflow/x/math/tensor"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// Conv2DCache holds the im2col-transformed operands Conv2DBackward
// needs, computed once in Conv2DForward.
type Conv2DCache[T types.Float] struct {
	KernelIm2Col            tensor.Tensor[T] // [outChannels, inChannels*kh*kw]
	XIm2Col                 tensor.Tensor[T] // [batch*effH*effW, inChannels*kh*kw]
	OutChannels, InChannels int
	KernelH, KernelW        int
	Batch, DataH, DataW     int
	EffectiveH, EffectiveW  int
	StrideH, StrideW        int
	PadH, PadW              int
}

// kernelIm2Col2D flattens kernel [outChannels,inChannels,kh,kw] into
// [outChannels, inChannels*kh*kw], no bias column — convolution_2d_operator.h's
// variant never folds a bias in, unlike its 1D sibling.
func kernelIm2Col2D[T types.Float](kernel tensor.Tensor[T]) tensor.Tensor[T] {
	ks := kernel.Shape()
	outChannels, inChannels, kh, kw := ks.Dim(0), ks.Dim(1), ks.Dim(2), ks.Dim(3)
	kernelSize := kh * kw
	out := tensor.New[T](types.MustNew(outChannels, inChannels*kernelSize))
	for oc := 0; oc < outChannels; oc++ {
		for ic := 0; ic < inChannels; ic++ {
			for y := 0; y < kh; y++ {
				for x := 0; x < kw; x++ {
					out.SetAt(kernel.At(oc, ic, y, x), oc, ic*kernelSize+y*kw+x)
				}
			}
		}
	}
	out.WrapForBroadcasting()
	return out
}

// xIm2Col2D expands x [batch,inChannels,dataH,dataW] into
// [batch*effH*effW, inChannels*kh*kw], treating x as zero-padded by
// (padH, padW) on its spatial borders before the kernel window slides
// across it.
func xIm2Col2D[T types.Float](x tensor.Tensor[T], inChannels, kh, kw, strideH, strideW, padH, padW int) (tensor.Tensor[T], int, int) {
	xs := x.Shape()
	batch, dataH, dataW := xs.Dim(0), xs.Dim(2), xs.Dim(3)
	effH := (dataH-kh+2*padH)/strideH + 1
	effW := (dataW-kw+2*padW)/strideW + 1
	kernelSize := kh * kw

	out := tensor.New[T](types.MustNew(batch*effH*effW, inChannels*kernelSize))
	for b := 0; b < batch; b++ {
		for ic := 0; ic < inChannels; ic++ {
			for eh := 0; eh < effH; eh++ {
				for ew := 0; ew < effW; ew++ {
					row := b*effH*effW + eh*effW + ew
					for ky := 0; ky < kh; ky++ {
						for kx := 0; kx < kw; kx++ {
							srcY := eh*strideH + ky - padH
							srcX := ew*strideW + kx - padW
							var v T
							if srcY >= 0 && srcY < dataH && srcX >= 0 && srcX < dataW {
								v = x.At(b, ic, srcY, srcX)
							}
							out.SetAt(v, row, ic*kernelSize+ky*kw+kx)
						}
					}
				}
			}
		}
	}
	out.WrapForBroadcasting()
	return out, effH, effW
}

func resCol2Im2D[T types.Float](res tensor.Tensor[T], batch, outChannels, effH, effW int) tensor.Tensor[T] {
	out := tensor.New[T](types.MustNew(batch, outChannels, effH, effW))
	effSize := effH * effW
	for b := 0; b < batch; b++ {
		for eh := 0; eh < effH; eh++ {
			for ew := 0; ew < effW; ew++ {
				for oc := 0; oc < outChannels; oc++ {
					out.SetAt(res.At(b*effSize+eh*effW+ew, oc), b, oc, eh, ew)
				}
			}
		}
	}
	out.WrapForBroadcasting()
	return out
}

// Conv2DForward computes the 2D convolution of x by kernel (no bias),
// zero-padding x by (padH, padW) on its spatial borders, and returns the
// [batch,outChannels,effH,effW] result and the cache Conv2DBackward
// needs.
func Conv2DForward[T types.Float](kernel, x tensor.Tensor[T], strideH, strideW, padH, padW int) (tensor.Tensor[T], Conv2DCache[T]) {
	ks := kernel.Shape()
	outChannels, inChannels, kh, kw := ks.Dim(0), ks.Dim(1), ks.Dim(2), ks.Dim(3)

	kernelMat := kernelIm2Col2D(kernel)
	xMat, effH, effW := xIm2Col2D(x, inChannels, kh, kw, strideH, strideW, padH, padW)

	resRows := xMat.Shape().Dim(0)
	resCols := kernelMat.Shape().Dim(0)
	resData := make([]T, resRows*resCols)
	blas.Gemm(false, true, xMat.Data(), resRows, xMat.Shape().Dim(1), kernelMat.Data(), kernelMat.Shape().Dim(0), kernelMat.Shape().Dim(1), resData)
	resMat, _ := tensor.FromSlice[T](types.MustNew(resRows, resCols), resData)

	batch := x.Shape().Dim(0)
	out := resCol2Im2D(resMat, batch, outChannels, effH, effW)

	cache := Conv2DCache[T]{
		KernelIm2Col: kernelMat, XIm2Col: xMat,
		OutChannels: outChannels, InChannels: inChannels,
		KernelH: kh, KernelW: kw,
		Batch: batch, DataH: x.Shape().Dim(2), DataW: x.Shape().Dim(3),
		EffectiveH: effH, EffectiveW: effW,
		StrideH: strideH, StrideW: strideW,
		PadH: padH, PadW: padW,
	}
	return out, cache
}

func resIm2Col2D[T types.Float](grad tensor.Tensor[T], batch, outChannels, effH, effW int) tensor.Tensor[T] {
	effSize := effH * effW
	out := tensor.New[T](types.MustNew(batch*effSize, outChannels))
	for b := 0; b < batch; b++ {
		for eh := 0; eh < effH; eh++ {
			for ew := 0; ew < effW; ew++ {
				for oc := 0; oc < outChannels; oc++ {
					out.SetAt(grad.At(b, oc, eh, ew), b*effSize+eh*effW+ew, oc)
				}
			}
		}
	}
	out.WrapForBroadcasting()
	return out
}

func kernelCol2Im2D[T types.Float](gradMatrix tensor.Tensor[T], outChannels, inChannels, kh, kw int) tensor.Tensor[T] {
	kernelSize := kh * kw
	out := tensor.New[T](types.MustNew(outChannels, inChannels, kh, kw))
	for oc := 0; oc < outChannels; oc++ {
		for ic := 0; ic < inChannels; ic++ {
			for y := 0; y < kh; y++ {
				for x := 0; x < kw; x++ {
					out.SetAt(gradMatrix.At(oc, ic*kernelSize+y*kw+x), oc, ic, y, x)
				}
			}
		}
	}
	out.WrapForBroadcasting()
	return out
}

// xCol2Im2D accumulates a gradient matrix back into the
// [batch,inChannels,dataH,dataW] input gradient, cropping out the
// (padH, padW) border of padding positions the forward pass synthesized.
func xCol2Im2D[T types.Float](gradMatrix tensor.Tensor[T], batch, inChannels, kh, kw, dataH, dataW, strideH, strideW, padH, padW int) tensor.Tensor[T] {
	kernelSize := kh * kw
	effH := (dataH-kh+2*padH)/strideH + 1
	effW := (dataW-kw+2*padW)/strideW + 1
	out := tensor.New[T](types.MustNew(batch, inChannels, dataH, dataW))
	out.SetZero()
	for b := 0; b < batch; b++ {
		for ic := 0; ic < inChannels; ic++ {
			for eh := 0; eh < effH; eh++ {
				for ew := 0; ew < effW; ew++ {
					for ky := 0; ky < kh; ky++ {
						for kx := 0; kx < kw; kx++ {
							row := b*effH*effW + eh*effW + ew
							col := ic*kernelSize + ky*kw + kx
							destY := eh*strideH + ky - padH
							destX := ew*strideW + kx - padW
							if destY < 0 || destY >= dataH || destX < 0 || destX >= dataW {
								continue
							}
							out.SetAt(out.At(b, ic, destY, destX)+gradMatrix.At(row, col), b, ic, destY, destX)
						}
					}
				}
			}
		}
	}
	out.WrapForBroadcasting()
	return out
}

// Conv2DBackward computes gradients for kernel and x from a gradient
// shaped like Conv2DForward's output.
func Conv2DBackward[T types.Float](grad tensor.Tensor[T], cache Conv2DCache[T]) (kernelGrad, xGrad tensor.Tensor[T]) {
	gradMat := resIm2Col2D(grad, cache.Batch, cache.OutChannels, cache.EffectiveH, cache.EffectiveW)

	xRows := gradMat.Shape().Dim(0)
	xCols := cache.KernelIm2Col.Shape().Dim(1)
	xMatData := make([]T, xRows*xCols)
	blas.Gemm(false, false, gradMat.Data(), xRows, gradMat.Shape().Dim(1), cache.KernelIm2Col.Data(), cache.KernelIm2Col.Shape().Dim(0), cache.KernelIm2Col.Shape().Dim(1), xMatData)
	xMat, _ := tensor.FromSlice[T](types.MustNew(xRows, xCols), xMatData)
	xGrad = xCol2Im2D(xMat, cache.Batch, cache.InChannels, cache.KernelH, cache.KernelW, cache.DataH, cache.DataW, cache.StrideH, cache.StrideW, cache.PadH, cache.PadW)

	kRows := cache.OutChannels
	kCols := cache.XIm2Col.Shape().Dim(1)
	kMatData := make([]T, kRows*kCols)
	blas.Gemm(true, false, gradMat.Data(), gradMat.Shape().Dim(0), gradMat.Shape().Dim(1), cache.XIm2Col.Data(), cache.XIm2Col.Shape().Dim(0), cache.XIm2Col.Shape().Dim(1), kMatData)
	kMat, _ := tensor.FromSlice[T](types.MustNew(kRows, kCols), kMatData)
	kernelGrad = kernelCol2Im2D(kMat, cache.OutChannels, cache.InChannels, cache.KernelH, cache.KernelW)

	return kernelGrad, xGrad
}
