package graph

import (
	"fmt"

	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// Var wraps a data source as a graph leaf. source is typically an
// *autograd.Variable[T]; graph stays agnostic to T.
func Var(shape types.Shape, source any) Node { return NewLeaf(shape, source) }

func binary(op Opcode, a, b Node, shape types.Shape) Node {
	return &Binary{Op: op, Left: a, Right: b, shape: shape}
}

func broadcastOp(op Opcode, a, b Node) Node {
	if !types.Broadcastable(a.Shape(), b.Shape()) {
		panic(fmt.Errorf("graph.%s: shapes %v and %v are not broadcastable", op, a.Shape(), b.Shape()))
	}
	return binary(op, a, b, types.Broadcasted(a.Shape(), b.Shape()))
}

func Sum(a, b Node) Node  { return broadcastOp(OpSum, a, b) }
func Diff(a, b Node) Node { return broadcastOp(OpDiff, a, b) }
func Mul(a, b Node) Node  { return broadcastOp(OpMul, a, b) }
func Div(a, b Node) Node  { return broadcastOp(OpDiv, a, b) }

// MatMul builds a plain (untransposed) matmul node; Binary.Simplify
// later folds adjacent Transpose operands into the flagged opcode
// variants, mirroring matmul_simplifier.h.
func MatMul(a, b Node) Node {
	shape, err := types.MatmulShape(a.Shape(), b.Shape(), false, false)
	if err != nil {
		panic(fmt.Errorf("graph.MatMul: %w", err))
	}
	return binary(OpMatMulNN, a, b, shape)
}

func unary(op Opcode, a Node, shape types.Shape) Node {
	return &Unary{Op: op, Operand: a, shape: shape}
}

func Relu(a Node) Node     { return unary(OpRelu, a, a.Shape()) }
func Exp(a Node) Node      { return unary(OpExp, a, a.Shape()) }
func Log(a Node) Node      { return unary(OpLog, a, a.Shape()) }
func FlipSign(a Node) Node { return unary(OpFlipSign, a, a.Shape()) }
func Sqrt(a Node) Node     { return unary(OpSqrt, a, a.Shape()) }

// Transpose swaps the last two axes, the only rank this engine's matmul
// needs transposed operands for.
func Transpose(a Node) Node {
	s := a.Shape()
	if s.Rank() < 2 {
		panic(fmt.Errorf("graph.Transpose: rank %d shape %v has no two trailing axes to swap", s.Rank(), s))
	}
	dims := s.Dims()
	dims[len(dims)-1], dims[len(dims)-2] = dims[len(dims)-2], dims[len(dims)-1]
	out, err := types.New(dims...)
	if err != nil {
		panic(fmt.Errorf("graph.Transpose: %w", err))
	}
	return unary(OpTranspose, a, out)
}

// Flatten collapses every axis but the leading (batch) one into a
// single axis, per flattener_operator.h's convention.
func Flatten(a Node) Node {
	s := a.Shape()
	if s.Rank() < 2 {
		panic(fmt.Errorf("graph.Flatten: shape %v must have rank >= 2", s))
	}
	out, err := types.New(s.First(), s.Size()/s.First())
	if err != nil {
		panic(fmt.Errorf("graph.Flatten: %w", err))
	}
	return unary(OpFlatten, a, out)
}

// Indexer extracts a single flat element, returned as a 1-element
// tensor, per indexing_operator.h.
func Indexer(a Node, index int) Node {
	if index < 0 || index >= a.Shape().Size() {
		panic(fmt.Errorf("graph.Indexer: index %d out of range for shape %v", index, a.Shape()))
	}
	out, err := types.New(1)
	if err != nil {
		panic(err)
	}
	return &Unary{Op: OpIndexer, Operand: a, shape: out, Index: index}
}

// Shared wraps a subgraph so autograd evaluates and backpropagates
// through it exactly once even when referenced from multiple places in
// the graph, per shared_node_operator.h.
func Shared(a Node) Node { return unary(OpShared, a, a.Shape()) }

// Conv1D builds the ternary (kernel, input, bias) convolution node.
// kernel must be [outChannels, inChannels, kernelSize], input
// [batch, inChannels, featureSize], bias [outChannels]; stride defaults
// to 1 when 0 is passed, mirroring convolution_1d_operator.h's default.
// pad zero-pads the input on both ends of the feature axis before the
// kernel slides across it; only zero-padding is supported.
func Conv1D(kernel, input, bias Node, stride, pad int) Node {
	if stride == 0 {
		stride = 1
	}
	ks := kernel.Shape()
	is := input.Shape()
	bs := bias.Shape()
	if ks.Rank() != 3 || is.Rank() != 3 || bs.Rank() != 1 {
		panic(fmt.Errorf("graph.Conv1D: expected kernel rank 3, input rank 3, bias rank 1; got %v, %v, %v", ks, is, bs))
	}
	outChannels, inChannels, kernelSize := ks.Dim(0), ks.Dim(1), ks.Dim(2)
	if is.Dim(1) != inChannels || bs.Dim(0) != outChannels {
		panic(fmt.Errorf("graph.Conv1D: channel mismatch between kernel %v, input %v, bias %v", ks, is, bs))
	}
	featureSize := is.Dim(2)
	if featureSize+2*pad < kernelSize {
		panic(fmt.Errorf("graph.Conv1D: padded feature size %d smaller than kernel size %d", featureSize+2*pad, kernelSize))
	}
	effectiveWidth := (featureSize-kernelSize+2*pad)/stride + 1
	shape, err := types.New(is.Dim(0), outChannels, effectiveWidth)
	if err != nil {
		panic(fmt.Errorf("graph.Conv1D: %w", err))
	}
	return &Ternary{Op: OpConv1D, A: kernel, B: input, C: bias, shape: shape, StrideL: stride, PadL: pad}
}

// Conv2D builds the binary (kernel, input) convolution node, unbiased
// per convolution_2d_operator.h's DBinExprOp<A,B,DApConv2d>. Bias, when
// wanted, is added with a separate Sum node against a broadcastable
// [outChannels,1,1] tensor, the same way the Dense layer adds its bias
// outside its matmul in this engine's nn package. padH, padW
// zero-pad the input's spatial borders before the kernel slides across
// it; only zero-padding is supported, and stride may differ per axis.
func Conv2D(kernel, input Node, strideH, strideW, padH, padW int) Node {
	if strideH == 0 {
		strideH = 1
	}
	if strideW == 0 {
		strideW = 1
	}
	ks := kernel.Shape()
	is := input.Shape()
	if ks.Rank() != 4 || is.Rank() != 4 {
		panic(fmt.Errorf("graph.Conv2D: expected rank-4 kernel and input; got %v, %v", ks, is))
	}
	outChannels, inChannels, kh, kw := ks.Dim(0), ks.Dim(1), ks.Dim(2), ks.Dim(3)
	if is.Dim(1) != inChannels {
		panic(fmt.Errorf("graph.Conv2D: input channels %d disagree with kernel %v", is.Dim(1), ks))
	}
	dh, dw := is.Dim(2), is.Dim(3)
	if dh+2*padH < kh || dw+2*padW < kw {
		panic(fmt.Errorf("graph.Conv2D: padded input spatial size (%d,%d) smaller than kernel (%d,%d)", dh+2*padH, dw+2*padW, kh, kw))
	}
	effH := (dh-kh+2*padH)/strideH + 1
	effW := (dw-kw+2*padW)/strideW + 1
	shape, err := types.New(is.Dim(0), outChannels, effH, effW)
	if err != nil {
		panic(fmt.Errorf("graph.Conv2D: %w", err))
	}
	return &Binary{Op: OpConv2D, Left: kernel, Right: input, shape: shape, StrideH: strideH, StrideW: strideW, PadH: padH, PadW: padW}
}
