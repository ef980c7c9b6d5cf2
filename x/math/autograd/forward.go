package autograd

import (
	"fmt"

	"github.com/nnfwd/gradflow/x/math/conv"
	"github.com/nnfwd/gradflow/x/math/graph"
	"github.com/nnfwd/gradflow/x/math/interp"
	"github.com/nnfwd/gradflow/x/math/primitive/blas"
	"github.com/nnfwd/gradflow/x/math/tensor"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// Cache memoizes one forward pass over a graph.Node DAG: values holds
// each node's materialized result (keyed by node identity, so a node
// object referenced from two parents — the whole point of
// graph.Shared — is evaluated exactly once), order records post-order
// evaluation order for Backward's reverse sweep, and the conv1D/conv2D
// maps stash the im2col caches each convolution node's backward pass
// needs, since x/math/conv.Conv1DCache/Conv2DCache have no home on the
// stateless graph.Node itself.
type Cache[T types.Float] struct {
	values map[graph.Node]tensor.Tensor[T]
	order  []graph.Node
	conv1D map[graph.Node]conv.Conv1DCache[T]
	conv2D map[graph.Node]conv.Conv2DCache[T]
	fused  map[graph.Node]fusedEntry[T]
}

// fusedEntry records the tape RunTrace produced for a node whose
// linearization fused an entire elementwise subtree (Sum/Diff/Mul/Div/
// FMA/FAM/Relu/Exp/Log/FlipSign/Sqrt) into one instruction stream.
// leaves holds the NeedsTemp/Leaf boundary nodes referenced by the
// tape's VAR instructions, in the same order as their leaf index.
type fusedEntry[T types.Float] struct {
	leaves []graph.Node
	trace  interp.Trace[T]
}

func newCache[T types.Float]() *Cache[T] {
	return &Cache[T]{
		values: make(map[graph.Node]tensor.Tensor[T]),
		conv1D: make(map[graph.Node]conv.Conv1DCache[T]),
		conv2D: make(map[graph.Node]conv.Conv2DCache[T]),
		fused:  make(map[graph.Node]fusedEntry[T]),
	}
}

// Forward evaluates root once, returning its value and the cache
// Backward needs to differentiate it.
func Forward[T types.Float](root graph.Node) (tensor.Tensor[T], *Cache[T]) {
	c := newCache[T]()
	return c.eval(root), c
}

func (c *Cache[T]) eval(node graph.Node) tensor.Tensor[T] {
	if v, ok := c.values[node]; ok {
		return v
	}

	var out tensor.Tensor[T]
	switch n := node.(type) {
	case *graph.Leaf:
		out = c.evalLeaf(n)
	case *graph.Unary:
		switch n.Op {
		case graph.OpTranspose:
			out = transposeLastTwo(c.eval(n.Operand), n.Shape())
		case graph.OpFlatten:
			in := c.eval(n.Operand)
			reshaped, err := in.SetShape(n.Shape())
			if err != nil {
				panic(fmt.Errorf("autograd: flatten: %w", err))
			}
			out = reshaped
		case graph.OpIndexer:
			in := c.eval(n.Operand)
			out = tensor.New[T](n.Shape())
			out.SetAt(in.IndexFlat(n.Index), 0)
			out.WrapForBroadcasting()
		case graph.OpShared:
			out = c.eval(n.Operand)
		default:
			out = c.evalElementwise(n)
		}
	case *graph.Binary:
		switch n.Op {
		case graph.OpMatMulNN, graph.OpMatMulNT, graph.OpMatMulTN, graph.OpMatMulTT:
			out = c.evalMatMul(n)
		case graph.OpConv2D:
			out = c.evalConv2D(n)
		default:
			out = c.evalElementwise(n)
		}
	case *graph.Ternary:
		switch n.Op {
		case graph.OpConv1D:
			out = c.evalConv1D(n)
		default:
			out = c.evalElementwise(n)
		}
	default:
		panic(fmt.Errorf("autograd: eval: unhandled node type %T", node))
	}

	c.values[node] = out
	c.order = append(c.order, node)
	return out
}

func (c *Cache[T]) evalLeaf(l *graph.Leaf) tensor.Tensor[T] {
	v, ok := l.Source.(*Variable[T])
	if !ok {
		panic(fmt.Errorf("autograd: leaf source is %T, want *autograd.Variable", l.Source))
	}
	return v.Value
}

// evalElementwise linearizes node (a Sum/Diff/Mul/Div/FMA/FAM/Relu/Exp/
// Log/FlipSign/Sqrt subtree) into a postfix stream. Linearize stops
// recursing at any NeedsTemp boundary (matmul, convolution, transpose,
// flatten, indexer, shared) and records that child as an opaque leaf
// instead, so eval(leaf) below materializes it independently (and
// memoized) the same way the top-level dispatch would.
//
// Unlike a pure inference forward pass, training needs per-instruction
// gradients once this fused subtree's own gradient arrives, so this
// runs interp.RunTrace rather than the lane-stepped interp.Eval and
// stashes the resulting tape in c.fused for Backward to replay.
func (c *Cache[T]) evalElementwise(node graph.Node) tensor.Tensor[T] {
	var stream []graph.Instruction
	var leaves []graph.Node
	node.Linearize(&stream, &leaves)

	operands := make([]interp.Operand[T], len(leaves))
	for i, leaf := range leaves {
		t := c.eval(leaf)
		operands[i] = interp.Operand[T]{Data: t.Raw(), Size: t.Size()}
	}

	outSize := node.Shape().Size()
	trace := interp.RunTrace[T](stream, operands, outSize)
	c.fused[node] = fusedEntry[T]{leaves: leaves, trace: trace}

	out := tensor.New[T](node.Shape())
	copy(out.Data(), trace.Values[len(trace.Values)-1])
	out.WrapForBroadcasting()
	return out
}

func matmulTransposeFlags(op graph.Opcode) (transposeLeft, transposeRight bool) {
	switch op {
	case graph.OpMatMulNN:
		return false, false
	case graph.OpMatMulNT:
		return false, true
	case graph.OpMatMulTN:
		return true, false
	case graph.OpMatMulTT:
		return true, true
	default:
		panic(fmt.Errorf("autograd: %s is not a matmul opcode", op))
	}
}

// physicalDims treats a tensor's shape as a 2-D matrix for blas.Gemm,
// a 1-D tensor standing for an [N,1] column vector, matching
// types.MatmulShape's convention.
func physicalDims(s types.Shape) (rows, cols int) {
	if s.Rank() == 1 {
		return s.Size(), 1
	}
	return s.Size() / s.Last(), s.Last()
}

func (c *Cache[T]) evalMatMul(b *graph.Binary) tensor.Tensor[T] {
	left := c.eval(b.Left)
	right := c.eval(b.Right)
	tL, tR := matmulTransposeFlags(b.Op)
	aRows, aCols := physicalDims(left.Shape())
	bRows, bCols := physicalDims(right.Shape())

	out := tensor.New[T](b.Shape())
	blas.Gemm(tL, tR, left.Data(), aRows, aCols, right.Data(), bRows, bCols, out.Data())
	out.WrapForBroadcasting()
	return out
}

func (c *Cache[T]) evalConv1D(t *graph.Ternary) tensor.Tensor[T] {
	kernel := c.eval(t.A)
	input := c.eval(t.B)
	bias := c.eval(t.C)
	out, cache := conv.Conv1DForward(kernel, input, bias, t.StrideL, t.PadL)
	c.conv1D[t] = cache
	return out
}

// transposeLastTwo swaps a tensor's trailing two axes, materializing
// the result the way any NeedsTemp op must (a swap is genuine data
// movement, not a lane-local read, so it can never live inside a
// fused interp.Eval stream).
func transposeLastTwo[T types.Float](in tensor.Tensor[T], outShape types.Shape) tensor.Tensor[T] {
	s := in.Shape()
	d1 := s.Dim(s.Rank() - 2)
	d2 := s.Dim(s.Rank() - 1)
	outer := s.Size() / (d1 * d2)

	out := tensor.New[T](outShape)
	inData := in.Data()
	outData := out.Data()
	for o := 0; o < outer; o++ {
		base := o * d1 * d2
		for i := 0; i < d1; i++ {
			for j := 0; j < d2; j++ {
				outData[base+j*d1+i] = inData[base+i*d2+j]
			}
		}
	}
	out.WrapForBroadcasting()
	return out
}

func (c *Cache[T]) evalConv2D(b *graph.Binary) tensor.Tensor[T] {
	kernel := c.eval(b.Left)
	input := c.eval(b.Right)
	out, cache := conv.Conv2DForward(kernel, input, b.StrideH, b.StrideW, b.PadH, b.PadW)
	c.conv2D[b] = cache
	return out
}
