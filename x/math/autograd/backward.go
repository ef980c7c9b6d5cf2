package autograd

import (
	"fmt"

	"github.com/nnfwd/gradflow/x/math/conv"
	"github.com/nnfwd/gradflow/x/math/graph"
	"github.com/nnfwd/gradflow/x/math/interp"
	"github.com/nnfwd/gradflow/x/math/primitive/blas"
	"github.com/nnfwd/gradflow/x/math/primitive/kernel"
	"github.com/nnfwd/gradflow/x/math/tensor"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// Backward differentiates root with respect to every *Variable[T] leaf
// reachable from it, seeding root's gradient with seed and walking
// c.order in reverse — post-order reversed visits every parent before
// its children, which is exactly the traversal a DAG (not just a tree)
// needs: a node referenced from two places accumulates both
// contributions into the grads map before it is ever popped and
// propagated onward, so by the time its own turn comes its gradient is
// already the full sum.
//
// Nodes whose Opcode().NeedsTemp() is false were never evaluated
// individually — Forward fused their entire elementwise subtree into
// one instruction tape (see fusedEntry) — so their gradient is
// resolved by replaying that tape in reverse rather than by a
// per-opcode rule on the graph.Node itself.
func Backward[T types.Float](root graph.Node, c *Cache[T], seed tensor.Tensor[T]) {
	grads := make(map[graph.Node]tensor.Tensor[T])
	grads[root] = seed

	for i := len(c.order) - 1; i >= 0; i-- {
		node := c.order[i]
		g, ok := grads[node]
		if !ok {
			continue
		}
		c.propagate(node, g, grads)
	}
}

func addGrad[T types.Float](grads map[graph.Node]tensor.Tensor[T], child graph.Node, contribution tensor.Tensor[T]) {
	reduced := reduceTo(contribution, child.Shape())
	if existing, ok := grads[child]; ok {
		kernel.Add(existing.Data(), existing.Data(), reduced.Data())
		existing.WrapForBroadcasting()
		return
	}
	grads[child] = reduced
}

// reduceTo collapses a gradient shaped like a broadcast result back
// down to target, the inverse of the broadcast read Eval performs —
// see x/math/interp.ReduceAxis.
func reduceTo[T types.Float](t tensor.Tensor[T], target types.Shape) tensor.Tensor[T] {
	if t.Shape().Equal(target) {
		return t.Clone()
	}
	out := tensor.New[T](target)
	interp.ReduceAxis(t.Data(), t.Size(), out.Data(), out.Size())
	out.WrapForBroadcasting()
	return out
}

func (c *Cache[T]) propagate(node graph.Node, g tensor.Tensor[T], grads map[graph.Node]tensor.Tensor[T]) {
	if leaf, ok := node.(*graph.Leaf); ok {
		if v, ok2 := leaf.Source.(*Variable[T]); ok2 {
			v.AccumulateGrad(g)
		}
		return
	}

	if !node.Opcode().NeedsTemp() {
		c.propagateFused(node, g, grads)
		return
	}

	switch n := node.(type) {
	case *graph.Unary:
		c.propagateUnaryBoundary(n, g, grads)
	case *graph.Binary:
		c.propagateBinaryBoundary(n, g, grads)
	case *graph.Ternary:
		c.propagateConv1D(n, g, grads)
	default:
		panic(fmt.Errorf("autograd: propagate: unhandled node type %T", node))
	}
}

// propagateFused replays the tape RunTrace recorded for this fused
// elementwise subtree and scatters the resulting per-leaf gradients
// onward.
func (c *Cache[T]) propagateFused(node graph.Node, g tensor.Tensor[T], grads map[graph.Node]tensor.Tensor[T]) {
	entry := c.fused[node]
	outSize := node.Shape().Size()
	leafGrads := interp.BackwardTrace[T](entry.trace, g.Data(), outSize)
	flatShape := types.MustNew(outSize)

	for i, leaf := range entry.leaves {
		full, ok := leafGrads[i]
		if !ok {
			continue
		}
		contrib, err := tensor.FromSlice[T](flatShape, full)
		if err != nil {
			panic(fmt.Errorf("autograd: propagateFused: %w", err))
		}
		addGrad(grads, leaf, contrib)
	}
}

// propagateUnaryBoundary handles the NeedsTemp unary opcodes:
// transpose, flatten, indexer, shared. These never appear inside a
// fused tape; they each materialize their own tensor in Forward.
func (c *Cache[T]) propagateUnaryBoundary(u *graph.Unary, g tensor.Tensor[T], grads map[graph.Node]tensor.Tensor[T]) {
	switch u.Op {
	case graph.OpTranspose:
		contrib := transposeLastTwo(g, u.Operand.Shape())
		addGrad(grads, u.Operand, contrib)

	case graph.OpFlatten:
		reshaped, err := g.SetShape(u.Operand.Shape())
		if err != nil {
			panic(fmt.Errorf("autograd: flatten backward: %w", err))
		}
		addGrad(grads, u.Operand, reshaped)

	case graph.OpIndexer:
		contrib := tensor.New[T](u.Operand.Shape())
		contrib.SetIndexFlat(u.Index, g.IndexFlat(0))
		contrib.WrapForBroadcasting()
		addGrad(grads, u.Operand, contrib)

	case graph.OpShared:
		// Pass the fully accumulated gradient through unchanged: by
		// construction every consumer of this shared subgraph has
		// already contributed to g by the time Shared's turn comes,
		// since c.order visits parents before children.
		addGrad(grads, u.Operand, g.Clone())

	default:
		panic(fmt.Errorf("autograd: propagateUnaryBoundary: unhandled opcode %s", u.Op))
	}
}

func (c *Cache[T]) propagateBinaryBoundary(b *graph.Binary, g tensor.Tensor[T], grads map[graph.Node]tensor.Tensor[T]) {
	switch b.Op {
	case graph.OpMatMulNN, graph.OpMatMulNT, graph.OpMatMulTN, graph.OpMatMulTT:
		c.propagateMatMul(b, g, grads)

	case graph.OpConv2D:
		cache := c.conv2D[b]
		kernelGrad, xGrad := conv.Conv2DBackward(g, cache)
		addGrad(grads, b.Left, kernelGrad)
		addGrad(grads, b.Right, xGrad)

	default:
		panic(fmt.Errorf("autograd: propagateBinaryBoundary: unhandled opcode %s", b.Op))
	}
}

// propagateMatMul implements "two further matmuls consistent with
// tL,tR" for each of the four transpose variants. Each case is derived
// directly from C = op(A,tL) @ op(B,tR) via the standard
// dA = dC @ op(B,tR)^T, dB = op(A,tL)^T @ dC identities, rewritten back
// in terms of the *physical* (untransposed-in-memory) A and B so every
// branch reduces to one blas.Gemm call per operand.
func (c *Cache[T]) propagateMatMul(b *graph.Binary, g tensor.Tensor[T], grads map[graph.Node]tensor.Tensor[T]) {
	aPhys, bPhys := c.values[b.Left], c.values[b.Right]
	aRows, aCols := physicalDims(aPhys.Shape())
	bRows, bCols := physicalDims(bPhys.Shape())
	m, n := physicalDims(g.Shape())

	dA := tensor.New[T](aPhys.Shape())
	dB := tensor.New[T](bPhys.Shape())

	switch b.Op {
	case graph.OpMatMulNN:
		// A[m,k] @ B[k,n] = C[m,n]
		blas.Gemm(false, true, g.Data(), m, n, bPhys.Data(), bRows, bCols, dA.Data())
		blas.Gemm(true, false, aPhys.Data(), aRows, aCols, g.Data(), m, n, dB.Data())

	case graph.OpMatMulNT:
		// A[m,k] @ Bphys[n,k]^T = C[m,n]
		blas.Gemm(false, false, g.Data(), m, n, bPhys.Data(), bRows, bCols, dA.Data())
		blas.Gemm(true, false, g.Data(), m, n, aPhys.Data(), aRows, aCols, dB.Data())

	case graph.OpMatMulTN:
		// Aphys[k,m]^T @ B[k,n] = C[m,n]
		blas.Gemm(false, true, bPhys.Data(), bRows, bCols, g.Data(), m, n, dA.Data())
		blas.Gemm(false, false, aPhys.Data(), aRows, aCols, g.Data(), m, n, dB.Data())

	case graph.OpMatMulTT:
		// Aphys[k,m]^T @ Bphys[n,k]^T = C[m,n]
		blas.Gemm(true, true, bPhys.Data(), bRows, bCols, g.Data(), m, n, dA.Data())
		blas.Gemm(true, true, g.Data(), m, n, aPhys.Data(), aRows, aCols, dB.Data())
	}

	dA.WrapForBroadcasting()
	dB.WrapForBroadcasting()
	addGrad(grads, b.Left, dA)
	addGrad(grads, b.Right, dB)
}

func (c *Cache[T]) propagateConv1D(t *graph.Ternary, g tensor.Tensor[T], grads map[graph.Node]tensor.Tensor[T]) {
	if t.Op != graph.OpConv1D {
		panic(fmt.Errorf("autograd: propagateConv1D: unhandled opcode %s", t.Op))
	}
	cache := c.conv1D[t]
	kernelGrad, xGrad, biasGrad := conv.Conv1DBackward(g, cache)
	addGrad(grads, t.A, kernelGrad)
	addGrad(grads, t.B, xGrad)
	addGrad(grads, t.C, biasGrad)
}
