package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

func leaf(dims ...int) Node {
	return Var(types.MustNew(dims...), nil)
}

func TestSimplifyFoldsSumMulIntoFMA(t *testing.T) {
	a, b, c := leaf(2, 2), leaf(2, 2), leaf(2, 2)
	sum := Sum(Mul(a, b), c)

	simplified := sum.Simplify()

	fma, ok := simplified.(*Ternary)
	require.True(t, ok, "expected *Ternary, got %T", simplified)
	assert.Equal(t, OpFMA, fma.Op)
	assert.Same(t, a, fma.A)
	assert.Same(t, b, fma.B)
	assert.Same(t, c, fma.C)
}

func TestSimplifyFoldsMulSumIntoFAM(t *testing.T) {
	a, b, c := leaf(2, 2), leaf(2, 2), leaf(2, 2)
	sum := Sum(c, Mul(a, b))

	simplified := sum.Simplify()

	fam, ok := simplified.(*Ternary)
	require.True(t, ok, "expected *Ternary, got %T", simplified)
	assert.Equal(t, OpFAM, fam.Op)
	assert.Same(t, c, fam.A)
	assert.Same(t, a, fam.B)
	assert.Same(t, b, fam.C)
}

func TestSimplifyFoldsTransposedMatmulOperands(t *testing.T) {
	left, right := leaf(3, 4), leaf(5, 3)

	t.Run("left transposed", func(t *testing.T) {
		node := MatMul(Transpose(left), leaf(3, 5))
		simplified := node.Simplify()
		bin, ok := simplified.(*Binary)
		require.True(t, ok)
		assert.Equal(t, OpMatMulTN, bin.Op)
		assert.Same(t, left, bin.Left)
	})

	t.Run("right transposed", func(t *testing.T) {
		node := MatMul(leaf(5, 3), Transpose(right))
		simplified := node.Simplify()
		bin, ok := simplified.(*Binary)
		require.True(t, ok)
		assert.Equal(t, OpMatMulNT, bin.Op)
		assert.Same(t, right, bin.Right)
	})

	t.Run("both transposed", func(t *testing.T) {
		node := MatMul(Transpose(left), Transpose(right))
		simplified := node.Simplify()
		bin, ok := simplified.(*Binary)
		require.True(t, ok)
		assert.Equal(t, OpMatMulTT, bin.Op)
		assert.Same(t, left, bin.Left)
		assert.Same(t, right, bin.Right)
	})
}

func TestLinearizeInlinesElementwiseChain(t *testing.T) {
	a, b, c := leaf(2, 2), leaf(2, 2), leaf(2, 2)
	node := Sum(Mul(a, b), c)

	var stream []Instruction
	var leaves []Node
	node.Linearize(&stream, &leaves)

	require.Len(t, leaves, 3)
	require.Len(t, stream, 5)
	assert.Equal(t, OpVar, stream[0].Op)
	assert.Equal(t, OpVar, stream[1].Op)
	assert.Equal(t, OpMul, stream[2].Op)
	assert.Equal(t, OpVar, stream[3].Op)
	assert.Equal(t, OpSum, stream[4].Op)
}

func TestLinearizeTreatsNeedsTempOpsAsOpaqueLeaves(t *testing.T) {
	a, b := leaf(3, 4), leaf(4, 5)
	matmul := MatMul(a, b)
	node := Relu(matmul)

	var stream []Instruction
	var leaves []Node
	node.Linearize(&stream, &leaves)

	require.Len(t, leaves, 1)
	assert.Same(t, matmul, leaves[0])
	require.Len(t, stream, 2)
	assert.Equal(t, OpVar, stream[0].Op)
	assert.Equal(t, 0, stream[0].LeafIndex)
	assert.Equal(t, OpRelu, stream[1].Op)
}

func TestNeedsTempClassifiesOpaqueOps(t *testing.T) {
	for _, op := range []Opcode{OpMatMulNN, OpMatMulNT, OpMatMulTN, OpMatMulTT, OpConv1D, OpConv2D, OpTranspose, OpFlatten, OpIndexer, OpShared} {
		assert.True(t, op.NeedsTemp(), "%v should need a temp", op)
	}
	for _, op := range []Opcode{OpSum, OpDiff, OpMul, OpDiv, OpFMA, OpFAM, OpRelu, OpExp, OpLog, OpFlipSign, OpSqrt, OpVar} {
		assert.False(t, op.NeedsTemp(), "%v should not need a temp", op)
	}
}

func TestSumPanicsOnUnbroadcastableShapes(t *testing.T) {
	assert.Panics(t, func() {
		Sum(leaf(2, 3), leaf(4, 5))
	})
}
