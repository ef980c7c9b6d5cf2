package autograd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnfwd/gradflow/x/math/graph"
	"github.com/nnfwd/gradflow/x/math/tensor"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

func scalar(t *testing.T, v float32) tensor.Tensor[float32] {
	t.Helper()
	ts, err := tensor.FromSlice[float32](types.MustNew(1), []float32{v})
	require.NoError(t, err)
	return ts
}

// reluWXB builds relu(w*x+b) and returns the three parameter Variables
// alongside the simplified root node.
func reluWXB(t *testing.T, w, x, b float32) (wv, xv, bv *Variable[float32], root graph.Node) {
	t.Helper()
	wv = NewParameter(scalar(t, w))
	xv = NewParameter(scalar(t, x))
	bv = NewParameter(scalar(t, b))

	wn := graph.Var(wv.Shape(), wv)
	xn := graph.Var(xv.Shape(), xv)
	bn := graph.Var(bv.Shape(), bv)

	y := graph.Relu(graph.Sum(graph.Mul(wn, xn), bn))
	return wv, xv, bv, y.Simplify()
}

func TestAutogradReluLinearPositive(t *testing.T) {
	wv, xv, bv, root := reluWXB(t, 0.5, 2.0, -0.2)

	out, cache := Forward[float32](root)
	assert.InDelta(t, 0.8, float64(out.IndexFlat(0)), 1e-6)

	Backward[float32](root, cache, scalar(t, 1.0))

	assert.InDelta(t, 2.0, float64(wv.Grad.IndexFlat(0)), 1e-6)
	assert.InDelta(t, 0.5, float64(xv.Grad.IndexFlat(0)), 1e-6)
	assert.InDelta(t, 1.0, float64(bv.Grad.IndexFlat(0)), 1e-6)
}

func TestAutogradReluLinearClamped(t *testing.T) {
	wv, xv, bv, root := reluWXB(t, 0.5, -1.0, -0.2)

	out, cache := Forward[float32](root)
	assert.InDelta(t, 0.0, float64(out.IndexFlat(0)), 1e-6)

	Backward[float32](root, cache, scalar(t, 1.0))

	assert.InDelta(t, 0.0, float64(wv.Grad.IndexFlat(0)), 1e-6)
	assert.InDelta(t, 0.0, float64(xv.Grad.IndexFlat(0)), 1e-6)
	assert.InDelta(t, 0.0, float64(bv.Grad.IndexFlat(0)), 1e-6)
}

func TestAutogradMatMulTransposeFold(t *testing.T) {
	// x:[2,3], w:[2,3] -> matmul(x, transpose(w)) folds to MATMUL_NT.
	xv := NewParameter(mustTensor(t, []int{2, 3}, []float32{1, 2, 3, 4, 5, 6}))
	wv := NewParameter(mustTensor(t, []int{2, 3}, []float32{1, 0, 0, 0, 1, 0}))

	xn := graph.Var(xv.Shape(), xv)
	wn := graph.Var(wv.Shape(), wv)
	root := graph.MatMul(xn, graph.Transpose(wn)).Simplify()

	bin, ok := root.(*graph.Binary)
	require.True(t, ok)
	assert.Equal(t, graph.OpMatMulNT, bin.Op)

	out, cache := Forward[float32](root)
	// row0 . row0 = 1, row0 . row1 = 2
	assert.InDelta(t, 1, float64(out.At(0, 0)), 1e-6)
	assert.InDelta(t, 2, float64(out.At(0, 1)), 1e-6)

	seed := tensor.New[float32](out.Shape())
	seed.SetConstant(1)
	Backward[float32](root, cache, seed)
	require.NotNil(t, xv.Grad)
	require.NotNil(t, wv.Grad)
}

func mustTensor(t *testing.T, dims []int, values []float32) tensor.Tensor[float32] {
	t.Helper()
	ts, err := tensor.FromSlice[float32](types.MustNew(dims...), values)
	require.NoError(t, err)
	return ts
}
