package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnfwd/gradflow/x/math/autograd"
	"github.com/nnfwd/gradflow/x/math/graph"
	"github.com/nnfwd/gradflow/x/math/tensor"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

func mustTensor(t *testing.T, dims []int, values []float32) tensor.Tensor[float32] {
	t.Helper()
	ts, err := tensor.FromSlice[float32](types.MustNew(dims...), values)
	require.NoError(t, err)
	return ts
}

func TestSoftMaxLossConcreteScenario(t *testing.T) {
	logits := autograd.NewParameter(mustTensor(t, []int{1, 3}, []float32{1, 2, 3}))
	root := graph.Var(logits.Shape(), logits)

	loss := NewSoftMaxLoss[float32]()
	value, predicted, cache, err := loss.Forward(root, []int{2})
	require.NoError(t, err)

	assert.InDelta(t, 0.4076, float64(value), 1e-3)
	assert.Equal(t, []int{2}, predicted)

	loss.Backward(root, cache, []int{2})

	assert.InDelta(t, 0.0900, float64(logits.Grad.IndexFlat(0)), 1e-3)
	assert.InDelta(t, 0.2447, float64(logits.Grad.IndexFlat(1)), 1e-3)
	assert.InDelta(t, -0.3348, float64(logits.Grad.IndexFlat(2)), 1e-3)
}

func TestSequentialDenseReluTrainStep(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	model := NewSequential[float32](
		NewDense[float32]("fc1", 4, 8, rng),
		NewReLU[float32]("relu1"),
		NewDense[float32]("fc2", 8, 3, rng),
	)
	assert.Len(t, model.Parameters(), 4)

	input := autograd.New(mustTensor(t, []int{1, 4}, []float32{0.1, -0.2, 0.3, 0.4}))
	inputNode := graph.Var(input.Shape(), input)
	root := model.Build(inputNode)

	loss := NewSoftMaxLoss[float32]()
	value, predicted, cache, err := loss.Forward(root, []int{1})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, value, float32(0))
	assert.Len(t, predicted, 1)

	loss.Backward(root, cache, []int{1})
	for _, p := range model.Parameters() {
		assert.NotNil(t, p.Grad)
	}
}
