package conv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnfwd/gradflow/x/math/tensor"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

func TestConv1DForward(t *testing.T) {
	// 1 batch, 1 in channel, 1 out channel, kernel size 2, stride 1,
	// feature size 3 -> effective width 2.
	kernel, err := tensor.FromSlice[float32](types.MustNew(1, 1, 2), []float32{1, 1})
	require.NoError(t, err)
	x, err := tensor.FromSlice[float32](types.MustNew(1, 1, 3), []float32{1, 2, 3})
	require.NoError(t, err)
	bias, err := tensor.FromSlice[float32](types.MustNew(1), []float32{0.5})
	require.NoError(t, err)

	out, cache := Conv1DForward(kernel, x, bias, 1, 0)

	// window sums: (1+2)+0.5=3.5, (2+3)+0.5=5.5
	assert.InDelta(t, 3.5, float64(out.At(0, 0, 0)), 1e-6)
	assert.InDelta(t, 5.5, float64(out.At(0, 0, 1)), 1e-6)

	grad, err := tensor.FromSlice[float32](types.MustNew(1, 1, 2), []float32{1, 1})
	require.NoError(t, err)
	kernelGrad, xGrad, biasGrad := Conv1DBackward(grad, cache)

	// d(out)/d(kernel[0]) = x[0]+x[1] = 1+2=3, d/d(kernel[1])=x[1]+x[2]=2+3=5
	assert.InDelta(t, 3, float64(kernelGrad.At(0, 0, 0)), 1e-6)
	assert.InDelta(t, 5, float64(kernelGrad.At(0, 0, 1)), 1e-6)
	// bias gradient is the sum of the upstream grad, one row per window.
	assert.InDelta(t, 2, float64(biasGrad.At(0)), 1e-6)
	// x gradient: each x[i] contributes to windows that cover it.
	assert.InDelta(t, 1, float64(xGrad.At(0, 0, 0)), 1e-6)
	assert.InDelta(t, 2, float64(xGrad.At(0, 0, 1)), 1e-6)
	assert.InDelta(t, 1, float64(xGrad.At(0, 0, 2)), 1e-6)
}
