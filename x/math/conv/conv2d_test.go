package conv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnfwd/gradflow/x/math/tensor"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

func TestConv2DForward(t *testing.T) {
	// 1 batch, 1 in/out channel, 2x2 all-ones kernel, stride 1x1, 3x3
	// input -> 2x2 effective output.
	kernel, err := tensor.FromSlice[float32](types.MustNew(1, 1, 2, 2), []float32{1, 1, 1, 1})
	require.NoError(t, err)
	x, err := tensor.FromSlice[float32](types.MustNew(1, 1, 3, 3), []float32{1, 2, 3, 4, 5, 6, 7, 8, 9})
	require.NoError(t, err)

	out, cache := Conv2DForward(kernel, x, 1, 1, 0, 0)

	assert.InDelta(t, 12, float64(out.At(0, 0, 0, 0)), 1e-6)
	assert.InDelta(t, 16, float64(out.At(0, 0, 0, 1)), 1e-6)
	assert.InDelta(t, 24, float64(out.At(0, 0, 1, 0)), 1e-6)
	assert.InDelta(t, 28, float64(out.At(0, 0, 1, 1)), 1e-6)

	grad, err := tensor.FromSlice[float32](types.MustNew(1, 1, 2, 2), []float32{1, 1, 1, 1})
	require.NoError(t, err)
	kernelGrad, xGrad := Conv2DBackward(grad, cache)

	assert.InDelta(t, 12, float64(kernelGrad.At(0, 0, 0, 0)), 1e-6)
	assert.InDelta(t, 16, float64(kernelGrad.At(0, 0, 0, 1)), 1e-6)
	assert.InDelta(t, 24, float64(kernelGrad.At(0, 0, 1, 0)), 1e-6)
	assert.InDelta(t, 28, float64(kernelGrad.At(0, 0, 1, 1)), 1e-6)

	// xGrad at each position equals the number of 2x2 windows covering
	// it, since both kernel and upstream grad are all ones.
	wantXGrad := [3][3]float64{
		{1, 2, 1},
		{2, 4, 2},
		{1, 2, 1},
	}
	for y := 0; y < 3; y++ {
		for xPos := 0; xPos < 3; xPos++ {
			assert.InDeltaf(t, wantXGrad[y][xPos], float64(xGrad.At(0, 0, y, xPos)), 1e-6, "xGrad(%d,%d)", y, xPos)
		}
	}
}
