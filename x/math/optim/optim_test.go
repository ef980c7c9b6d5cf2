package optim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnfwd/gradflow/x/math/autograd"
	"github.com/nnfwd/gradflow/x/math/tensor"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

func paramWithGrad(t *testing.T, value, grad float32) *autograd.Variable[float32] {
	t.Helper()
	v, err := tensor.FromSlice[float32](types.MustNew(1), []float32{value})
	require.NoError(t, err)
	p := autograd.NewParameter(v)
	g, err := tensor.FromSlice[float32](types.MustNew(1), []float32{grad})
	require.NoError(t, err)
	p.Grad = g
	return p
}

func TestSGDStepScalesByBatchSizeAndZerosGrad(t *testing.T) {
	p := paramWithGrad(t, 1.0, 4.0)
	s := NewSGD[float32](0.5)

	s.Step([]*autograd.Variable[float32]{p}, 2)

	// 1.0 - (0.5/2)*4.0 = 0.0
	assert.InDelta(t, 0.0, float64(p.Value.IndexFlat(0)), 1e-6)
	assert.InDelta(t, 0.0, float64(p.Grad.IndexFlat(0)), 1e-6)
}

func TestSGDStepSkipsFrozenParameter(t *testing.T) {
	p := paramWithGrad(t, 1.0, 4.0)
	p.RequiresGrad = false
	s := NewSGD[float32](0.5)

	s.Step([]*autograd.Variable[float32]{p}, 2)

	assert.InDelta(t, 1.0, float64(p.Value.IndexFlat(0)), 1e-6)
}

func TestMomentumAccumulatesAcrossSteps(t *testing.T) {
	m := NewMomentum[float32](0.1, 0.9)
	p := paramWithGrad(t, 0.0, 1.0)

	m.Step([]*autograd.Variable[float32]{p}, 1)
	firstUpdate := p.Value.IndexFlat(0)
	assert.Less(t, float64(firstUpdate), 0.0)

	p.Grad, _ = tensor.FromSlice[float32](types.MustNew(1), []float32{1.0})
	m.Step([]*autograd.Variable[float32]{p}, 1)
	// momentum keeps growing toward the steady-state gradient, so the
	// second step's displacement is larger than the first's.
	secondUpdate := p.Value.IndexFlat(0) - firstUpdate
	assert.Less(t, float64(secondUpdate), float64(firstUpdate))
}

func TestAdamMovesTowardNegativeGradientDirection(t *testing.T) {
	a := NewAdam[float32](0.1, 0.9, 0.999, 1e-8)
	p := paramWithGrad(t, 0.0, 2.0)

	a.Step([]*autograd.Variable[float32]{p}, 1)

	assert.Less(t, float64(p.Value.IndexFlat(0)), 0.0)
	assert.InDelta(t, 0.0, float64(p.Grad.IndexFlat(0)), 1e-6)
}

func TestNewSGDRejectsNonPositiveLR(t *testing.T) {
	assert.Panics(t, func() { NewSGD[float32](0) })
}

func TestNewAdamRejectsInvalidBeta(t *testing.T) {
	assert.Panics(t, func() { NewAdam[float32](0.1, 1.0, 0.999, 1e-8) })
}
