package kernel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFMA(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	b := []float32{10, 20, 30, 40}
	c := []float32{1, 1, 1, 1}
	dst := make([]float32, 4)

	FMA(dst, a, b, c)
	assert.Equal(t, []float32{11, 41, 91, 161}, dst)
}

func TestRelu(t *testing.T) {
	a := []float32{-1, 0, 2, -5}
	dst := make([]float32, 4)
	Relu(dst, a)
	assert.Equal(t, []float32{0, 0, 2, 0}, dst)
}

func TestReluMask(t *testing.T) {
	grad := []float32{1, 2, 3, 4}
	input := []float32{-1, 0.5, -3, 7}
	dst := make([]float32, 4)
	ReluMask(dst, grad, input)
	assert.Equal(t, []float32{0, 2, 0, 4}, dst)
}

func TestFastExp32Accuracy(t *testing.T) {
	inputs := []float32{-5, -1, 0, 0.5, 1, 3, 10}
	for _, x := range inputs {
		got := FastExp32(x)
		want := math.Exp(float64(x))
		assert.InEpsilon(t, want, float64(got), 1e-3, "FastExp32(%v)", x)
	}
}

func TestFastExp32Saturates(t *testing.T) {
	assert.False(t, math.IsInf(float64(FastExp32(1000)), 1))
	assert.False(t, math.IsNaN(float64(FastExp32(-1000))))
}

func TestExpFloat64UsesLibm(t *testing.T) {
	a := []float64{0, 1, 2}
	dst := make([]float64, 3)
	Exp(dst, a)
	for i, x := range a {
		assert.InDelta(t, math.Exp(x), dst[i], 1e-12)
	}
}
