package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nnfwd/gradflow/x/math/graph"
)

func TestEvalFMA(t *testing.T) {
	a := []float32{1, 2, 3, 4, 0, 0, 0, 0}
	b := []float32{10, 20, 30, 40, 0, 0, 0, 0}
	c := []float32{1, 1, 1, 1, 0, 0, 0, 0}
	out := make([]float32, 8)

	stream := []graph.Instruction{
		{Op: graph.OpVar, LeafIndex: 0},
		{Op: graph.OpVar, LeafIndex: 1},
		{Op: graph.OpVar, LeafIndex: 2},
		{Op: graph.OpFMA},
	}
	operands := []Operand[float32]{
		{Data: a, Size: 4},
		{Data: b, Size: 4},
		{Data: c, Size: 4},
	}
	Eval(stream, operands, out, 4)
	assert.Equal(t, []float32{11, 41, 91, 161}, out[:4])
}

func TestEvalBroadcast(t *testing.T) {
	// a is [2,4] laid out flat, b is a length-4 broadcast row repeated
	// over a's 2 rows; wrap the tail out to lane width (8) by hand.
	a := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	b := []float32{10, 20, 30, 40, 10, 20, 30, 40}
	out := make([]float32, 8)

	stream := []graph.Instruction{
		{Op: graph.OpVar, LeafIndex: 0},
		{Op: graph.OpVar, LeafIndex: 1},
		{Op: graph.OpSum},
	}
	operands := []Operand[float32]{
		{Data: a, Size: 8},
		{Data: b, Size: 4},
	}
	Eval(stream, operands, out, 8)
	assert.Equal(t, []float32{11, 22, 33, 44, 15, 26, 37, 48}, out)
}

func TestReduceAxis(t *testing.T) {
	src := []float32{1, 2, 3, 4, 5, 6}
	dst := make([]float32, 2)
	ReduceAxis(src, 6, dst, 2)
	assert.Equal(t, []float32{9, 12}, dst)
}

func TestSoftmaxRow(t *testing.T) {
	data := []float32{1, 2, 3, 1, 1, 1}
	SoftmaxMaxShift(data, 2, 3)
	SoftmaxExp(data)
	SoftmaxNormalization(data, 2, 3)

	assert.InDelta(t, float64(1), float64(data[0]+data[1]+data[2]), 1e-5)
	assert.InDelta(t, float64(1), float64(data[3]+data[4]+data[5]), 1e-5)
	assert.InDelta(t, float64(1.0/3), float64(data[3]), 1e-5)
}
