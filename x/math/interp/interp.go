// Package interp implements the vectorized stack-machine interpreter
// from SPEC_FULL.md §4.9: it walks a graph.Instruction postfix stream
// lane-width-at-a-time, mirroring
// original_source/src/interpreter.h's DataStack<DType,N> + the
// execute_instruction_avx dispatch. Go has no portable AVX intrinsics,
// so each "register" here is a lane-width Go slice and the fused loop's
// vectorization is left to the compiler's autovectorizer rather than
// hand-emitted the way the C++ reference does with _mm256_* calls; the
// control flow and broadcast-offset arithmetic are carried over exactly.
package interp

import (
	"fmt"

	"github.com/nnfwd/gradflow/x/math/graph"
	"github.com/nnfwd/gradflow/x/math/primitive/kernel"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// Operand is one VAR slot fed to Eval: Data is a tensor's full,
// lane-padded backing buffer (Tensor.Raw()), Size its logical element
// count (Tensor.Size()). Eval reads "offset = i % Size" and then a
// CONTIGUOUS lane starting at that offset from Data — never a
// per-element modulo — which is exactly why tensor.paddedSize pads by
// one whole lane instead of rounding up to the next multiple: every
// possible offset in [0,Size) must have lane-1 valid elements after it.
type Operand[T types.Float] struct {
	Data []T
	Size int
}

// IsIdentity reports whether the stream is the single-VAR degenerate
// case, the identity shortcut original_source/src/interpreter.h's
// InterpretInternal::const_eval takes to avoid a pointless copy.
func IsIdentity(stream []graph.Instruction) bool {
	return len(stream) == 1 && stream[0].Op == graph.OpVar
}

// Eval executes stream once per lane-width step across [0, outSize),
// writing results into outRaw (which must be at least outSize+lane-1
// long, the padded-buffer convention every Tensor already satisfies).
// The caller is responsible for calling Tensor.WrapForBroadcasting
// afterward to refresh the padded tail.
func Eval[T types.Float](stream []graph.Instruction, operands []Operand[T], outRaw []T, outSize int) {
	lane := types.Lane[T]()
	stack := make([][]T, 0, 8)

	for i := 0; i < outSize; i += lane {
		stack = stack[:0]
		for _, instr := range stream {
			switch instr.Op {
			case graph.OpVar:
				ref := operands[instr.LeafIndex]
				offset := i % ref.Size
				stack = append(stack, ref.Data[offset:offset+lane])
			case graph.OpSum:
				a, b := pop2(&stack)
				dst := make([]T, lane)
				kernel.Add(dst, a, b)
				stack = append(stack, dst)
			case graph.OpDiff:
				a, b := pop2(&stack)
				dst := make([]T, lane)
				kernel.Sub(dst, a, b)
				stack = append(stack, dst)
			case graph.OpMul:
				a, b := pop2(&stack)
				dst := make([]T, lane)
				kernel.Mul(dst, a, b)
				stack = append(stack, dst)
			case graph.OpDiv:
				a, b := pop2(&stack)
				dst := make([]T, lane)
				kernel.Div(dst, a, b)
				stack = append(stack, dst)
			case graph.OpFMA:
				a, b, c := pop3(&stack)
				dst := make([]T, lane)
				kernel.FMA(dst, a, b, c)
				stack = append(stack, dst)
			case graph.OpFAM:
				a, b, c := pop3(&stack)
				dst := make([]T, lane)
				kernel.FAM(dst, a, b, c)
				stack = append(stack, dst)
			case graph.OpRelu:
				a := pop1(&stack)
				dst := make([]T, lane)
				kernel.Relu(dst, a)
				stack = append(stack, dst)
			case graph.OpExp:
				a := pop1(&stack)
				dst := make([]T, lane)
				kernel.Exp(dst, a)
				stack = append(stack, dst)
			case graph.OpLog:
				a := pop1(&stack)
				dst := make([]T, lane)
				kernel.Log(dst, a)
				stack = append(stack, dst)
			case graph.OpFlipSign:
				a := pop1(&stack)
				dst := make([]T, lane)
				kernel.FlipSign(dst, a)
				stack = append(stack, dst)
			case graph.OpSqrt:
				a := pop1(&stack)
				dst := make([]T, lane)
				kernel.Sqrt(dst, a)
				stack = append(stack, dst)
			default:
				panic(fmt.Errorf("interp.Eval: opcode %s is not a fusable elementwise instruction", instr.Op))
			}
		}
		copy(outRaw[i:i+lane], stack[0])
	}
}

func pop1[T types.Float](stack *[][]T) []T {
	s := *stack
	a := s[len(s)-1]
	*stack = s[:len(s)-1]
	return a
}

func pop2[T types.Float](stack *[][]T) (a, b []T) {
	s := *stack
	b = s[len(s)-1]
	a = s[len(s)-2]
	*stack = s[:len(s)-2]
	return
}

func pop3[T types.Float](stack *[][]T) (a, b, c []T) {
	s := *stack
	c = s[len(s)-1]
	b = s[len(s)-2]
	a = s[len(s)-3]
	*stack = s[:len(s)-3]
	return
}

// ReduceAxis sums src down to the size of target, wrapping the flat
// index modulo target's size — the exact inverse of the broadcast read
// in Eval, mirroring interpreter.h's reduce_axis. Used to collapse a
// gradient shaped like a broadcast result back down to the shape of the
// (smaller) operand that was broadcast.
func ReduceAxis[T types.Float](src []T, srcSize int, dst []T, dstSize int) {
	for i := range dst {
		dst[i] = 0
	}
	for i := 0; i < srcSize; i++ {
		dst[i%dstSize] += src[i]
	}
}

// ReluBackprop zeroes inputGrad wherever forwardInput <= 0, the packed
// compare-and-mask from interpreter.h's relu_backprop.
func ReluBackprop[T types.Float](inputGrad, forwardInput []T) {
	kernel.ReluMask(inputGrad, inputGrad, forwardInput)
}

// GetMax returns the maximum element of t, per interpreter.h's get_max.
func GetMax[T types.Float](t []T) T {
	max := t[0]
	for _, v := range t[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// GetSum returns the sum of all elements of t, per interpreter.h's get_sum.
func GetSum[T types.Float](t []T) T {
	var sum T
	for _, v := range t {
		sum += v
	}
	return sum
}

// SoftmaxMaxShift subtracts each row's max from every element in that
// row, in place, per interpreter.h's softmax_max_shift. data is
// row-major [batch, classes].
func SoftmaxMaxShift[T types.Float](data []T, batch, classes int) {
	for b := 0; b < batch; b++ {
		row := data[b*classes : (b+1)*classes]
		m := GetMax(row)
		for i := range row {
			row[i] -= m
		}
	}
}

// SoftmaxExp exponentiates every element in place, the step between
// SoftmaxMaxShift and SoftmaxNormalization in the softmax forward pass.
func SoftmaxExp[T types.Float](data []T) {
	kernel.Exp(data, data)
}

// SoftmaxNormalization divides each row by its sum, in place, per
// interpreter.h's softmax_normalization.
func SoftmaxNormalization[T types.Float](data []T, batch, classes int) {
	for b := 0; b < batch; b++ {
		row := data[b*classes : (b+1)*classes]
		sum := GetSum(row)
		inv := T(1) / sum
		for i := range row {
			row[i] *= inv
		}
	}
}
