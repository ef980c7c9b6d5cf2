package interp

import (
	"fmt"

	"github.com/nnfwd/gradflow/x/math/graph"
	"github.com/nnfwd/gradflow/x/math/primitive/kernel"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// TraceEntry records one linearized instruction's inputs, for
// RunTrace/BackwardTrace's tape-based differentiation of a fused
// elementwise subtree: Eval's lane-stepped loop only ever needs the
// values directly below it on the stack, but a reverse sweep needs to
// know WHICH earlier instruction produced each operand, so RunTrace
// keeps every instruction's full output around instead of discarding
// it once consumed.
type TraceEntry[T types.Float] struct {
	Op    graph.Opcode
	Preds []int // instruction indices this one consumed; empty for VAR
	Leaf  int   // valid only when Op == graph.OpVar
}

// Trace is the recorded tape RunTrace produces: Values[i] is
// instruction i's full (unpadded, length outSize) output, expanded
// through any broadcast read so every instruction's buffer is the same
// length and plain elementwise arithmetic suffices in BackwardTrace.
type Trace[T types.Float] struct {
	Entries []TraceEntry[T]
	Values  [][]T
}

// RunTrace executes stream once over the full [0,outSize) range,
// recording a tape entry per instruction. Because every stream comes
// from a tree traversal of a graph.Node (sharing is only ever
// expressed by cutting a NeedsTemp/Flatten/Indexer/Shared boundary
// into a separate VAR), no instruction's output is ever popped by more
// than one later instruction — each tape entry needs at most one
// downstream gradient contribution in BackwardTrace.
func RunTrace[T types.Float](stream []graph.Instruction, operands []Operand[T], outSize int) Trace[T] {
	tr := Trace[T]{
		Entries: make([]TraceEntry[T], len(stream)),
		Values:  make([][]T, len(stream)),
	}
	var stack []int

	push := func(i int) { stack = append(stack, i) }
	pop1 := func() int {
		a := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return a
	}
	pop2 := func() (int, int) {
		b := stack[len(stack)-1]
		a := stack[len(stack)-2]
		stack = stack[:len(stack)-2]
		return a, b
	}
	pop3 := func() (int, int, int) {
		c := stack[len(stack)-1]
		b := stack[len(stack)-2]
		a := stack[len(stack)-3]
		stack = stack[:len(stack)-3]
		return a, b, c
	}

	for i, instr := range stream {
		switch instr.Op {
		case graph.OpVar:
			ref := operands[instr.LeafIndex]
			buf := make([]T, outSize)
			for k := 0; k < outSize; k++ {
				buf[k] = ref.Data[k%ref.Size]
			}
			tr.Values[i] = buf
			tr.Entries[i] = TraceEntry[T]{Op: instr.Op, Leaf: instr.LeafIndex}
			push(i)

		case graph.OpSum, graph.OpDiff, graph.OpMul, graph.OpDiv:
			a, b := pop2()
			buf := make([]T, outSize)
			switch instr.Op {
			case graph.OpSum:
				kernel.Add(buf, tr.Values[a], tr.Values[b])
			case graph.OpDiff:
				kernel.Sub(buf, tr.Values[a], tr.Values[b])
			case graph.OpMul:
				kernel.Mul(buf, tr.Values[a], tr.Values[b])
			case graph.OpDiv:
				kernel.Div(buf, tr.Values[a], tr.Values[b])
			}
			tr.Values[i] = buf
			tr.Entries[i] = TraceEntry[T]{Op: instr.Op, Preds: []int{a, b}}
			push(i)

		case graph.OpFMA, graph.OpFAM:
			a, b, c := pop3()
			buf := make([]T, outSize)
			if instr.Op == graph.OpFMA {
				kernel.FMA(buf, tr.Values[a], tr.Values[b], tr.Values[c])
			} else {
				kernel.FAM(buf, tr.Values[a], tr.Values[b], tr.Values[c])
			}
			tr.Values[i] = buf
			tr.Entries[i] = TraceEntry[T]{Op: instr.Op, Preds: []int{a, b, c}}
			push(i)

		case graph.OpRelu, graph.OpExp, graph.OpLog, graph.OpFlipSign, graph.OpSqrt:
			a := pop1()
			buf := make([]T, outSize)
			switch instr.Op {
			case graph.OpRelu:
				kernel.Relu(buf, tr.Values[a])
			case graph.OpExp:
				kernel.Exp(buf, tr.Values[a])
			case graph.OpLog:
				kernel.Log(buf, tr.Values[a])
			case graph.OpFlipSign:
				kernel.FlipSign(buf, tr.Values[a])
			case graph.OpSqrt:
				kernel.Sqrt(buf, tr.Values[a])
			}
			tr.Values[i] = buf
			tr.Entries[i] = TraceEntry[T]{Op: instr.Op, Preds: []int{a}}
			push(i)

		default:
			panic(fmt.Errorf("interp.RunTrace: opcode %s is not a fusable elementwise instruction", instr.Op))
		}
	}
	return tr
}

// BackwardTrace walks tr in reverse from its final instruction,
// seeded with seed, applying each opcode's local gradient rule and
// returns the accumulated full-length (outSize) gradient for every
// VAR leaf index referenced in the tape. Exp's rule multiplies by the
// node's OWN cached output (tr.Values[i], not the operand's), and
// log's divides by the operand's cached value — SPEC_FULL.md §4.6's
// explicit rule set, not the naming the tape entries might suggest at
// a glance.
func BackwardTrace[T types.Float](tr Trace[T], seed []T, outSize int) map[int][]T {
	grads := make([][]T, len(tr.Entries))
	if len(grads) > 0 {
		grads[len(grads)-1] = seed
	}
	leafGrads := make(map[int][]T)

	addTo := func(idx int, contribution []T) {
		if grads[idx] == nil {
			buf := make([]T, outSize)
			copy(buf, contribution)
			grads[idx] = buf
			return
		}
		kernel.Add(grads[idx], grads[idx], contribution)
	}

	for i := len(tr.Entries) - 1; i >= 0; i-- {
		g := grads[i]
		if g == nil {
			continue
		}
		e := tr.Entries[i]
		switch e.Op {
		case graph.OpVar:
			buf, ok := leafGrads[e.Leaf]
			if !ok {
				buf = make([]T, outSize)
				leafGrads[e.Leaf] = buf
			}
			kernel.Add(buf, buf, g)

		case graph.OpSum:
			a, b := e.Preds[0], e.Preds[1]
			addTo(a, g)
			addTo(b, g)

		case graph.OpDiff:
			a, b := e.Preds[0], e.Preds[1]
			addTo(a, g)
			neg := make([]T, outSize)
			kernel.FlipSign(neg, g)
			addTo(b, neg)

		case graph.OpMul:
			a, b := e.Preds[0], e.Preds[1]
			da := make([]T, outSize)
			kernel.Mul(da, g, tr.Values[b])
			addTo(a, da)
			db := make([]T, outSize)
			kernel.Mul(db, g, tr.Values[a])
			addTo(b, db)

		case graph.OpDiv:
			a, b := e.Preds[0], e.Preds[1]
			da := make([]T, outSize)
			kernel.Div(da, g, tr.Values[b])
			addTo(a, da)
			db := make([]T, outSize)
			bSquared := make([]T, outSize)
			kernel.Mul(bSquared, tr.Values[b], tr.Values[b])
			kernel.Mul(db, g, tr.Values[a])
			kernel.Div(db, db, bSquared)
			kernel.FlipSign(db, db)
			addTo(b, db)

		case graph.OpFMA:
			a, b, c := e.Preds[0], e.Preds[1], e.Preds[2]
			da := make([]T, outSize)
			kernel.Mul(da, g, tr.Values[b])
			addTo(a, da)
			db := make([]T, outSize)
			kernel.Mul(db, g, tr.Values[a])
			addTo(b, db)
			addTo(c, g)

		case graph.OpFAM:
			a, b, c := e.Preds[0], e.Preds[1], e.Preds[2]
			addTo(a, g)
			db := make([]T, outSize)
			kernel.Mul(db, g, tr.Values[c])
			addTo(b, db)
			dc := make([]T, outSize)
			kernel.Mul(dc, g, tr.Values[b])
			addTo(c, dc)

		case graph.OpRelu:
			a := e.Preds[0]
			da := make([]T, outSize)
			copy(da, g)
			kernel.ReluMask(da, da, tr.Values[a])
			addTo(a, da)

		case graph.OpExp:
			a := e.Preds[0]
			da := make([]T, outSize)
			kernel.Mul(da, g, tr.Values[i]) // node's own cached output
			addTo(a, da)

		case graph.OpLog:
			a := e.Preds[0]
			da := make([]T, outSize)
			kernel.Div(da, g, tr.Values[a])
			addTo(a, da)

		case graph.OpFlipSign:
			a := e.Preds[0]
			da := make([]T, outSize)
			kernel.FlipSign(da, g)
			addTo(a, da)

		case graph.OpSqrt:
			a := e.Preds[0]
			da := make([]T, outSize)
			denom := make([]T, outSize)
			kernel.Add(denom, tr.Values[i], tr.Values[i])
			kernel.Div(da, g, denom)
			addTo(a, da)
		}
	}
	return leafGrads
}
