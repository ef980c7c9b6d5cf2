// Package graph implements the build-time-fixed expression graph from
// SPEC_FULL.md §4.5: Leaf/Unary/Binary/Ternary node values wired together
// by the builder functions in builder.go, a bottom-up Simplify pass that
// folds sum(mul(a,b),c) into FMA and matmul(transpose(x),y) into the
// appropriately-flagged matmul opcode, and linearization into the postfix
// instruction stream consumed by x/math/interp.
//
// Grounded on original_source/src/expressions/{expression_base.h,
// binary_operators/*,unary_operators/*,ternary_operators/*}: the node
// hierarchy there is a CRTP template tower (DUnaryExprOp<A,Op>,
// DBinExprOp<A,B,Op>, DTernExprOp<A,B,C,Op>) monomorphized per operator at
// compile time. Go has no non-type template parameters, so the four node
// shapes become ordinary structs carrying an Opcode field, and dispatch
// that was a `if constexpr` on the template parameter becomes a type
// switch in Simplify and a field read in Linearize.
package graph

import (
	"fmt"

	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// Opcode is the postfix instruction alphabet, numbered to match
// original_source/src/constants.h's ops namespace so anyone cross
// referencing the two stays oriented.
type Opcode int

const (
	OpVar Opcode = iota
	OpConst
	OpSum
	OpDiff
	OpMul
	OpDiv
	OpFMA
	OpFAM
	OpMatMulNN
	OpMatMulNT
	OpMatMulTN
	OpMatMulTT
	OpConv1D
	OpConv2D
	OpRelu
	OpTranspose
	OpExp
	OpLog
	OpFlipSign
	OpSqrt
	OpFlatten
	OpIndexer
	OpShared
)

func (op Opcode) String() string {
	switch op {
	case OpVar:
		return "VAR"
	case OpConst:
		return "CONST"
	case OpSum:
		return "SUM"
	case OpDiff:
		return "DIFF"
	case OpMul:
		return "MUL"
	case OpDiv:
		return "DIV"
	case OpFMA:
		return "FMA"
	case OpFAM:
		return "FAM"
	case OpMatMulNN:
		return "MATMUL_NN"
	case OpMatMulNT:
		return "MATMUL_NT"
	case OpMatMulTN:
		return "MATMUL_TN"
	case OpMatMulTT:
		return "MATMUL_TT"
	case OpConv1D:
		return "CONV1D"
	case OpConv2D:
		return "CONV2D"
	case OpRelu:
		return "RELU"
	case OpTranspose:
		return "TRANSPOSE"
	case OpExp:
		return "EXP"
	case OpLog:
		return "LOG"
	case OpFlipSign:
		return "FLIP_SIGN"
	case OpSqrt:
		return "SQRT"
	case OpFlatten:
		return "FLATTEN"
	case OpIndexer:
		return "INDEXER"
	case OpShared:
		return "SHARED"
	default:
		return fmt.Sprintf("Opcode(%d)", int(op))
	}
}

// NeedsTemp reports whether a node of this opcode must be evaluated into
// its own materialized tensor rather than fused into the surrounding
// postfix stream: every op that is not a lane-local element-wise
// operation — matmul, convolution, transpose, flatten, indexer, and
// shared-node all require actual data movement or a standalone kernel
// call, so the consuming op sees them as an opaque VAR input instead of
// inlining them into the fused loop.
func (op Opcode) NeedsTemp() bool {
	switch op {
	case OpMatMulNN, OpMatMulNT, OpMatMulTN, OpMatMulTT, OpConv1D, OpConv2D,
		OpTranspose, OpFlatten, OpIndexer, OpShared:
		return true
	default:
		return false
	}
}

// Instruction is one step of a linearized postfix stream.
type Instruction struct {
	Op Opcode
	// LeafIndex is valid only when Op == OpVar: it indexes into the
	// leaf/temporary slice the interpreter was handed alongside the
	// stream, in left-to-right (post-order) push order.
	LeafIndex int
}

// Node is the common contract every graph value satisfies: a fixed
// output Shape (computed once at construction, per SPEC_FULL.md §3's
// build-time-fixed composition), a bottom-up rewrite pass, and
// linearization into a postfix stream plus the ordered list of leaves
// (raw inputs or materialized temporaries) that stream's VAR
// instructions reference.
type Node interface {
	Shape() types.Shape
	Opcode() Opcode
	Simplify() Node
	Linearize(stream *[]Instruction, leaves *[]Node)
}

// Leaf is a graph value with no operands: a bound variable (parameter
// or input). NeedsTemp subgraphs are not turned into Leaf values; their
// own nodes stand in the leaves list of a linearization. Source is resolved by
// x/math/autograd, which is the only package that actually holds
// tensor data; graph itself stays structural.
type Leaf struct {
	shape  types.Shape
	Source any // *autograd.Variable[T], set by the autograd package
}

// NewLeaf wraps an arbitrary data source (typically an
// *autograd.Variable[T]) as a graph leaf of the given shape.
func NewLeaf(shape types.Shape, source any) *Leaf {
	return &Leaf{shape: shape, Source: source}
}

func (l *Leaf) Shape() types.Shape { return l.shape }
func (l *Leaf) Opcode() Opcode     { return OpVar }
func (l *Leaf) Simplify() Node     { return l }
func (l *Leaf) Linearize(stream *[]Instruction, leaves *[]Node) {
	*leaves = append(*leaves, l)
	*stream = append(*stream, Instruction{Op: OpVar, LeafIndex: len(*leaves) - 1})
}

// Unary is a one-operand node: relu, transpose, exp, log, flip-sign,
// sqrt, flatten, indexer, or shared, mirroring
// unary_operators/unary_operator.h's DUnaryExprOp<A,Op> family.
type Unary struct {
	Op      Opcode
	Operand Node
	shape   types.Shape
	// Index selects the element for OpIndexer; unused otherwise.
	Index int
}

func (u *Unary) Shape() types.Shape { return u.shape }
func (u *Unary) Opcode() Opcode     { return u.Op }

func (u *Unary) Simplify() Node {
	return &Unary{Op: u.Op, Operand: u.Operand.Simplify(), shape: u.shape, Index: u.Index}
}

func (u *Unary) Linearize(stream *[]Instruction, leaves *[]Node) {
	if u.Op.NeedsTemp() {
		// These are opaque from the surrounding stream's perspective:
		// they materialize into their own temporary (computed by
		// autograd) and participate upstream as a single VAR, exactly
		// as flattener_operator.h/indexing_operator.h/
		// shared_node_operator.h's Flatten<recursive> always yields
		// Stack<ops::VARIABLE_OP> regardless of recursive.
		*leaves = append(*leaves, u)
		*stream = append(*stream, Instruction{Op: OpVar, LeafIndex: len(*leaves) - 1})
		return
	}
	u.Operand.Linearize(stream, leaves)
	*stream = append(*stream, Instruction{Op: u.Op})
}

// Binary is a two-operand node: sum, diff, mul, div, or a (possibly
// transpose-folded) matmul, mirroring binary_operators/binary_operator.h.
type Binary struct {
	Op          Opcode
	Left, Right Node
	shape       types.Shape
	// StrideH, StrideW carry Conv2D's spatial strides; PadH, PadW its
	// zero-padding widths. Unused by every other opcode.
	StrideH, StrideW int
	PadH, PadW       int
}

func (b *Binary) Shape() types.Shape { return b.shape }
func (b *Binary) Opcode() Opcode     { return b.Op }

func (b *Binary) Simplify() Node {
	if b.Op == OpConv2D {
		return &Binary{Op: b.Op, Left: b.Left.Simplify(), Right: b.Right.Simplify(), shape: b.shape, StrideH: b.StrideH, StrideW: b.StrideW, PadH: b.PadH, PadW: b.PadW}
	}
	left := b.Left.Simplify()
	right := b.Right.Simplify()

	if b.Op == OpSum {
		if lb, ok := left.(*Binary); ok && lb.Op == OpMul {
			// sum(mul(a,b),c) -> fma(a,b,c), binary_operator_simplifier.h's
			// OperatorRules<DApSum,DApMul> rule.
			return &Ternary{Op: OpFMA, A: lb.Left, B: lb.Right, C: right, shape: b.shape}
		}
		if rb, ok := right.(*Binary); ok && rb.Op == OpMul {
			// sum(c,mul(a,b)) -> fam(c,a,b), the FlipRules<DApFMA> mirror.
			return &Ternary{Op: OpFAM, A: left, B: rb.Left, C: rb.Right, shape: b.shape}
		}
	}

	if b.Op == OpMatMulNN {
		leftT, leftIsT := left.(*Unary)
		rightT, rightIsT := right.(*Unary)
		leftFolds := leftIsT && leftT.Op == OpTranspose
		rightFolds := rightIsT && rightT.Op == OpTranspose
		switch {
		case leftFolds && rightFolds:
			return &Binary{Op: OpMatMulTT, Left: leftT.Operand, Right: rightT.Operand, shape: b.shape}
		case leftFolds:
			return &Binary{Op: OpMatMulTN, Left: leftT.Operand, Right: right, shape: b.shape}
		case rightFolds:
			return &Binary{Op: OpMatMulNT, Left: left, Right: rightT.Operand, shape: b.shape}
		}
	}

	return &Binary{Op: b.Op, Left: left, Right: right, shape: b.shape}
}

func (b *Binary) Linearize(stream *[]Instruction, leaves *[]Node) {
	if b.Op.NeedsTemp() {
		*leaves = append(*leaves, b)
		*stream = append(*stream, Instruction{Op: OpVar, LeafIndex: len(*leaves) - 1})
		return
	}
	b.Left.Linearize(stream, leaves)
	b.Right.Linearize(stream, leaves)
	*stream = append(*stream, Instruction{Op: b.Op})
}

// Ternary is a three-operand node. The only ternary arithmetic ops are
// the fused FMA/FAM produced by Binary.Simplify; Conv1D is also ternary
// (kernel, input, bias) per
// ternary_operators/convolution_1d_operator.h's DTernExprOp<A,B,C,DApConv1d>.
type Ternary struct {
	Op       Opcode
	A, B, C  Node
	shape   types.Shape
	StrideL int // convolution stride along the (only, for 1D) spatial axis
	PadL    int // convolution zero-padding along that same axis
}

func (t *Ternary) Shape() types.Shape { return t.shape }
func (t *Ternary) Opcode() Opcode     { return t.Op }

func (t *Ternary) Simplify() Node {
	return &Ternary{Op: t.Op, A: t.A.Simplify(), B: t.B.Simplify(), C: t.C.Simplify(), shape: t.shape, StrideL: t.StrideL, PadL: t.PadL}
}

func (t *Ternary) Linearize(stream *[]Instruction, leaves *[]Node) {
	if t.Op.NeedsTemp() {
		*leaves = append(*leaves, t)
		*stream = append(*stream, Instruction{Op: OpVar, LeafIndex: len(*leaves) - 1})
		return
	}
	// FMA/FAM: push all three operands, then the fused opcode.
	t.A.Linearize(stream, leaves)
	t.B.Linearize(stream, leaves)
	t.C.Linearize(stream, leaves)
	*stream = append(*stream, Instruction{Op: t.Op})
}
