// Package tensor implements the N-dimensional, reference-counted,
// lane-padded dense buffer described in SPEC_FULL.md §3/§4.2. It is
// generic over x/math/tensor/types.Float so the same implementation
// serves both the float32 and float64 instantiations of the engine.
package tensor

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// buffer is the shared, ref-counted backing store. Multiple Tensor
// handles may point at the same buffer; Clone allocates a new one.
type buffer[T types.Float] struct {
	data []T // length is paddedSize(shape.Size(), lane)
	refs int32
}

// Tensor is a (Shape, buffer) pair. The zero value is not usable;
// construct with New. Copying a Tensor by value shares the backing
// buffer (copy-on-clone, never copy-on-write) exactly as SPEC_FULL.md
// §3 requires.
type Tensor[T types.Float] struct {
	shape types.Shape
	buf   *buffer[T]
}

// paddedSize mirrors original_source/src/tensor.h's get_avx_wrapped_size:
// no padding at all when size is already a lane multiple (every
// "address mod size" the interpreter computes then lands on a lane
// boundary, so a lane read never crosses the end of the buffer), one
// full extra lane otherwise (the worst-case read starts at offset
// size-1 and needs lane-1 wrapped elements beyond it).
func paddedSize(size, lane int) int {
	if size%lane == 0 {
		return size
	}
	return size + lane
}

// New allocates a zero-valued tensor with the given shape. The
// backing buffer's length is paddedSize: the size itself when it is a
// multiple of the packed-lane width, otherwise the size plus one lane.
func New[T types.Float](shape types.Shape) Tensor[T] {
	lane := types.Lane[T]()
	data := make([]T, paddedSize(shape.Size(), lane))
	return Tensor[T]{shape: shape, buf: &buffer[T]{data: data, refs: 1}}
}

// FromSlice builds a tensor from existing data, copying it into a
// freshly allocated, lane-padded buffer.
func FromSlice[T types.Float](shape types.Shape, values []T) (Tensor[T], error) {
	if len(values) != shape.Size() {
		return Tensor[T]{}, fmt.Errorf("tensor.FromSlice: got %d values for shape %v (size %d)", len(values), shape, shape.Size())
	}
	t := New[T](shape)
	copy(t.buf.data, values)
	t.WrapForBroadcasting()
	return t, nil
}

// Shape returns the tensor's shape.
func (t Tensor[T]) Shape() types.Shape { return t.shape }

// Size returns the logical (unpadded) element count.
func (t Tensor[T]) Size() int { return t.shape.Size() }

// Retain increments the buffer's reference count. Pairing every
// Retain with a Release is optional bookkeeping: the backing slice is
// also reachable through normal Go references and is collected by
// the garbage collector once unreferenced, but the explicit count
// lets code assert liveness the way the C++ reference's destructor
// chain does.
func (t Tensor[T]) Retain() { atomic.AddInt32(&t.buf.refs, 1) }

// Release decrements the buffer's reference count.
func (t Tensor[T]) Release() { atomic.AddInt32(&t.buf.refs, -1) }

// RefCount reports the buffer's current reference count.
func (t Tensor[T]) RefCount() int32 { return atomic.LoadInt32(&t.buf.refs) }

// Raw returns the full padded backing slice, including the wrapped
// tail. Packed-lane kernels and the interpreter read through this.
func (t Tensor[T]) Raw() []T { return t.buf.data }

// Data returns the logical (unpadded) slice view.
func (t Tensor[T]) Data() []T { return t.buf.data[:t.shape.Size()] }

// Clone performs a deep copy: the returned tensor shares no buffer
// with t, so mutating one never affects the other.
func (t Tensor[T]) Clone() Tensor[T] {
	out := New[T](t.shape)
	copy(out.buf.data, t.buf.data)
	return out
}

// SetZero zeroes every element, including the padded tail.
func (t Tensor[T]) SetZero() {
	data := t.buf.data
	for i := range data {
		data[i] = 0
	}
}

// SetConstant fills the logical elements with x and re-wraps the tail.
func (t Tensor[T]) SetConstant(x T) {
	data := t.Data()
	for i := range data {
		data[i] = x
	}
	t.WrapForBroadcasting()
}

// IndexFlat returns the element at a flattened row-major index.
func (t Tensor[T]) IndexFlat(i int) T {
	if i < 0 || i >= t.shape.Size() {
		panic(fmt.Errorf("Tensor.IndexFlat: index %d out of range for size %d", i, t.shape.Size()))
	}
	return t.buf.data[i]
}

// SetIndexFlat assigns the element at a flattened row-major index.
func (t Tensor[T]) SetIndexFlat(i int, v T) {
	if i < 0 || i >= t.shape.Size() {
		panic(fmt.Errorf("Tensor.SetIndexFlat: index %d out of range for size %d", i, t.shape.Size()))
	}
	t.buf.data[i] = v
}

func (t Tensor[T]) flatten(indices []int) int {
	if len(indices) != t.shape.Rank() {
		panic(fmt.Errorf("Tensor.At: expected %d indices, got %d", t.shape.Rank(), len(indices)))
	}
	idx := 0
	for axis, i := range indices {
		if i < 0 || i >= t.shape.Dim(axis) {
			panic(fmt.Errorf("Tensor.At: index %d out of range for axis %d (dim %d)", i, axis, t.shape.Dim(axis)))
		}
		idx += i * t.shape.Cumulative(axis)
	}
	return idx
}

// At returns the element at the given multi-axis indices.
func (t Tensor[T]) At(indices ...int) T { return t.buf.data[t.flatten(indices)] }

// SetAt assigns the element at the given multi-axis indices.
func (t Tensor[T]) SetAt(v T, indices ...int) { t.buf.data[t.flatten(indices)] = v }

// SetShape reinterprets the buffer under a new, size-compatible
// shape; the backing buffer (and its contents) is shared, not copied.
func (t Tensor[T]) SetShape(newShape types.Shape) (Tensor[T], error) {
	if !t.shape.Compatible(newShape) {
		return Tensor[T]{}, fmt.Errorf("Tensor.SetShape: size %d incompatible with new shape %v (size %d)", t.shape.Size(), newShape, newShape.Size())
	}
	return Tensor[T]{shape: newShape, buf: t.buf}, nil
}

// WrapForBroadcasting copies the head of the logical data onto the
// buffer's padded tail, so that a lane load starting at any offset in
// [0, len(Raw())-lane) is consistent with "address mod size" — see
// SPEC_FULL.md §4.2 for the rationale.
func (t Tensor[T]) WrapForBroadcasting() {
	size := t.shape.Size()
	data := t.buf.data
	for i := size; i < len(data); i++ {
		data[i] = data[i%size]
	}
}

// AssertReadyForBroadcasting panics if the padded tail is not a
// faithful wrap of the head; a debug invariant check, not called on
// any hot path.
func (t Tensor[T]) AssertReadyForBroadcasting() {
	size := t.shape.Size()
	data := t.buf.data
	for i := size; i < len(data); i++ {
		if data[i] != data[i%size] {
			panic(fmt.Errorf("Tensor.AssertReadyForBroadcasting: tail element %d (%v) does not mirror head element %d (%v)", i, data[i], i%size, data[i%size]))
		}
	}
}

// Serialize writes the checkpoint format from SPEC_FULL.md §7: rank,
// each dimension, element count, then the raw logical elements in
// native byte order.
func (t Tensor[T]) Serialize(w io.Writer) error {
	var header []int
	header = t.shape.Serialize(header)
	header = append(header, t.shape.Size())
	for _, v := range header {
		if err := binary.Write(w, binary.NativeEndian, int64(v)); err != nil {
			return fmt.Errorf("Tensor.Serialize: writing header: %w", err)
		}
	}
	if err := binary.Write(w, binary.NativeEndian, t.Data()); err != nil {
		return fmt.Errorf("Tensor.Serialize: writing data: %w", err)
	}
	return nil
}

// Deserialize reads back a tensor written by Serialize into a freshly
// allocated buffer.
func Deserialize[T types.Float](r io.Reader) (Tensor[T], error) {
	var rank int64
	if err := binary.Read(r, binary.NativeEndian, &rank); err != nil {
		return Tensor[T]{}, fmt.Errorf("tensor.Deserialize: reading rank: %w", err)
	}
	dims := make([]int, rank)
	for i := range dims {
		var d int64
		if err := binary.Read(r, binary.NativeEndian, &d); err != nil {
			return Tensor[T]{}, fmt.Errorf("tensor.Deserialize: reading dim %d: %w", i, err)
		}
		dims[i] = int(d)
	}
	var count int64
	if err := binary.Read(r, binary.NativeEndian, &count); err != nil {
		return Tensor[T]{}, fmt.Errorf("tensor.Deserialize: reading element count: %w", err)
	}
	shape, err := types.New(dims...)
	if err != nil {
		return Tensor[T]{}, fmt.Errorf("tensor.Deserialize: %w", err)
	}
	if int(count) != shape.Size() {
		return Tensor[T]{}, fmt.Errorf("tensor.Deserialize: element count %d disagrees with shape %v", count, shape)
	}
	out := New[T](shape)
	if err := binary.Read(r, binary.NativeEndian, out.Data()); err != nil {
		return Tensor[T]{}, fmt.Errorf("tensor.Deserialize: reading data: %w", err)
	}
	out.WrapForBroadcasting()
	return out, nil
}
