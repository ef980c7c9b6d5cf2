package tensor

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

func TestSharedBufferObservedThroughCopy(t *testing.T) {
	a := New[float32](types.MustNew(4))
	a.SetConstant(1)

	h := a // value copy, shares the buffer per SPEC_FULL.md §3
	h.SetAt(42, 2)

	assert.Equal(t, float32(42), a.At(2), "mutation through a value-copy handle must be observed through the original")
}

func TestCloneIsIndependent(t *testing.T) {
	a := New[float32](types.MustNew(4))
	a.SetConstant(1)

	clone := a.Clone()
	clone.SetAt(99, 0)

	assert.Equal(t, float32(1), a.At(0), "mutating a clone must not affect the original")
	assert.Equal(t, float32(99), clone.At(0))
}

func TestWrapForBroadcasting(t *testing.T) {
	a, err := FromSlice[float32](types.MustNew(3), []float32{1, 2, 3})
	require.NoError(t, err)

	raw := a.Raw()
	require.True(t, len(raw) >= 8, "buffer must be padded to the lane width")
	for i := 3; i < len(raw); i++ {
		assert.Equal(t, raw[i%3], raw[i], "tail element %d must mirror head element %d", i, i%3)
	}
	assert.NotPanics(t, a.AssertReadyForBroadcasting)
}

func TestSetShapePreservesData(t *testing.T) {
	a, err := FromSlice[float64](types.MustNew(2, 3), []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	reshaped, err := a.SetShape(types.MustNew(3, 2))
	require.NoError(t, err)
	assert.Equal(t, a.Data(), reshaped.Data())

	_, err = a.SetShape(types.MustNew(4, 2))
	assert.Error(t, err)
}

func TestSerializeRoundTrip(t *testing.T) {
	a, err := FromSlice[float32](types.MustNew(2, 2), []float32{1, 2, 3, 4})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, a.Serialize(&buf))

	back, err := Deserialize[float32](&buf)
	require.NoError(t, err)

	assert.True(t, a.Shape().Equal(back.Shape()))
	assert.Equal(t, a.Data(), back.Data())
}

func TestAtMultiAxis(t *testing.T) {
	a, err := FromSlice[float32](types.MustNew(2, 3), []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, float32(5), a.At(1, 1))

	a.SetAt(42, 0, 0)
	assert.Equal(t, float32(42), a.At(0, 0))
}
