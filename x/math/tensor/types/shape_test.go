package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("rejects empty", func(t *testing.T) {
		_, err := New()
		assert.Error(t, err)
	})
	t.Run("rejects zero dim", func(t *testing.T) {
		_, err := New(3, 0, 2)
		assert.Error(t, err)
	})
	t.Run("rejects too many dims", func(t *testing.T) {
		dims := make([]int, MaxDims+1)
		for i := range dims {
			dims[i] = 1
		}
		_, err := New(dims...)
		assert.Error(t, err)
	})
	t.Run("computes size and strides", func(t *testing.T) {
		s, err := New(2, 3, 4)
		require.NoError(t, err)
		assert.Equal(t, 3, s.Rank())
		assert.Equal(t, 24, s.Size())
		assert.Equal(t, 12, s.Cumulative(0))
		assert.Equal(t, 4, s.Cumulative(1))
		assert.Equal(t, 1, s.Cumulative(2))
	})
}

func TestBroadcastable(t *testing.T) {
	tests := []struct {
		name string
		a, b Shape
		want bool
	}{
		{"same shape", MustNew(4), MustNew(4), true},
		{"scalar vs vector", MustNew(1), MustNew(4), true},
		{"trailing match", MustNew(3, 4), MustNew(4), true},
		{"mismatch", MustNew(3), MustNew(4), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Broadcastable(tt.a, tt.b))
		})
	}
}

func TestBroadcasted(t *testing.T) {
	a := MustNew(3, 4)
	b := MustNew(4)
	assert.True(t, Broadcasted(a, b).Equal(a))
	assert.True(t, Broadcasted(b, a).Equal(a))
}

func TestMatmulShape(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		a := MustNew(2, 3)
		b := MustNew(3, 4)
		s, err := MatmulShape(a, b, false, false)
		require.NoError(t, err)
		assert.True(t, s.Equal(MustNew(2, 4)))
	})
	t.Run("transpose left", func(t *testing.T) {
		a := MustNew(3, 2)
		b := MustNew(3, 4)
		s, err := MatmulShape(a, b, true, false)
		require.NoError(t, err)
		assert.True(t, s.Equal(MustNew(2, 4)))
	})
	t.Run("mismatch is an error", func(t *testing.T) {
		a := MustNew(2, 3)
		b := MustNew(5, 4)
		_, err := MatmulShape(a, b, false, false)
		assert.Error(t, err)
	})
}

func TestCompatible(t *testing.T) {
	a := MustNew(2, 6)
	b := MustNew(3, 4)
	c := MustNew(4, 4)
	assert.True(t, a.Compatible(b))
	assert.False(t, a.Compatible(c))
}
