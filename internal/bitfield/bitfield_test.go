package bitfield

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitfield(t *testing.T) {
	b := New(10)
	assert.Equal(t, uint32(10), b.Len())
	assert.Equal(t, 2, len(b.Bytes()))
	assert.False(t, b.Test(0))

	b.Set(0)
	b.Set(9)
	assert.True(t, b.Test(0))
	assert.True(t, b.Test(9))
	assert.Equal(t, uint32(2), b.Count())
	assert.Equal(t, "8040", b.Hex())

	b.Clear(0)
	assert.False(t, b.Test(0))
	assert.Equal(t, uint32(1), b.Count())

	for i := uint32(0); i < 10; i++ {
		b.Set(i)
	}
	assert.True(t, b.All())

	b.ClearAll()
	assert.Equal(t, uint32(0), b.Count())
}

func TestNewBytes(t *testing.T) {
	// Unused bits in the last byte must be cleared.
	b, err := NewBytes([]byte{0xff, 0xff}, 10)
	assert.Nil(t, err)
	assert.Equal(t, uint32(10), b.Count())
	assert.Equal(t, "ffc0", b.Hex())

	_, err = NewBytes([]byte{0xff}, 10)
	assert.NotNil(t, err)
}

func TestSetTo(t *testing.T) {
	b := New(3)
	b.SetTo(1, true)
	assert.True(t, b.Test(1))
	b.SetTo(1, false)
	assert.False(t, b.Test(1))
}
