package filesection

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFile struct {
	b []byte
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, f.b[off:]), nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	return copy(f.b[off:], p), nil
}

func TestReadAtSpansBoundary(t *testing.T) {
	f1 := &memFile{b: []byte("01234")}
	f2 := &memFile{b: []byte("56789")}
	s := Sections{
		{File: f1, Offset: 0, Length: 5},
		{File: f2, Offset: 0, Length: 5},
	}
	buf := make([]byte, 4)
	_, err := s.ReadAt(buf, 3)
	require.NoError(t, err)
	assert.Equal(t, "3456", string(buf))
}

func TestWriteSpansBoundary(t *testing.T) {
	f1 := &memFile{b: make([]byte, 5)}
	f2 := &memFile{b: make([]byte, 5)}
	s := Sections{
		{File: f1, Offset: 0, Length: 5},
		{File: f2, Offset: 0, Length: 5},
	}
	n, err := s.Write([]byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "01234", string(f1.b))
	assert.Equal(t, "56789", string(f2.b))
}

func TestReader(t *testing.T) {
	f := &memFile{b: []byte("abcdef")}
	s := Sections{
		{File: f, Offset: 1, Length: 2},
		{File: f, Offset: 4, Length: 2},
	}
	var buf bytes.Buffer
	_, err := buf.ReadFrom(s.Reader())
	require.NoError(t, err)
	assert.Equal(t, "bcef", buf.String())
}
