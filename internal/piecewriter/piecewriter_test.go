package piecewriter

import (
	"crypto/sha1"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftd/drift/internal/bufferpool"
	"github.com/driftd/drift/internal/filesection"
	"github.com/driftd/drift/internal/piece"
	"github.com/driftd/drift/internal/semaphore"
)

func testPiece(t *testing.T, data []byte) (*piece.Piece, *os.File) {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "data.bin"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	require.NoError(t, f.Truncate(int64(len(data))))
	return pieceOver(f, data), f
}

func pieceOver(f filesection.ReadWriterAt, data []byte) *piece.Piece {
	sum := sha1.Sum(data)
	return &piece.Piece{
		Length: uint32(len(data)),
		Hash:   sum[:],
		Data: filesection.Sections{
			{File: f, Offset: 0, Length: int64(len(data)), Name: "data.bin"},
		},
	}
}

func runWriter(t *testing.T, pi *piece.Piece, data []byte, maxRetries int) *PieceWriter {
	t.Helper()
	buf := bufferpool.New(len(data)).Get(len(data))
	copy(buf.Data, data)
	w := New(pi, nil, buf)
	resultC := make(chan *PieceWriter, 1)
	go w.Run(resultC, nil, metrics.NilMeter{}, metrics.NilMeter{}, semaphore.New(1), maxRetries)
	select {
	case got := <-resultC:
		require.Same(t, w, got)
	case <-time.After(5 * time.Second):
		t.Fatal("writer did not finish")
	}
	return w
}

func TestWriteVerifiedPiece(t *testing.T) {
	data := []byte("hello piece data")
	pi, f := testPiece(t, data)

	w := runWriter(t, pi, data, 0)
	assert.True(t, w.HashOK)
	assert.NoError(t, w.Error)

	written := make([]byte, len(data))
	_, err := f.ReadAt(written, 0)
	require.NoError(t, err)
	assert.Equal(t, data, written)
}

func TestCorruptPieceIsNotWritten(t *testing.T) {
	data := []byte("hello piece data")
	pi, f := testPiece(t, data)

	corrupt := make([]byte, len(data))
	copy(corrupt, data)
	corrupt[0] ^= 0xff
	w := runWriter(t, pi, corrupt, 0)
	assert.False(t, w.HashOK)
	assert.NoError(t, w.Error)

	// The file must keep its previous content.
	written := make([]byte, len(data))
	_, err := f.ReadAt(written, 0)
	require.NoError(t, err)
	assert.NotEqual(t, corrupt, written)
}

// flakyFile fails the first failures writes, then behaves like a file.
type flakyFile struct {
	failures int
	attempts int
	data     []byte
}

func (f *flakyFile) ReadAt(p []byte, off int64) (int, error) {
	copy(p, f.data[off:])
	return len(p), nil
}

func (f *flakyFile) WriteAt(p []byte, off int64) (int, error) {
	f.attempts++
	if f.attempts <= f.failures {
		return 0, errors.New("input/output error")
	}
	copy(f.data[off:], p)
	return len(p), nil
}

func TestWriteRetriesTransientError(t *testing.T) {
	data := []byte("hello piece data")
	ff := &flakyFile{failures: 2, data: make([]byte, len(data))}
	pi := pieceOver(ff, data)

	w := runWriter(t, pi, data, 3)
	assert.True(t, w.HashOK)
	assert.NoError(t, w.Error)
	assert.Equal(t, 3, ff.attempts)
	assert.Equal(t, data, ff.data)
}

func TestWriteGivesUpAfterRetries(t *testing.T) {
	data := []byte("hello piece data")
	ff := &flakyFile{failures: 1000, data: make([]byte, len(data))}
	pi := pieceOver(ff, data)

	w := runWriter(t, pi, data, 2)
	assert.True(t, w.HashOK)
	assert.Error(t, w.Error)
	// The first attempt plus two retries.
	assert.Equal(t, 3, ff.attempts)
}
