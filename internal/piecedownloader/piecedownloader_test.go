package piecedownloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftd/drift/internal/bufferpool"
	"github.com/driftd/drift/internal/piece"
)

type testPeer struct {
	requested [][3]uint32
	cancelled [][3]uint32
}

func (p *testPeer) RequestPiece(index, begin, length uint32) {
	p.requested = append(p.requested, [3]uint32{index, begin, length})
}

func (p *testPeer) CancelPiece(index, begin, length uint32) {
	p.cancelled = append(p.cancelled, [3]uint32{index, begin, length})
}

func newDownloader(length uint32) (*PieceDownloader, *testPeer) {
	pi := &piece.Piece{Index: 7, Length: length}
	pe := &testPeer{}
	pool := bufferpool.New(int(length))
	return New(pi, pe, pool.Get(int(length))), pe
}

func TestRequestBlocksQueueLimit(t *testing.T) {
	d, pe := newDownloader(4 * piece.BlockSize)
	d.RequestBlocks(2)
	assert.Len(t, pe.requested, 2)
	assert.Equal(t, [3]uint32{7, 0, piece.BlockSize}, pe.requested[0])
	assert.Equal(t, [3]uint32{7, piece.BlockSize, piece.BlockSize}, pe.requested[1])
}

func TestGotBlock(t *testing.T) {
	d, _ := newDownloader(2 * piece.BlockSize)
	d.RequestBlocks(4)

	data := make([]byte, piece.BlockSize)
	require.NoError(t, d.GotBlock(0, data))
	assert.False(t, d.Done())
	require.NoError(t, d.GotBlock(piece.BlockSize, data))
	assert.True(t, d.Done())

	assert.Equal(t, ErrBlockDuplicate, d.GotBlock(0, data))
	assert.Equal(t, ErrBlockInvalid, d.GotBlock(1, data))
	assert.Equal(t, ErrBlockInvalid, d.GotBlock(0, data[:5]))
}

func TestGotBlockNotRequested(t *testing.T) {
	d, _ := newDownloader(2 * piece.BlockSize)
	data := make([]byte, piece.BlockSize)
	assert.Equal(t, ErrBlockNotRequested, d.GotBlock(0, data))
}

func TestChokedRequeues(t *testing.T) {
	d, pe := newDownloader(2 * piece.BlockSize)
	d.RequestBlocks(4)
	assert.Len(t, pe.requested, 2)

	d.Choked()
	d.RequestBlocks(4)
	// Blocks are requested again after choke-unchoke cycle.
	assert.Len(t, pe.requested, 4)
}

func TestRejected(t *testing.T) {
	d, pe := newDownloader(2 * piece.BlockSize)
	d.RequestBlocks(4)
	require.True(t, d.Rejected(0, piece.BlockSize))
	assert.False(t, d.Rejected(5, piece.BlockSize))

	d.RequestBlocks(4)
	assert.Len(t, pe.requested, 3)
}

func TestCancelPending(t *testing.T) {
	d, pe := newDownloader(2 * piece.BlockSize)
	d.RequestBlocks(4)
	d.CancelPending()
	assert.Len(t, pe.cancelled, 2)
}
