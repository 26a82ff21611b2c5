package piecepicker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftd/drift/internal/bitfield"
	"github.com/driftd/drift/internal/peer"
	"github.com/driftd/drift/internal/piece"
)

const (
	numPieces = 7
	numPeers  = 3
)

func TestPiecePicker(t *testing.T) {
	pieces := make([]piece.Piece, numPieces)
	for i := range pieces {
		pieces[i] = newPiece(i)
	}
	peers := make([]*peer.Peer, numPeers)
	for i := range peers {
		peers[i] = newPeer(i)
	}
	pieces[0].Done = true
	pieces[2].Done = true
	pieces[3].Done = true
	pp := New(pieces, 2)
	pp.HandleHave(peers[0], 1)
	pp.HandleHave(peers[0], 3)
	pp.HandleHave(peers[0], 4)
	pp.HandleHave(peers[1], 1)
	pp.HandleHave(peers[2], 5)

	assert.Equal(t, &pieces[4], pp.PickFor(peers[0]))
	assert.False(t, pp.endgame)

	assert.Equal(t, &pieces[1], pp.PickFor(peers[1]))
	assert.False(t, pp.endgame)

	assert.Equal(t, &pieces[5], pp.PickFor(peers[2]))
	assert.False(t, pp.endgame)

	peers = append(peers, newPeer(3))
	pp.HandleHave(peers[3], 5)
	assert.Nil(t, pp.PickFor(peers[3]))
	assert.False(t, pp.endgame)

	pp.HandleSnubbed(peers[2], 5)
	assert.Equal(t, &pieces[5], pp.PickFor(peers[3]))
	assert.False(t, pp.endgame)

	peers = append(peers, newPeer(4))
	pp.HandleHave(peers[4], 6)
	assert.Equal(t, &pieces[6], pp.PickFor(peers[4]))
	assert.False(t, pp.endgame)

	peers = append(peers, newPeer(5))
	pp.HandleHave(peers[5], 0)
	pp.HandleHave(peers[5], 5)
	pp.HandleHave(peers[5], 6)
	assert.Equal(t, &pieces[6], pp.PickFor(peers[5]))
	assert.True(t, pp.endgame)

	peers = append(peers, newPeer(6))
	pp.HandleHave(peers[6], 6)
	assert.Nil(t, pp.PickFor(peers[6]))
	assert.True(t, pp.endgame)
}

func TestRarestLowestIndexTiebreak(t *testing.T) {
	pieces := make([]piece.Piece, 4)
	for i := range pieces {
		pieces[i] = newPiece(i)
	}
	pe := newPeer(0)
	pp := New(pieces, 2)
	for i := uint32(0); i < 4; i++ {
		pp.HandleHave(pe, i)
	}
	// All pieces are equally rare; the lowest index must be picked first.
	assert.Equal(t, &pieces[0], pp.PickFor(pe))
}

func TestAvailability(t *testing.T) {
	pieces := make([]piece.Piece, 3)
	for i := range pieces {
		pieces[i] = newPiece(i)
	}
	pe1 := newPeer(1)
	pe2 := newPeer(2)
	pp := New(pieces, 2)
	assert.Equal(t, uint32(0), pp.Available())
	pp.HandleHave(pe1, 0)
	pp.HandleHave(pe2, 0)
	pp.HandleHave(pe2, 1)
	assert.Equal(t, uint32(2), pp.Available())
	pp.HandleDisconnect(pe2)
	assert.Equal(t, uint32(1), pp.Available())
}

func TestDisconnectReassignsRequestedPiece(t *testing.T) {
	pieces := make([]piece.Piece, 2)
	for i := range pieces {
		pieces[i] = newPiece(i)
	}
	pe1 := newPeer(1)
	pe2 := newPeer(2)
	pp := New(pieces, 2)
	pp.HandleHave(pe1, 0)
	pp.HandleHave(pe2, 0)

	assert.Equal(t, &pieces[0], pp.PickFor(pe1))
	// While the download is in flight the piece must not be handed out again.
	assert.Nil(t, pp.PickFor(pe2))

	// The downloading peer drops mid-piece; the piece becomes assignable.
	pp.HandleDisconnect(pe1)
	assert.Equal(t, &pieces[0], pp.PickFor(pe2))
	assert.Equal(t, []*peer.Peer{pe2}, pp.RequestedPeers(0))
}

func newPiece(i int) piece.Piece {
	return piece.Piece{Index: uint32(i)}
}

func newPeer(i int) *peer.Peer {
	return &peer.Peer{
		ID:       [20]byte{byte(i)},
		Bitfield: bitfield.New(numPieces),
	}
}
