// Package piecepicker selects the next piece to download from a peer.
package piecepicker

import (
	"sort"

	"github.com/driftd/drift/internal/peer"
	"github.com/driftd/drift/internal/peerset"
	"github.com/driftd/drift/internal/piece"
)

/*

A piece is a candidate for a peer when all of these hold:

  * The piece is not done (hash checked and written to disk) and not being written
  * The peer advertises the piece
  * The peer is not choking us and has no download in flight already
  * The piece is not requested from someone else, unless we are in endgame
    or the existing download has stalled (its peer got snubbed or choked)

Keep this list in mind when touching the selection order below.

*/

// PiecePicker decides which piece to download next and from which peer.
// It tracks which peers advertise which pieces.
type PiecePicker struct {
	pieces         []pickerPiece
	byAvailability []*pickerPiece
	byStalled      []*pickerPiece
	duplicateLimit int
	available      uint32
	endgame        bool
}

type pickerPiece struct {
	*piece.Piece
	Having    peerset.PeerSet
	Requested peerset.PeerSet
	Snubbed   peerset.PeerSet
	Choked    peerset.PeerSet
}

// RunningDownloads returns the number of downloads of the piece that are
// making progress. Stalled downloads are not counted.
func (p *pickerPiece) RunningDownloads() int {
	return p.Requested.Len() - p.StalledDownloads()
}

// StalledDownloads returns the number of downloads whose peers are snubbed or choked.
func (p *pickerPiece) StalledDownloads() int {
	return p.Snubbed.Len() + p.Choked.Len()
}

// New returns a new PiecePicker.
func New(pieces []piece.Piece, maxDuplicateDownload int) *PiecePicker {
	ps := make([]pickerPiece, len(pieces))
	byAvail := make([]*pickerPiece, len(pieces))
	byStall := make([]*pickerPiece, len(pieces))
	for i := range pieces {
		ps[i] = pickerPiece{Piece: &pieces[i]}
		byAvail[i] = &ps[i]
		byStall[i] = &ps[i]
	}
	return &PiecePicker{
		pieces:         ps,
		byAvailability: byAvail,
		byStalled:      byStall,
		duplicateLimit: maxDuplicateDownload,
	}
}

// Available returns the number of distinct pieces available among connected peers.
func (p *PiecePicker) Available() uint32 { return p.available }

// InEndgame returns true if all missing pieces have at least one download in flight.
func (p *PiecePicker) InEndgame() bool { return p.endgame }

// RequestedPeers returns the peers the piece at index i is requested from.
func (p *PiecePicker) RequestedPeers(i uint32) []*peer.Peer {
	return p.pieces[i].Requested.Peers
}

// HandleHave records that the peer advertises the piece at index i.
func (p *PiecePicker) HandleHave(pe *peer.Peer, i uint32) {
	pe.Bitfield.Set(i)
	pp := &p.pieces[i]
	if pp.Having.Add(pe) && pp.Having.Len() == 1 {
		p.available++
	}
}

// HandleSnubbed must be called when the peer stops sending requested blocks in time.
func (p *PiecePicker) HandleSnubbed(pe *peer.Peer, i uint32) {
	if p.pieces[i].Choked.Has(pe) {
		panic("peer snubbed while choked")
	}
	p.pieces[i].Snubbed.Add(pe)
}

// HandleChoke must be called when the remote peer chokes us mid-download.
func (p *PiecePicker) HandleChoke(pe *peer.Peer, i uint32) {
	p.pieces[i].Snubbed.Remove(pe)
	p.pieces[i].Choked.Add(pe)
}

// HandleUnchoke must be called when the remote peer unchokes us mid-download.
func (p *PiecePicker) HandleUnchoke(pe *peer.Peer, i uint32) {
	p.pieces[i].Choked.Remove(pe)
}

// HandleCancelDownload must be called when a piece download is canceled.
func (p *PiecePicker) HandleCancelDownload(pe *peer.Peer, i uint32) {
	p.pieces[i].Requested.Remove(pe)
	p.pieces[i].Snubbed.Remove(pe)
}

// HandleDisconnect removes the peer from all internal indexes. Pieces that
// were requested from the peer become assignable to other peers again.
func (p *PiecePicker) HandleDisconnect(pe *peer.Peer) {
	for i := range p.pieces {
		p.HandleCancelDownload(pe, uint32(i))
		pp := &p.pieces[i]
		if pp.Having.Remove(pe) && pp.Having.Len() == 0 {
			p.available--
		}
	}
}

// PickFor selects the next piece for download from the peer.
func (p *PiecePicker) PickFor(pe *peer.Peer) *piece.Piece {
	pp := p.selectPiece(pe)
	if pp == nil {
		return nil
	}
	pe.Snubbed = false
	pp.Requested.Add(pe)
	return pp.Piece
}

func (p *PiecePicker) selectPiece(pe *peer.Peer) *pickerPiece {
	// One piece per peer at a time, and only when unchoked.
	if pe.Downloading || pe.PeerChoking {
		return nil
	}
	if p.endgame {
		return p.pickDuplicate(pe)
	}
	if pp := p.pickRarest(pe); pp != nil {
		return pp
	}
	// pickRarest may have flipped the endgame switch.
	if p.endgame {
		return p.pickDuplicate(pe)
	}
	return p.pickStalled(pe)
}

// sortPieces orders ps by the key, lowest piece index winning ties.
func sortPieces(ps []*pickerPiece, key func(*pickerPiece) int) {
	sort.Slice(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if ka, kb := key(a), key(b); ka != kb {
			return ka < kb
		}
		return a.Index < b.Index
	})
}

func (p *PiecePicker) pickRarest(pe *peer.Peer) *pickerPiece {
	sortPieces(p.byAvailability, func(pp *pickerPiece) int { return pp.Having.Len() })
	var unrequestedLeft bool
	for _, pp := range p.byAvailability {
		if pp.Done || pp.Writing || pp.Requested.Len() > 0 {
			continue
		}
		if pp.Having.Has(pe) {
			return pp
		}
		unrequestedLeft = true
	}
	if !unrequestedLeft {
		// Every missing piece already has a download in flight.
		p.endgame = true
	}
	return nil
}

func (p *PiecePicker) pickDuplicate(pe *peer.Peer) *pickerPiece {
	sortPieces(p.byAvailability, (*pickerPiece).RunningDownloads)
	for _, pp := range p.byAvailability {
		if pp.Done || pp.Writing {
			continue
		}
		if pp.Requested.Len() < p.duplicateLimit && pp.Having.Has(pe) {
			return pp
		}
	}
	return nil
}

func (p *PiecePicker) pickStalled(pe *peer.Peer) *pickerPiece {
	sortPieces(p.byStalled, (*pickerPiece).StalledDownloads)
	for _, pp := range p.byStalled {
		if pp.Done || pp.Writing || pp.RunningDownloads() > 0 {
			continue
		}
		if pp.Requested.Len() < p.duplicateLimit && pp.Having.Has(pe) {
			return pp
		}
	}
	return nil
}
