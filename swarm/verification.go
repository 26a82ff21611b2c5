package swarm

import (
	"github.com/driftd/drift/internal/peerprotocol"
	"github.com/driftd/drift/internal/verifier"
)

func (t *transfer) handleVerificationDone(ve *verifier.Verifier) {
	if t.verifier != ve {
		panic("invalid verifier")
	}
	t.verifier = nil

	if ve.Error != nil {
		t.stop(ve.Error)
		return
	}

	t.mBitfield.Lock()
	t.bitfield = ve.Bitfield
	t.mBitfield.Unlock()

	_ = t.writeBitfield()

	for i := uint32(0); i < t.bitfield.Len(); i++ {
		t.pieces[i].Done = t.bitfield.Test(i)
	}

	if completed := t.checkCompletion(); completed {
		t.log.Info("verification done, all pieces are already downloaded")
	}

	t.broadcastHaves()
	t.processQueuedMessages()
	t.addFixedPeers()
	t.startAcceptor()
	t.startAnnouncers()
	t.startPieceDownloaders()
}

// broadcastHaves tells every connected peer which pieces we already have.
func (t *transfer) broadcastHaves() {
	var haves []peerprotocol.HaveMessage
	for i := uint32(0); i < t.bitfield.Len(); i++ {
		if t.bitfield.Test(i) {
			haves = append(haves, peerprotocol.HaveMessage{Index: i})
		}
	}
	for pe := range t.peers {
		for _, msg := range haves {
			pe.SendMessage(msg)
		}
		t.updateInterestedState(pe)
	}
}
