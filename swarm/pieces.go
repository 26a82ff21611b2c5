package swarm

import (
	"time"

	"github.com/driftd/drift/internal/counters"
	"github.com/driftd/drift/internal/peer"
	"github.com/driftd/drift/internal/peerprotocol"
	"github.com/driftd/drift/internal/piecewriter"
)

func (t *transfer) handlePieceWriteDone(pw *piecewriter.PieceWriter) {
	pw.Piece.Writing = false

	t.pieceMessagesC.Resume()

	pw.Buffer.Release()

	if !pw.HashOK {
		t.counters.Incr(counters.BytesWasted, int64(pw.Piece.Length))
		switch src := pw.Source.(type) {
		case *peer.Peer:
			t.log.Debugln("received corrupt piece from peer", src.String())
			t.banPeer(src)
		}
		t.startPieceDownloaders()
		return
	}
	if pw.Error != nil {
		t.stop(pw.Error)
		return
	}

	pw.Piece.Done = true
	t.mBitfield.Lock()
	t.bitfield.Set(pw.Piece.Index)
	t.mBitfield.Unlock()

	t.publishEvent(EventProgress, "")

	// Cancel duplicate downloads of the completed piece in endgame.
	for _, pe := range t.piecePicker.RequestedPeers(pw.Piece.Index) {
		pd2, ok := t.pieceDownloaders[pe]
		if !ok {
			continue
		}
		pd2.CancelPending()
		t.closePieceDownloader(pd2)
		t.startPieceDownloaderFor(pe)
	}

	// Tell everyone that we have this piece.
	for pe := range t.peers {
		t.updateInterestedState(pe)
		if pe.Bitfield.Test(pw.Piece.Index) {
			// Skip peers having the piece to save bandwidth.
			continue
		}
		msg := peerprotocol.HaveMessage{Index: pw.Piece.Index}
		pe.SendMessage(msg)
	}

	completed := t.checkCompletion()
	if completed {
		t.log.Info("download completed")
	}
}

func (t *transfer) checkCompletion() bool {
	if t.completed {
		return true
	}
	if !t.bitfield.All() {
		return false
	}
	// Data must be on stable storage before anyone hears about completion.
	if err := t.syncFiles(); err != nil {
		t.stop(err)
		return false
	}
	t.completed = true
	close(t.completeC)
	t.log.Info("all pieces are downloaded and verified")
	_ = t.writeBitfield()
	t.publishEvent(EventCompleted, "")
	t.stopOutgoingHandshakers()
	for pe := range t.peers {
		if !pe.PeerInterested {
			t.closePeer(pe)
		}
	}
	t.addrList.Reset()
	for _, pd := range t.pieceDownloaders {
		pd.CancelPending()
		t.closePieceDownloader(pd)
	}
	t.piecePicker = nil
	t.updateSeedDuration(time.Now())
	return true
}

func (t *transfer) syncFiles() error {
	for _, f := range t.files {
		if err := f.Storage.Sync(); err != nil {
			return err
		}
	}
	return nil
}
