package swarm

import (
	"github.com/driftd/drift/internal/infodownloader"
	"github.com/driftd/drift/internal/peer"
	"github.com/driftd/drift/internal/piecedownloader"
)

func (t *transfer) close() {
	// Stop if running.
	t.stop(errClosed)

	// Maybe we are in "Stopping" state. Close the stopped event announcer.
	if t.stoppedEventAnnouncer != nil {
		t.stoppedEventAnnouncer.Close()
		t.stoppedEventAnnouncer = nil
	}

	t.downloadSpeed.Stop()
	t.uploadSpeed.Stop()
}

func (t *transfer) closePeer(pe *peer.Peer) {
	if _, ok := t.peers[pe]; !ok {
		return
	}
	pe.Close()
	if pd, ok := t.pieceDownloaders[pe]; ok {
		t.closePieceDownloader(pd)
	}
	if id, ok := t.infoDownloaders[pe]; ok {
		t.closeInfoDownloader(id)
	}
	t.forgetPeer(pe)
	if t.piecePicker != nil {
		t.piecePicker.HandleDisconnect(pe)
	}
	t.unchoker.HandleDisconnect(pe)
	t.dialAddresses()
}

// forgetPeer drops the peer from every membership index.
func (t *transfer) forgetPeer(pe *peer.Peer) {
	delete(t.peers, pe)
	delete(t.incomingPeers, pe)
	delete(t.outgoingPeers, pe)
	delete(t.peerIDs, pe.ID)
	delete(t.connectedPeerIPs, pe.Conn.IP())
}

func (t *transfer) closePieceDownloader(pd *piecedownloader.PieceDownloader) {
	pe := pd.Peer.(*peer.Peer)
	if _, open := t.pieceDownloaders[pe]; !open {
		return
	}
	delete(t.pieceDownloaders, pe)
	delete(t.pieceDownloadersSnubbed, pe)
	delete(t.pieceDownloadersChoked, pe)
	if t.piecePicker != nil {
		t.piecePicker.HandleCancelDownload(pe, pd.Piece.Index)
	}
	pe.Downloading = false
}

func (t *transfer) closeInfoDownloader(id *infodownloader.InfoDownloader) {
	pe := id.Peer.(*peer.Peer)
	delete(t.infoDownloaders, pe)
	delete(t.infoDownloadersSnubbed, pe)
}
