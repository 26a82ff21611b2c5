package swarm

import (
	"math"

	"github.com/driftd/drift/internal/counters"
	"github.com/driftd/drift/internal/tracker"
)

// announcerFields is called by announcer goroutines, hence the lock on bitfield.
func (t *transfer) announcerFields() tracker.Torrent {
	tr := tracker.Torrent{
		InfoHash:        t.infoHash,
		PeerID:          t.peerID,
		Port:            t.port,
		BytesDownloaded: t.counters.Read(counters.BytesDownloaded),
		BytesUploaded:   t.counters.Read(counters.BytesUploaded),
	}
	t.mBitfield.RLock()
	if t.bitfield == nil {
		// Some trackers don't send any peers if left is zero.
		// The exact amount left is unknown until the metadata is downloaded.
		tr.BytesLeft = math.MaxUint32
	} else {
		tr.BytesLeft = t.info.TotalLength - t.bytesComplete()
	}
	t.mBitfield.RUnlock()
	return tr
}

// announceDHT registers a peer request with the session's DHT node.
func (t *transfer) announceDHT() {
	t.session.mPeerRequests.Lock()
	t.session.dhtPeerRequests[t] = struct{}{}
	t.session.mPeerRequests.Unlock()
}

func (t *transfer) bytesComplete() int64 {
	if t.bitfield == nil || len(t.pieces) == 0 {
		return 0
	}
	n := int64(t.info.PieceLength) * int64(t.bitfield.Count())
	if t.bitfield.Test(t.bitfield.Len() - 1) {
		n -= int64(t.info.PieceLength)
		n += int64(t.pieces[t.bitfield.Len()-1].Length)
	}
	return n
}
