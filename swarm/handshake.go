package swarm

import (
	"net"

	"github.com/driftd/drift/internal/handshaker/incominghandshaker"
	"github.com/driftd/drift/internal/handshaker/outgoinghandshaker"
	"github.com/driftd/drift/internal/peersource"
)

func (t *transfer) checkInfoHash(infoHash [20]byte) bool {
	return infoHash == t.infoHash
}

func (t *transfer) handleIncomingHandshakeDone(ih *incominghandshaker.IncomingHandshaker) {
	delete(t.incomingHandshakers, ih)
	if ih.Error != nil {
		delete(t.connectedPeerIPs, ih.Conn.RemoteAddr().(*net.TCPAddr).IP.String())
		return
	}
	t.startPeer(ih.Conn, peersource.Incoming, t.incomingPeers, ih.PeerID, ih.Extensions)
}

func (t *transfer) handleOutgoingHandshakeDone(oh *outgoinghandshaker.OutgoingHandshaker) {
	delete(t.outgoingHandshakers, oh)
	if oh.Error != nil {
		delete(t.connectedPeerIPs, oh.Addr.IP.String())
		t.addrList.MarkFailed(oh.Addr, oh.Source, t.addrList.Attempts(oh.Addr))
		t.dialAddresses()
		return
	}
	t.startPeer(oh.Conn, oh.Source, t.outgoingPeers, oh.PeerID, oh.Extensions)
}
