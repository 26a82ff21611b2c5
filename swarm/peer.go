package swarm

import (
	"net"
	"strconv"

	"github.com/driftd/drift/internal/bitfield"
	"github.com/driftd/drift/internal/handshaker/outgoinghandshaker"
	"github.com/driftd/drift/internal/logger"
	"github.com/driftd/drift/internal/peer"
	"github.com/driftd/drift/internal/peerconn"
	"github.com/driftd/drift/internal/peerprotocol"
	"github.com/driftd/drift/internal/peersource"
	"github.com/driftd/drift/internal/unchoker"
)

func (t *transfer) setNeedMorePeers(val bool) {
	for _, an := range t.announcers {
		an.NeedMorePeers(val)
	}
	if t.dhtAnnouncer != nil {
		t.dhtAnnouncer.NeedMorePeers(val)
	}
}

func parsePeerAddr(addr string) ([]*net.TCPAddr, error) {
	hoststr, portstr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port64, err := strconv.ParseUint(portstr, 10, 16)
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(hoststr)
	if ip == nil {
		return nil, net.InvalidAddrError(addr)
	}
	return []*net.TCPAddr{{IP: ip, Port: int(port64)}}, nil
}

func (t *transfer) addPeerString(addr string) error {
	taddr, err := parsePeerAddr(addr)
	if err != nil {
		return err
	}
	t.handleNewPeers(taddr, peersource.Manual)
	return nil
}

func (t *transfer) handleNewPeers(addrs []*net.TCPAddr, source peersource.Source) {
	t.log.Debugf("received %d peers from %s", len(addrs), source)
	t.setNeedMorePeers(false)
	if status := t.status(); status == Stopped || status == Stopping {
		return
	}
	if !t.completed {
		t.addrList.Push(addrs, source)
		t.dialAddresses()
	}
}

func (t *transfer) dialAddresses() {
	if t.completed {
		return
	}
	peersConnected := func() int {
		return len(t.outgoingPeers) + len(t.outgoingHandshakers)
	}
	for peersConnected() < t.session.config.MaxPeerDial {
		addr, src := t.addrList.Pop()
		if addr == nil {
			t.setNeedMorePeers(true)
			return
		}
		ip := addr.IP.String()
		if _, ok := t.connectedPeerIPs[ip]; ok {
			continue
		}
		if _, ok := t.bannedPeerIPs[ip]; ok {
			continue
		}
		h := outgoinghandshaker.New(addr, src)
		t.outgoingHandshakers[h] = struct{}{}
		t.connectedPeerIPs[ip] = struct{}{}
		go h.Run(
			t.session.config.PeerConnectTimeout,
			t.session.config.PeerHandshakeTimeout,
			t.peerID,
			t.infoHash,
			t.outgoingHandshakerResultC,
			t.session.extensions,
		)
	}
}

func (t *transfer) startPeer(
	conn net.Conn,
	source peersource.Source,
	peers map[*peer.Peer]struct{},
	peerID [20]byte,
	extensions [8]byte,
) {
	addr := conn.RemoteAddr().(*net.TCPAddr)
	if _, ok := t.peerIDs[peerID]; ok {
		t.log.Debugf("peer with same id already connected. addr: %s id: %x", addr, peerID[:8])
		conn.Close()
		delete(t.connectedPeerIPs, addr.IP.String())
		t.dialAddresses()
		return
	}
	t.peerIDs[peerID] = struct{}{}

	pc := peerconn.New(conn, logger.New("peer "+addr.String()), t.session.config.PieceReadTimeout, t.session.bucketDownload, t.session.bucketUpload)
	pe := peer.New(pc, source, peerID, extensions, t.session.config.RequestTimeout)
	t.peers[pe] = struct{}{}
	peers[pe] = struct{}{}
	if t.info != nil {
		pe.Bitfield = bitfield.New(t.info.NumPieces)
	}
	go pe.Run(t.messages, t.pieceMessagesC.SendC(), t.peerSnubbedC, t.peerDisconnectedC)
	t.sendFirstMessage(pe)
}

func (t *transfer) sendFirstMessage(p *peer.Peer) {
	bf := t.bitfield
	if bf != nil {
		bitfieldData := make([]byte, len(bf.Bytes()))
		copy(bitfieldData, bf.Bytes())
		msg := peerprotocol.BitfieldMessage{Data: bitfieldData}
		p.SendMessage(msg)
	}
	if p.ExtensionsEnabled {
		var metadataSize uint32
		if t.info != nil {
			metadataSize = uint32(len(t.info.Bytes))
		}
		extHandshakeMsg := peerprotocol.NewExtensionHandshake(
			metadataSize,
			t.session.config.ExtensionHandshakeClientVersion,
			p.Addr().IP,
			t.session.config.MaxRequestsIn,
		)
		msg := peerprotocol.ExtensionMessage{
			ExtendedMessageID: peerprotocol.ExtensionIDHandshake,
			Payload:           extHandshakeMsg,
		}
		p.SendMessage(msg)
	}
	if t.session.dht != nil {
		msg := peerprotocol.PortMessage{Port: t.session.config.DHTPort}
		p.SendMessage(msg)
	}
}

// Process messages received while we had no metadata yet.
func (t *transfer) processQueuedMessages() {
	for pe := range t.peers {
		for _, msg := range pe.Messages {
			pm := peer.Message{Peer: pe, Message: msg}
			t.handlePeerMessage(pm)
		}
		pe.Messages = nil
	}
}

func (t *transfer) handlePeerSnubbed(pe *peer.Peer) {
	// Mark the slow peer as snubbed so the piece picker skips it.
	if pd, ok := t.pieceDownloaders[pe]; ok {
		// Snub timer is stopped on choke message but may fire anyway.
		if pe.PeerChoking {
			return
		}
		pe.Snubbed = true
		t.pieceDownloadersSnubbed[pe] = pd
		if t.piecePicker != nil {
			t.piecePicker.HandleSnubbed(pe, pd.Piece.Index)
		}
		t.startPieceDownloaders()
	} else if id, ok := t.infoDownloaders[pe]; ok {
		pe.Snubbed = true
		t.infoDownloadersSnubbed[pe] = id
		t.startInfoDownloaders()
	}
}

func (t *transfer) getPeersForUnchoker() []unchoker.Peer {
	peers := make([]unchoker.Peer, 0, len(t.peers))
	for pe := range t.peers {
		peers = append(peers, pe)
	}
	return peers
}

func (t *transfer) updateInterestedState(pe *peer.Peer) {
	if t.pieces == nil || t.bitfield == nil {
		return
	}
	interested := false
	if !t.completed {
		for i := uint32(0); i < t.bitfield.Len(); i++ {
			weHave := t.bitfield.Test(i)
			peerHave := pe.Bitfield.Test(i)
			if !weHave && peerHave {
				interested = true
				break
			}
		}
	}
	if !pe.AmInterested && interested {
		pe.AmInterested = true
		pe.SendMessage(peerprotocol.InterestedMessage{})
		return
	}
	if pe.AmInterested && !interested {
		pe.AmInterested = false
		pe.SendMessage(peerprotocol.NotInterestedMessage{})
	}
}
