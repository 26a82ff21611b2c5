package swarm

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/nictuku/dht"
)

// dhtPeerRequestInterval limits how often a single peer request is sent to
// the DHT node, to keep the node well behaved.
const dhtPeerRequestInterval = time.Second

// processDHTResults fans peer addresses coming from the DHT node out to the
// swarms that asked for them.
func (s *Session) processDHTResults() {
	requestTicker := time.NewTicker(dhtPeerRequestInterval)
	defer requestTicker.Stop()
	for {
		select {
		case <-requestTicker.C:
			s.sendNextDHTPeerRequest()
		case res := <-s.dht.PeersRequestResults:
			for ih, peers := range res {
				s.deliverDHTPeers(ih, decodeDHTPeers(peers))
			}
		case <-s.closeC:
			return
		}
	}
}

// sendNextDHTPeerRequest pops one pending request and forwards it to the node.
func (s *Session) sendNextDHTPeerRequest() {
	s.mPeerRequests.Lock()
	defer s.mPeerRequests.Unlock()
	for t := range s.dhtPeerRequests {
		s.dht.PeersRequest(string(t.infoHash[:]), true)
		delete(s.dhtPeerRequests, t)
		return
	}
}

func (s *Session) deliverDHTPeers(ih dht.InfoHash, addrs []*net.TCPAddr) {
	s.mTransfers.RLock()
	defer s.mTransfers.RUnlock()
	for _, sw := range s.transfersByInfoHash[ih] {
		select {
		case sw.transfer.dhtPeersC <- addrs:
		case <-sw.transfer.doneC:
		default:
		}
	}
}

// decodeDHTPeers converts 6-byte compact peer strings into TCP addresses.
// Entries of any other length are skipped; only IPv4 is supported.
func decodeDHTPeers(peers []string) []*net.TCPAddr {
	addrs := make([]*net.TCPAddr, 0, len(peers))
	for _, p := range peers {
		if len(p) != 6 {
			continue
		}
		addrs = append(addrs, &net.TCPAddr{
			IP:   net.IP(p[:4]),
			Port: int(binary.BigEndian.Uint16([]byte(p[4:6]))),
		})
	}
	return addrs
}
