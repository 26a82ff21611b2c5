// Package peerset provides a set data structure for pointers to peers.
package peerset

import (
	"github.com/driftd/drift/internal/peer"
)

// PeerSet is a slice of Peers with set operations. Membership tests are
// linear scans; the sets stay small enough for that to be fine.
type PeerSet struct {
	Peers []*peer.Peer
}

func (s *PeerSet) index(pe *peer.Peer) int {
	for i, p := range s.Peers {
		if p == pe {
			return i
		}
	}
	return -1
}

// Add puts the peer into the set. Returns false if it was already present.
func (s *PeerSet) Add(pe *peer.Peer) bool {
	if s.index(pe) != -1 {
		return false
	}
	s.Peers = append(s.Peers, pe)
	return true
}

// Remove takes the peer out of the set. Returns false if it was not present.
func (s *PeerSet) Remove(pe *peer.Peer) bool {
	i := s.index(pe)
	if i == -1 {
		return false
	}
	last := len(s.Peers) - 1
	s.Peers[i] = s.Peers[last]
	s.Peers = s.Peers[:last]
	return true
}

// Has returns true if the set contains the peer.
func (s *PeerSet) Has(pe *peer.Peer) bool {
	return s.index(pe) != -1
}

// Len returns the number of peers in the set.
func (s *PeerSet) Len() int {
	return len(s.Peers)
}
