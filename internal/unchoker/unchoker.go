// Package unchoker decides which interested peers may download from us.
package unchoker

import (
	"math/rand"
	"sort"
)

// Peer is the view of a swarm peer the unchoker needs.
type Peer interface {
	// Choke and Unchoke send the message and flip the local choke state.
	Choke()
	Unchoke()
	// Choking reports the local choke state.
	Choking() bool
	// Interested reports whether the remote side wants data from us.
	Interested() bool
	// SetOptimistic marks the peer as the current optimistic unchoke.
	SetOptimistic(value bool)
	Optimistic() bool
	DownloadSpeed() int
	UploadSpeed() int
}

// Unchoker unchokes the fastest interested peers, plus a randomly picked
// peer every third round so new peers get a chance to prove themselves.
type Unchoker struct {
	regularSlots    int
	optimisticSlots int

	// round counts ticks modulo 3; optimistic picks happen on round 0.
	round uint8

	unchoked           map[Peer]struct{}
	unchokedOptimistic map[Peer]struct{}
}

// New returns an Unchoker with the given slot counts.
func New(regularSlots, optimisticSlots int) *Unchoker {
	return &Unchoker{
		regularSlots:       regularSlots,
		optimisticSlots:    optimisticSlots,
		unchoked:           make(map[Peer]struct{}, regularSlots),
		unchokedOptimistic: make(map[Peer]struct{}, regularSlots),
	}
}

// HandleDisconnect forgets a peer that left the swarm.
func (u *Unchoker) HandleDisconnect(pe Peer) {
	delete(u.unchoked, pe)
	delete(u.unchokedOptimistic, pe)
}

// TickUnchoke runs one unchoke round. Call it every 10 seconds.
// While downloading, peers are ranked by what they send us; once the content
// is complete, by what they take from us.
func (u *Unchoker) TickUnchoke(allPeers []Peer, completed bool) {
	optimistic := u.round == 0
	peers := interestedPeers(allPeers)
	if completed {
		sort.Slice(peers, func(i, j int) bool { return peers[i].UploadSpeed() > peers[j].UploadSpeed() })
	} else {
		sort.Slice(peers, func(i, j int) bool { return peers[i].DownloadSpeed() > peers[j].DownloadSpeed() })
	}
	var i, taken int
	for ; i < len(peers) && taken < u.regularSlots; i++ {
		if !optimistic && peers[i].Optimistic() {
			continue
		}
		u.unchokePeer(peers[i])
		taken++
	}
	peers = peers[i:]
	if optimistic {
		for i = 0; i < u.optimisticSlots && len(peers) > 0; i++ {
			n := rand.Intn(len(peers)) // nolint: gosec
			u.unchokePeerOptimistic(peers[n])
			peers[n] = peers[len(peers)-1]
			peers = peers[:len(peers)-1]
		}
	}
	for _, pe := range peers {
		u.chokePeer(pe)
	}
	u.round = (u.round + 1) % 3
}

// FastUnchoke unchokes a peer that just became interested, without waiting
// for the next round, if a slot is free.
func (u *Unchoker) FastUnchoke(pe Peer) {
	if pe.Choking() && pe.Interested() && len(u.unchoked) < u.regularSlots {
		u.unchokePeer(pe)
	}
	if pe.Choking() && pe.Interested() && len(u.unchokedOptimistic) < u.optimisticSlots {
		u.unchokePeerOptimistic(pe)
	}
}

func interestedPeers(allPeers []Peer) []Peer {
	peers := allPeers[:0]
	for _, pe := range allPeers {
		if pe.Interested() {
			peers = append(peers, pe)
		}
	}
	return peers
}

func (u *Unchoker) chokePeer(pe Peer) {
	if pe.Choking() {
		return
	}
	pe.Choke()
	pe.SetOptimistic(false)
	delete(u.unchoked, pe)
	delete(u.unchokedOptimistic, pe)
}

func (u *Unchoker) unchokePeer(pe Peer) {
	if !pe.Choking() {
		if pe.Optimistic() {
			// Promote to a regular slot.
			pe.SetOptimistic(false)
			delete(u.unchokedOptimistic, pe)
			u.unchoked[pe] = struct{}{}
		}
		return
	}
	pe.Unchoke()
	pe.SetOptimistic(false)
	u.unchoked[pe] = struct{}{}
}

func (u *Unchoker) unchokePeerOptimistic(pe Peer) {
	if !pe.Choking() {
		if !pe.Optimistic() {
			// Demote to the optimistic slot.
			pe.SetOptimistic(true)
			delete(u.unchoked, pe)
			u.unchokedOptimistic[pe] = struct{}{}
		}
		return
	}
	pe.Unchoke()
	pe.SetOptimistic(true)
	u.unchokedOptimistic[pe] = struct{}{}
}
