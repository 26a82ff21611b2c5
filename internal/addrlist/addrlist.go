// Package addrlist provides a bounded pool of candidate peer addresses to dial.
package addrlist

import (
	"net"
	"time"

	"github.com/google/btree"

	"github.com/driftd/drift/internal/peersource"
)

const (
	// Cooldown after the first dial failure. Doubled on each consecutive failure.
	failureCooldown    = 30 * time.Second
	maxFailureCooldown = 15 * time.Minute
	// Applied when the peer misbehaves after the connection is established.
	penaltyDuration = 30 * time.Minute
)

// AddrList contains the addresses of the peers not connected yet.
// The newest addresses are dialed first. Addresses of failed dials are kept
// with a cooldown so they can be retried later instead of being hammered.
type AddrList struct {
	peerAddrs     *btree.BTree
	byAddr        map[string]*peerAddr
	maxItems      int
	listenPort    int
	countBySource map[peersource.Source]int
}

// New returns a new AddrList that keeps at most maxItems addresses.
func New(maxItems int, listenPort int) *AddrList {
	return &AddrList{
		peerAddrs:     btree.New(2),
		byAddr:        make(map[string]*peerAddr),
		maxItems:      maxItems,
		listenPort:    listenPort,
		countBySource: make(map[peersource.Source]int),
	}
}

// Reset empties the list.
func (d *AddrList) Reset() {
	d.peerAddrs.Clear(false)
	d.byAddr = make(map[string]*peerAddr)
	d.countBySource = make(map[peersource.Source]int)
}

// Len returns the number of addresses in the list.
func (d *AddrList) Len() int {
	return d.peerAddrs.Len()
}

// LenSource returns the number of addresses from the given source.
func (d *AddrList) LenSource(s peersource.Source) int {
	return d.countBySource[s]
}

// Pop returns the newest dialable address. Addresses in cooldown are skipped.
func (d *AddrList) Pop() (*net.TCPAddr, peersource.Source) {
	now := time.Now()
	var skipped []*peerAddr
	var found *peerAddr
	for d.peerAddrs.Len() > 0 {
		p := d.peerAddrs.DeleteMax().(*peerAddr)
		if p.bannedUntil.After(now) {
			skipped = append(skipped, p)
			continue
		}
		found = p
		break
	}
	for _, p := range skipped {
		d.peerAddrs.ReplaceOrInsert(p)
	}
	if found == nil {
		return nil, 0
	}
	delete(d.byAddr, found.addr.String())
	d.countBySource[found.source]--
	return found.addr, found.source
}

// Push adds the addresses to the list.
// Invalid addresses and our own listen address are discarded.
func (d *AddrList) Push(addrs []*net.TCPAddr, source peersource.Source) {
	now := time.Now()
	for _, ad := range addrs {
		// 0 port is invalid
		if ad.Port == 0 {
			continue
		}
		// Discard own client
		if ad.IP.IsLoopback() && ad.Port == d.listenPort {
			continue
		}
		key := ad.String()
		if p, ok := d.byAddr[key]; ok {
			d.peerAddrs.Delete(p)
			p.timestamp = now
			d.peerAddrs.ReplaceOrInsert(p)
		} else {
			p = &peerAddr{
				addr:      ad,
				timestamp: now,
				source:    source,
			}
			d.byAddr[key] = p
			d.peerAddrs.ReplaceOrInsert(p)
			d.countBySource[source]++
		}
	}
	d.trim()
}

// MarkFailed must be called after a dial attempt to the address has failed.
// The address is put back into the list with an exponentially growing cooldown.
func (d *AddrList) MarkFailed(ad *net.TCPAddr, source peersource.Source, attempts int) {
	attempts++
	cooldown := failureCooldown << (attempts - 1)
	if cooldown > maxFailureCooldown || cooldown <= 0 {
		cooldown = maxFailureCooldown
	}
	d.insertWithBan(ad, source, attempts, time.Now().Add(cooldown))
}

// Penalize bans the address for a long duration.
// Must be called when a connected peer misbehaves.
func (d *AddrList) Penalize(ad *net.TCPAddr, source peersource.Source) {
	d.insertWithBan(ad, source, 0, time.Now().Add(penaltyDuration))
}

// Attempts returns the number of consecutive dial failures recorded for the address.
func (d *AddrList) Attempts(ad *net.TCPAddr) int {
	if p, ok := d.byAddr[ad.String()]; ok {
		return p.attempts
	}
	return 0
}

func (d *AddrList) insertWithBan(ad *net.TCPAddr, source peersource.Source, attempts int, bannedUntil time.Time) {
	key := ad.String()
	if p, ok := d.byAddr[key]; ok {
		d.peerAddrs.Delete(p)
		p.attempts = attempts
		p.bannedUntil = bannedUntil
		d.peerAddrs.ReplaceOrInsert(p)
		return
	}
	p := &peerAddr{
		addr:        ad,
		timestamp:   time.Now(),
		source:      source,
		attempts:    attempts,
		bannedUntil: bannedUntil,
	}
	d.byAddr[key] = p
	d.peerAddrs.ReplaceOrInsert(p)
	d.countBySource[source]++
	d.trim()
}

// Oldest addresses are dropped first.
func (d *AddrList) trim() {
	for d.peerAddrs.Len() > d.maxItems {
		p := d.peerAddrs.DeleteMin().(*peerAddr)
		delete(d.byAddr, p.addr.String())
		d.countBySource[p.source]--
	}
}
