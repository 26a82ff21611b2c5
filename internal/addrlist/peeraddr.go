package addrlist

import (
	"net"
	"time"

	"github.com/google/btree"

	"github.com/driftd/drift/internal/peersource"
)

type peerAddr struct {
	addr      *net.TCPAddr
	timestamp time.Time
	source    peersource.Source

	// Number of consecutive dial failures.
	attempts int

	// The address is not dialed again before this time.
	bannedUntil time.Time
}

var _ btree.Item = (*peerAddr)(nil)

// Less orders addresses so that the most recently seen one is the largest item.
func (p *peerAddr) Less(than btree.Item) bool {
	o := than.(*peerAddr)
	if !p.timestamp.Equal(o.timestamp) {
		return p.timestamp.Before(o.timestamp)
	}
	return p.addr.String() < o.addr.String()
}
