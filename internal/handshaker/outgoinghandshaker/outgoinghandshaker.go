// Package outgoinghandshaker dials peers and completes the wire handshake.
package outgoinghandshaker

import (
	"io"
	"net"
	"time"

	"github.com/driftd/drift/internal/logger"
	"github.com/driftd/drift/internal/peersource"
	"github.com/driftd/drift/internal/peerwire"
)

// OutgoingHandshaker dials one peer address, runs the wire handshake and
// reports itself on a result channel. Source remembers where the address
// came from so failures can be attributed.
type OutgoingHandshaker struct {
	Addr       *net.TCPAddr
	Source     peersource.Source
	Conn       net.Conn
	PeerID     [20]byte
	Extensions [8]byte
	Error      error

	closeC chan struct{}
	doneC  chan struct{}
}

// New returns an OutgoingHandshaker for a TCP address.
func New(addr *net.TCPAddr, source peersource.Source) *OutgoingHandshaker {
	return &OutgoingHandshaker{
		Addr:   addr,
		Source: source,
		closeC: make(chan struct{}),
		doneC:  make(chan struct{}),
	}
}

// Close aborts the dial or handshake and waits for Run to return.
func (h *OutgoingHandshaker) Close() {
	close(h.closeC)
	<-h.doneC
}

// Run dials the address and does the handshake. Must be run in its own
// goroutine.
func (h *OutgoingHandshaker) Run(dialTimeout, handshakeTimeout time.Duration, peerID, infoHash [20]byte, resultC chan *OutgoingHandshaker, ourExtensions [8]byte) {
	defer close(h.doneC)
	log := logger.New("peer -> " + h.Addr.String())

	conn, peerExtensions, remoteID, err := peerwire.Dial(h.Addr, dialTimeout, handshakeTimeout, ourExtensions, infoHash, peerID, h.closeC)
	if err != nil {
		logDialFailure(log, err)
		h.Error = err
		select {
		case resultC <- h:
		case <-h.closeC:
		}
		return
	}
	log.Debugf("Connected to peer. (extensions=%x client=%q)", peerExtensions, remoteID[:8])

	h.Conn = conn
	h.PeerID = remoteID
	h.Extensions = peerExtensions

	select {
	case resultC <- h:
	case <-h.closeC:
		conn.Close()
	}
}

// logDialFailure keeps routine disconnects at debug level; only unexpected
// errors surface as errors.
func logDialFailure(log logger.Logger, err error) {
	switch err.(type) {
	case *net.OpError:
		log.Debugln("net operation error:", err)
		return
	case *peerwire.Error:
		log.Debugln("protocol error:", err)
		return
	}
	switch err {
	case io.EOF:
		log.Debug("peer has closed the connection: EOF")
	case io.ErrUnexpectedEOF:
		log.Debug("peer has closed the connection: Unexpected EOF")
	default:
		log.Errorln("cannot complete outgoing handshake:", err)
	}
}
