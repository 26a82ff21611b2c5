// Package incominghandshaker completes the wire handshake on accepted
// connections.
package incominghandshaker

import (
	"io"
	"net"
	"time"

	"github.com/driftd/drift/internal/logger"
	"github.com/driftd/drift/internal/peerwire"
)

// IncomingHandshaker runs the wire handshake on one accepted connection and
// reports itself on a result channel when done.
type IncomingHandshaker struct {
	Conn       net.Conn
	PeerID     [20]byte
	Extensions [8]byte
	Error      error

	closeC chan struct{}
	doneC  chan struct{}
}

// New returns an IncomingHandshaker for an accepted net.Conn.
func New(conn net.Conn) *IncomingHandshaker {
	return &IncomingHandshaker{
		Conn:   conn,
		closeC: make(chan struct{}),
		doneC:  make(chan struct{}),
	}
}

// Close aborts the handshake and waits for Run to return. The connection is
// closed if the handshake is still in flight.
func (h *IncomingHandshaker) Close() {
	close(h.closeC)
	<-h.doneC
}

// Run the handshake. Must be run in its own goroutine.
func (h *IncomingHandshaker) Run(peerID [20]byte, checkInfoHashFunc func([20]byte) bool, resultC chan *IncomingHandshaker, timeout time.Duration, ourExtensions [8]byte) {
	defer close(h.doneC)
	defer func() {
		select {
		case resultC <- h:
		case <-h.closeC:
			h.Conn.Close()
		}
	}()

	log := logger.New("conn <- " + h.Conn.RemoteAddr().String())

	peerExtensions, remoteID, _, err := peerwire.Accept(h.Conn, timeout, checkInfoHashFunc, ourExtensions, peerID)
	if err != nil {
		logHandshakeFailure(log, err)
		h.Error = err
		return
	}
	log.Debugf("Connection accepted. (extensions=%x client=%q)", peerExtensions, remoteID[:8])

	h.PeerID = remoteID
	h.Extensions = peerExtensions
}

// logHandshakeFailure keeps routine disconnects at debug level.
func logHandshakeFailure(log logger.Logger, err error) {
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
		log.Debugln("cannot complete incoming handshake:", err)
	}
}
