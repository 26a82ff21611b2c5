// Package peerconn wraps a net.Conn with reader and writer goroutines
// speaking the peer wire protocol.
package peerconn

import (
	"net"
	"time"

	"github.com/juju/ratelimit"

	"github.com/driftd/drift/internal/filesection"
	"github.com/driftd/drift/internal/logger"
	"github.com/driftd/drift/internal/peerconn/peerreader"
	"github.com/driftd/drift/internal/peerconn/peerwriter"
	"github.com/driftd/drift/internal/peerprotocol"
)

// Conn is a live peer connection. Incoming messages arrive on one channel;
// outgoing messages are queued with the Send methods.
type Conn struct {
	conn     net.Conn
	reader   *peerreader.PeerReader
	writer   *peerwriter.PeerWriter
	messages chan any
	closeC   chan struct{}
	doneC    chan struct{}
	log      logger.Logger
}

// New wraps an already-handshaked net.Conn. br and bw rate-limit reads and
// writes when not nil.
func New(conn net.Conn, l logger.Logger, pieceTimeout time.Duration, br, bw *ratelimit.Bucket) *Conn {
	return &Conn{
		conn:     conn,
		reader:   peerreader.New(conn, l, pieceTimeout, br),
		writer:   peerwriter.New(conn, l, bw),
		messages: make(chan any),
		closeC:   make(chan struct{}),
		doneC:    make(chan struct{}),
		log:      l,
	}
}

// Run shuttles messages between the reader, the writer and the owner of the
// connection. It returns when either side fails or Close is called, closing
// the underlying net.Conn on the way out.
func (p *Conn) Run() {
	defer close(p.doneC)
	defer close(p.messages)

	p.log.Debugln("communicating peer", p.conn.RemoteAddr())

	go p.reader.Run()
	defer func() { <-p.reader.Done() }()

	go p.writer.Run()
	defer func() { <-p.writer.Done() }()

	defer p.conn.Close()
	for {
		select {
		case msg := <-p.reader.Messages():
			if !p.relay(msg) {
				return
			}
		case msg := <-p.writer.Messages():
			if !p.relay(msg) {
				return
			}
		case <-p.closeC:
			p.reader.Stop()
			p.writer.Stop()
			return
		case <-p.reader.Done():
			p.writer.Stop()
			return
		case <-p.writer.Done():
			p.reader.Stop()
			return
		}
	}
}

func (p *Conn) relay(msg any) bool {
	select {
	case p.messages <- msg:
		return true
	case <-p.closeC:
		return false
	}
}

// Close stops both directions and closes the underlying net.Conn.
func (p *Conn) Close() {
	close(p.closeC)
	<-p.doneC
}

// Messages received from the peer. The channel is closed when Run exits.
func (p *Conn) Messages() <-chan any {
	return p.messages
}

// SendMessage queues a message for sending. Does not block.
func (p *Conn) SendMessage(msg peerprotocol.Message) {
	p.writer.SendMessage(msg)
}

// SendPiece queues a piece message for sending. Does not block.
// The piece data is read from disk just before the message goes out.
func (p *Conn) SendPiece(msg peerprotocol.RequestMessage, ds filesection.Sections) {
	p.writer.SendPiece(msg, ds)
}

// CancelRequest drops a queued piece message matching msg.
func (p *Conn) CancelRequest(msg peerprotocol.CancelMessage) {
	p.writer.CancelRequest(msg)
}

// Addr returns the remote address.
func (p *Conn) Addr() *net.TCPAddr {
	return p.conn.RemoteAddr().(*net.TCPAddr)
}

// IP returns the remote IP as a string.
func (p *Conn) IP() string {
	return p.conn.RemoteAddr().(*net.TCPAddr).IP.String()
}

// String returns the remote address as a string.
func (p *Conn) String() string {
	return p.conn.RemoteAddr().String()
}

// Logger of this connection, prefixed with the peer address.
func (p *Conn) Logger() logger.Logger {
	return p.log
}
