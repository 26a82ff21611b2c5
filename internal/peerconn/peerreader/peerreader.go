// Package peerreader reads messages from a peer connection.
package peerreader

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/juju/ratelimit"

	"github.com/driftd/drift/internal/bufferpool"
	"github.com/driftd/drift/internal/logger"
	"github.com/driftd/drift/internal/peerprotocol"
	"github.com/driftd/drift/internal/piece"
)

const (
	// MaxBlockSize allowed in "request" messages.
	MaxBlockSize = 16 * 1024
	// Peers must keep the connection alive with keep-alive messages.
	idleTimeout = 2 * time.Minute
	// Enough to buffer a length prefix, a message id and a request body.
	readBufferSize = 4 + 1 + 12
)

var blockPool = bufferpool.New(piece.BlockSize)

var errReaderStopped = errors.New("peer reader stopped while waiting for bucket")

// PeerReader turns the incoming byte stream of one peer into protocol
// messages and delivers them on a channel.
type PeerReader struct {
	conn         net.Conn
	buf          io.Reader
	pieceTimeout time.Duration
	bucket       *ratelimit.Bucket
	messages     chan any
	stopC        chan struct{}
	doneC        chan struct{}
	log          logger.Logger
}

// New returns a PeerReader for the connection. The bucket, when not nil,
// limits download speed.
func New(conn net.Conn, l logger.Logger, pieceTimeout time.Duration, b *ratelimit.Bucket) *PeerReader {
	return &PeerReader{
		conn:         conn,
		buf:          bufio.NewReaderSize(conn, readBufferSize),
		pieceTimeout: pieceTimeout,
		bucket:       b,
		messages:     make(chan any),
		stopC:        make(chan struct{}),
		doneC:        make(chan struct{}),
		log:          l,
	}
}

// Messages received from the peer.
func (p *PeerReader) Messages() <-chan any {
	return p.messages
}

// Stop the reader.
func (p *PeerReader) Stop() {
	close(p.stopC)
}

// Done channel is closed when Run exits.
func (p *PeerReader) Done() chan struct{} {
	return p.doneC
}

// Run reads messages in a loop until the connection errors or Stop is
// called. Must be run in its own goroutine.
func (p *PeerReader) Run() {
	defer close(p.doneC)

	var err error
	defer func() {
		if !p.worthLogging(err) {
			return
		}
		select {
		case <-p.stopC: // stopping, the error is expected
		default:
			p.log.Error(err)
		}
	}()

	first := true
	for {
		if err = p.conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}
		var length uint32
		if err = binary.Read(p.buf, binary.BigEndian, &length); err != nil {
			return
		}
		if length == 0 { // keep-alive
			continue
		}
		var id peerprotocol.MessageID
		if err = binary.Read(p.buf, binary.BigEndian, &id); err != nil {
			return
		}
		length--

		var msg any
		msg, err = p.readMessage(id, length, first)
		if err != nil {
			return
		}
		if msg == nil {
			continue // unknown message type, skipped
		}
		// Bitfield and the have_all/have_none pair are only legal as the
		// first message. Extension messages don't count.
		if id < 9 {
			first = false
		}
		select {
		case p.messages <- msg:
		case <-p.stopC:
			return
		}
	}
}

// worthLogging filters out the errors every ordinary disconnect produces.
func (p *PeerReader) worthLogging(err error) bool {
	switch err {
	case nil, io.EOF, io.ErrUnexpectedEOF, errReaderStopped:
		return false
	}
	if _, ok := err.(*net.OpError); ok {
		return false
	}
	return true
}

// readMessage reads the body of one message. A nil message with nil error
// means the type is unknown and its body was discarded.
func (p *PeerReader) readMessage(id peerprotocol.MessageID, length uint32, first bool) (any, error) {
	switch id {
	case peerprotocol.Choke:
		return peerprotocol.ChokeMessage{}, nil
	case peerprotocol.Unchoke:
		return peerprotocol.UnchokeMessage{}, nil
	case peerprotocol.Interested:
		return peerprotocol.InterestedMessage{}, nil
	case peerprotocol.NotInterested:
		return peerprotocol.NotInterestedMessage{}, nil
	case peerprotocol.Have:
		var msg peerprotocol.HaveMessage
		err := binary.Read(p.buf, binary.BigEndian, &msg)
		return msg, err
	case peerprotocol.Bitfield:
		if !first {
			return nil, errors.New("bitfield can only be sent after handshake")
		}
		msg := peerprotocol.BitfieldMessage{Data: make([]byte, length)}
		_, err := io.ReadFull(p.buf, msg.Data)
		return msg, err
	case peerprotocol.Request:
		var msg peerprotocol.RequestMessage
		if err := binary.Read(p.buf, binary.BigEndian, &msg); err != nil {
			return nil, err
		}
		if msg.Length > MaxBlockSize {
			return nil, fmt.Errorf("received a request with block size larger than allowed (%d > %d)", msg.Length, MaxBlockSize)
		}
		return msg, nil
	case peerprotocol.Reject:
		var msg peerprotocol.RejectMessage
		err := binary.Read(p.buf, binary.BigEndian, &msg)
		return msg, err
	case peerprotocol.Cancel:
		var msg peerprotocol.CancelMessage
		err := binary.Read(p.buf, binary.BigEndian, &msg)
		return msg, err
	case peerprotocol.Piece:
		var msg peerprotocol.PieceMessage
		if err := binary.Read(p.buf, binary.BigEndian, &msg); err != nil {
			return nil, err
		}
		length -= 8 // index and begin are part of the length prefix
		if length > piece.BlockSize {
			return nil, fmt.Errorf("received a piece with block size larger than allowed (%d > %d)", length, piece.BlockSize)
		}
		buf, err := p.readBlock(length)
		if err != nil {
			return nil, err
		}
		return Piece{PieceMessage: msg, Buffer: buf}, nil
	case peerprotocol.HaveAll:
		if !first {
			return nil, errors.New("have_all can only be sent after handshake")
		}
		return peerprotocol.HaveAllMessage{}, nil
	case peerprotocol.HaveNone:
		if !first {
			return nil, errors.New("have_none can only be sent after handshake")
		}
		return peerprotocol.HaveNoneMessage{}, nil
	case peerprotocol.Port:
		var msg peerprotocol.PortMessage
		err := binary.Read(p.buf, binary.BigEndian, &msg)
		return msg, err
	case peerprotocol.Extension:
		body := make([]byte, length)
		if _, err := io.ReadFull(p.buf, body); err != nil {
			return nil, err
		}
		var msg peerprotocol.ExtensionMessage
		if err := msg.UnmarshalBinary(body); err != nil {
			return nil, err
		}
		return msg.Payload, nil
	}
	p.log.Debugf("unhandled message type: %s", id)
	_, err := io.CopyN(io.Discard, p.buf, int64(length))
	return nil, err
}

// readBlock reads a block of piece data, waiting on the rate limit bucket
// first. A slow peer gets extra piece timeouts as long as bytes keep coming.
func (p *PeerReader) readBlock(length uint32) (bufferpool.Buffer, error) {
	buf := blockPool.Get(int(length))
	read := 0
	for {
		if p.bucket != nil {
			wait := p.bucket.Take(int64(length))
			select {
			case <-time.After(wait):
			case <-p.stopC:
				buf.Release()
				return buf, errReaderStopped
			}
		}
		if err := p.conn.SetReadDeadline(time.Now().Add(p.pieceTimeout)); err != nil {
			buf.Release()
			return buf, err
		}
		n, err := io.ReadFull(p.buf, buf.Data[read:])
		if err == nil {
			return buf, nil
		}
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() && n > 0 {
			// Partial progress, grant another timeout for the rest.
			read += n
			continue
		}
		buf.Release()
		return buf, err
	}
}
