// Package peer provides a high level peer session over a peer connection.
package peer

import (
	"math"
	"net"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/driftd/drift/internal/bitfield"
	"github.com/driftd/drift/internal/peerconn"
	"github.com/driftd/drift/internal/peerconn/peerreader"
	"github.com/driftd/drift/internal/peerprotocol"
	"github.com/driftd/drift/internal/peersource"
)

// Peer of a swarm.
type Peer struct {
	*peerconn.Conn

	ConnectedAt time.Time
	Source      peersource.Source
	ID          [20]byte

	ExtensionsEnabled  bool
	ExtensionHandshake *peerprotocol.ExtensionHandshakeMessage

	// Contains the pieces that the peer has announced.
	// Created after the number of pieces becomes known.
	Bitfield *bitfield.Bitfield

	AmChoking      bool
	AmInterested   bool
	PeerChoking    bool
	PeerInterested bool

	OptimisticUnchoked bool

	// Messages received while the swarm has no metadata yet are queued here.
	Messages []any

	// Set to true when a piece block is requested from the peer.
	Downloading bool

	// Snubbed is set when the peer has stopped sending requested blocks in time.
	Snubbed bool

	downloadSpeed metrics.Meter
	uploadSpeed   metrics.Meter

	snubTimeout time.Duration
	snubTimer   *time.Timer

	closeC chan struct{}
	doneC  chan struct{}
}

// Message that the peer has sent, wrapped with the sender.
type Message struct {
	*Peer
	Message any
}

// PieceMessage is a Piece message that the peer has sent, wrapped with the sender.
type PieceMessage struct {
	*Peer
	Piece peerreader.Piece
}

// New returns a new Peer over an already established connection.
func New(conn *peerconn.Conn, source peersource.Source, id [20]byte, extensions [8]byte, snubTimeout time.Duration) *Peer {
	t := time.NewTimer(math.MaxInt64)
	t.Stop()
	return &Peer{
		Conn:              conn,
		ConnectedAt:       time.Now(),
		Source:            source,
		ID:                id,
		ExtensionsEnabled: extensions[5]&0x10 != 0,
		AmChoking:         true,
		PeerChoking:       true,
		downloadSpeed:     metrics.NewMeter(),
		uploadSpeed:       metrics.NewMeter(),
		snubTimeout:       snubTimeout,
		snubTimer:         t,
		closeC:            make(chan struct{}),
		doneC:             make(chan struct{}),
	}
}

// Close the peer connection and wait until Run exits.
func (p *Peer) Close() {
	p.snubTimer.Stop()
	close(p.closeC)
	p.Conn.Close()
	<-p.doneC
	p.downloadSpeed.Stop()
	p.uploadSpeed.Stop()
}

// Done channel is closed when Run exits.
func (p *Peer) Done() chan struct{} {
	return p.doneC
}

// Run loops over the messages from the connection and relays them to the
// channels given. Must be run in a separate goroutine.
func (p *Peer) Run(messages chan Message, pieces chan any, snubbedC, disconnectedC chan *Peer) {
	defer close(p.doneC)
	go p.Conn.Run()

	for {
		select {
		case pm, ok := <-p.Conn.Messages():
			if !ok {
				select {
				case disconnectedC <- p:
				case <-p.closeC:
				}
				return
			}
			if m, ok := pm.(peerreader.Piece); ok {
				select {
				case pieces <- PieceMessage{Peer: p, Piece: m}:
				case <-p.closeC:
					m.Buffer.Release()
					return
				}
			} else {
				select {
				case messages <- Message{Peer: p, Message: pm}:
				case <-p.closeC:
					return
				}
			}
		case <-p.snubTimer.C:
			select {
			case snubbedC <- p:
			case <-p.closeC:
				return
			}
		case <-p.closeC:
			return
		}
	}
}

// StartSnubTimer restarts the timer that snubs the peer when it fires.
func (p *Peer) StartSnubTimer() {
	p.snubTimer.Reset(p.snubTimeout)
}

// StopSnubTimer stops the snub timer.
func (p *Peer) StopSnubTimer() {
	p.snubTimer.Stop()
}

// MarkDownload records n downloaded payload bytes for speed calculation.
func (p *Peer) MarkDownload(n int64) {
	p.downloadSpeed.Mark(n)
}

// MarkUpload records n uploaded payload bytes for speed calculation.
func (p *Peer) MarkUpload(n int64) {
	p.uploadSpeed.Mark(n)
}

// DownloadSpeed of the peer in bytes per second.
func (p *Peer) DownloadSpeed() int {
	return int(p.downloadSpeed.Rate1())
}

// UploadSpeed of the peer in bytes per second.
func (p *Peer) UploadSpeed() int {
	return int(p.uploadSpeed.Rate1())
}

// Choke the peer.
func (p *Peer) Choke() {
	p.AmChoking = true
	p.SendMessage(peerprotocol.ChokeMessage{})
}

// Unchoke the peer.
func (p *Peer) Unchoke() {
	p.AmChoking = false
	p.SendMessage(peerprotocol.UnchokeMessage{})
}

// Choking returns the choke status of the local side.
func (p *Peer) Choking() bool {
	return p.AmChoking
}

// Interested returns the interest status of the remote side.
func (p *Peer) Interested() bool {
	return p.PeerInterested
}

// SetOptimistic sets the optimistic unchoke status of the peer.
func (p *Peer) SetOptimistic(value bool) {
	p.OptimisticUnchoked = value
}

// Optimistic returns the value previously set by SetOptimistic.
func (p *Peer) Optimistic() bool {
	return p.OptimisticUnchoked
}

// RequestPiece requests a block of a piece from the peer.
func (p *Peer) RequestPiece(index, begin, length uint32) {
	msg := peerprotocol.RequestMessage{Index: index, Begin: begin, Length: length}
	p.SendMessage(msg)
}

// CancelPiece cancels a previously sent block request.
func (p *Peer) CancelPiece(index, begin, length uint32) {
	msg := peerprotocol.CancelMessage{RequestMessage: peerprotocol.RequestMessage{Index: index, Begin: begin, Length: length}}
	p.SendMessage(msg)
}

// MetadataSize the peer has announced in its extension handshake.
func (p *Peer) MetadataSize() uint32 {
	return uint32(p.ExtensionHandshake.MetadataSize)
}

// RequestMetadataPiece requests a metadata piece from the peer.
func (p *Peer) RequestMetadataPiece(index uint32) {
	p.SendMessage(peerprotocol.ExtensionMessage{
		ExtendedMessageID: p.ExtensionHandshake.M[peerprotocol.ExtensionKeyMetadata],
		Payload: peerprotocol.ExtensionMetadataMessage{
			Type:  peerprotocol.ExtensionMetadataMessageTypeRequest,
			Piece: index,
		},
	})
}

// Client returns a short string identifying the remote client software.
func (p *Peer) Client() string {
	if p.ExtensionHandshake != nil && p.ExtensionHandshake.V != "" {
		return p.ExtensionHandshake.V
	}
	return clientID(p.ID)
}

func clientID(id [20]byte) string {
	if id[0] == '-' && id[7] == '-' {
		return string(id[1:7])
	}
	return net.IP(id[:4]).String()
}
