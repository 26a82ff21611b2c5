// Package peerprotocol contains the messages that flow between peers on the wire.
package peerprotocol

import (
	"encoding"
	"encoding/binary"
)

// Message is a message in the peer wire protocol.
type Message interface {
	encoding.BinaryMarshaler
	ID() MessageID
}

// HaveMessage indicates that a peer has the piece with index.
type HaveMessage struct {
	Index uint32
}

// ID returns the peer protocol message type.
func (m HaveMessage) ID() MessageID { return Have }

// MarshalBinary returns the bytes of the message payload.
func (m HaveMessage) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, m.Index)
	return b, nil
}

// RequestMessage is sent when a peer wants a block of a certain piece.
type RequestMessage struct {
	Index, Begin, Length uint32
}

// ID returns the peer protocol message type.
func (m RequestMessage) ID() MessageID { return Request }

// MarshalBinary returns the bytes of the message payload.
func (m RequestMessage) MarshalBinary() ([]byte, error) {
	b := make([]byte, 12)
	binary.BigEndian.PutUint32(b[0:4], m.Index)
	binary.BigEndian.PutUint32(b[4:8], m.Begin)
	binary.BigEndian.PutUint32(b[8:12], m.Length)
	return b, nil
}

// PieceMessage is the header of a message carrying a block of piece data.
type PieceMessage struct {
	Index, Begin uint32
}

// ID returns the peer protocol message type.
func (m PieceMessage) ID() MessageID { return Piece }

// MarshalBinary returns the bytes of the message payload.
func (m PieceMessage) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:4], m.Index)
	binary.BigEndian.PutUint32(b[4:8], m.Begin)
	return b, nil
}

// BitfieldMessage is sent after the handshake to exchange piece availability.
type BitfieldMessage struct {
	Data []byte
}

// ID returns the peer protocol message type.
func (m BitfieldMessage) ID() MessageID { return Bitfield }

// MarshalBinary returns the bytes of the message payload.
func (m BitfieldMessage) MarshalBinary() ([]byte, error) {
	return m.Data, nil
}

// PortMessage announces the UDP port number of the DHT node run by the peer.
type PortMessage struct {
	Port uint16
}

// ID returns the peer protocol message type.
func (m PortMessage) ID() MessageID { return Port }

// MarshalBinary returns the bytes of the message payload.
func (m PortMessage) MarshalBinary() ([]byte, error) {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, m.Port)
	return b, nil
}

type emptyMessage struct{}

// MarshalBinary returns the bytes of the message payload.
func (m emptyMessage) MarshalBinary() ([]byte, error) {
	return nil, nil
}

// ChokeMessage tells the peer that it should not request pieces.
type ChokeMessage struct{ emptyMessage }

// UnchokeMessage tells the peer that it can request pieces.
type UnchokeMessage struct{ emptyMessage }

// InterestedMessage tells the peer that we want to request pieces.
type InterestedMessage struct{ emptyMessage }

// NotInterestedMessage tells the peer that we don't want anything from it.
type NotInterestedMessage struct{ emptyMessage }

// HaveAllMessage tells the peer that we have all of the pieces.
type HaveAllMessage struct{ emptyMessage }

// HaveNoneMessage tells the peer that we have none of the pieces.
type HaveNoneMessage struct{ emptyMessage }

// RejectMessage tells the peer that we are rejecting its request.
type RejectMessage struct{ RequestMessage }

// CancelMessage cancels a previously sent request.
type CancelMessage struct{ RequestMessage }

// ID returns the peer protocol message type.
func (m ChokeMessage) ID() MessageID { return Choke }

// ID returns the peer protocol message type.
func (m UnchokeMessage) ID() MessageID { return Unchoke }

// ID returns the peer protocol message type.
func (m InterestedMessage) ID() MessageID { return Interested }

// ID returns the peer protocol message type.
func (m NotInterestedMessage) ID() MessageID { return NotInterested }

// ID returns the peer protocol message type.
func (m HaveAllMessage) ID() MessageID { return HaveAll }

// ID returns the peer protocol message type.
func (m HaveNoneMessage) ID() MessageID { return HaveNone }

// ID returns the peer protocol message type.
func (m RejectMessage) ID() MessageID { return Reject }

// ID returns the peer protocol message type.
func (m CancelMessage) ID() MessageID { return Cancel }
