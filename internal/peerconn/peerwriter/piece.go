package peerwriter

import (
	"encoding/binary"

	"github.com/driftd/drift/internal/filesection"
	"github.com/driftd/drift/internal/peerprotocol"
)

// Piece is an outgoing piece message. Data is read from disk just before the
// message is written to the wire.
type Piece struct {
	Data filesection.Sections
	peerprotocol.RequestMessage
}

// ID returns the peer protocol message type.
func (p Piece) ID() peerprotocol.MessageID { return peerprotocol.Piece }

// MarshalBinary returns the bytes of the message payload.
func (p Piece) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8+p.Length)
	binary.BigEndian.PutUint32(b[0:4], p.Index)
	binary.BigEndian.PutUint32(b[4:8], p.Begin)
	_, err := p.Data.ReadAt(b[8:], int64(p.Begin))
	if err != nil {
		return nil, err
	}
	return b, nil
}
