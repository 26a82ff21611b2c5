package peerprotocol

import (
	"bytes"
	"errors"
	"fmt"
	"net"

	"github.com/zeebo/bencode"
)

// Extended message IDs on our side of the connection.
const (
	// ExtensionIDHandshake is the ID of the extension handshake message.
	ExtensionIDHandshake = iota
	// ExtensionIDMetadata is the ID of metadata extension messages.
	ExtensionIDMetadata
)

// ExtensionKeyMetadata is the metadata extension's key in the handshake "m"
// dictionary.
const ExtensionKeyMetadata = "ut_metadata"

// Metadata extension message types.
const (
	ExtensionMetadataMessageTypeRequest = iota
	ExtensionMetadataMessageTypeData
	ExtensionMetadataMessageTypeReject
)

// ExtensionMessage is the envelope of all extended messages: one byte of
// extended ID followed by a bencoded payload.
type ExtensionMessage struct {
	ExtendedMessageID uint8
	Payload           any
}

// ID returns the peer protocol message type.
func (m ExtensionMessage) ID() MessageID { return Extension }

// MarshalBinary encodes the extended ID and the bencoded payload. Metadata
// data messages carry their piece bytes after the bencoded part.
func (m ExtensionMessage) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(m.ExtendedMessageID)
	if err := bencode.NewEncoder(&buf).Encode(m.Payload); err != nil {
		return nil, err
	}
	if mm, ok := m.Payload.(ExtensionMetadataMessage); ok {
		buf.Write(mm.Data)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary parses an extension message into the payload type matching
// its extended ID.
func (m *ExtensionMessage) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty extension message")
	}
	m.ExtendedMessageID = data[0]
	body := data[1:]
	dec := bencode.NewDecoder(bytes.NewReader(body))
	switch m.ExtendedMessageID {
	case ExtensionIDHandshake:
		var hs ExtensionHandshakeMessage
		if err := dec.Decode(&hs); err != nil {
			return err
		}
		// Broken clients send negative values here.
		if hs.MetadataSize < 0 {
			hs.MetadataSize = 0
		}
		if hs.RequestQueue < 0 {
			hs.RequestQueue = 0
		}
		m.Payload = hs
	case ExtensionIDMetadata:
		var md ExtensionMetadataMessage
		if err := dec.Decode(&md); err != nil {
			return err
		}
		md.Data = body[dec.BytesParsed():]
		m.Payload = md
	default:
		return fmt.Errorf("peer sent invalid extension message id: %d", m.ExtendedMessageID)
	}
	return nil
}

// ExtensionHandshakeMessage declares which extensions each side supports.
type ExtensionHandshakeMessage struct {
	M            map[string]uint8 `bencode:"m"`
	V            string           `bencode:"v"`
	YourIP       string           `bencode:"yourip,omitempty"`
	MetadataSize int              `bencode:"metadata_size,omitempty"`
	RequestQueue int              `bencode:"reqq"`
}

// NewExtensionHandshake returns the handshake we send, advertising the
// metadata extension.
func NewExtensionHandshake(metadataSize uint32, version string, yourip net.IP, requestQueueLength int) ExtensionHandshakeMessage {
	ip := yourip
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	return ExtensionHandshakeMessage{
		M: map[string]uint8{
			ExtensionKeyMetadata: ExtensionIDMetadata,
		},
		V:            version,
		YourIP:       string(ip),
		MetadataSize: int(metadataSize),
		RequestQueue: requestQueueLength,
	}
}

// ExtensionMetadataMessage is one message of the metadata extension.
// Data is only set for messages of type data.
type ExtensionMetadataMessage struct {
	Type      int    `bencode:"msg_type"`
	Piece     uint32 `bencode:"piece"`
	TotalSize int    `bencode:"total_size,omitempty"`
	Data      []byte `bencode:"-"`
}
