package peerprotocol

import "strconv"

// MessageID is the one-byte type tag of a peer wire message.
type MessageID uint8

// Peer message types
const (
	Choke MessageID = iota
	Unchoke
	Interested
	NotInterested
	Have
	Bitfield
	Request
	Piece
	Cancel
	Port
	HaveAll   MessageID = 14
	HaveNone  MessageID = 15
	Reject    MessageID = 16
	Extension MessageID = 20
)

func (m MessageID) String() string {
	switch m {
	case Choke:
		return "choke"
	case Unchoke:
		return "unchoke"
	case Interested:
		return "interested"
	case NotInterested:
		return "not interested"
	case Have:
		return "have"
	case Bitfield:
		return "bitfield"
	case Request:
		return "request"
	case Piece:
		return "piece"
	case Cancel:
		return "cancel"
	case Port:
		return "port"
	case HaveAll:
		return "have all"
	case HaveNone:
		return "have none"
	case Reject:
		return "reject"
	case Extension:
		return "extension"
	}
	return strconv.FormatInt(int64(m), 10)
}
