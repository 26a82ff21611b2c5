package tracker

import (
	"encoding/binary"
	"errors"
	"net"
)

const compactPeerLen = 6 // 4 bytes IPv4 + 2 bytes port

// CompactPeer is one entry of a compact peer list. It contains no pointers
// so it can be used as a map key.
type CompactPeer struct {
	IP   [net.IPv4len]byte
	Port uint16
}

// NewCompactPeer returns the compact form of a TCP address.
func NewCompactPeer(addr *net.TCPAddr) CompactPeer {
	p := CompactPeer{Port: uint16(addr.Port)}
	copy(p.IP[:], addr.IP.To4())
	return p
}

// Addr returns the peer as a net.TCPAddr.
func (p CompactPeer) Addr() *net.TCPAddr {
	return &net.TCPAddr{IP: p.IP[:], Port: int(p.Port)}
}

// MarshalBinary encodes the peer into 6 bytes.
func (p CompactPeer) MarshalBinary() ([]byte, error) {
	b := make([]byte, compactPeerLen)
	copy(b, p.IP[:])
	binary.BigEndian.PutUint16(b[net.IPv4len:], p.Port)
	return b, nil
}

// UnmarshalBinary decodes the peer from 6 bytes.
func (p *CompactPeer) UnmarshalBinary(data []byte) error {
	if len(data) != compactPeerLen {
		return errors.New("invalid compact peer length")
	}
	copy(p.IP[:], data)
	p.Port = binary.BigEndian.Uint16(data[net.IPv4len:])
	return nil
}

// DecodePeersCompact parses a compact peer list into TCP addresses.
func DecodePeersCompact(b []byte) ([]*net.TCPAddr, error) {
	if len(b)%compactPeerLen != 0 {
		return nil, errors.New("invalid peer list length")
	}
	addrs := make([]*net.TCPAddr, 0, len(b)/compactPeerLen)
	for i := 0; i < len(b); i += compactPeerLen {
		var peer CompactPeer
		if err := peer.UnmarshalBinary(b[i : i+compactPeerLen]); err != nil {
			return nil, err
		}
		addrs = append(addrs, peer.Addr())
	}
	return addrs, nil
}
