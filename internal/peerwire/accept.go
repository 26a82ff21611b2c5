package peerwire

import (
	"net"
	"time"
)

// Accept the peer wire handshake from an incoming connection.
// hasInfoHash is called with the info hash the peer asks for; returning false
// rejects the connection.
func Accept(
	conn net.Conn,
	handshakeTimeout time.Duration,
	hasInfoHash func([20]byte) bool,
	ourExtensions [8]byte, ourID [20]byte) (
	peerExtensions [8]byte, peerID [20]byte, infoHash [20]byte, err error) {
	if err = conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return
	}

	peerExtensions, infoHash, err = readHandshake1(conn)
	if err != nil {
		return
	}
	if !hasInfoHash(infoHash) {
		err = ErrInvalidInfoHash
		return
	}
	err = writeHandshake(conn, infoHash, ourID, ourExtensions)
	if err != nil {
		return
	}
	peerID, err = readHandshake2(conn)
	if err != nil {
		return
	}
	if peerID == ourID {
		err = ErrOwnConnection
		return
	}
	err = conn.SetDeadline(time.Time{})
	return
}
