// Package peerwire implements the peer wire handshake over raw connections.
package peerwire

import "io"

// The 68-byte handshake: length-prefixed protocol string, 8 reserved bytes,
// info hash, peer id.
var protocolString = [20]byte{19, 'B', 'i', 't', 'T', 'o', 'r', 'r', 'e', 'n', 't', ' ', 'p', 'r', 'o', 't', 'o', 'c', 'o', 'l'}

func writeHandshake(w io.Writer, ih, id [20]byte, extensions [8]byte) error {
	var msg [68]byte
	copy(msg[0:20], protocolString[:])
	copy(msg[20:28], extensions[:])
	copy(msg[28:48], ih[:])
	copy(msg[48:68], id[:])
	_, err := w.Write(msg[:])
	return err
}

// readHandshake1 reads everything the remote side sends before it needs to
// see our handshake: the protocol string, reserved bytes and info hash.
func readHandshake1(r io.Reader) (extensions [8]byte, ih [20]byte, err error) {
	var ps [20]byte
	if _, err = io.ReadFull(r, ps[:]); err != nil {
		return
	}
	if ps != protocolString {
		err = ErrInvalidProtocol
		return
	}
	if _, err = io.ReadFull(r, extensions[:]); err != nil {
		return
	}
	_, err = io.ReadFull(r, ih[:])
	return
}

// readHandshake2 reads the trailing peer id.
func readHandshake2(r io.Reader) (id [20]byte, err error) {
	_, err = io.ReadFull(r, id[:])
	return
}
