package peerwire

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testInfoHash = [20]byte{1, 2, 3}
	dialerID     = [20]byte{'d'}
	accepterID   = [20]byte{'a'}
	extensions   = [8]byte{}
)

func TestHandshake(t *testing.T) {
	l, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer l.Close()

	acceptedC := make(chan [20]byte, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, peerID, ih, err := Accept(conn, time.Second, func(h [20]byte) bool { return h == testInfoHash }, extensions, accepterID)
		if err != nil {
			return
		}
		if ih != testInfoHash {
			return
		}
		acceptedC <- peerID
	}()

	conn, _, peerID, err := Dial(l.Addr(), time.Second, time.Second, extensions, testInfoHash, dialerID, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, accepterID, peerID)

	select {
	case id := <-acceptedC:
		assert.Equal(t, dialerID, id)
	case <-time.After(time.Second):
		t.Fatal("accept did not complete")
	}
}

func TestHandshakeUnknownInfoHash(t *testing.T) {
	l, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _, _ = Accept(conn, time.Second, func(h [20]byte) bool { return false }, extensions, accepterID)
	}()

	conn, _, _, err := Dial(l.Addr(), time.Second, time.Second, extensions, testInfoHash, dialerID, nil)
	if err == nil {
		conn.Close()
	}
	assert.Error(t, err)
}
