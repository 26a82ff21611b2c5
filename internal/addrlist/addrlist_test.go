package addrlist

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftd/drift/internal/peersource"
)

func addr(port int) *net.TCPAddr {
	return &net.TCPAddr{IP: net.IPv4(1, 2, 3, 4), Port: port}
}

func TestPushPop(t *testing.T) {
	al := New(10, 5000)
	al.Push([]*net.TCPAddr{addr(1001)}, peersource.Tracker)
	al.Push([]*net.TCPAddr{addr(1002)}, peersource.DHT)
	assert.Equal(t, 2, al.Len())

	// Newest first
	a, source := al.Pop()
	require.NotNil(t, a)
	assert.Equal(t, 1002, a.Port)
	assert.Equal(t, peersource.DHT, source)

	a, _ = al.Pop()
	require.NotNil(t, a)
	assert.Equal(t, 1001, a.Port)

	a, _ = al.Pop()
	assert.Nil(t, a)
}

func TestPushInvalid(t *testing.T) {
	al := New(10, 5000)
	al.Push([]*net.TCPAddr{{IP: net.IPv4(1, 2, 3, 4), Port: 0}}, peersource.Tracker)
	al.Push([]*net.TCPAddr{{IP: net.IPv4(127, 0, 0, 1), Port: 5000}}, peersource.Tracker)
	assert.Equal(t, 0, al.Len())
}

func TestPushDuplicate(t *testing.T) {
	al := New(10, 5000)
	al.Push([]*net.TCPAddr{addr(1001)}, peersource.Tracker)
	al.Push([]*net.TCPAddr{addr(1001)}, peersource.Tracker)
	assert.Equal(t, 1, al.Len())
}

func TestMaxItems(t *testing.T) {
	al := New(2, 5000)
	al.Push([]*net.TCPAddr{addr(1001), addr(1002), addr(1003)}, peersource.Tracker)
	assert.Equal(t, 2, al.Len())
}

func TestMarkFailedCooldown(t *testing.T) {
	al := New(10, 5000)
	a := addr(1001)
	al.MarkFailed(a, peersource.Tracker, 0)
	assert.Equal(t, 1, al.Len())
	assert.Equal(t, 1, al.Attempts(a))

	// Address is in cooldown; must not be returned.
	got, _ := al.Pop()
	assert.Nil(t, got)
	assert.Equal(t, 1, al.Len())
}

func TestLenSource(t *testing.T) {
	al := New(10, 5000)
	al.Push([]*net.TCPAddr{addr(1001)}, peersource.Tracker)
	al.Push([]*net.TCPAddr{addr(1002), addr(1003)}, peersource.DHT)
	assert.Equal(t, 1, al.LenSource(peersource.Tracker))
	assert.Equal(t, 2, al.LenSource(peersource.DHT))
	al.Pop()
	assert.Equal(t, 1, al.LenSource(peersource.DHT))
}
