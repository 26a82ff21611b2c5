package tracker

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompactPeerRoundTrip(t *testing.T) {
	addr := &net.TCPAddr{IP: net.IPv4(1, 2, 3, 4), Port: 5678}
	p := NewCompactPeer(addr)
	b, err := p.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, 6)

	var p2 CompactPeer
	require.NoError(t, p2.UnmarshalBinary(b))
	assert.Equal(t, addr.String(), p2.Addr().String())
}

func TestDecodePeersCompact(t *testing.T) {
	b := []byte{1, 2, 3, 4, 0x16, 0x2e, 5, 6, 7, 8, 0x1f, 0x90}
	addrs, err := DecodePeersCompact(b)
	require.NoError(t, err)
	require.Len(t, addrs, 2)
	assert.Equal(t, "1.2.3.4:5678", addrs[0].String())
	assert.Equal(t, "5.6.7.8:8080", addrs[1].String())

	_, err = DecodePeersCompact(b[:5])
	assert.Error(t, err)
}
