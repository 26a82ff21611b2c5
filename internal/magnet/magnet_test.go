package magnet

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	m, err := New("magnet:?xt=urn:btih:c12fe1c06bba254a9dc9f519b335aa7c1367a88a&dn=foo&tr=http://127.0.0.1:5000/announce&x.pe=1.2.3.4:5678")
	require.NoError(t, err)
	assert.Equal(t, "c12fe1c06bba254a9dc9f519b335aa7c1367a88a", hex.EncodeToString(m.InfoHash[:]))
	assert.Equal(t, "foo", m.Name)
	assert.Equal(t, [][]string{{"http://127.0.0.1:5000/announce"}}, m.Trackers)
	assert.Equal(t, []string{"1.2.3.4:5678"}, m.Peers)
}

func TestNewBase32(t *testing.T) {
	m, err := New("magnet:?xt=urn:btih:YEXC4HANXITFJHOJ6UM3GNNKPQJWPKEK")
	require.NoError(t, err)
	assert.Equal(t, "c12e2e1c0dba26549dc9f519b335aa7c1367a88a", hex.EncodeToString(m.InfoHash[:]))
}

func TestNewErrors(t *testing.T) {
	_, err := New("http://example.com")
	assert.Error(t, err)
	_, err = New("magnet:?dn=foo")
	assert.Error(t, err)
	_, err = New("magnet:?xt=urn:btih:deadbeef")
	assert.Error(t, err)
}

func TestString(t *testing.T) {
	s := "magnet:?xt=urn:btih:c12fe1c06bba254a9dc9f519b335aa7c1367a88a&dn=foo&tr=http%3A%2F%2F127.0.0.1%3A5000%2Fannounce"
	m, err := New(s)
	require.NoError(t, err)
	assert.Equal(t, s, m.String())
}
