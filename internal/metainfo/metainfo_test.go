package metainfo

import (
	"bytes"
	"crypto/sha1"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"
)

func testInfoBytes(t *testing.T, name string, pieceLength uint32, data []byte) []byte {
	t.Helper()
	numPieces := (len(data) + int(pieceLength) - 1) / int(pieceLength)
	pieces := make([]byte, 0, numPieces*sha1.Size)
	for i := 0; i < numPieces; i++ {
		end := (i + 1) * int(pieceLength)
		if end > len(data) {
			end = len(data)
		}
		sum := sha1.Sum(data[i*int(pieceLength) : end])
		pieces = append(pieces, sum[:]...)
	}
	b, err := bencode.EncodeBytes(map[string]any{
		"name":         name,
		"piece length": int64(pieceLength),
		"pieces":       pieces,
		"length":       int64(len(data)),
	})
	require.NoError(t, err)
	return b
}

func TestNewInfo(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 3000)
	b := testInfoBytes(t, "foo.dat", 1024, data)
	i, err := NewInfo(b)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), i.NumPieces)
	assert.Equal(t, int64(3000), i.TotalLength)
	assert.False(t, i.MultiFile())
	assert.Equal(t, []FileDict{{3000, []string{"foo.dat"}}}, i.GetFiles())
	assert.Equal(t, sha1.Size, len(i.HashOf(0)))
}

func TestNewInfoInvalid(t *testing.T) {
	b, err := bencode.EncodeBytes(map[string]any{
		"name":         "foo",
		"piece length": int64(1024),
		"pieces":       []byte("short"),
		"length":       int64(100),
	})
	require.NoError(t, err)
	_, err = NewInfo(b)
	assert.Error(t, err)
}

func TestNewInfoDotDot(t *testing.T) {
	sum := sha1.Sum([]byte("a"))
	b, err := bencode.EncodeBytes(map[string]any{
		"name":         "foo",
		"piece length": int64(1),
		"pieces":       sum[:],
		"files": []map[string]any{
			{"length": int64(1), "path": []string{"..", "evil"}},
		},
	})
	require.NoError(t, err)
	_, err = NewInfo(b)
	assert.Error(t, err)
}

func TestMetaInfo(t *testing.T) {
	info := testInfoBytes(t, "foo.dat", 1024, bytes.Repeat([]byte("x"), 1500))
	b, err := NewBytes(info, [][]string{{"http://tracker.example.com/announce"}})
	require.NoError(t, err)
	mi, err := New(strings.NewReader(string(b)))
	require.NoError(t, err)
	assert.Equal(t, "foo.dat", mi.Info.Name)
	assert.Equal(t, [][]string{{"http://tracker.example.com/announce"}}, mi.AnnounceList)
}
