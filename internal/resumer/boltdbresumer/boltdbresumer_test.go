package boltdbresumer

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func TestWriteRead(t *testing.T) {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "resume.db"), 0o600, nil)
	require.NoError(t, err)
	defer db.Close()

	res, err := New(db, []byte("transfers"))
	require.NoError(t, err)

	spec := &Spec{
		InfoHash:        []byte("01234567890123456789"),
		Name:            "ubuntu.iso",
		Dest:            "/tmp/downloads/1",
		Port:            50002,
		Trackers:        [][]string{{"http://tracker.example.com/announce"}},
		FixedPeers:      []string{"127.0.0.1:5000"},
		Info:            []byte("d4:name10:ubuntu.isoe"),
		Bitfield:        []byte{0xf0},
		AddedAt:         time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		BytesDownloaded: 1234,
		BytesUploaded:   567,
		BytesWasted:     16384,
		SeededFor:       2 * time.Minute,
		Started:         true,
	}
	require.NoError(t, res.Write("1", spec))

	got, err := res.Read("1")
	require.NoError(t, err)
	assert.Equal(t, spec, got)
}

func TestReadMissing(t *testing.T) {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "resume.db"), 0o600, nil)
	require.NoError(t, err)
	defer db.Close()

	res, err := New(db, []byte("transfers"))
	require.NoError(t, err)

	_, err = res.Read("nope")
	assert.Error(t, err)
}

func TestWriteBitfield(t *testing.T) {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "resume.db"), 0o600, nil)
	require.NoError(t, err)
	defer db.Close()

	res, err := New(db, []byte("transfers"))
	require.NoError(t, err)

	require.NoError(t, res.Write("1", &Spec{InfoHash: []byte("01234567890123456789")}))
	require.NoError(t, res.WriteBitfield("1", []byte{0xff}))

	got, err := res.Read("1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff}, got.Bitfield)
}
