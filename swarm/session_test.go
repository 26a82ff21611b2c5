package swarm

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/log"
	"github.com/fortytw2/leaktest"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"

	"github.com/driftd/drift/internal/bitfield"
	"github.com/driftd/drift/internal/logger"
	"github.com/driftd/drift/internal/metainfo"
)

func init() {
	logger.SetLevel(log.DEBUG)
}

func TestMain(m *testing.M) {
	// Start the go-metrics arbiter goroutine before leaktest takes its
	// first goroutine snapshot, and give it time to park in its ticker
	// receive so the snapshot sees it in its steady state.
	metrics.NewMeter().Stop()
	time.Sleep(100 * time.Millisecond)
	os.Exit(m.Run())
}

// Each session in a test gets its own listen port range so that two sessions
// in the same test never race for a port.
var testPortRange int32 = 51000

func newTestSession(t *testing.T, adjust func(cfg *Config)) *Session {
	t.Helper()
	begin := atomic.AddInt32(&testPortRange, 50) - 50
	cfg := DefaultConfig
	cfg.Database = filepath.Join(t.TempDir(), "session.db")
	cfg.DataDir = t.TempDir()
	cfg.DHTEnabled = false
	cfg.PortBegin = uint16(begin)
	cfg.PortEnd = uint16(begin + 50)
	if adjust != nil {
		adjust(&cfg)
	}
	s, err := NewSession(cfg)
	require.NoError(t, err)
	return s
}

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

func testContent(t *testing.T, size int) (data, infoBytes, torrentBytes []byte) {
	t.Helper()
	data = make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)
	infoBytes = testInfoBytes(t, "data.bin", 16384, data)
	torrentBytes, err = metainfo.NewBytes(infoBytes, nil)
	require.NoError(t, err)
	return data, infoBytes, torrentBytes
}

// newSeeder returns a session that seeds the data as the content named
// "data.bin". The file is put in place before the swarm is added so that
// the existing data is verified and the swarm goes directly into Seeding.
func newSeeder(t *testing.T, data, torrentBytes []byte) (*Session, *Swarm) {
	t.Helper()
	s := newTestSession(t, func(cfg *Config) { cfg.DataDirIncludesSwarmID = false })
	err := os.WriteFile(filepath.Join(s.config.DataDir, "data.bin"), data, 0o640)
	require.NoError(t, err)
	sw, err := s.AddTorrent(bytes.NewReader(torrentBytes))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return sw.Stats().Status == Seeding
	}, 10*time.Second, 100*time.Millisecond)
	return s, sw
}

func waitEvent(t *testing.T, events <-chan Event, typ EventType) Event {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Type == typ {
				return e
			}
		case <-deadline:
			t.Fatalf("did not receive %q event", typ)
		}
	}
}

func TestAddTorrentInvalid(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	s := newTestSession(t, nil)
	defer s.Close()

	_, err := s.AddTorrent(strings.NewReader("some garbage data"))
	assert.Error(t, err)
}

func TestAddMagnetInvalid(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	s := newTestSession(t, nil)
	defer s.Close()

	_, err := s.AddMagnet("https://example.com/not-a-magnet")
	assert.Error(t, err)
}

func TestDownloadTorrent(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	data, _, torrentBytes := testContent(t, 100*1024)

	seeder, seedSwarm := newSeeder(t, data, torrentBytes)
	defer seeder.Close()
	port := <-seedSwarm.NotifyListen()

	leecher := newTestSession(t, nil)
	defer leecher.Close()
	sw, err := leecher.AddTorrent(bytes.NewReader(torrentBytes))
	require.NoError(t, err)
	events := sw.Events()
	errC := sw.NotifyError()
	require.NoError(t, sw.AddPeer(fmt.Sprintf("127.0.0.1:%d", port)))

	select {
	case <-sw.NotifyComplete():
	case err = <-errC:
		t.Fatal(err)
	case <-time.After(30 * time.Second):
		t.Fatal("download did not finish")
	}
	waitEvent(t, events, EventCompleted)

	downloaded, err := os.ReadFile(filepath.Join(leecher.config.DataDir, sw.ID(), "data.bin"))
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, downloaded))

	stats := sw.Stats()
	assert.Equal(t, Seeding, stats.Status)
	assert.Equal(t, stats.Pieces.Total, stats.Pieces.Have)
	assert.Equal(t, int64(len(data)), stats.Bytes.Completed)

	// The snapshot carries the completion bitfield with every bit set.
	bf, err := bitfield.NewBytes(stats.Pieces.Bitfield, stats.Pieces.Total)
	require.NoError(t, err)
	assert.True(t, bf.All())
}

func TestStatsSnapshotIdempotent(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	s := newTestSession(t, nil)
	defer s.Close()

	sw, err := s.AddMagnet("magnet:?xt=urn:btih:" + strings.Repeat("ab", 20))
	require.NoError(t, err)

	// Two snapshots with no state change in between must be identical.
	s1 := sw.Stats()
	s2 := sw.Stats()
	assert.Equal(t, s1, s2)
}

func TestDownloadMagnet(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	data, infoBytes, torrentBytes := testContent(t, 100*1024)
	info, err := metainfo.NewInfo(infoBytes)
	require.NoError(t, err)

	seeder, seedSwarm := newSeeder(t, data, torrentBytes)
	defer seeder.Close()
	port := <-seedSwarm.NotifyListen()

	leecher := newTestSession(t, nil)
	defer leecher.Close()
	link := "magnet:?xt=urn:btih:" + hex.EncodeToString(info.Hash[:]) + "&dn=data.bin"
	sw, err := leecher.AddMagnet(link)
	require.NoError(t, err)
	assert.Equal(t, Resolving, sw.Stats().Status)
	events := sw.Events()
	errC := sw.NotifyError()
	require.NoError(t, sw.AddPeer(fmt.Sprintf("127.0.0.1:%d", port)))

	select {
	case <-sw.NotifyMetadata():
	case err = <-errC:
		t.Fatal(err)
	case <-time.After(10 * time.Second):
		t.Fatal("metadata was not resolved")
	}
	waitEvent(t, events, EventMetadata)
	assert.Equal(t, "data.bin", sw.Name())

	select {
	case <-sw.NotifyComplete():
	case err = <-errC:
		t.Fatal(err)
	case <-time.After(30 * time.Second):
		t.Fatal("download did not finish")
	}

	downloaded, err := os.ReadFile(filepath.Join(leecher.config.DataDir, sw.ID(), "data.bin"))
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, downloaded))
}

func TestStop(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	s := newTestSession(t, nil)
	defer s.Close()

	sw, err := s.AddMagnet("magnet:?xt=urn:btih:" + strings.Repeat("ab", 20))
	require.NoError(t, err)
	events := sw.Events()
	errC := sw.NotifyError()

	require.NoError(t, sw.Stop())
	waitEvent(t, events, EventCancelled)

	select {
	case err = <-errC:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("swarm did not stop")
	}
	assert.Equal(t, Stopped, sw.Stats().Status)
}

func TestLoadExistingTransfers(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	db := filepath.Join(t.TempDir(), "session.db")
	dataDir := t.TempDir()
	mk := func() *Session {
		return newTestSession(t, func(cfg *Config) {
			cfg.Database = db
			cfg.DataDir = dataDir
		})
	}

	s := mk()
	sw, err := s.AddMagnet("magnet:?xt=urn:btih:" + strings.Repeat("ab", 20) + "&dn=data.bin")
	require.NoError(t, err)
	id := sw.ID()
	infoHash := sw.InfoHashString()
	require.NoError(t, s.Close())

	s2 := mk()
	defer s2.Close()
	sw2 := s2.GetSwarm(id)
	require.NotNil(t, sw2)
	assert.Equal(t, infoHash, sw2.InfoHashString())
	assert.Equal(t, "data.bin", sw2.Name())
	// The swarm was started before the restart, it must start again.
	require.Eventually(t, func() bool {
		return sw2.Stats().Status == Resolving
	}, 10*time.Second, 100*time.Millisecond)
}

func TestDiscoveryTimeout(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	s := newTestSession(t, func(cfg *Config) {
		cfg.DiscoveryTimeout = 500 * time.Millisecond
	})
	defer s.Close()

	sw, err := s.AddMagnet("magnet:?xt=urn:btih:" + strings.Repeat("ab", 20))
	require.NoError(t, err)
	events := sw.Events()
	errC := sw.NotifyError()

	select {
	case err = <-errC:
		assert.Equal(t, ErrDiscoveryTimeout, err)
	case <-time.After(10 * time.Second):
		t.Fatal("swarm did not fail")
	}
	e := waitEvent(t, events, EventFailed)
	assert.Equal(t, ErrDiscoveryTimeout.Error(), e.Message)
	assert.Equal(t, Stopped, sw.Stats().Status)
}

func TestHardTimeout(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	s := newTestSession(t, func(cfg *Config) {
		cfg.DiscoveryTimeout = 0
		cfg.HardTimeout = 500 * time.Millisecond
	})
	defer s.Close()

	sw, err := s.AddMagnet("magnet:?xt=urn:btih:" + strings.Repeat("ab", 20))
	require.NoError(t, err)
	errC := sw.NotifyError()

	select {
	case err = <-errC:
		assert.Equal(t, ErrHardTimeout, err)
	case <-time.After(10 * time.Second):
		t.Fatal("swarm did not fail")
	}
}
