package swarm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftd/drift/internal/addrlist"
	"github.com/driftd/drift/internal/allocator"
	"github.com/driftd/drift/internal/bitfield"
	"github.com/driftd/drift/internal/counters"
	"github.com/driftd/drift/internal/handshaker/outgoinghandshaker"
	"github.com/driftd/drift/internal/logger"
	"github.com/driftd/drift/internal/peer"
	"github.com/driftd/drift/internal/piecedownloader"
	"github.com/driftd/drift/internal/resumer"
)

// syncTrackingFile counts Sync calls so tests can assert flush behavior.
type syncTrackingFile struct {
	synced  int
	syncErr error
}

func (f *syncTrackingFile) ReadAt(p []byte, off int64) (int, error)  { return len(p), nil }
func (f *syncTrackingFile) WriteAt(p []byte, off int64) (int, error) { return len(p), nil }
func (f *syncTrackingFile) Close() error                             { return nil }
func (f *syncTrackingFile) Sync() error                              { f.synced++; return f.syncErr }

type nullResumer struct{}

func (nullResumer) WriteInfo([]byte) error         { return nil }
func (nullResumer) WriteBitfield([]byte) error     { return nil }
func (nullResumer) WriteStats(resumer.Stats) error { return nil }

// newCompletedTransfer builds a transfer whose last piece just finished,
// with f as its only data file.
func newCompletedTransfer(f *syncTrackingFile) *transfer {
	bf := bitfield.New(4)
	for i := uint32(0); i < 4; i++ {
		bf.Set(i)
	}
	return &transfer{
		bitfield:            bf,
		files:               []allocator.File{{Storage: f, Name: "data.bin"}},
		resume:              nullResumer{},
		counters:            counters.New(0, 0, 0, 0),
		completeC:           make(chan struct{}),
		events:              make(chan Event, eventBufferSize),
		peers:               make(map[*peer.Peer]struct{}),
		outgoingHandshakers: make(map[*outgoinghandshaker.OutgoingHandshaker]struct{}),
		pieceDownloaders:    make(map[*peer.Peer]*piecedownloader.PieceDownloader),
		addrList:            addrlist.New(10, 0),
		log:                 logger.New("test transfer"),
	}
}

func TestCompletionSyncsFiles(t *testing.T) {
	f := &syncTrackingFile{}
	tr := newCompletedTransfer(f)

	require.True(t, tr.checkCompletion())
	assert.True(t, tr.completed)
	assert.Equal(t, 1, f.synced)

	e := <-tr.events
	assert.Equal(t, EventCompleted, e.Type)
}

func TestCompletionRequiresSync(t *testing.T) {
	f := &syncTrackingFile{syncErr: errors.New("input/output error")}
	tr := newCompletedTransfer(f)

	assert.False(t, tr.checkCompletion())
	assert.False(t, tr.completed)

	// No completion may be announced when the data could not be flushed.
	select {
	case e := <-tr.events:
		t.Fatalf("unexpected event: %v", e.Type)
	default:
	}
}
