package swarm

import (
	"github.com/driftd/drift/internal/allocator"
	"github.com/driftd/drift/internal/bitfield"
	"github.com/driftd/drift/internal/piece"
	"github.com/driftd/drift/internal/piecepicker"
	"github.com/driftd/drift/internal/storage"
)

func (t *transfer) handleAllocationDone(al *allocator.Allocator) {
	if t.allocator != al {
		panic("invalid allocator")
	}
	t.allocator = nil

	if al.Error != nil {
		t.stop(al.Error)
		return
	}

	if t.files != nil {
		panic("files exist")
	}
	t.files = al.Files

	if t.pieces != nil {
		panic("pieces exists")
	}
	files := make([]storage.File, len(al.Files))
	for i := range al.Files {
		files[i] = al.Files[i].Storage
	}
	t.pieces = piece.NewPieces(t.info, files)

	if t.piecePicker != nil {
		panic("piece picker exists")
	}
	t.piecePicker = piecepicker.New(t.pieces, t.session.config.EndgameMaxDuplicateDownloads)

	for pe := range t.peers {
		pe.Bitfield = bitfield.New(t.info.NumPieces)
	}

	// A bitfield from the resume db is trusted, no need to hash-check.
	if t.bitfield != nil {
		for i := uint32(0); i < t.bitfield.Len(); i++ {
			t.pieces[i].Done = t.bitfield.Test(i)
		}
		if completed := t.checkCompletion(); completed {
			t.log.Info("resume data shows all pieces are downloaded")
		}
		t.processQueuedMessages()
		t.addFixedPeers()
		t.startAcceptor()
		t.startAnnouncers()
		t.startPieceDownloaders()
		return
	}

	// Existing files on disk must be hash-checked before the bitfield can
	// be trusted.
	if al.HasExisting {
		t.startVerifier()
		return
	}

	t.mBitfield.Lock()
	t.bitfield = bitfield.New(t.info.NumPieces)
	t.mBitfield.Unlock()

	t.processQueuedMessages()
	t.addFixedPeers()
	t.startAcceptor()
	t.startAnnouncers()
	t.startPieceDownloaders()
}
