// Package piecewriter verifies downloaded pieces and writes them to storage.
package piecewriter

import (
	"crypto/sha1"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/driftd/drift/internal/bufferpool"
	"github.com/driftd/drift/internal/piece"
	"github.com/driftd/drift/internal/semaphore"
)

// Pause between write attempts, giving a transient disk condition time to
// clear.
const retryDelay = 100 * time.Millisecond

// PieceWriter checks the hash of one downloaded piece and, if it matches,
// writes the piece to disk. The outcome is left in HashOK and Error.
type PieceWriter struct {
	Piece  *piece.Piece
	Source any
	Buffer bufferpool.Buffer

	HashOK bool
	Error  error
}

// New returns a PieceWriter for a piece whose data is in buf.
func New(p *piece.Piece, source any, buf bufferpool.Buffer) *PieceWriter {
	return &PieceWriter{
		Piece:  p,
		Source: source,
		Buffer: buf,
	}
}

// Run verifies and writes the piece, then reports itself on resultC.
// A corrupt piece is never written. A failed write is retried up to
// maxRetries times before the error is kept.
func (w *PieceWriter) Run(resultC chan *PieceWriter, closeC chan struct{}, writesPerSecond, writeBytesPerSecond metrics.Meter, sem *semaphore.Semaphore, maxRetries int) {
	w.HashOK = w.Piece.VerifyHash(w.Buffer.Data, sha1.New())
	if w.HashOK {
		writesPerSecond.Mark(1)
		writeBytesPerSecond.Mark(int64(len(w.Buffer.Data)))
		sem.Wait()
		w.Error = w.write(maxRetries, closeC)
		sem.Signal()
	}
	select {
	case resultC <- w:
	case <-closeC:
	}
}

func (w *PieceWriter) write(maxRetries int, closeC chan struct{}) error {
	var err error
	for attempt := 0; ; attempt++ {
		_, err = w.Piece.Data.Write(w.Buffer.Data)
		if err == nil || attempt >= maxRetries {
			return err
		}
		select {
		case <-time.After(retryDelay):
		case <-closeC:
			return err
		}
	}
}
