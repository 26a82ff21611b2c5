// Package verifier re-hashes pieces already on disk.
package verifier

import (
	"crypto/sha1"
	"hash"

	"github.com/driftd/drift/internal/bitfield"
	"github.com/driftd/drift/internal/piece"
)

// Verifier reads every piece back from storage and records the ones whose
// hash still matches in Bitfield.
type Verifier struct {
	Bitfield *bitfield.Bitfield
	Error    error

	hash   hash.Hash
	buf    []byte
	closeC chan struct{}
	doneC  chan struct{}
}

// Progress reports how many pieces have been checked.
type Progress struct {
	Checked uint32
}

// New returns an idle Verifier. Run starts it.
func New() *Verifier {
	return &Verifier{
		hash:   sha1.New(),
		closeC: make(chan struct{}),
		doneC:  make(chan struct{}),
	}
}

// Close aborts the verification and waits for Run to return.
func (v *Verifier) Close() {
	close(v.closeC)
	<-v.doneC
}

// Run checks all pieces in order and sends the finished Verifier on resultC.
func (v *Verifier) Run(pieces []piece.Piece, progressC chan Progress, resultC chan *Verifier) {
	defer close(v.doneC)
	defer func() {
		select {
		case resultC <- v:
		case <-v.closeC:
		}
	}()

	v.Bitfield = bitfield.New(uint32(len(pieces)))
	v.buf = make([]byte, pieces[0].Length)
	for i := range pieces {
		if v.Error = v.checkPiece(&pieces[i]); v.Error != nil {
			return
		}
		select {
		case progressC <- Progress{Checked: pieces[i].Index + 1}:
		case <-v.closeC:
			return
		}
	}
}

func (v *Verifier) checkPiece(p *piece.Piece) error {
	v.buf = v.buf[:p.Length]
	if _, err := p.Data.ReadAt(v.buf, 0); err != nil {
		return err
	}
	if p.VerifyHash(v.buf, v.hash) {
		v.Bitfield.Set(p.Index)
	}
	v.hash.Reset()
	return nil
}
