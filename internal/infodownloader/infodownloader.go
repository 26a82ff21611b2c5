// Package infodownloader fetches swarm metadata from a single peer in
// 16 KiB blocks.
package infodownloader

import "fmt"

const blockSize = 16 * 1024

// Peer that metadata blocks are requested from.
type Peer interface {
	MetadataSize() uint32
	RequestMetadataPiece(index uint32)
}

// InfoDownloader tracks which metadata blocks have been requested and
// received. Bytes holds the assembled metadata once Done reports true.
type InfoDownloader struct {
	Peer  Peer
	Bytes []byte

	pending   []bool   // requested but not yet received, by block index
	sizes     []uint32 // block sizes, only the last may be short
	inFlight  int
	nextBlock uint32
}

// New returns an InfoDownloader sized for the peer's declared metadata.
func New(pe Peer) *InfoDownloader {
	total := pe.MetadataSize()
	n := total / blockSize
	last := total % blockSize
	if last != 0 {
		n++
	}
	d := &InfoDownloader{
		Peer:    pe,
		Bytes:   make([]byte, total),
		pending: make([]bool, n),
		sizes:   make([]uint32, n),
	}
	for i := range d.sizes {
		d.sizes[i] = blockSize
	}
	if last != 0 && n > 0 {
		d.sizes[n-1] = last
	}
	return d
}

// RequestBlocks asks the peer for more blocks, keeping at most queueLength
// requests in flight.
func (d *InfoDownloader) RequestBlocks(queueLength int) {
	for ; d.nextBlock < uint32(len(d.sizes)) && d.inFlight < queueLength; d.nextBlock++ {
		d.Peer.RequestMetadataPiece(d.nextBlock)
		d.pending[d.nextBlock] = true
		d.inFlight++
	}
}

// GotBlock stores a received metadata block. The block must have been
// requested and match the expected size.
func (d *InfoDownloader) GotBlock(index uint32, data []byte) error {
	if index >= uint32(len(d.sizes)) {
		return fmt.Errorf("peer sent invalid metadata piece index: %q", index)
	}
	if !d.pending[index] {
		return fmt.Errorf("peer sent unrequested index for metadata message: %q", index)
	}
	if uint32(len(data)) != d.sizes[index] {
		return fmt.Errorf("peer sent invalid size for metadata message: %q", len(data))
	}
	d.inFlight--
	begin := index * blockSize
	copy(d.Bytes[begin:begin+d.sizes[index]], data)
	return nil
}

// Done reports whether every block has been received.
func (d *InfoDownloader) Done() bool {
	return d.nextBlock == uint32(len(d.sizes)) && d.inFlight == 0
}
