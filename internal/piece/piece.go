// Package piece maps the pieces of a swarm onto sections of files on disk.
package piece

import (
	"bytes"
	"hash"
	"path/filepath"

	"github.com/driftd/drift/internal/filesection"
	"github.com/driftd/drift/internal/metainfo"
	"github.com/driftd/drift/internal/storage"
)

// BlockSize is the size of a single block of a piece requested from peers.
const BlockSize = 16 * 1024

// Piece of the content.
type Piece struct {
	Index   uint32               // index in the swarm
	Length  uint32               // always equal to Info.PieceLength except the last piece
	Data    filesection.Sections // the place to read/write piece bytes
	Hash    []byte               // expected SHA-1 digest of the piece data
	Done    bool                 // hash checked and written to disk
	Writing bool                 // a write for this piece is in flight
}

// NewPieces returns a slice of pieces mapped onto the opened files.
// files must be in the same order as info.GetFiles().
func NewPieces(info *metainfo.Info, files []storage.File) []Piece {
	var (
		fileIndex  int   // index of the current file in the manifest
		fileLength int64 // length of the file at fileIndex
		fileEnd    int64 // absolute position of end of the file among all pieces
		fileOffset int64 // offset in file: [0, fileLength)
	)

	nextFile := func() {
		fileIndex++
		fileLength = info.GetFiles()[fileIndex].Length
		fileEnd += fileLength
		fileOffset = 0
	}

	// Init first file
	fileIndex = -1
	nextFile()

	fileLeft := func() int64 { return fileLength - fileOffset }

	var total int64
	pieces := make([]Piece, info.NumPieces)
	for i := uint32(0); i < info.NumPieces; i++ {
		p := Piece{
			Index: i,
			Hash:  info.HashOf(i),
		}

		// Construct p.Data from the files the piece spans.
		var pieceOffset uint32
		pieceLeft := func() uint32 { return info.PieceLength - pieceOffset }
		for left := pieceLeft(); left > 0; {
			n := uint32(min64(int64(left), fileLeft()))

			section := filesection.Section{
				File:   files[fileIndex],
				Offset: fileOffset,
				Length: int64(n),
				Name:   filepath.Join(info.GetFiles()[fileIndex].Path...),
			}
			p.Data = append(p.Data, section)

			left -= n
			p.Length += n
			pieceOffset += n
			fileOffset += int64(n)
			total += int64(n)

			if total == info.TotalLength {
				break
			}
			if fileLeft() == 0 {
				nextFile()
			}
		}

		pieces[i] = p
	}
	return pieces
}

// NumBlocks returns the number of blocks in the piece.
func (p *Piece) NumBlocks() int {
	div, mod := divMod32(p.Length, BlockSize)
	numBlocks := div
	if mod != 0 {
		numBlocks++
	}
	return int(numBlocks)
}

// CalculateBlocks returns the blocks the piece splits into.
func (p *Piece) CalculateBlocks() []Block {
	div, mod := divMod32(p.Length, BlockSize)
	numBlocks := div
	if mod != 0 {
		numBlocks++
	}
	blocks := make([]Block, numBlocks)
	for j := uint32(0); j < div; j++ {
		blocks[j] = Block{
			Index:  j,
			Begin:  j * BlockSize,
			Length: BlockSize,
		}
	}
	if mod != 0 {
		blocks[numBlocks-1] = Block{
			Index:  numBlocks - 1,
			Begin:  (numBlocks - 1) * BlockSize,
			Length: mod,
		}
	}
	return blocks
}

// FindBlock returns the block at begin with the given length.
func (p *Piece) FindBlock(begin, length uint32) (b Block, ok bool) {
	idx, mod := divMod32(begin, BlockSize)
	if mod != 0 {
		return
	}
	blocks := p.CalculateBlocks()
	if idx >= uint32(len(blocks)) {
		return
	}
	b = blocks[idx]
	if b.Length != length {
		return
	}
	return b, true
}

// VerifyHash returns true if the piece data in buf matches the expected digest.
func (p *Piece) VerifyHash(buf []byte, h hash.Hash) bool {
	if uint32(len(buf)) != p.Length {
		return false
	}
	_, _ = h.Write(buf)
	sum := h.Sum(nil)
	return bytes.Equal(sum, p.Hash)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func divMod32(a, b uint32) (uint32, uint32) { return a / b, a % b }
