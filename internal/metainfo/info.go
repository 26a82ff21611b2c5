package metainfo

import (
	"crypto/sha1" // nolint: gosec
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zeebo/bencode"
)

var errInvalidPieceData = errors.New("invalid piece data")

// Info contains the immutable part of a manifest: piece geometry, piece
// hashes and the file layout. Its SHA-1 digest is the swarm's info hash.
type Info struct {
	PieceLength uint32     `bencode:"piece length" json:"piece_length"`
	Pieces      []byte     `bencode:"pieces" json:"pieces"`
	Name        string     `bencode:"name" json:"name"`
	Length      int64      `bencode:"length" json:"length"` // Single File Mode
	Files       []FileDict `bencode:"files" json:"files"`   // Multiple File mode

	// Calculated fields
	Hash        [20]byte `bencode:"-" json:"-"`
	TotalLength int64    `bencode:"-" json:"-"`
	NumPieces   uint32   `bencode:"-" json:"-"`
	Bytes       []byte   `bencode:"-" json:"-"`
}

// FileDict is a file entry in multiple file mode.
type FileDict struct {
	Length int64    `bencode:"length" json:"length"`
	Path   []string `bencode:"path" json:"path"`
}

// NewInfo decodes and validates a bencoded info dict.
func NewInfo(b []byte) (*Info, error) {
	var i Info
	if err := bencode.DecodeBytes(b, &i); err != nil {
		return nil, err
	}
	if i.PieceLength == 0 {
		return nil, errors.New("zero piece length")
	}
	if uint32(len(i.Pieces))%sha1.Size != 0 {
		return nil, errInvalidPieceData
	}
	if err := checkFilePaths(i.Files); err != nil {
		return nil, err
	}
	i.NumPieces = uint32(len(i.Pieces)) / sha1.Size
	i.TotalLength = i.Length
	if i.MultiFile() {
		i.TotalLength = 0
		for _, f := range i.Files {
			i.TotalLength += f.Length
		}
	}
	// The piece count must cover the total length with less than one piece
	// of slack.
	slack := int64(i.PieceLength)*int64(i.NumPieces) - i.TotalLength
	if slack < 0 || slack >= int64(i.PieceLength) {
		return nil, errInvalidPieceData
	}
	i.Bytes = b
	i.Hash = sha1.Sum(b) // nolint: gosec
	return &i, nil
}

// checkFilePaths rejects ".." path elements so a manifest cannot point
// outside the data directory.
func checkFilePaths(files []FileDict) error {
	for _, file := range files {
		for _, elem := range file.Path {
			if strings.TrimSpace(elem) == ".." {
				return fmt.Errorf("invalid file name: %q", filepath.Join(file.Path...))
			}
		}
	}
	return nil
}

// MultiFile returns true if the manifest describes more than one file.
func (i *Info) MultiFile() bool {
	return len(i.Files) != 0
}

// HashOf returns the expected SHA-1 digest of the piece at index.
func (i *Info) HashOf(index uint32) []byte {
	begin := index * sha1.Size
	return i.Pieces[begin : begin+sha1.Size]
}

// GetFiles returns the files in the manifest as a slice, even if there is a single file.
func (i *Info) GetFiles() []FileDict {
	if i.MultiFile() {
		return i.Files
	}
	return []FileDict{{i.Length, []string{i.Name}}}
}
