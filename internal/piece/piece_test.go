package piece

import (
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"

	"github.com/driftd/drift/internal/metainfo"
	"github.com/driftd/drift/internal/storage"
)

type nullFile struct{}

func (nullFile) ReadAt(p []byte, off int64) (int, error)  { return len(p), nil }
func (nullFile) WriteAt(p []byte, off int64) (int, error) { return len(p), nil }
func (nullFile) Close() error                             { return nil }
func (nullFile) Sync() error                              { return nil }

func testInfo(t *testing.T, pieceLength uint32, fileLengths ...int64) *metainfo.Info {
	t.Helper()
	var total int64
	for _, l := range fileLengths {
		total += l
	}
	numPieces := (total + int64(pieceLength) - 1) / int64(pieceLength)
	pieces := make([]byte, numPieces*sha1.Size)
	m := map[string]any{
		"name":         "test",
		"piece length": int64(pieceLength),
		"pieces":       pieces,
	}
	if len(fileLengths) == 1 {
		m["length"] = fileLengths[0]
	} else {
		var files []map[string]any
		for i, l := range fileLengths {
			files = append(files, map[string]any{"length": l, "path": []string{string(rune('a' + i))}})
		}
		m["files"] = files
	}
	b, err := bencode.EncodeBytes(m)
	require.NoError(t, err)
	info, err := metainfo.NewInfo(b)
	require.NoError(t, err)
	return info
}

func TestNewPiecesSingleFile(t *testing.T) {
	info := testInfo(t, 2*BlockSize, 3*BlockSize)
	pieces := NewPieces(info, []storage.File{nullFile{}})
	require.Len(t, pieces, 2)
	assert.Equal(t, uint32(2*BlockSize), pieces[0].Length)
	assert.Equal(t, uint32(BlockSize), pieces[1].Length)
	assert.Equal(t, 2, pieces[0].NumBlocks())
	assert.Equal(t, 1, pieces[1].NumBlocks())
}

func TestNewPiecesSpanningFiles(t *testing.T) {
	// One piece spans both files.
	info := testInfo(t, 2*BlockSize, BlockSize, BlockSize)
	pieces := NewPieces(info, []storage.File{nullFile{}, nullFile{}})
	require.Len(t, pieces, 1)
	require.Len(t, pieces[0].Data, 2)
	assert.Equal(t, int64(BlockSize), pieces[0].Data[0].Length)
	assert.Equal(t, int64(BlockSize), pieces[0].Data[1].Length)
}

func TestCalculateBlocks(t *testing.T) {
	p := Piece{Length: 2*BlockSize + 42}
	blocks := p.CalculateBlocks()
	require.Len(t, blocks, 3)
	assert.Equal(t, Block{Index: 0, Begin: 0, Length: BlockSize}, blocks[0])
	assert.Equal(t, Block{Index: 2, Begin: 2 * BlockSize, Length: 42}, blocks[2])
}

func TestFindBlock(t *testing.T) {
	p := Piece{Length: 2*BlockSize + 42}
	b, ok := p.FindBlock(BlockSize, BlockSize)
	require.True(t, ok)
	assert.Equal(t, uint32(1), b.Index)

	_, ok = p.FindBlock(BlockSize, 100)
	assert.False(t, ok)
	_, ok = p.FindBlock(BlockSize+1, BlockSize)
	assert.False(t, ok)
	_, ok = p.FindBlock(10*BlockSize, BlockSize)
	assert.False(t, ok)
}

func TestVerifyHash(t *testing.T) {
	data := []byte("hello world")
	sum := sha1.Sum(data)
	p := Piece{Length: uint32(len(data)), Hash: sum[:]}
	assert.True(t, p.VerifyHash(data, sha1.New()))
	assert.False(t, p.VerifyHash([]byte("hello worlD"), sha1.New()))
	assert.False(t, p.VerifyHash(data[:5], sha1.New()))
}
