package infodownloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPeer struct {
	size      uint32
	requested []uint32
}

func (p *testPeer) MetadataSize() uint32 { return p.size }
func (p *testPeer) RequestMetadataPiece(index uint32) {
	p.requested = append(p.requested, index)
}

func TestDownload(t *testing.T) {
	pe := &testPeer{size: blockSize + 100}
	d := New(pe)
	d.RequestBlocks(10)
	require.Equal(t, []uint32{0, 1}, pe.requested)

	require.NoError(t, d.GotBlock(0, make([]byte, blockSize)))
	assert.False(t, d.Done())
	require.NoError(t, d.GotBlock(1, make([]byte, 100)))
	assert.True(t, d.Done())
}

func TestGotBlockErrors(t *testing.T) {
	pe := &testPeer{size: blockSize}
	d := New(pe)
	assert.Error(t, d.GotBlock(5, nil))          // invalid index
	assert.Error(t, d.GotBlock(0, nil))          // not requested
	d.RequestBlocks(10)
	assert.Error(t, d.GotBlock(0, make([]byte, 10))) // wrong size
}
