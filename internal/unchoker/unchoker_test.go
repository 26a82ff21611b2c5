package unchoker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type testPeer struct {
	choking       bool
	interested    bool
	optimistic    bool
	downloadSpeed int
	uploadSpeed   int
}

func (p *testPeer) Choke()                 { p.choking = true }
func (p *testPeer) Unchoke()               { p.choking = false }
func (p *testPeer) Choking() bool          { return p.choking }
func (p *testPeer) Interested() bool       { return p.interested }
func (p *testPeer) SetOptimistic(v bool)   { p.optimistic = v }
func (p *testPeer) Optimistic() bool       { return p.optimistic }
func (p *testPeer) DownloadSpeed() int     { return p.downloadSpeed }
func (p *testPeer) UploadSpeed() int       { return p.uploadSpeed }

func TestTickUnchokeFastestPeers(t *testing.T) {
	slow := &testPeer{choking: true, interested: true, downloadSpeed: 10}
	fast := &testPeer{choking: true, interested: true, downloadSpeed: 100}
	notInterested := &testPeer{choking: true, downloadSpeed: 1000}
	u := New(1, 0)
	// Skip the optimistic round so speed decides alone.
	u.round = 1
	u.TickUnchoke([]Peer{slow, fast, notInterested}, false)
	assert.False(t, fast.choking)
	assert.True(t, slow.choking)
	assert.True(t, notInterested.choking)
}

func TestFastUnchoke(t *testing.T) {
	pe := &testPeer{choking: true, interested: true}
	u := New(1, 0)
	u.FastUnchoke(pe)
	assert.False(t, pe.choking)

	pe2 := &testPeer{choking: true, interested: true}
	u.FastUnchoke(pe2)
	// No free slot left.
	assert.True(t, pe2.choking)
}

func TestHandleDisconnectFreesSlot(t *testing.T) {
	pe := &testPeer{choking: true, interested: true}
	u := New(1, 0)
	u.FastUnchoke(pe)
	u.HandleDisconnect(pe)

	pe2 := &testPeer{choking: true, interested: true}
	u.FastUnchoke(pe2)
	assert.False(t, pe2.choking)
}
