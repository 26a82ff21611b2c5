// Package swarm provides a peer-to-peer content transfer engine.
//
// A Session manages multiple Swarms. Each Swarm downloads or seeds a single
// content, identified by its info hash, from a dynamic set of peers.
package swarm

import (
	"time"
)

// Swarm is the handle for a single transfer inside a Session.
type Swarm struct {
	transfer *transfer
}

// ID returns the unique identifier of the swarm inside the session.
func (s *Swarm) ID() string {
	return s.transfer.id
}

// Name of the content. Returns the name in the magnet link until the
// metadata is downloaded, after that the name in the metadata.
func (s *Swarm) Name() string {
	return s.Stats().Name
}

// InfoHash identifies the content of the swarm.
func (s *Swarm) InfoHash() [20]byte {
	return s.transfer.infoHash
}

// InfoHashString returns the info hash in 40 hex characters.
func (s *Swarm) InfoHashString() string {
	return s.transfer.infoHashString()
}

// AddedAt returns the time the swarm was added to the session.
func (s *Swarm) AddedAt() time.Time {
	return s.transfer.addedAt
}

// Start the swarm. Does nothing if it is already started.
// The started state is persistent, the swarm starts automatically when the
// session is restarted.
func (s *Swarm) Start() error {
	err := s.transfer.session.resumer.WriteStarted(s.transfer.id, true)
	if err != nil {
		return err
	}
	select {
	case s.transfer.startCommandC <- struct{}{}:
	case <-s.transfer.doneC:
	}
	return nil
}

// Stop the swarm. Does nothing if it is already stopped. A stop announce is
// sent to the trackers before the swarm goes into Stopped status.
func (s *Swarm) Stop() error {
	err := s.transfer.session.resumer.WriteStarted(s.transfer.id, false)
	if err != nil {
		return err
	}
	select {
	case s.transfer.stopCommandC <- struct{}{}:
	case <-s.transfer.doneC:
	}
	return nil
}

// Announce the swarm to trackers and DHT immediately, regardless of the
// scheduled announce time.
func (s *Swarm) Announce() {
	select {
	case s.transfer.announceCommandC <- struct{}{}:
	case <-s.transfer.doneC:
	}
}

// Stats returns a snapshot of the swarm state.
func (s *Swarm) Stats() Stats {
	var st Stats
	req := statsRequest{Response: make(chan Stats, 1)}
	select {
	case s.transfer.statsCommandC <- req:
	case <-s.transfer.doneC:
		return st
	}
	select {
	case st = <-req.Response:
	case <-s.transfer.doneC:
	}
	return st
}

// Port returns the TCP port number the swarm listens on for peer
// connections.
func (s *Swarm) Port() int {
	return s.transfer.port
}

// NotifyListen returns a channel that receives the actual listen port after
// the peer listener is started. Nil is returned when the swarm is not
// running.
func (s *Swarm) NotifyListen() <-chan int {
	cmd := notifyListenCommand{portCC: make(chan chan int)}
	select {
	case s.transfer.notifyListenCommandC <- cmd:
		return <-cmd.portCC
	case <-s.transfer.doneC:
		return nil
	}
}

// AddPeer adds a fixed peer to the swarm. The address must be in "ip:port"
// form, host names are not resolved.
func (s *Swarm) AddPeer(addr string) error {
	taddr, err := parsePeerAddr(addr)
	if err != nil {
		return err
	}
	select {
	case s.transfer.addPeersCommandC <- taddr:
	case <-s.transfer.doneC:
	}
	return nil
}

// Events returns the channel the swarm publishes its state changes on.
// The channel is never closed. Events are dropped when the consumer is slow.
func (s *Swarm) Events() <-chan Event {
	return s.transfer.events
}

// NotifyComplete returns a channel that is closed once all pieces are
// downloaded and verified.
func (s *Swarm) NotifyComplete() <-chan struct{} {
	return s.transfer.completeC
}

// NotifyMetadata returns a channel that is closed once the metadata of a
// magnet download is fetched from the swarm.
func (s *Swarm) NotifyMetadata() <-chan struct{} {
	return s.transfer.completeMetadataC
}

// NotifyError returns a channel for waiting on transfer errors. The error
// that stopped the swarm is sent to the channel. Nil is returned when the
// swarm is not running.
func (s *Swarm) NotifyError() <-chan error {
	cmd := notifyErrorCommand{errCC: make(chan chan error)}
	select {
	case s.transfer.notifyErrorCommandC <- cmd:
		return <-cmd.errCC
	case <-s.transfer.doneC:
		return nil
	}
}
