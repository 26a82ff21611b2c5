package swarm

import (
	"github.com/rcrowley/go-metrics"

	"github.com/driftd/drift/internal/announcer"
	"github.com/driftd/drift/internal/counters"
	"github.com/driftd/drift/internal/handshaker/incominghandshaker"
	"github.com/driftd/drift/internal/handshaker/outgoinghandshaker"
	"github.com/driftd/drift/internal/resumer"
	"github.com/driftd/drift/internal/tracker"
)

func (t *transfer) handleStopped() {
	t.stoppedEventAnnouncer = nil
	t.errC <- t.lastError
	t.errC = nil
	t.portC = nil
	t.log.Info("transfer has stopped")
}

func (t *transfer) stop(err error) {
	s := t.status()
	if s == Stopping || s == Stopped {
		return
	}

	t.log.Info("stopping transfer")
	t.lastError = err
	if err != nil && err != errClosed {
		t.log.Error(err)
		t.publishEvent(EventFailed, err.Error())
	} else if !t.completed {
		t.publishEvent(EventCancelled, "")
	}

	t.stopAcceptor()
	t.stopPeers()
	t.stopPieceDownloaders()
	t.stopInfoDownloaders()

	if t.bitfield != nil {
		_ = t.writeBitfield()
	}
	t.writeStats()

	// Stop periodic announcers first. A separate announcer is created below
	// for announcing the stopped event. Must be done before closing the data
	// files because the announcer reads the piece table.
	announcers := t.announcers
	t.stopPeriodicalAnnouncers()

	// Closing data cancels ongoing IO operations on files.
	t.closeData()
	// Data must be closed before closing Allocator.
	t.stopAllocator()
	// Data must be closed before closing Verifier.
	t.stopVerifier()

	t.stopOutgoingHandshakers()
	t.stopIncomingHandshakers()

	t.resetSpeeds()

	// Start a new announcer to announce the stopped event to the trackers.
	// The swarm stays in "Stopping" state until it finishes.
	trackers := make([]tracker.Tracker, 0, len(announcers))
	for _, an := range announcers {
		if an.HasAnnounced {
			trackers = append(trackers, an.Tracker)
		}
	}
	if t.stoppedEventAnnouncer != nil {
		panic("stopped event announcer exists")
	}
	t.stoppedEventAnnouncer = announcer.NewStopAnnouncer(trackers, t.announcerFields(), t.session.config.TrackerStopTimeout, t.announcersStoppedC, t.log)
	go t.stoppedEventAnnouncer.Run()

	t.addrList.Reset()
}

func (t *transfer) writeBitfield() error {
	err := t.resume.WriteBitfield(t.bitfield.Bytes())
	if err != nil {
		t.log.Errorf("cannot write bitfield to resume db: %s", err)
	}
	return err
}

func (t *transfer) writeStats() {
	err := t.resume.WriteStats(resumer.Stats{
		BytesDownloaded: t.counters.Read(counters.BytesDownloaded),
		BytesUploaded:   t.counters.Read(counters.BytesUploaded),
		BytesWasted:     t.counters.Read(counters.BytesWasted),
		SeededFor:       t.seededFor(),
	})
	if err != nil {
		t.log.Errorf("cannot write stats to resume db: %s", err)
	}
}

func (t *transfer) stopAllocator() {
	if t.allocator != nil {
		t.log.Debugln("stopping allocator")
		t.allocator.Close()
		t.allocator = nil
	}
}

func (t *transfer) stopVerifier() {
	if t.verifier != nil {
		t.log.Debugln("stopping verifier")
		t.verifier.Close()
		t.verifier = nil
	}
}

func (t *transfer) resetSpeeds() {
	t.downloadSpeed.Stop()
	t.downloadSpeed = metrics.NilMeter{}
	t.uploadSpeed.Stop()
	t.uploadSpeed = metrics.NilMeter{}
}

func (t *transfer) stopOutgoingHandshakers() {
	for oh := range t.outgoingHandshakers {
		oh.Close()
	}
	t.outgoingHandshakers = make(map[*outgoinghandshaker.OutgoingHandshaker]struct{})
}

func (t *transfer) stopIncomingHandshakers() {
	for ih := range t.incomingHandshakers {
		ih.Close()
	}
	t.incomingHandshakers = make(map[*incominghandshaker.IncomingHandshaker]struct{})
}

func (t *transfer) closeData() {
	for _, f := range t.files {
		err := f.Storage.Close()
		if err != nil {
			t.log.Error(err)
		}
	}
	t.files = nil
	t.pieces = nil
	t.piecePicker = nil
	t.bytesAllocated = 0
	t.checkedPieces = 0
}

func (t *transfer) stopPeriodicalAnnouncers() {
	for _, an := range t.announcers {
		an.Close()
	}
	t.announcers = nil
	if t.dhtAnnouncer != nil {
		t.dhtAnnouncer.Close()
		t.dhtAnnouncer = nil
	}
}

func (t *transfer) stopAcceptor() {
	if t.acceptor != nil {
		t.acceptor.Close()
	}
	t.acceptor = nil
}

func (t *transfer) stopPeers() {
	for pe := range t.peers {
		t.closePeer(pe)
	}
}

func (t *transfer) stopInfoDownloaders() {
	for _, id := range t.infoDownloaders {
		t.closeInfoDownloader(id)
	}
}

func (t *transfer) stopPieceDownloaders() {
	for _, pd := range t.pieceDownloaders {
		t.closePieceDownloader(pd)
	}
}
