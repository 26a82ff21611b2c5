package swarm

import (
	"net"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/driftd/drift/internal/acceptor"
	"github.com/driftd/drift/internal/allocator"
	"github.com/driftd/drift/internal/announcer"
	"github.com/driftd/drift/internal/infodownloader"
	"github.com/driftd/drift/internal/peer"
	"github.com/driftd/drift/internal/piecedownloader"
	"github.com/driftd/drift/internal/tracker"
	"github.com/driftd/drift/internal/verifier"
)

func (t *transfer) start() {
	// Do not start if already started.
	if t.errC != nil {
		return
	}

	// Stop announcing the stopped event if in "Stopping" state.
	if t.stoppedEventAnnouncer != nil {
		t.stoppedEventAnnouncer.Close()
		t.stoppedEventAnnouncer = nil
	}

	t.log.Info("starting transfer")
	t.errC = make(chan error, 1)
	t.portC = make(chan int, 1)
	t.lastError = nil
	t.downloadSpeed = metrics.NewMeter()
	t.uploadSpeed = metrics.NewMeter()

	t.startedAt = time.Now()
	t.lastProgressAt = t.startedAt
	t.bytesSinceStart = 0
	t.hardTimeoutWarned = false
	t.lastWarningAt = time.Time{}

	t.publishEvent(EventStarted, "")

	if t.info != nil {
		if t.pieces != nil {
			if t.bitfield != nil {
				t.addFixedPeers()
				t.startAcceptor()
				t.startAnnouncers()
				t.startPieceDownloaders()
			} else {
				t.startVerifier()
			}
		} else {
			t.startAllocator()
		}
	} else {
		t.addFixedPeers()
		t.startAcceptor()
		t.startAnnouncers()
		t.startInfoDownloaders()
	}
}

func (t *transfer) startVerifier() {
	if t.verifier != nil {
		panic("verifier exists")
	}
	if len(t.pieces) == 0 {
		panic("zero length pieces")
	}
	t.verifier = verifier.New()
	go t.verifier.Run(t.pieces, t.verifierProgressC, t.verifierResultC)
}

func (t *transfer) startAllocator() {
	if t.allocator != nil {
		panic("allocator exists")
	}
	t.allocator = allocator.New()
	go t.allocator.Run(t.info, t.storage, t.allocatorProgressC, t.allocatorResultC)
}

func (t *transfer) addFixedPeers() {
	for _, addr := range t.fixedPeers {
		_ = t.addPeerString(addr)
	}
}

func (t *transfer) startAnnouncers() {
	if len(t.announcers) == 0 {
		for _, tr := range t.trackerList {
			t.startNewAnnouncer(tr)
		}
	}
	if t.dhtAnnouncer == nil && t.session.dht != nil {
		t.dhtAnnouncer = announcer.NewDHTAnnouncer()
		go t.dhtAnnouncer.Run(t.announceDHT, t.session.config.DHTAnnounceInterval, t.session.config.DHTMinAnnounceInterval, t.log)
	}
}

func (t *transfer) startNewAnnouncer(tr tracker.Tracker) {
	an := announcer.NewPeriodicalAnnouncer(
		tr,
		t.session.config.TrackerNumWant,
		t.session.config.TrackerMinAnnounceInterval,
		t.announcerFields,
		t.completeC,
		t.addrsFromTrackers,
		t.log,
	)
	t.announcers = append(t.announcers, an)
	go an.Run()
}

func (t *transfer) startAcceptor() {
	if t.acceptor != nil {
		return
	}
	listener, err := net.ListenTCP("tcp4", &net.TCPAddr{Port: t.port})
	if err != nil {
		t.log.Warningf("cannot listen port %d: %s", t.port, err)
		return
	}
	t.log.Info("listening for peers on tcp://" + listener.Addr().String())
	t.port = listener.Addr().(*net.TCPAddr).Port
	t.portC <- t.port
	t.acceptor = acceptor.New(listener, t.incomingConnC, t.log)
	go t.acceptor.Run()
}

func (t *transfer) startInfoDownloaders() {
	if t.info != nil {
		return
	}
	for len(t.infoDownloaders)-len(t.infoDownloadersSnubbed) < t.session.config.ParallelMetadataDownloads {
		id := t.nextInfoDownload()
		if id == nil {
			break
		}
		pe := id.Peer.(*peer.Peer)
		t.infoDownloaders[pe] = id
		id.RequestBlocks(t.maxAllowedRequests(pe))
		pe.StartSnubTimer()
	}
}

func (t *transfer) nextInfoDownload() *infodownloader.InfoDownloader {
	for pe := range t.peers {
		if pe.Snubbed {
			continue
		}
		if _, ok := t.infoDownloaders[pe]; ok {
			continue
		}
		if pe.ExtensionHandshake == nil {
			continue
		}
		if pe.MetadataSize() == 0 {
			continue
		}
		return infodownloader.New(pe)
	}
	return nil
}

func (t *transfer) startPieceDownloaders() {
	for pe := range t.peers {
		if !pe.Downloading {
			t.startPieceDownloaderFor(pe)
		}
	}
}

func (t *transfer) startPieceDownloaderFor(pe *peer.Peer) {
	if t.piecePicker == nil || t.completed {
		return
	}
	if s := t.status(); s != Transferring && s != Discovering {
		return
	}
	pi := t.piecePicker.PickFor(pe)
	if pi == nil {
		return
	}
	pd := piecedownloader.New(pi, pe, t.piecePool.Get(int(pi.Length)))
	if _, ok := t.pieceDownloaders[pe]; ok {
		panic("peer already has a piece downloader")
	}
	t.log.Debugf("requesting piece #%d from peer %s", pi.Index, pe.IP())
	t.pieceDownloaders[pe] = pd
	pe.Downloading = true
	pd.RequestBlocks(t.maxAllowedRequests(pe))
	pe.StartSnubTimer()
}

func (t *transfer) maxAllowedRequests(pe *peer.Peer) int {
	ret := t.session.config.DefaultRequestsOut
	if pe.ExtensionHandshake != nil && pe.ExtensionHandshake.RequestQueue > 0 {
		ret = pe.ExtensionHandshake.RequestQueue
	}
	if ret > t.session.config.MaxRequestsOut {
		ret = t.session.config.MaxRequestsOut
	}
	return ret
}
