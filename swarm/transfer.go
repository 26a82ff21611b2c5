package swarm

import (
	"crypto/rand"
	"encoding/hex"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/driftd/drift/internal/acceptor"
	"github.com/driftd/drift/internal/addrlist"
	"github.com/driftd/drift/internal/allocator"
	"github.com/driftd/drift/internal/announcer"
	"github.com/driftd/drift/internal/bitfield"
	"github.com/driftd/drift/internal/bufferpool"
	"github.com/driftd/drift/internal/counters"
	"github.com/driftd/drift/internal/handshaker/incominghandshaker"
	"github.com/driftd/drift/internal/handshaker/outgoinghandshaker"
	"github.com/driftd/drift/internal/infodownloader"
	"github.com/driftd/drift/internal/logger"
	"github.com/driftd/drift/internal/metainfo"
	"github.com/driftd/drift/internal/peer"
	"github.com/driftd/drift/internal/piece"
	"github.com/driftd/drift/internal/piecedownloader"
	"github.com/driftd/drift/internal/piecepicker"
	"github.com/driftd/drift/internal/piecewriter"
	"github.com/driftd/drift/internal/resumer"
	"github.com/driftd/drift/internal/resumer/boltdbresumer"
	"github.com/driftd/drift/internal/storage"
	"github.com/driftd/drift/internal/suspendchan"
	"github.com/driftd/drift/internal/tracker"
	"github.com/driftd/drift/internal/tracker/httptracker"
	"github.com/driftd/drift/internal/unchoker"
	"github.com/driftd/drift/internal/verifier"
)

// transfer holds the whole state of a single swarm.
// All fields are owned by the run loop goroutine; other goroutines
// communicate with it over channels only.
type transfer struct {
	session *Session
	id      string
	addedAt time.Time

	// Unique peer ID generated per transfer.
	peerID [20]byte

	infoHash   [20]byte
	name       string
	trackers   [][]string
	fixedPeers []string
	port       int
	storage    storage.Storage

	// May be nil at the beginning for magnet downloads.
	info *metainfo.Info

	// Verified pieces. Nil until the files are allocated and verified.
	bitfield  *bitfield.Bitfield
	mBitfield sync.RWMutex

	files       []allocator.File
	pieces      []piece.Piece
	piecePicker *piecepicker.PiecePicker
	piecePool   *bufferpool.Pool

	// Monotonic byte counters, readable from other goroutines.
	counters *counters.Counters

	downloadSpeed metrics.Meter
	uploadSpeed   metrics.Meter

	resume resumer.Resumer

	completed bool
	// Closed when all pieces are downloaded and verified.
	completeC chan struct{}
	// Closed when metadata is fetched for a magnet download.
	completeMetadataC chan struct{}

	// Set when the swarm stops because of an unrecoverable error.
	lastError error
	// Non-nil while the swarm is running. The error that stopped the swarm
	// is sent here.
	errC chan error
	// Receives the actual listen port after the acceptor is started.
	portC chan int

	peers         map[*peer.Peer]struct{}
	incomingPeers map[*peer.Peer]struct{}
	outgoingPeers map[*peer.Peer]struct{}

	pieceDownloaders        map[*peer.Peer]*piecedownloader.PieceDownloader
	pieceDownloadersSnubbed map[*peer.Peer]*piecedownloader.PieceDownloader
	pieceDownloadersChoked  map[*peer.Peer]*piecedownloader.PieceDownloader

	infoDownloaders        map[*peer.Peer]*infodownloader.InfoDownloader
	infoDownloadersSnubbed map[*peer.Peer]*infodownloader.InfoDownloader

	peerIDs          map[[20]byte]struct{}
	connectedPeerIPs map[string]struct{}
	bannedPeerIPs    map[string]struct{}

	incomingHandshakers map[*incominghandshaker.IncomingHandshaker]struct{}
	outgoingHandshakers map[*outgoinghandshaker.OutgoingHandshaker]struct{}

	incomingHandshakerResultC chan *incominghandshaker.IncomingHandshaker
	outgoingHandshakerResultC chan *outgoinghandshaker.OutgoingHandshaker

	addrList *addrlist.AddrList

	unchoker *unchoker.Unchoker

	trackerList           []tracker.Tracker
	announcers            []*announcer.PeriodicalAnnouncer
	stoppedEventAnnouncer *announcer.StopAnnouncer
	announcersStoppedC    chan struct{}
	dhtAnnouncer          *announcer.DHTAnnouncer
	dhtPeersC             chan []*net.TCPAddr

	acceptor      *acceptor.Acceptor
	incomingConnC chan net.Conn

	allocator          *allocator.Allocator
	allocatorProgressC chan allocator.Progress
	allocatorResultC   chan *allocator.Allocator
	bytesAllocated     int64

	verifier          *verifier.Verifier
	verifierProgressC chan verifier.Progress
	verifierResultC   chan *verifier.Verifier
	checkedPieces     uint32

	pieceWriterResultC chan *piecewriter.PieceWriter

	pieceMessagesC *suspendchan.Chan[any]
	messages       chan peer.Message

	peerSnubbedC      chan *peer.Peer
	peerDisconnectedC chan *peer.Peer

	addrsFromTrackers chan []*net.TCPAddr
	addPeersCommandC  chan []*net.TCPAddr

	statsCommandC       chan statsRequest
	startCommandC       chan struct{}
	stopCommandC        chan struct{}
	announceCommandC    chan struct{}
	notifyErrorCommandC chan notifyErrorCommand
	notifyListenCommandC chan notifyListenCommand

	events chan Event

	// Liveness bookkeeping for the timeout policy.
	startedAt             time.Time
	lastProgressAt        time.Time
	bytesSinceStart       int64
	hardTimeoutWarned     bool
	lastWarningAt         time.Time
	seedDurationUpdatedAt time.Time

	closeC chan struct{}
	doneC  chan struct{}

	log logger.Logger
}

type statsRequest struct {
	Response chan Stats
}

type notifyErrorCommand struct {
	errCC chan chan error
}

type notifyListenCommand struct {
	portCC chan chan int
}

// transferSpec carries the inputs needed to build a transfer.
type transferSpec struct {
	ID         string
	InfoHash   [20]byte
	Name       string
	Trackers   [][]string
	FixedPeers []string
	Storage    storage.Storage
	Port       int
	Info       []byte
	Bitfield   []byte
	AddedAt    time.Time

	BytesDownloaded int64
	BytesUploaded   int64
	BytesWasted     int64
	SeededFor       time.Duration
}

func (s *Session) newTransfer(spec *transferSpec) (*transfer, error) {
	var info *metainfo.Info
	var bf *bitfield.Bitfield
	var err error
	if len(spec.Info) > 0 {
		info, err = metainfo.NewInfo(spec.Info)
		if err != nil {
			return nil, err
		}
		if len(spec.Bitfield) > 0 {
			bf, err = bitfield.NewBytes(spec.Bitfield, info.NumPieces)
			if err != nil {
				return nil, err
			}
		}
	}
	logName := spec.Name
	if len(logName) > 20 {
		logName = logName[:20]
	}
	t := &transfer{
		session:    s,
		id:         spec.ID,
		addedAt:    spec.AddedAt,
		infoHash:   spec.InfoHash,
		name:       spec.Name,
		trackers:   spec.Trackers,
		fixedPeers: spec.FixedPeers,
		port:       spec.Port,
		storage:    spec.Storage,
		info:       info,
		bitfield:   bf,
		counters: counters.New(
			spec.BytesDownloaded, spec.BytesUploaded, spec.BytesWasted, int64(spec.SeededFor)),
		downloadSpeed: metrics.NilMeter{},
		uploadSpeed:   metrics.NilMeter{},
		resume:        boundResumer{res: s.resumer, id: spec.ID},

		completeC:         make(chan struct{}),
		completeMetadataC: make(chan struct{}),

		peers:         make(map[*peer.Peer]struct{}),
		incomingPeers: make(map[*peer.Peer]struct{}),
		outgoingPeers: make(map[*peer.Peer]struct{}),

		pieceDownloaders:        make(map[*peer.Peer]*piecedownloader.PieceDownloader),
		pieceDownloadersSnubbed: make(map[*peer.Peer]*piecedownloader.PieceDownloader),
		pieceDownloadersChoked:  make(map[*peer.Peer]*piecedownloader.PieceDownloader),

		infoDownloaders:        make(map[*peer.Peer]*infodownloader.InfoDownloader),
		infoDownloadersSnubbed: make(map[*peer.Peer]*infodownloader.InfoDownloader),

		peerIDs:          make(map[[20]byte]struct{}),
		connectedPeerIPs: make(map[string]struct{}),
		bannedPeerIPs:    make(map[string]struct{}),

		incomingHandshakers: make(map[*incominghandshaker.IncomingHandshaker]struct{}),
		outgoingHandshakers: make(map[*outgoinghandshaker.OutgoingHandshaker]struct{}),

		incomingHandshakerResultC: make(chan *incominghandshaker.IncomingHandshaker),
		outgoingHandshakerResultC: make(chan *outgoinghandshaker.OutgoingHandshaker),

		addrList: addrlist.New(s.config.MaxPeerAddresses, spec.Port),
		unchoker: unchoker.New(s.config.UnchokedPeers, s.config.OptimisticUnchokedPeers),

		announcersStoppedC: make(chan struct{}),
		dhtPeersC:          make(chan []*net.TCPAddr, 1),

		incomingConnC: make(chan net.Conn),

		allocatorProgressC: make(chan allocator.Progress),
		allocatorResultC:   make(chan *allocator.Allocator),
		verifierProgressC:  make(chan verifier.Progress),
		verifierResultC:    make(chan *verifier.Verifier),

		pieceWriterResultC: make(chan *piecewriter.PieceWriter),

		pieceMessagesC: suspendchan.New[any](0),
		messages:       make(chan peer.Message),

		peerSnubbedC:      make(chan *peer.Peer),
		peerDisconnectedC: make(chan *peer.Peer),

		addrsFromTrackers: make(chan []*net.TCPAddr),
		addPeersCommandC:  make(chan []*net.TCPAddr),

		statsCommandC:        make(chan statsRequest),
		startCommandC:        make(chan struct{}),
		stopCommandC:         make(chan struct{}),
		announceCommandC:     make(chan struct{}),
		notifyErrorCommandC:  make(chan notifyErrorCommand),
		notifyListenCommandC: make(chan notifyListenCommand),

		events: make(chan Event, eventBufferSize),

		closeC: make(chan struct{}),
		doneC:  make(chan struct{}),

		log: logger.New("swarm " + logName),
	}
	copy(t.peerID[:], s.config.PeerIDPrefix)
	_, err = rand.Read(t.peerID[len(s.config.PeerIDPrefix):])
	if err != nil {
		return nil, err
	}
	if info != nil {
		t.piecePool = bufferpool.New(int(info.PieceLength))
	}
	t.trackerList, err = s.parseTrackers(t.trackers, t.log)
	if err != nil {
		return nil, err
	}
	go t.run()
	return t, nil
}

func (s *Session) parseTrackers(tiers [][]string, log logger.Logger) ([]tracker.Tracker, error) {
	var ret []tracker.Tracker
	for _, tier := range tiers {
		for _, tr := range tier {
			u, err := url.Parse(tr)
			if err != nil {
				log.Warningln("cannot parse tracker url:", err)
				continue
			}
			switch u.Scheme {
			case "http", "https":
				ret = append(ret, httptracker.New(tr, u, s.config.TrackerHTTPTimeout, s.config.TrackerHTTPUserAgent))
			default:
				log.Warningln("unsupported tracker scheme:", u.Scheme)
			}
		}
	}
	return ret, nil
}

func (t *transfer) infoHashString() string {
	return hex.EncodeToString(t.infoHash[:])
}

// boundResumer binds a transfer ID to the session resume database.
type boundResumer struct {
	res *boltdbresumer.Resumer
	id  string
}

func (b boundResumer) WriteInfo(value []byte) error {
	return b.res.WriteInfo(b.id, value)
}

func (b boundResumer) WriteBitfield(value []byte) error {
	return b.res.WriteBitfield(b.id, value)
}

func (b boundResumer) WriteStats(s resumer.Stats) error {
	return b.res.WriteStats(b.id, s.BytesDownloaded, s.BytesUploaded, s.BytesWasted, s.SeededFor)
}
