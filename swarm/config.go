package swarm

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config for a Session. Zero values mean no limit where applicable.
type Config struct {
	// Database file to save resume data.
	Database string
	// DataDir is where downloaded files are saved.
	DataDir string
	// When true, files of each swarm are saved under DataDir/<swarm-id>.
	// When false, files are saved directly under DataDir.
	DataDirIncludesSwarmID bool
	// New swarms will listen for peers on a port in this range.
	PortBegin, PortEnd uint16
	// Prefix that identifies the client in the wire handshake peer ID.
	PeerIDPrefix string
	// Client name and version sent in the extension handshake.
	ExtensionHandshakeClientVersion string

	// Enable the DHT node for finding peers without trackers.
	DHTEnabled bool
	// DHT node will listen on this IP.
	DHTHost string
	// DHT node will listen on this UDP port.
	DHTPort uint16
	// How often to reannounce a swarm to the DHT.
	DHTAnnounceInterval time.Duration
	// Minimum time between two DHT announces of the same swarm.
	DHTMinAnnounceInterval time.Duration

	// Number of peers to keep unchoked by the reciprocation algorithm.
	UnchokedPeers int
	// Number of peers to keep unchoked regardless of their transfer rate.
	OptimisticUnchokedPeers int
	// Max number of block requests a peer may keep queued on us.
	MaxRequestsIn int
	// Max number of outstanding block requests to a single peer.
	MaxRequestsOut int
	// Outstanding block requests to a peer that did not declare a queue length.
	DefaultRequestsOut int
	// Time to wait for a requested block before marking the peer as snubbed.
	RequestTimeout time.Duration
	// Max number of simultaneous downloads of the same piece in endgame mode.
	EndgameMaxDuplicateDownloads int
	// Max number of outgoing connections to dial.
	MaxPeerDial int
	// Max number of incoming connections to accept.
	MaxPeerAccept int
	// Running metadata downloads, snubbed peers don't count.
	ParallelMetadataDownloads int
	// Time to wait for a TCP connection to open.
	PeerConnectTimeout time.Duration
	// Time to wait for the wire handshake to complete.
	PeerHandshakeTimeout time.Duration
	// When a peer has started to send a piece block, if it does not send any
	// bytes in PieceReadTimeout, the connection is closed.
	PieceReadTimeout time.Duration
	// Max number of peer addresses to keep in the dial backlog.
	MaxPeerAddresses int

	// Number of peer addresses to request in a tracker announce.
	TrackerNumWant int
	// Time to wait for announcing the stopped event on shutdown.
	TrackerStopTimeout time.Duration
	// Minimum time between two announces to the same tracker.
	TrackerMinAnnounceInterval time.Duration
	// Total time to wait for a response from a HTTP tracker.
	TrackerHTTPTimeout time.Duration
	// User agent sent in HTTP tracker requests.
	TrackerHTTPUserAgent string

	// Download rate limit in KiB/s. Unlimited if zero.
	SpeedLimitDownload int64
	// Upload rate limit in KiB/s. Unlimited if zero.
	SpeedLimitUpload int64
	// Number of piece writes that may hit the disk at the same time.
	ParallelWrites int
	// Number of times a failed piece write is retried before the swarm fails.
	MaxWriteRetries int

	// A swarm fails if it cannot find any peer and download any byte in this
	// duration after being started.
	DiscoveryTimeout time.Duration
	// Zero progress with peers connected for this duration emits a warning.
	IdleTimeout time.Duration
	// A swarm that transferred nothing fails after this duration.
	// Once any byte has been transferred it only warns and keeps running.
	HardTimeout time.Duration
	// Minimum time between two warning events of a swarm.
	WarningInterval time.Duration
}

// DefaultConfig for a Session.
var DefaultConfig = Config{
	Database:                        "~/.drift/session.db",
	DataDir:                         "~/drift-downloads",
	DataDirIncludesSwarmID:          true,
	PortBegin:                       50000,
	PortEnd:                         60000,
	PeerIDPrefix:                    "-DR0001-",
	ExtensionHandshakeClientVersion: "drift/0.1.0",

	DHTEnabled:             true,
	DHTHost:                "0.0.0.0",
	DHTPort:                7246,
	DHTAnnounceInterval:    30 * time.Minute,
	DHTMinAnnounceInterval: time.Minute,

	UnchokedPeers:                3,
	OptimisticUnchokedPeers:      1,
	MaxRequestsIn:                250,
	MaxRequestsOut:               250,
	DefaultRequestsOut:           50,
	RequestTimeout:               20 * time.Second,
	EndgameMaxDuplicateDownloads: 2,
	MaxPeerDial:                  25,
	MaxPeerAccept:                25,
	ParallelMetadataDownloads:    2,
	PeerConnectTimeout:           5 * time.Second,
	PeerHandshakeTimeout:         10 * time.Second,
	PieceReadTimeout:             30 * time.Second,
	MaxPeerAddresses:             2000,

	TrackerNumWant:             100,
	TrackerStopTimeout:         5 * time.Second,
	TrackerMinAnnounceInterval: time.Minute,
	TrackerHTTPTimeout:         30 * time.Second,
	TrackerHTTPUserAgent:       "drift/0.1.0",

	ParallelWrites:  4,
	MaxWriteRetries: 3,

	DiscoveryTimeout: 30 * time.Second,
	IdleTimeout:      2 * time.Minute,
	HardTimeout:      30 * time.Minute,
	WarningInterval:  time.Minute,
}

// LoadFromYaml reads the config file at the path and merges it over the config.
func (c *Config) LoadFromYaml(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}
