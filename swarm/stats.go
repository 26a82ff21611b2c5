package swarm

import (
	"time"

	"github.com/driftd/drift/internal/counters"
	"github.com/driftd/drift/internal/peersource"
)

// Stats is a snapshot of the state of a Swarm.
type Stats struct {
	// Hash of the content the swarm is transferring.
	InfoHash [20]byte
	// TCP port the swarm is listening on for peer connections.
	Port int
	// Status of the swarm.
	Status Status
	// Contains the error message if the swarm has failed.
	Error error

	Pieces struct {
		// Number of pieces that are checked when the files are opened.
		Checked uint32
		// Number of pieces that we are downloaded and verified.
		Have uint32
		// Number of pieces that we don't have.
		Missing uint32
		// Number of unique pieces available on connected peers.
		Available uint32
		// Number of total pieces in the content.
		Total uint32
		// Completion bitfield, one bit per piece, highest bit first.
		// Nil until the metadata is known.
		Bitfield []byte
	}

	Bytes struct {
		// Bytes that are downloaded and verified.
		Completed int64
		// The number of bytes to download until the transfer is complete.
		Incomplete int64
		// Total length of the content.
		Total int64
		// Downloaded bytes count. Actual transferred bytes, including wasted.
		Downloaded int64
		// Uploaded bytes count.
		Uploaded int64
		// Downloaded but discarded bytes. Failed hash checks, duplicate
		// blocks and protocol overhead.
		Wasted int64
		// Bytes allocated on storage.
		Allocated int64
	}

	Peers struct {
		// Total number of connected peers.
		Total int
		// Number of peers that have connected to us.
		Incoming int
		// Number of peers that we have connected to.
		Outgoing int
	}

	Handshakes struct {
		// Total number of handshake attempts in flight.
		Total int
		// Number of incoming handshakes in flight.
		Incoming int
		// Number of outgoing handshakes in flight.
		Outgoing int
	}

	Addresses struct {
		// Total number of peer addresses that are ready to be dialed.
		Total int
		// Peer addresses came from trackers.
		Tracker int
		// Peer addresses came from DHT.
		DHT int
	}

	Downloads struct {
		Piece struct {
			// Number of active piece downloads.
			Total int
			// Number of piece downloads in "running" state.
			Running int
			// Number of piece downloads in "snubbed" state.
			Snubbed int
			// Number of piece downloads in "choked" state.
			Choked int
		}
		Metadata struct {
			// Number of active metadata downloads.
			Total int
			// Number of metadata downloads in "running" state.
			Running int
			// Number of metadata downloads in "snubbed" state.
			Snubbed int
		}
	}

	// Name of the content. Becomes available after metadata is downloaded.
	Name string
	// Number of files in the content.
	FileCount int
	// Length of a single piece.
	PieceLength uint32
	// Duration in which the transfer stayed in Seeding status.
	SeededFor time.Duration

	Speed struct {
		// Downloaded bytes per second.
		Download int
		// Uploaded bytes per second.
		Upload int
	}
}

func (t *transfer) stats() Stats {
	var s Stats
	s.InfoHash = t.infoHash
	s.Port = t.port
	s.Status = t.status()
	s.Error = t.lastError
	s.Addresses.Total = t.addrList.Len()
	s.Addresses.Tracker = t.addrList.LenSource(peersource.Tracker)
	s.Addresses.DHT = t.addrList.LenSource(peersource.DHT)
	s.Handshakes.Incoming = len(t.incomingHandshakers)
	s.Handshakes.Outgoing = len(t.outgoingHandshakers)
	s.Handshakes.Total = len(t.incomingHandshakers) + len(t.outgoingHandshakers)
	s.Peers.Total = len(t.peers)
	s.Peers.Incoming = len(t.incomingPeers)
	s.Peers.Outgoing = len(t.outgoingPeers)
	s.Downloads.Metadata.Total = len(t.infoDownloaders)
	s.Downloads.Metadata.Snubbed = len(t.infoDownloadersSnubbed)
	s.Downloads.Metadata.Running = len(t.infoDownloaders) - len(t.infoDownloadersSnubbed)
	s.Downloads.Piece.Total = len(t.pieceDownloaders)
	s.Downloads.Piece.Snubbed = len(t.pieceDownloadersSnubbed)
	s.Downloads.Piece.Choked = len(t.pieceDownloadersChoked)
	s.Downloads.Piece.Running = len(t.pieceDownloaders) - len(t.pieceDownloadersChoked) - len(t.pieceDownloadersSnubbed)
	s.Pieces.Available = t.availablePieceCount()
	s.Bytes.Downloaded = t.counters.Read(counters.BytesDownloaded)
	s.Bytes.Uploaded = t.counters.Read(counters.BytesUploaded)
	s.Bytes.Wasted = t.counters.Read(counters.BytesWasted)
	s.SeededFor = t.seededFor()
	s.Bytes.Allocated = t.bytesAllocated
	s.Pieces.Checked = t.checkedPieces
	s.Speed.Download = int(t.downloadSpeed.Rate1())
	s.Speed.Upload = int(t.uploadSpeed.Rate1())

	if t.info != nil {
		s.Bytes.Total = t.info.TotalLength
		s.Bytes.Completed = t.bytesComplete()
		s.Bytes.Incomplete = s.Bytes.Total - s.Bytes.Completed
		s.Name = t.info.Name
		s.FileCount = len(t.info.GetFiles())
		s.PieceLength = t.info.PieceLength
		s.Pieces.Total = t.info.NumPieces
	} else {
		// Some trackers don't send any peers if `left` is zero.
		// The exact amount is unknown until the metadata is downloaded.
		s.Bytes.Incomplete = -1

		s.Name = t.name
	}
	if t.bitfield != nil {
		s.Pieces.Have = t.bitfield.Count()
		s.Pieces.Missing = s.Pieces.Total - s.Pieces.Have
		// Copied so the snapshot stays stable while the transfer moves on.
		s.Pieces.Bitfield = make([]byte, len(t.bitfield.Bytes()))
		copy(s.Pieces.Bitfield, t.bitfield.Bytes())
	}
	return s
}

func (t *transfer) availablePieceCount() uint32 {
	if t.piecePicker == nil {
		return 0
	}
	return t.piecePicker.Available()
}
