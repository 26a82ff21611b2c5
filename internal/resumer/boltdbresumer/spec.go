package boltdbresumer

import "time"

// Spec is the part of a transfer that is saved to the database.
// It is enough to reconstruct the transfer after a restart.
type Spec struct {
	InfoHash        []byte
	Name            string
	Dest            string
	Port            int
	Trackers        [][]string
	FixedPeers      []string
	Info            []byte
	Bitfield        []byte
	AddedAt         time.Time
	BytesDownloaded int64
	BytesUploaded   int64
	BytesWasted     int64
	SeededFor       time.Duration
	Started         bool
}
