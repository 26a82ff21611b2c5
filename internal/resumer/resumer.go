// Package resumer contains an interface for saving progress of an existing transfer.
package resumer

import "time"

// Resumer persists the parts of a transfer that must survive a restart.
// Implementations must be safe to call from the transfer's run loop.
type Resumer interface {
	// WriteInfo saves the raw info dictionary once it is known.
	WriteInfo(info []byte) error
	// WriteBitfield saves the piece completion bitfield.
	WriteBitfield(bf []byte) error
	// WriteStats saves the transfer counters.
	WriteStats(s Stats) error
}

// Stats contains the numbers that need to survive a restart.
type Stats struct {
	BytesDownloaded int64
	BytesUploaded   int64
	BytesWasted     int64
	SeededFor       time.Duration
}
