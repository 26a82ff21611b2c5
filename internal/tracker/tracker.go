// Package tracker provides support for announcing swarms to HTTP trackers.
package tracker

import (
	"context"
	"errors"
	"net"
	"time"
)

// Tracker is an external service that keeps the list of peers in a swarm.
type Tracker interface {
	// Announce the transfer to the tracker.
	// Announce is called periodically with the interval returned in AnnounceResponse.
	// Announce is also called on specific events.
	Announce(ctx context.Context, req AnnounceRequest) (*AnnounceResponse, error)

	// URL of the tracker.
	URL() string
}

// AnnounceRequest contains the parameters of an announce.
type AnnounceRequest struct {
	Torrent Torrent
	Event   Event
	NumWant int
}

// AnnounceResponse is the parsed response of an announce.
type AnnounceResponse struct {
	Interval       time.Duration
	MinInterval    time.Duration
	Leechers       int32
	Seeders        int32
	WarningMessage string
	Peers          []*net.TCPAddr
}

// ErrDecode is returned when a response cannot be parsed.
var ErrDecode = errors.New("cannot decode response")

// Error is the failure string sent by the tracker in an announce response.
type Error struct {
	FailureReason string
	RetryIn       time.Duration
}

func (e *Error) Error() string { return e.FailureReason }
