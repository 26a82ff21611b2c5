package swarm

import "errors"

var (
	errClosed = errors.New("swarm is closed")

	// ErrDiscoveryTimeout is the failure reason of a swarm that could not
	// find any peer and download any byte before the discovery deadline.
	ErrDiscoveryTimeout = errors.New("no peer discovered before deadline")

	// ErrHardTimeout is the failure reason of a swarm that transferred
	// nothing until the hard deadline.
	ErrHardTimeout = errors.New("no data transferred before deadline")
)
