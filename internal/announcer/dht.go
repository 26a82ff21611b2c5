package announcer

import (
	"time"

	"github.com/driftd/drift/internal/logger"
)

// DHTAnnouncer re-announces the swarm to the node table on a fixed interval,
// dropping to the minimum interval while the swarm wants peers.
type DHTAnnouncer struct {
	lastAnnounce time.Time
	wantPeersC   chan bool
	closeC       chan struct{}
	doneC        chan struct{}
}

// NewDHTAnnouncer returns a DHTAnnouncer. Run must be called to start it.
func NewDHTAnnouncer() *DHTAnnouncer {
	return &DHTAnnouncer{
		wantPeersC: make(chan bool, 1),
		closeC:     make(chan struct{}),
		doneC:      make(chan struct{}),
	}
}

// Close stops the announce loop.
func (a *DHTAnnouncer) Close() {
	close(a.closeC)
	<-a.doneC
}

// NeedMorePeers nudges the loop to announce sooner.
func (a *DHTAnnouncer) NeedMorePeers(val bool) {
	select {
	case a.wantPeersC <- val:
	case <-a.doneC:
	default:
	}
}

// Run calls announceFunc immediately and then every interval.
// Must be run in its own goroutine.
func (a *DHTAnnouncer) Run(announceFunc func(), interval, minInterval time.Duration, l logger.Logger) {
	defer close(a.doneC)

	timer := time.NewTimer(0)
	defer timer.Stop()

	fire := func() {
		announceFunc()
		a.lastAnnounce = time.Now()
		timer.Reset(interval)
	}

	for {
		select {
		case <-timer.C:
			fire()
		case want := <-a.wantPeersC:
			if !want {
				break
			}
			since := time.Since(a.lastAnnounce)
			if since >= minInterval {
				fire()
			} else {
				timer.Reset(minInterval - since)
			}
		case <-a.closeC:
			return
		}
	}
}
