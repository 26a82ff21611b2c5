package announcer

import (
	"context"
	"sync"
	"time"

	"github.com/driftd/drift/internal/logger"
	"github.com/driftd/drift/internal/tracker"
)

// StopAnnouncer tells every tracker once that the swarm has stopped, then
// signals resultC. It runs with a deadline so a dead tracker cannot hold up
// shutdown.
type StopAnnouncer struct {
	trackers []tracker.Tracker
	torrent  tracker.Torrent
	timeout  time.Duration
	resultC  chan struct{}
	closeC   chan struct{}
	doneC    chan struct{}
	log      logger.Logger
}

// NewStopAnnouncer returns a StopAnnouncer for the given trackers.
func NewStopAnnouncer(trackers []tracker.Tracker, tor tracker.Torrent, timeout time.Duration, resultC chan struct{}, l logger.Logger) *StopAnnouncer {
	a := &StopAnnouncer{
		trackers: trackers,
		torrent:  tor,
		timeout:  timeout,
		resultC:  resultC,
		closeC:   make(chan struct{}),
		doneC:    make(chan struct{}),
		log:      l,
	}
	return a
}

// Close aborts the in-flight announces.
func (a *StopAnnouncer) Close() {
	close(a.closeC)
	<-a.doneC
}

// Run announces the stopped event to all trackers in parallel.
// Errors are ignored; the swarm is going away either way.
func (a *StopAnnouncer) Run() {
	defer close(a.doneC)

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
		case <-a.closeC:
			cancel()
		}
	}()

	var wg sync.WaitGroup
	for _, trk := range a.trackers {
		wg.Add(1)
		go func(trk tracker.Tracker) {
			defer wg.Done()
			_, _ = trk.Announce(ctx, tracker.AnnounceRequest{
				Torrent: a.torrent,
				Event:   tracker.EventStopped,
			})
		}(trk)
	}
	wg.Wait()

	select {
	case a.resultC <- struct{}{}:
	case <-a.closeC:
	}
}
