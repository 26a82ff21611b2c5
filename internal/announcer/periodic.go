// Package announcer contains workers that announce a swarm to its trackers.
package announcer

import (
	"context"
	"math"
	"net"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v3"

	"github.com/driftd/drift/internal/logger"
	"github.com/driftd/drift/internal/tracker"
	"github.com/driftd/drift/internal/tracker/httptracker"
)

// Status of a tracker from the announcer's point of view.
type Status int

// Announcer statuses
const (
	NotContactedYet Status = iota
	Contacting
	Working
	NotWorking
)

// Stats is a point-in-time snapshot of the announcer.
type Stats struct {
	Status   Status
	Error    *AnnounceError
	Seeders  int
	Leechers int
}

// PeriodicalAnnouncer keeps one tracker updated about the state of the swarm.
// It re-announces on the interval the tracker asks for, or on the minimum
// interval while the swarm is short on peers.
type PeriodicalAnnouncer struct {
	Tracker      tracker.Tracker
	HasAnnounced bool

	status       Status
	numWant      int
	interval     time.Duration
	minInterval  time.Duration
	seeders      int
	leechers     int
	lastError    *AnnounceError
	lastAnnounce time.Time
	backoff      backoff.BackOff
	getTorrent   func() tracker.Torrent
	log          logger.Logger

	completedC chan struct{}
	newPeers   chan []*net.TCPAddr
	responseC  chan *tracker.AnnounceResponse
	errC       chan error
	statsC     chan chan Stats
	closeC     chan struct{}
	doneC      chan struct{}

	wantPeers  bool
	wantPeersM sync.RWMutex
	wantPeersC chan struct{}
}

// NewPeriodicalAnnouncer returns a PeriodicalAnnouncer for one tracker.
// Peers from announce responses are delivered on newPeers.
func NewPeriodicalAnnouncer(trk tracker.Tracker, numWant int, minInterval time.Duration, getTorrent func() tracker.Torrent, completedC chan struct{}, newPeers chan []*net.TCPAddr, l logger.Logger) *PeriodicalAnnouncer {
	return &PeriodicalAnnouncer{
		Tracker:     trk,
		status:      NotContactedYet,
		numWant:     numWant,
		minInterval: minInterval,
		getTorrent:  getTorrent,
		log:         l,
		completedC:  completedC,
		newPeers:    newPeers,
		responseC:   make(chan *tracker.AnnounceResponse),
		errC:        make(chan error),
		statsC:      make(chan chan Stats),
		closeC:      make(chan struct{}),
		doneC:       make(chan struct{}),
		wantPeersC:  make(chan struct{}, 1),
		backoff: &backoff.ExponentialBackOff{
			InitialInterval:     5 * time.Second,
			RandomizationFactor: 0.5,
			Multiplier:          2,
			MaxInterval:         30 * time.Minute,
			MaxElapsedTime:      0, // retry forever
			Clock:               backoff.SystemClock,
		},
	}
}

// Close stops the announce loop and waits for it to exit.
func (a *PeriodicalAnnouncer) Close() {
	close(a.closeC)
	<-a.doneC
}

// Stats asks the running loop for a snapshot.
func (a *PeriodicalAnnouncer) Stats() Stats {
	var stats Stats
	replyC := make(chan Stats, 1)
	select {
	case a.statsC <- replyC:
	case <-a.closeC:
	}
	select {
	case stats = <-replyC:
	case <-a.closeC:
	}
	return stats
}

// NeedMorePeers switches the announcer between the tracker's regular interval
// and its minimum interval.
func (a *PeriodicalAnnouncer) NeedMorePeers(val bool) {
	a.wantPeersM.Lock()
	a.wantPeers = val
	a.wantPeersM.Unlock()
	select {
	case a.wantPeersC <- struct{}{}:
	case <-a.doneC:
	default:
	}
}

func (a *PeriodicalAnnouncer) needMorePeers() bool {
	a.wantPeersM.RLock()
	defer a.wantPeersM.RUnlock()
	return a.wantPeers
}

// Run is the announce loop. Must be run in its own goroutine.
func (a *PeriodicalAnnouncer) Run() {
	defer close(a.doneC)
	a.backoff.Reset()

	timer := time.NewTimer(math.MaxInt64)
	defer timer.Stop()

	// Content that was already complete at start gets no completed event.
	select {
	case <-a.completedC:
		a.completedC = nil
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	go a.announce(ctx, tracker.EventStarted, a.numWant)
	a.status = Contacting
	for {
		select {
		case <-timer.C:
			if a.status == Contacting {
				break
			}
			go a.announce(ctx, tracker.EventNone, a.numWant)
			a.status = Contacting
		case resp := <-a.responseC:
			a.handleResponse(resp, timer)
		case err := <-a.errC:
			a.handleError(err, timer)
		case <-a.wantPeersC:
			if a.status == Contacting {
				break
			}
			next := a.lastAnnounce.Add(a.interval)
			if a.needMorePeers() {
				next = a.lastAnnounce.Add(a.minInterval)
			}
			timer.Reset(time.Until(next))
		case <-a.completedC:
			if a.status == Contacting {
				cancel()
				ctx, cancel = context.WithCancel(context.Background())
			}
			go a.announce(ctx, tracker.EventCompleted, 0)
			a.status = Contacting
			a.completedC = nil // the completed event is sent once
		case replyC := <-a.statsC:
			replyC <- Stats{
				Status:   a.status,
				Error:    a.lastError,
				Seeders:  a.seeders,
				Leechers: a.leechers,
			}
		case <-a.closeC:
			cancel()
			return
		}
	}
}

func (a *PeriodicalAnnouncer) handleResponse(resp *tracker.AnnounceResponse, timer *time.Timer) {
	a.status = Working
	a.lastAnnounce = time.Now()
	a.seeders = int(resp.Seeders)
	a.leechers = int(resp.Leechers)
	a.interval = resp.Interval
	if resp.MinInterval > 0 {
		a.minInterval = resp.MinInterval
	}
	a.HasAnnounced = true
	a.lastError = nil
	a.backoff.Reset()
	select {
	case a.newPeers <- resp.Peers:
	case <-a.closeC:
	}
	if a.needMorePeers() {
		timer.Reset(a.minInterval)
	} else {
		timer.Reset(a.interval)
	}
}

func (a *PeriodicalAnnouncer) handleError(err error, timer *time.Timer) {
	a.status = NotWorking
	a.lastAnnounce = time.Now()
	a.lastError = newAnnounceError(err)
	if a.lastError.Unknown {
		a.log.Errorln("announce error:", a.lastError.ErrorWithType())
	} else {
		a.log.Debugln("announce error:", a.lastError.Err.Error())
	}
	if terr, ok := a.lastError.Err.(*tracker.Error); ok && terr.RetryIn > 0 {
		timer.Reset(terr.RetryIn)
	} else {
		timer.Reset(a.backoff.NextBackOff())
	}
}

// announce runs one announce request and feeds the result back to the loop.
// Runs in its own goroutine so the loop stays responsive.
func (a *PeriodicalAnnouncer) announce(ctx context.Context, event tracker.Event, numWant int) {
	resp, err := a.Tracker.Announce(ctx, tracker.AnnounceRequest{
		Torrent: a.getTorrent(),
		Event:   event,
		NumWant: numWant,
	})
	if err == context.Canceled {
		return
	}
	if err != nil {
		select {
		case a.errC <- err:
		case <-ctx.Done():
		}
		return
	}
	select {
	case a.responseC <- resp:
	case <-ctx.Done():
	}
}

// AnnounceError wraps an announce failure with a message fit for showing to
// the user.
type AnnounceError struct {
	Err     error
	Message string
	Unknown bool
}

func newAnnounceError(err error) *AnnounceError {
	e := &AnnounceError{Err: err}
	switch err := err.(type) {
	case *net.DNSError:
		if strings.HasSuffix(err.Error(), "no such host") {
			e.Message = "host not found: " + err.Name
			return e
		}
	case *url.Error:
		if strings.HasSuffix(err.Error(), "connection refused") {
			e.Message = "tracker refused the connection"
			return e
		}
	case net.Error:
		if err.Timeout() {
			e.Message = "timeout contacting tracker"
			return e
		}
	case *httptracker.StatusError:
		if err.Code == 403 || err.Code == 404 {
			e.Message = "tracker returned http status: " + strconv.Itoa(err.Code)
			return e
		}
	case *tracker.Error:
		e.Message = "announce error: " + err.FailureReason
		return e
	}
	e.Message = "unknown error in announce"
	e.Unknown = true
	return e
}

// ErrorWithType prefixes the error string with its Go type.
func (e *AnnounceError) ErrorWithType() string {
	return reflect.TypeOf(e.Err).String() + ": " + e.Err.Error()
}
