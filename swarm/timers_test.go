package swarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftd/drift/internal/logger"
	"github.com/driftd/drift/internal/peer"
)

func newLivenessTransfer(cfg Config) *transfer {
	return &transfer{
		session: &Session{config: cfg},
		errC:    make(chan error, 1),
		peers:   make(map[*peer.Peer]struct{}),
		events:  make(chan Event, eventBufferSize),
		log:     logger.New("test"),
	}
}

func drainWarnings(t *transfer) []Event {
	var warnings []Event
	for {
		select {
		case e := <-t.events:
			if e.Type == EventWarning {
				warnings = append(warnings, e)
			}
		default:
			return warnings
		}
	}
}

func TestHardTimeoutWarnsOnceAfterProgress(t *testing.T) {
	tr := newLivenessTransfer(Config{HardTimeout: time.Second})
	now := time.Now()
	tr.startedAt = now.Add(-2 * time.Second)
	tr.lastProgressAt = now
	tr.bytesSinceStart = 1

	// Some data was transferred, the deadline must not kill the transfer.
	tr.checkLiveness(now)
	require.Len(t, drainWarnings(tr), 1)
	assert.Nil(t, tr.lastError)

	// The warning is not repeated on subsequent ticks.
	tr.checkLiveness(now.Add(time.Second))
	assert.Empty(t, drainWarnings(tr))
}

func TestIdleWarningRateLimit(t *testing.T) {
	tr := newLivenessTransfer(Config{
		IdleTimeout:     time.Second,
		WarningInterval: time.Minute,
	})
	now := time.Now()
	tr.startedAt = now.Add(-10 * time.Second)
	tr.lastProgressAt = now.Add(-5 * time.Second)

	tr.checkLiveness(now)
	require.Len(t, drainWarnings(tr), 1)

	// Within WarningInterval the warning is suppressed.
	tr.checkLiveness(now.Add(time.Second))
	require.Empty(t, drainWarnings(tr))

	// After WarningInterval it is emitted again.
	tr.checkLiveness(now.Add(2 * time.Minute))
	require.Len(t, drainWarnings(tr), 1)
}

func TestLivenessDisabledByZeroValues(t *testing.T) {
	tr := newLivenessTransfer(Config{})
	now := time.Now()
	tr.startedAt = now.Add(-time.Hour)
	tr.lastProgressAt = now.Add(-time.Hour)

	tr.checkLiveness(now)
	assert.Empty(t, drainWarnings(tr))
	assert.Nil(t, tr.lastError)
}
