package swarm

import (
	"time"

	"github.com/driftd/drift/internal/counters"
)

// updateSeedDuration accumulates the time spent seeding into the counters
// so that it survives restarts.
func (t *transfer) updateSeedDuration(now time.Time) {
	if !t.completed {
		t.seedDurationUpdatedAt = time.Time{}
		return
	}
	if t.seedDurationUpdatedAt.IsZero() {
		t.seedDurationUpdatedAt = now
		return
	}
	t.counters.Incr(counters.SeededFor, int64(now.Sub(t.seedDurationUpdatedAt)))
	t.seedDurationUpdatedAt = now
}

func (t *transfer) seededFor() time.Duration {
	return time.Duration(t.counters.Read(counters.SeededFor))
}

// checkLiveness enforces the transfer deadlines. It runs every second while
// the transfer is started.
//
// Rules, from softest to hardest:
//
//   - No byte received for IdleTimeout: emit a warning event, rate limited
//     by WarningInterval. The transfer keeps running.
//   - No peer and no byte for DiscoveryTimeout: fail the transfer.
//   - Not a single byte for HardTimeout: fail the transfer. If some data was
//     transferred, only warn once instead because progress may resume.
func (t *transfer) checkLiveness(now time.Time) {
	switch t.status() {
	case Resolving, Discovering, Transferring:
	default:
		return
	}
	if t.completed {
		return
	}
	cfg := t.session.config

	sinceStart := now.Sub(t.startedAt)

	if cfg.DiscoveryTimeout > 0 && sinceStart > cfg.DiscoveryTimeout && len(t.peers) == 0 && t.bytesSinceStart == 0 {
		t.stop(ErrDiscoveryTimeout)
		return
	}

	if cfg.HardTimeout > 0 && sinceStart > cfg.HardTimeout {
		if t.bytesSinceStart == 0 {
			t.stop(ErrHardTimeout)
			return
		}
		if !t.hardTimeoutWarned {
			t.hardTimeoutWarned = true
			t.publishEvent(EventWarning, "transfer is taking longer than the deadline")
		}
	}

	if cfg.IdleTimeout > 0 && now.Sub(t.lastProgressAt) > cfg.IdleTimeout {
		if t.lastWarningAt.IsZero() || now.Sub(t.lastWarningAt) > cfg.WarningInterval {
			t.lastWarningAt = now
			t.publishEvent(EventWarning, "no data received for a while")
		}
	}
}
