package swarm

// Status of a Swarm.
type Status int

const (
	// Stopped indicates that the swarm is not running.
	// No peers are connected and files are not open.
	Stopped Status = iota
	// Resolving indicates that the swarm was created from a content
	// descriptor without a manifest and is fetching the manifest from peers.
	Resolving
	// Allocating indicates that the swarm is creating/opening files on disk.
	Allocating
	// Verifying indicates that existing data is being hash checked.
	Verifying
	// Discovering indicates that the swarm is looking for peers.
	// No peer is connected yet.
	Discovering
	// Transferring pieces with connected peers.
	Transferring
	// Seeding the content. All pieces are downloaded and verified.
	Seeding
	// Stopping the swarm. Peers are disconnected and a stop event is being
	// announced to the trackers. After that the swarm becomes Stopped.
	Stopping
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Resolving:
		return "Resolving"
	case Allocating:
		return "Allocating"
	case Verifying:
		return "Verifying"
	case Discovering:
		return "Discovering"
	case Transferring:
		return "Transferring"
	case Seeding:
		return "Seeding"
	case Stopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

func (t *transfer) status() Status {
	switch {
	case t.errC == nil:
		return Stopped
	case t.stoppedEventAnnouncer != nil:
		return Stopping
	case t.allocator != nil:
		return Allocating
	case t.verifier != nil:
		return Verifying
	case t.completed:
		return Seeding
	case t.info == nil:
		return Resolving
	case len(t.peers) == 0:
		return Discovering
	default:
		return Transferring
	}
}
