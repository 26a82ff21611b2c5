// Package peersource identifies where a peer address was learned from.
package peersource

// Source is the source of a peer address.
type Source int

// Source values
const (
	Tracker Source = iota
	DHT
	Manual
	Magnet
	Incoming
)

var sourceNames = [...]string{
	Tracker:  "tracker",
	DHT:      "dht",
	Manual:   "manual",
	Magnet:   "magnet",
	Incoming: "incoming",
}

func (s Source) String() string {
	if s < 0 || int(s) >= len(sourceNames) {
		panic("unhandled source")
	}
	return sourceNames[s]
}
