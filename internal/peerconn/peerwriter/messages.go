package peerwriter

// BlockUploaded signals the swarm loop that a block was uploaded to the remote peer.
// It is used to count the number of bytes uploaded to peers.
type BlockUploaded struct {
	Length uint32
}
