// Package storage contains an interface for reading and writing files of a swarm.
package storage

import "io"

// Storage opens the files named in a manifest.
type Storage interface {
	Open(name string, size int64) (f File, exists bool, err error)
}

// File holds content data. Sync must flush written data to stable storage.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Sync() error
}
