// Package allocator opens the files of a transfer on its storage,
// creating and sizing them as needed.
package allocator

import (
	"path/filepath"

	"github.com/driftd/drift/internal/metainfo"
	"github.com/driftd/drift/internal/storage"
)

// Allocator opens every file of a transfer. HasExisting and HasMissing tell
// the caller whether a verification pass is needed before trusting the data.
type Allocator struct {
	Files       []File
	HasExisting bool
	HasMissing  bool
	Error       error

	closeC chan struct{}
	doneC  chan struct{}
}

// File is one opened file of the transfer.
type File struct {
	Storage storage.File
	Name    string
}

// Progress reports how many bytes have been allocated so far.
type Progress struct {
	AllocatedSize int64
}

// New returns an idle Allocator. Run starts it.
func New() *Allocator {
	return &Allocator{
		closeC: make(chan struct{}),
		doneC:  make(chan struct{}),
	}
}

// Close aborts the allocation and waits for Run to return.
func (a *Allocator) Close() {
	close(a.closeC)
	<-a.doneC
}

// Run opens all files listed in info on sto, reporting progress along the
// way and the finished Allocator on resultC. On error the files opened so
// far are closed again.
func (a *Allocator) Run(info *metainfo.Info, sto storage.Storage, progressC chan Progress, resultC chan *Allocator) {
	defer close(a.doneC)
	defer func() {
		if a.Error != nil {
			a.closeFiles()
		}
		select {
		case resultC <- a:
		case <-a.closeC:
		}
	}()

	files := info.GetFiles()
	a.Files = make([]File, len(files))
	var total int64
	for i, f := range files {
		name := filepath.Join(f.Path...)
		sf, exists, err := sto.Open(name, f.Length)
		if err != nil {
			a.Error = err
			return
		}
		a.Files[i] = File{Storage: sf, Name: name}
		if exists {
			a.HasExisting = true
		} else {
			a.HasMissing = true
		}
		total += f.Length
		select {
		case progressC <- Progress{AllocatedSize: total}:
		case <-a.closeC:
		}
	}
}

func (a *Allocator) closeFiles() {
	for _, f := range a.Files {
		if f.Storage != nil {
			f.Storage.Close()
		}
	}
}
