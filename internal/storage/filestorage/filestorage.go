// Package filestorage implements the Storage interface backed by files on disk.
package filestorage

import (
	"os"
	"path/filepath"

	"github.com/driftd/drift/internal/storage"
)

const fileMode = 0o640

// FileStorage saves the files under a destination directory on disk.
type FileStorage struct {
	dest string
}

var _ storage.Storage = (*FileStorage)(nil)

// New returns a new FileStorage at the absolute path of dest.
func New(dest string) (*FileStorage, error) {
	abs, err := filepath.Abs(dest)
	if err != nil {
		return nil, err
	}
	return &FileStorage{dest: abs}, nil
}

// Dest returns the destination directory.
func (s *FileStorage) Dest() string {
	return s.dest
}

// Open a file under the destination directory, creating and preallocating it
// if it does not exist. Returns exists=true when the file was already there
// with any size; the caller decides whether existing data is worth verifying.
func (s *FileStorage) Open(name string, size int64) (storage.File, bool, error) {
	// All files are saved under dest.
	path := filepath.Join(s.dest, filepath.Clean(name))

	if err := os.MkdirAll(filepath.Dir(path), os.ModeDir|0o750); err != nil {
		return nil, false, err
	}

	f, err := os.OpenFile(path, os.O_RDWR, fileMode) // nolint: gosec
	if os.IsNotExist(err) {
		f, err = s.create(path, size)
		return f, false, err
	}
	if err != nil {
		return nil, false, err
	}
	if err = s.prepare(f, size); err != nil {
		_ = f.Close()
		return nil, true, err
	}
	return f, true, nil
}

func (s *FileStorage) create(path string, size int64) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, fileMode) // nolint: gosec
	if err != nil {
		return nil, err
	}
	if err = disableReadAhead(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err = f.Truncate(size); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

// prepare adjusts an existing file: readahead off, resized to the expected
// length if it differs.
func (s *FileStorage) prepare(f *os.File, size int64) error {
	if err := disableReadAhead(f); err != nil {
		return err
	}
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.Size() != size {
		return f.Truncate(size)
	}
	return nil
}
