package filestorage

import (
	"os"

	"golang.org/x/sys/unix"
)

// Piece access is random; telling the kernel avoids useless readahead.
func disableReadAhead(f *os.File) error {
	return unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_RANDOM)
}
