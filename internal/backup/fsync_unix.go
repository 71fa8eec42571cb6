//go:build !windows

package backup

import (
	"golang.org/x/sys/unix"
)

// fsyncDir fsyncs the directory itself after a rename, which POSIX
// requires for the rename to be durable across a crash. Windows has no
// equivalent requirement; see fsync_other.go.
func fsyncDir(dir string) error {
	fd, err := unix.Open(dir, unix.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)
	return unix.Fsync(fd)
}
