//go:build windows

package fixer

import (
	"os"

	"golang.org/x/sys/windows"
)

// checkLock fails when another process holds a lock on path.
func checkLock(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	h := windows.Handle(f.Fd())
	ol := new(windows.Overlapped)
	flags := uint32(windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY)
	if err := windows.LockFileEx(h, flags, 0, 1, 0, ol); err != nil {
		return err
	}
	return windows.UnlockFileEx(h, 0, 1, 0, ol)
}
