package archive

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// BundleDumpDir packages a debug_pipeline dump directory (as written by
// core/pipeline/dump.go) into a single .tar.xz at dstPath, named after
// the dump directory's own base name inside the archive.
func BundleDumpDir(dumpDir, dstPath string) error {
	baseDir := filepath.Base(filepath.Clean(dumpDir))
	if err := CreateTarXz(dumpDir, dstPath, baseDir); err != nil {
		return fmt.Errorf("bundle dump directory: %w", err)
	}
	return nil
}

// DumpLock is an advisory lock over a debug_pipeline dump directory,
// held for the duration of a bundle operation so two bundle operations
// on the same directory don't overlap. The pipeline's dump writer does
// not take this lock.
type DumpLock struct {
	lock *flock.Flock
}

// AcquireDumpLock tries to take an exclusive, non-blocking lock on
// dumpDir's lock file. It returns (nil, nil) if the lock is already
// held by another process.
func AcquireDumpLock(dumpDir string) (*DumpLock, error) {
	l := flock.New(filepath.Join(dumpDir, ".bookforge-dump.lock"))
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire dump lock: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &DumpLock{lock: l}, nil
}

// Release unlocks the dump directory.
func (d *DumpLock) Release() error {
	return d.lock.Unlock()
}
