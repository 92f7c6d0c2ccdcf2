package runfile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

const registryLockName = "." + filePrefix + ".lock"

var (
	lockRetryDelay = 25 * time.Millisecond
	lockAttempts   = 40
)

// lockRegistry takes the exclusive advisory lock guarding the registry
// directory, retrying with backoff while another writer holds it. The lock
// file lives in the shared directory, so any local user may take it.
func lockRegistry(dir string) (func(), error) {
	path := filepath.Join(dir, registryLockName)
	lockFile, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return nil, fmt.Errorf("opening registry lock: %w", err)
	}

	for attempt := 0; attempt < lockAttempts; attempt++ {
		err = unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return func() {
				_ = unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
				_ = lockFile.Close()
			}, nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EAGAIN {
			break
		}
		time.Sleep(lockRetryDelay)
	}
	_ = lockFile.Close()
	return nil, fmt.Errorf("locking run registry %s: %w", dir, err)
}
