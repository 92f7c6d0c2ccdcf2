package platform

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Platform exposes the host facilities the substrate depends on. The
// concrete value is chosen once per process by a per-OS factory; nothing
// may depend on package initialization order for the selection.
type Platform interface {
	// Name is the OS identifier, e.g. "linux".
	Name() string
	// Privileged reports whether the process runs with system privileges.
	Privileged() bool
	// RunDir is the default run-file registry directory.
	RunDir() string
	// TokenDir is the default auth-token directory.
	TokenDir() string
	// FileOwner returns the username owning path.
	FileOwner(path string) (string, error)
}

// Current returns the platform for this process, resolving it on first use.
var Current = sync.OnceValue(newPlatform)

func privileged() bool {
	return os.Geteuid() == 0
}

// sharedDir picks the system-wide directory when the process can use it and
// the per-user fallback otherwise, so unprivileged development setups keep
// working without root.
func sharedDir(system, fallback string) string {
	if privileged() {
		return system
	}
	if info, err := os.Stat(system); err == nil && info.IsDir() {
		if unix.Access(system, unix.W_OK) == nil {
			return system
		}
	}
	return fallback
}

func fileOwner(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "", fmt.Errorf("no ownership data for %s", path)
	}
	owner, err := user.LookupId(strconv.FormatUint(uint64(st.Uid), 10))
	if err != nil {
		return "", fmt.Errorf("resolving uid %d: %w", st.Uid, err)
	}
	return owner.Username, nil
}
