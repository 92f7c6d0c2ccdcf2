//go:build linux

package platform

import (
	"path/filepath"

	"github.com/custodhq/custod/internal/paths"
)

type linuxPlatform struct{}

func newPlatform() Platform { return linuxPlatform{} }

func (linuxPlatform) Name() string { return "linux" }

func (linuxPlatform) Privileged() bool { return privileged() }

func (linuxPlatform) RunDir() string {
	return sharedDir("/var/lib/custod/run", filepath.Join(paths.RuntimeDir(), "run"))
}

func (linuxPlatform) TokenDir() string {
	return sharedDir("/var/lib/custod/tokens", filepath.Join(paths.StateDir(), "tokens"))
}

func (linuxPlatform) FileOwner(path string) (string, error) {
	return fileOwner(path)
}
