//go:build darwin

package platform

import (
	"path/filepath"

	"github.com/custodhq/custod/internal/paths"
)

type darwinPlatform struct{}

func newPlatform() Platform { return darwinPlatform{} }

func (darwinPlatform) Name() string { return "darwin" }

func (darwinPlatform) Privileged() bool { return privileged() }

func (darwinPlatform) RunDir() string {
	return sharedDir("/Library/Application Support/custod/run", filepath.Join(paths.RuntimeDir(), "run"))
}

func (darwinPlatform) TokenDir() string {
	return sharedDir("/Library/Application Support/custod/tokens", filepath.Join(paths.StateDir(), "tokens"))
}

func (darwinPlatform) FileOwner(path string) (string, error) {
	return fileOwner(path)
}
