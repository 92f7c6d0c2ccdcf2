package paths

import (
	"os"
	"path/filepath"
)

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}

func xdgDir(envVar, fallbackSuffix string) string {
	if v := os.Getenv(envVar); v != "" {
		return filepath.Join(v, "custod")
	}
	return filepath.Join(homeDir(), fallbackSuffix, "custod")
}

// ConfigDir returns the custod config directory ($XDG_CONFIG_HOME/custod).
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the custod state directory ($XDG_STATE_HOME/custod).
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// RuntimeDir returns the custod runtime directory.
// Falls back to $XDG_STATE_HOME/custod if XDG_RUNTIME_DIR is unset.
func RuntimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, "custod")
	}
	return StateDir()
}

// ConfigFile returns the path to config.toml.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// EnsureDir creates a private directory and parents if needed.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}

// EnsureSharedDir creates a directory usable by every local user. Run and
// token directories are shared across privilege levels; trust in them rests
// on per-file ownership, so the directory itself is world-writable with the
// sticky bit, like /tmp.
func EnsureSharedDir(dir string) error {
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return err
	}
	return os.Chmod(dir, os.ModeSticky|0o777)
}
