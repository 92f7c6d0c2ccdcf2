// Package version reports the custod build version.
package version

import (
	"runtime/debug"
	"strings"
)

// build is set via -ldflags "-X github.com/custodhq/custod/internal/version.build=...".
var build = ""

// String returns the release version when built with ldflags, the module
// version when installed with go install, and a VCS pseudo-version for
// plain source builds.
func String() string {
	if v := strings.TrimSpace(build); v != "" {
		return v
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "v0.0.0-unknown"
	}
	if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
		return v
	}

	var revision, suffix string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			if setting.Value == "true" {
				suffix = "+dirty"
			}
		}
	}
	if revision == "" {
		return "v0.0.0-unknown"
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	return "v0.0.0-" + revision + suffix
}
