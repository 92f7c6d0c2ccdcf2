package runfile

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
)

const awaitPollInterval = 200 * time.Millisecond

// Await blocks until a live daemon record appears in dir or ctx ends. It
// watches the directory for changes and additionally polls, since the
// watcher cannot cover a directory that does not exist yet.
func Await(ctx context.Context, dir string) (Record, error) {
	if rec, err := Discover(dir); err == nil {
		return rec, nil
	}

	var events chan fsnotify.Event
	var watchErrs chan error
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if watcher.Add(dir) == nil {
			events = watcher.Events
			watchErrs = watcher.Errors
		}
	}

	ticker := time.NewTicker(awaitPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Record{}, ctx.Err()
		case <-events:
		case <-watchErrs:
		case <-ticker.C:
		}
		if rec, err := Discover(dir); err == nil {
			return rec, nil
		}
	}
}
