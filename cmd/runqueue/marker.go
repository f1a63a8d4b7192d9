package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// markerTimeout bounds how long the launcher waits for a finished job's log
// to carry the completion marker. Writers flush asynchronously, so the file
// may trail the process exit briefly.
const markerTimeout = 10 * time.Second

// awaitMarker reports whether the run log contains the completion marker,
// watching the log's directory for writes and falling back to polling when
// the watcher cannot be established.
func awaitMarker(path string) (bool, error) {
	ok, err := hasMarker(path)
	if err == nil && ok {
		return true, nil
	}

	deadline := time.After(markerTimeout)
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	var events chan fsnotify.Event
	watcher, werr := fsnotify.NewWatcher()
	if werr == nil {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(path)); err == nil {
			events = watcher.Events
		}
	}

	for {
		select {
		case <-deadline:
			return hasMarker(path)
		case ev := <-events:
			if ev.Name != path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if ok, err := hasMarker(path); err == nil && ok {
				return true, nil
			}
		case <-tick.C:
			if ok, err := hasMarker(path); err == nil && ok {
				return true, nil
			}
		}
	}
}

func hasMarker(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return strings.Contains(string(data), completionMarker), nil
}
