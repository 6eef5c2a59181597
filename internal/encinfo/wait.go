package encinfo

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the legacy wait granularity for side-file creation.
const DefaultPollInterval = 10 * time.Millisecond

// WaitOpenRead opens the side file for reading, waiting for the writer to
// create it first if necessary. A filesystem watch on the parent directory
// wakes the wait as soon as the file appears; a periodic poll covers
// filesystems without change notification. The wait is unbounded unless ctx
// carries a deadline or is cancelled, in which case the context's error is
// returned. Any open failure other than non-existence stops the wait.
func (f *File) WaitOpenRead(ctx context.Context, pollInterval time.Duration) error {
	err := f.OpenRead()
	if err == nil || !errors.Is(err, ErrNotExist) {
		return err
	}

	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	var events chan fsnotify.Event
	watcher, werr := fsnotify.NewWatcher()
	if werr == nil {
		defer watcher.Close()
		if aerr := watcher.Add(filepath.Dir(f.path)); aerr == nil {
			events = watcher.Events
		} else {
			f.log.WithError(aerr).Debug("directory watch unavailable, polling only")
		}
	} else {
		f.log.WithError(werr).Debug("fsnotify unavailable, polling only")
	}

	f.log.Debug("waiting for encryption info file to be created")
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-events:
			// Any event in the directory is reason enough to re-check; the
			// open below is the authoritative test.
		}

		err = f.OpenRead()
		if err == nil || !errors.Is(err, ErrNotExist) {
			return err
		}
	}
}
