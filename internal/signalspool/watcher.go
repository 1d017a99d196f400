package signalspool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval is the fallback sweep cadence. fsnotify delivers most
// signals immediately; the sweep catches events lost on filesystems
// with unreliable notification (network mounts, some containers).
const pollInterval = 2 * time.Second

// Watcher consumes spool files as they appear. Each file is handed to
// the Messages channel exactly once and removed from disk afterwards.
type Watcher struct {
	dir      string
	messages chan *Message
	errs     chan error

	mu   sync.Mutex
	seen map[string]bool
}

// NewWatcher creates a watcher for the spool directory dir. The
// directory is created if it does not exist.
func NewWatcher(dir string) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	return &Watcher{
		dir:      dir,
		messages: make(chan *Message, 16),
		errs:     make(chan error, 16),
		seen:     make(map[string]bool),
	}, nil
}

// Messages returns the channel of consumed spool files.
func (w *Watcher) Messages() <-chan *Message {
	return w.messages
}

// Errors returns the channel of malformed-file errors. Malformed files
// are reported and quarantined, never retried.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Start watches until ctx is done, then closes both channels. Files
// already present at start are consumed first, oldest name first.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch spool directory: %w", err)
	}

	go func() {
		defer fsw.Close()
		defer close(w.messages)
		defer close(w.errs)

		// Anything spooled before the watch began
		w.sweep(ctx)

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
					w.consume(ctx, ev.Name)
				}
			case <-fsw.Errors:
				// Notification hiccups are covered by the sweep.
			case <-ticker.C:
				w.sweep(ctx)
			}
		}
	}()

	return nil
}

// sweep consumes every spool file currently in the directory.
func (w *Watcher) sweep(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isSpoolFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		w.consume(ctx, filepath.Join(w.dir, name))
	}
}

// consume parses one file, delivers it, and removes it. Duplicate
// delivery is suppressed: fsnotify and the sweep can both report the
// same file.
func (w *Watcher) consume(ctx context.Context, path string) {
	if !isSpoolFile(filepath.Base(path)) {
		return
	}

	w.mu.Lock()
	if w.seen[path] {
		w.mu.Unlock()
		return
	}
	w.seen[path] = true
	w.mu.Unlock()

	msg, err := readSpoolFile(path)
	if err != nil {
		w.quarantine(path)
		select {
		case w.errs <- err:
		case <-ctx.Done():
		}
		return
	}

	select {
	case w.messages <- msg:
		os.Remove(path)
	case <-ctx.Done():
	}
}

// quarantine renames a malformed file out of the watched namespace so
// the sweep stops picking it up.
func (w *Watcher) quarantine(path string) {
	os.Rename(path, path+".bad")
}
