package resolvconf

import (
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/semihalev/zlog/v2"
)

// Watcher keeps a SystemResolvers value up to date by re-parsing path
// whenever fsnotify reports a relevant change to its parent directory.
// Watching the directory rather than the file itself means a replacement of
// the file via rename is still seen.
type Watcher struct {
	path    string
	current atomic.Pointer[SystemResolvers]
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewWatcher parses path once and starts watching its parent directory for
// further changes.
func NewWatcher(path string) (*Watcher, error) {
	initial, err := Parse(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		watcher: fw,
		stopCh:  make(chan struct{}),
	}
	w.current.Store(initial)

	go w.run()

	return w, nil
}

// Current returns the most recently parsed SystemResolvers. Safe for
// concurrent use; the returned value is never mutated in place.
func (w *Watcher) Current() *SystemResolvers {
	return w.current.Load()
}

// Stop releases the underlying inotify watch.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !w.relevant(event) {
				continue
			}
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			zlog.Error("resolv.conf watcher error", "error", err.Error())
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove)
}

func (w *Watcher) reload() {
	parsed, err := Parse(w.path)
	if err != nil {
		zlog.Warn("Failed to reparse resolv.conf after change", "path", w.path, "error", err.Error())
		return
	}

	w.current.Store(parsed)
	zlog.Info("System resolvers updated", "path", w.path, "servers", len(parsed.Servers))
}
