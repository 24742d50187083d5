package server

import (
	"github.com/fsnotify/fsnotify"
	"github.com/semihalev/zlog/v2"
)

// ConfigWatcher mirrors a SIGHUP by watching the config directory itself:
// the launcher dropping, rewriting, or removing a network file fires the
// same reload path SIGHUP does, without depending on the launcher always
// delivering the signal. Watches the directory like resolvconf.Watcher does,
// but without filtering events down to one file name, since a network file
// here can be created or removed, not just rewritten.
type ConfigWatcher struct {
	watcher *fsnotify.Watcher
	reload  chan struct{}
	stopCh  chan struct{}
}

// WatchConfigDir starts watching dir for changes and returns a
// ConfigWatcher whose Reload channel receives a value whenever a file in
// dir is created, written, renamed, or removed. At most one value is held
// pending; further changes while one is pending are dropped.
func WatchConfigDir(dir string) (*ConfigWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &ConfigWatcher{
		watcher: fw,
		reload:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Reload receives a value each time the watched directory changes.
func (w *ConfigWatcher) Reload() <-chan struct{} { return w.reload }

// Stop releases the underlying inotify watch.
func (w *ConfigWatcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
}

func (w *ConfigWatcher) run() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			select {
			case w.reload <- struct{}{}:
			default:
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			zlog.Error("config directory watcher error", "error", err.Error())
		}
	}
}
