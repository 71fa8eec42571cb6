package backup

import (
	"github.com/fsnotify/fsnotify"

	"github.com/nxthongbk/datahub/internal/hublog"
)

// Watcher notices a backup file being edited or removed by something
// other than this process — an operator hand-editing a .bak file, or a
// filesystem tool pruning old backups — and marks the observation for
// re-restore on its next create rather than letting in-memory state
// silently diverge from disk.
type Watcher struct {
	fsw     *fsnotify.Watcher
	onStale func(obsPath string)
	store   *Store
	done    chan struct{}
}

// NewWatcher starts watching root for external changes to .bak files.
// onStale is invoked (with the affected observation's path) whenever a
// tracked file is written or removed from outside this process.
func NewWatcher(store *Store, root string, onStale func(obsPath string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{fsw: fsw, onStale: onStale, store: store, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			obsPath, ok := w.store.obsPathFromFile(ev.Name)
			if !ok {
				continue
			}
			hublog.Logger().Warn("backup file changed externally, will re-restore on next create", "path", ev.Name)
			if w.onStale != nil {
				w.onStale(obsPath)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			hublog.Logger().Warn("backup watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
