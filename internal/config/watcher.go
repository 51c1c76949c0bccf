package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher notifies subscribers when a hot-reloadable directory (service
// manifests, condition rule files) changes on disk, forwarding each
// write/create/remove/rename fsnotify event as it arrives; events are not
// debounced.
type Watcher struct {
	fsw *fsnotify.Watcher
}

// NewWatcher starts watching dirs; callers receive reload notifications on
// the returned channel, carrying the path of the file that changed.
func NewWatcher(dirs ...string) (*Watcher, <-chan string, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	for _, d := range dirs {
		if err := fsw.Add(d); err != nil {
			fsw.Close()
			return nil, nil, err
		}
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					out <- ev.Name
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("config watcher error")
			}
		}
	}()

	return &Watcher{fsw: fsw}, out, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
