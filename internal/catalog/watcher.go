package catalog

import (
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-registers capability seed entries whenever the seed file
// changes on disk. Since registration is an idempotent upsert, a rewrite of
// the file acts as a live metric update for every declared entry.
type Watcher struct {
	catalog *Catalog
	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchSeed starts watching the seed file and applying changes to the
// catalog. The parent directory is watched so editors that replace the file
// (rename + create) are still observed.
func WatchSeed(c *Catalog, path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		catalog: c,
		path:    path,
		watcher: fw,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// loop applies seed reloads on write/create events for the watched file.
func (w *Watcher) loop() {
	base := filepath.Base(w.path)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			n, err := RegisterSeed(w.catalog, w.path)
			if err != nil {
				log.Printf("[catalog] warning: reload of %s failed: %v", w.path, err)
				continue
			}
			log.Printf("[catalog] reloaded %d capability entries from %s", n, w.path)
		case <-w.watcher.Errors:
			// Keep watching; a transient error should not stop reloads.
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
