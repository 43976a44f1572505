package reload

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/fluxgate/fluxgate"
)

// FileWatch is a supplemental ReloadStrategy for embedded deployments
// that load rule-sets from disk (e.g. ruleset/yaml) rather than a shared
// control store with its own pub/sub surface. It watches a set of paths
// and emits a full-reload event on any write, create, or rename,
// mirroring the teacher pack's config-file watcher convention.
type FileWatch struct {
	paths []string

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewFileWatch builds a FileWatch strategy over paths.
func NewFileWatch(paths []string) *FileWatch {
	return &FileWatch{paths: paths, stopCh: make(chan struct{})}
}

// Run starts the filesystem watcher and blocks, delivering a full-reload
// event to sink for every relevant change, until Stop is called.
func (f *FileWatch) Run(sink fluxgate.ReloadSink) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, path := range f.paths {
		if err := watcher.Add(path); err != nil {
			return err
		}
	}

	const debounce = 250 * time.Millisecond
	var timer *time.Timer
	fire := func() {
		sink.HandleReloadEvent(fluxgate.ReloadEvent{
			Source:        fluxgate.ReloadSourcePolling,
			Timestamp:     time.Now(),
			Metadata:      map[string]any{"trigger": "filesystem"},
			CorrelationId: uuid.NewString(),
		})
	}

	for {
		select {
		case <-f.stopCh:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, fire)
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

// Stop terminates the watcher. Safe to call more than once.
func (f *FileWatch) Stop() {
	f.stopOnce.Do(func() { close(f.stopCh) })
}

var _ fluxgate.ReloadStrategy = (*FileWatch)(nil)
