package hub

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"beadboard/internal/logger"
	"beadboard/internal/project"
)

const watchDebounce = 250 * time.Millisecond

// Watcher refreshes a project's subscribers when its .beads directory
// changes outside this server, e.g. a bd invocation from a terminal.
// Projects are watched while at least one connection is bound to them;
// events are debounced per project since bd touches several files per
// mutation.
type Watcher struct {
	fs      *fsnotify.Watcher
	refresh func(projectDir string)

	mu      sync.Mutex
	refs    map[string]int // project path -> bound connection count
	pending map[string]*time.Timer
	closed  bool
}

func NewWatcher(refresh func(string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fs:      fsw,
		refresh: refresh,
		refs:    make(map[string]int),
		pending: make(map[string]*time.Timer),
	}
	go w.run()
	return w, nil
}

// Acquire registers one more bound connection for projectDir, starting the
// filesystem watch on its marker directory at the first reference.
func (w *Watcher) Acquire(projectDir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.refs[projectDir]++
	if w.refs[projectDir] == 1 {
		marker := filepath.Join(projectDir, project.Marker)
		if err := w.fs.Add(marker); err != nil {
			logger.Warn("watch project", "project", projectDir, "error", err)
		}
	}
}

// Release drops one bound connection for projectDir, removing the watch
// when no connection remains.
func (w *Watcher) Release(projectDir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.refs[projectDir] == 0 {
		return
	}
	w.refs[projectDir]--
	if w.refs[projectDir] == 0 {
		delete(w.refs, projectDir)
		if t := w.pending[projectDir]; t != nil {
			t.Stop()
			delete(w.pending, projectDir)
		}
		_ = w.fs.Remove(filepath.Join(projectDir, project.Marker))
	}
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	for dir, t := range w.pending {
		t.Stop()
		delete(w.pending, dir)
	}
	w.mu.Unlock()
	return w.fs.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			// Our own seen-state writes land in .beads too; refreshing on
			// them would loop.
			if strings.HasSuffix(ev.Name, "beadboard-seen.json") {
				continue
			}
			w.schedule(filepath.Dir(filepath.Dir(ev.Name)))
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logger.Debug("watcher error", "error", err)
		}
	}
}

// schedule debounces a refresh for projectDir.
func (w *Watcher) schedule(projectDir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.refs[projectDir] == 0 {
		return
	}
	if t := w.pending[projectDir]; t != nil {
		t.Reset(watchDebounce)
		return
	}
	w.pending[projectDir] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.pending, projectDir)
		live := !w.closed && w.refs[projectDir] > 0
		w.mu.Unlock()
		if live {
			w.refresh(projectDir)
		}
	})
}
