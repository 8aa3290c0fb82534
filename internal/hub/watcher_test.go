package hub

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"beadboard/internal/project"
)

func newTestWatcher(t *testing.T) (*Watcher, chan string) {
	t.Helper()
	refreshed := make(chan string, 8)
	w, err := NewWatcher(func(dir string) { refreshed <- dir })
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w, refreshed
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(time.Now().String()), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherRefreshesOnExternalChange(t *testing.T) {
	dir := seedProject(t, t.TempDir(), "demo", `[]`)
	w, refreshed := newTestWatcher(t)
	w.Acquire(dir)

	touch(t, filepath.Join(dir, project.Marker, "issues.json"))

	select {
	case got := <-refreshed:
		if got != dir {
			t.Errorf("refreshed %q, want %q", got, dir)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no refresh after external change")
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := seedProject(t, t.TempDir(), "demo", `[]`)
	w, refreshed := newTestWatcher(t)
	w.Acquire(dir)

	for i := 0; i < 5; i++ {
		touch(t, filepath.Join(dir, project.Marker, "issues.json"))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("no refresh after burst")
	}
	// The burst should have collapsed into one refresh.
	select {
	case <-refreshed:
		t.Error("burst produced a second refresh")
	case <-time.After(2 * watchDebounce):
	}
}

func TestWatcherIgnoresSeenStateFile(t *testing.T) {
	dir := seedProject(t, t.TempDir(), "demo", `[]`)
	w, refreshed := newTestWatcher(t)
	w.Acquire(dir)

	touch(t, filepath.Join(dir, project.Marker, "beadboard-seen.json"))

	select {
	case <-refreshed:
		t.Error("seen-state write must not trigger a refresh")
	case <-time.After(2 * watchDebounce):
	}
}

func TestWatcherReleaseStopsRefreshes(t *testing.T) {
	dir := seedProject(t, t.TempDir(), "demo", `[]`)
	w, refreshed := newTestWatcher(t)
	w.Acquire(dir)
	w.Release(dir)

	touch(t, filepath.Join(dir, project.Marker, "issues.json"))

	select {
	case <-refreshed:
		t.Error("released project must not refresh")
	case <-time.After(2 * watchDebounce):
	}
}

func TestWatcherRefcounting(t *testing.T) {
	dir := seedProject(t, t.TempDir(), "demo", `[]`)
	w, refreshed := newTestWatcher(t)
	w.Acquire(dir)
	w.Acquire(dir)
	w.Release(dir)

	// One binding remains; changes must still refresh.
	touch(t, filepath.Join(dir, project.Marker, "issues.json"))
	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("no refresh while a binding remains")
	}
}
