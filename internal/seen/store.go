// Package seen persists the per-project record of issue IDs a user has
// dismissed from attention. State lives in one small JSON file inside the
// project's .beads directory; the canonical issue data never lives here.
package seen

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const fileName = "beadboard-seen.json"

// State is the full seen-state for one project.
type State struct {
	Seen      []string  `json:"seen"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store reads and writes seen-state files. Mutations of one project's file
// are serialized through a per-path lock, so concurrent marks from two
// connections cannot lose an update.
type Store struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore() *Store {
	return &Store{locks: make(map[string]*sync.Mutex)}
}

func (s *Store) lockFor(projectDir string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[projectDir]
	if !ok {
		l = &sync.Mutex{}
		s.locks[projectDir] = l
	}
	return l
}

func statePath(projectDir string) string {
	return filepath.Join(projectDir, ".beads", fileName)
}

// Read returns the project's seen-state. A missing or unparsable file
// yields an empty default state, never an error.
func (s *Store) Read(projectDir string) State {
	l := s.lockFor(projectDir)
	l.Lock()
	defer l.Unlock()
	return readLocked(projectDir)
}

func readLocked(projectDir string) State {
	data, err := os.ReadFile(statePath(projectDir))
	if err != nil {
		return State{Seen: []string{}}
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{Seen: []string{}}
	}
	if st.Seen == nil {
		st.Seen = []string{}
	}
	return st
}

// Mark adds id to the project's seen set and returns the new state.
// Marking an already-seen id is a no-op write of the same set.
func (s *Store) Mark(projectDir, id string) (State, error) {
	return s.update(projectDir, func(set map[string]bool) {
		set[id] = true
	})
}

// Unmark removes id from the project's seen set and returns the new state.
func (s *Store) Unmark(projectDir, id string) (State, error) {
	return s.update(projectDir, func(set map[string]bool) {
		delete(set, id)
	})
}

func (s *Store) update(projectDir string, mutate func(map[string]bool)) (State, error) {
	l := s.lockFor(projectDir)
	l.Lock()
	defer l.Unlock()

	st := readLocked(projectDir)
	set := make(map[string]bool, len(st.Seen))
	for _, id := range st.Seen {
		set[id] = true
	}
	mutate(set)

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	st = State{Seen: ids, UpdatedAt: time.Now().UTC()}
	if err := writeLocked(projectDir, st); err != nil {
		return State{}, err
	}
	return st, nil
}

func writeLocked(projectDir string, st State) error {
	path := statePath(projectDir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
