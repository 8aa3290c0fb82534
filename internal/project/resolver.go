// Package project resolves client-supplied project identifiers to
// validated beads project directories.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Marker is the subdirectory that identifies a beads project root.
const Marker = ".beads"

// ErrNotFound is returned when an identifier resolves to no valid project.
var ErrNotFound = errors.New("project not found")

// Resolver turns a project identifier (absolute path or short name) into a
// validated project directory. Resolution is read-only and deterministic:
// search paths are probed in declared order and the first hit wins.
type Resolver struct {
	searchPaths []string
}

func NewResolver(searchPaths []string) *Resolver {
	return &Resolver{searchPaths: searchPaths}
}

// Resolve validates identifier as a project directory. An absolute path is
// accepted only if it directly contains the marker subdirectory. Anything
// else is treated as a short name and probed under each search path in
// order. The returned path is known to have contained the marker at
// resolution time; it is never cached.
func (r *Resolver) Resolve(identifier string) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrNotFound)
	}

	if filepath.IsAbs(identifier) {
		if hasMarker(identifier) {
			return filepath.Clean(identifier), nil
		}
		return "", fmt.Errorf("%w: %s has no %s directory", ErrNotFound, identifier, Marker)
	}

	for _, parent := range r.searchPaths {
		candidate := filepath.Join(parent, identifier)
		if hasMarker(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q not under any search path", ErrNotFound, identifier)
}

func hasMarker(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, Marker))
	return err == nil && info.IsDir()
}

// Name returns the display name of a resolved project path.
func Name(path string) string {
	return filepath.Base(path)
}
