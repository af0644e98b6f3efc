// Package simulation predicts tool and plan behavior without touching the
// real world: a semantic effect predictor, a synthetic benchmark, and an
// in-memory filesystem overlay.
package simulation

import (
	"fmt"
	"sort"
	"sync"
)

// VirtualFileSystem is a lightweight in-memory file overlay used during
// simulations. Nothing here ever reaches disk.
type VirtualFileSystem struct {
	mu       sync.RWMutex
	files    map[string]string
	metadata map[string]map[string]interface{}
}

// NewVirtualFileSystem creates an empty overlay.
func NewVirtualFileSystem() *VirtualFileSystem {
	return &VirtualFileSystem{
		files:    make(map[string]string),
		metadata: make(map[string]map[string]interface{}),
	}
}

// Write stores file contents in the overlay.
func (v *VirtualFileSystem) Write(path, content string, metadata map[string]interface{}) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.files[path] = content
	merged := make(map[string]interface{})
	for k, val := range v.metadata[path] {
		merged[k] = val
	}
	for k, val := range metadata {
		merged[k] = val
	}
	if _, ok := merged["last_action"]; !ok {
		merged["last_action"] = "write"
	}
	v.metadata[path] = merged
}

// Read returns the stored content for a virtual path.
func (v *VirtualFileSystem) Read(path string) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	content, ok := v.files[path]
	if !ok {
		return "", fmt.Errorf("virtual path not found: %s", path)
	}
	return content, nil
}

// Exists reports whether a virtual path has been written.
func (v *VirtualFileSystem) Exists(path string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.files[path]
	return ok
}

// Snapshot returns a copy of every virtual path and its content.
func (v *VirtualFileSystem) Snapshot() map[string]string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make(map[string]string, len(v.files))
	for path, content := range v.files {
		out[path] = content
	}
	return out
}

// List returns all virtual paths, sorted.
func (v *VirtualFileSystem) List() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	paths := make([]string, 0, len(v.files))
	for path := range v.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
