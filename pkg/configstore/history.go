package configstore

import (
	"fmt"
	"strings"
	"sync"
)

// History is a bounded ring of snapshots, most recent last.
type History struct {
	mu      sync.RWMutex
	entries []*Snapshot
	maxSize int
}

// NewHistory returns a history keeping at most maxSize snapshots.
func NewHistory(maxSize int) *History {
	if maxSize < 1 {
		maxSize = 1
	}
	return &History{maxSize: maxSize}
}

// Push records snap, evicting the oldest when full.
func (h *History) Push(snap *Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, snap)
	if len(h.entries) > h.maxSize {
		h.entries = h.entries[len(h.entries)-h.maxSize:]
	}
}

// Get returns the nth most recent snapshot (0 = most recent).
func (h *History) Get(n int) (*Snapshot, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n < 0 || n >= len(h.entries) {
		return nil, fmt.Errorf("snapshot %d: %w (have %d)", n, ErrNoSnapshot, len(h.entries))
	}
	return h.entries[len(h.entries)-1-n], nil
}

// Find returns the most recent snapshot whose id starts with prefix.
func (h *History) Find(prefix string) (*Snapshot, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if prefix != "" {
		for i := len(h.entries) - 1; i >= 0; i-- {
			if strings.HasPrefix(h.entries[i].ID, prefix) {
				return h.entries[i], nil
			}
		}
	}
	return nil, fmt.Errorf("snapshot %q: %w", prefix, ErrNoSnapshot)
}

// Len returns the number of snapshots held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// MaxSize returns the capacity.
func (h *History) MaxSize() int { return h.maxSize }

// List returns every snapshot, most recent first.
func (h *History) List() []*Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Snapshot, len(h.entries))
	for i, s := range h.entries {
		out[len(h.entries)-1-i] = s
	}
	return out
}
