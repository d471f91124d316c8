package core

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
)

// indexEntry precomputes the lowered search keys for one item.
type indexEntry struct {
	item          IndexedItem
	pathLower     string
	filenameLower string
}

// Index holds a refreshable, read-only snapshot of the library's audio
// catalog. A snapshot is immutable once taken; Refresh replaces it
// atomically so readers never observe a half-built one.
type Index struct {
	library Library

	mu      sync.RWMutex
	entries []indexEntry
}

// NewIndex creates an index over the given library.
func NewIndex(library Library) *Index {
	return &Index{library: library}
}

// Refresh replaces the held snapshot with a fresh library query.
// A failing library query propagates and leaves the old snapshot in place.
func (x *Index) Refresh(ctx context.Context) error {
	items, err := x.library.AudioItems(ctx)
	if err != nil {
		return err
	}

	entries := make([]indexEntry, 0, len(items))
	for _, item := range items {
		base := filepath.Base(item.Path)
		base = strings.TrimSuffix(base, filepath.Ext(base))
		entries = append(entries, indexEntry{
			item:          item,
			pathLower:     strings.ToLower(item.Path),
			filenameLower: strings.ToLower(base),
		})
	}

	x.mu.Lock()
	x.entries = entries
	x.mu.Unlock()
	return nil
}

// SearchByPath returns items whose path contains the substring,
// case-insensitively. An uninitialized snapshot yields no results.
func (x *Index) SearchByPath(substring string) []IndexedItem {
	return x.search(substring, func(e indexEntry) string { return e.pathLower })
}

// SearchByFilename returns items whose extension-less filename contains
// the substring, case-insensitively.
func (x *Index) SearchByFilename(substring string) []IndexedItem {
	return x.search(substring, func(e indexEntry) string { return e.filenameLower })
}

func (x *Index) search(substring string, key func(indexEntry) string) []IndexedItem {
	needle := strings.ToLower(substring)

	x.mu.RLock()
	entries := x.entries
	x.mu.RUnlock()

	out := []IndexedItem{}
	for _, entry := range entries {
		if strings.Contains(key(entry), needle) {
			out = append(out, entry.item)
		}
	}
	return out
}
