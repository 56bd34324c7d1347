package media

import (
	"fmt"
	"sync"
)

// Library holds the open source handles for one export or preview session,
// keyed by clip ID. Every distinct source referenced by a composition is
// loaded before the first frame renders, and everything is released together
// when the session ends, success or failure alike.
type Library struct {
	mu      sync.Mutex
	sources map[string]Source
}

func NewLibrary() *Library {
	return &Library{sources: make(map[string]Source)}
}

// Put registers a source under a clip ID, closing any handle it replaces.
func (l *Library) Put(clipID string, src Source) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if old, ok := l.sources[clipID]; ok && old != src {
		old.Close()
	}
	l.sources[clipID] = src
}

// Get returns the source for a clip ID.
func (l *Library) Get(clipID string) (Source, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	src, ok := l.sources[clipID]
	if !ok {
		return nil, fmt.Errorf("no media source loaded for clip %s", clipID)
	}
	return src, nil
}

// Len returns the number of loaded sources.
func (l *Library) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sources)
}

// Close releases every handle. Safe to call more than once.
func (l *Library) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, src := range l.sources {
		src.Close()
		delete(l.sources, id)
	}
}
