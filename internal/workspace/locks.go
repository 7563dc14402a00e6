package workspace

import (
	"path/filepath"
	"sort"
	"sync"
)

// Locks serializes conversion runs that write to the same path.
// The zero value is ready to use.
type Locks struct {
	mu    sync.Mutex
	paths map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocks creates an empty lock registry.
func NewLocks() *Locks {
	return &Locks{}
}

// Acquire blocks until every given path is free and returns the release
// function. Paths are locked in sorted order so overlapping sets cannot deadlock.
func (l *Locks) Acquire(paths ...string) (release func()) {
	keys := lockKeys(paths)

	held := make([]*pathLock, 0, len(keys))
	for _, key := range keys {
		pl := l.ref(key)
		pl.mu.Lock()
		held = append(held, pl)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].mu.Unlock()
				l.unref(keys[i])
			}
		})
	}
}

func (l *Locks) ref(key string) *pathLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paths == nil {
		l.paths = make(map[string]*pathLock)
	}
	pl, ok := l.paths[key]
	if !ok {
		pl = &pathLock{}
		l.paths[key] = pl
	}
	pl.refs++
	return pl
}

func (l *Locks) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pl := l.paths[key]
	pl.refs--
	if pl.refs == 0 {
		delete(l.paths, key)
	}
}

// lockKeys cleans, deduplicates and sorts paths, dropping empty ones.
func lockKeys(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		key := filepath.Clean(p)
		if abs, err := filepath.Abs(key); err == nil {
			key = abs
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
