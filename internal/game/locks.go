package game

import (
	"slices"
	"sync"
)

// keyedMutex holds one mutex per team id. Callers that need several teams
// lock them through lock, which takes them in sorted order so two requests
// over the same pair cannot deadlock. An entry lives only while someone holds
// or waits on it, so ids that name no team leave nothing behind.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) acquire(id string) *keyedEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.entries == nil {
		k.entries = make(map[string]*keyedEntry)
	}
	e, ok := k.entries[id]
	if !ok {
		e = &keyedEntry{}
		k.entries[id] = e
	}
	e.refs++
	return e
}

func (k *keyedMutex) release(id string, e *keyedEntry) {
	e.mu.Unlock()
	k.mu.Lock()
	defer k.mu.Unlock()
	if e.refs--; e.refs == 0 {
		delete(k.entries, id)
	}
}

func (k *keyedMutex) lock(ids ...string) (unlock func()) {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	held := make([]*keyedEntry, 0, len(ids))
	for _, id := range ids {
		e := k.acquire(id)
		e.mu.Lock()
		held = append(held, e)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			k.release(ids[i], held[i])
		}
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
