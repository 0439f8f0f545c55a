// Package memory provides an in-memory implementation of storage.TurnStore
// for tests and single-process deployments. Records are lost when the
// process restarts. Optional LRU eviction limits memory usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/storage"
)

// entry holds a stored record and its LRU position.
type entry struct {
	turn    *api.TurnRecord
	lruElem *list.Element
}

// Store is an in-memory TurnStore with optional LRU eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lruList *list.List // front = most recently used, back = least recently used
	maxSize int        // 0 = unlimited
}

// Ensure Store implements storage.TurnStore at compile time.
var _ storage.TurnStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the least recently used record is
// evicted when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// SaveTurn stores a record in memory.
func (s *Store) SaveTurn(_ context.Context, turn *api.TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[turn.ID]; exists {
		return storage.ErrConflict
	}

	// Evict if at capacity.
	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.lruList.PushFront(turn.ID)
	s.entries[turn.ID] = &entry{turn: turn, lruElem: elem}
	return nil
}

// GetTurn retrieves a record by ID and marks it recently used.
func (s *Store) GetTurn(_ context.Context, id string) (*api.TurnRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	s.lruList.MoveToFront(e.lruElem)
	return e.turn, nil
}

// ListTurns returns a page of one session's records ordered by index.
func (s *Store) ListTurns(_ context.Context, sessionID string, opts storage.ListOptions) (*api.TurnList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*api.TurnRecord
	for _, e := range s.entries {
		if e.turn.SessionID == sessionID {
			matches = append(matches, e.turn)
		}
	}

	desc := opts.Descending()
	sort.Slice(matches, func(i, j int) bool {
		if desc {
			return matches[i].Index > matches[j].Index
		}
		return matches[i].Index < matches[j].Index
	})

	// Apply cursor-based pagination. An unknown cursor yields an empty page.
	if opts.After != "" {
		idx := -1
		for i, t := range matches {
			if t.ID == opts.After {
				idx = i
				break
			}
		}
		if idx >= 0 {
			matches = matches[idx+1:]
		} else {
			matches = nil
		}
	}

	limit := opts.EffectiveLimit()
	if len(matches) > limit+1 {
		matches = matches[:limit+1]
	}
	return storage.NewTurnList(matches, limit), nil
}

// DeleteSession removes all records of a session.
func (s *Store) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		if e.turn.SessionID == sessionID {
			s.lruList.Remove(e.lruElem)
			delete(s.entries, id)
		}
	}
	return nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// evictOldest removes the least recently used entry.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}

	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}
