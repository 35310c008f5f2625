// Package history keeps the most recent lookups of each user in memory.
package history

import (
	"sync"

	"housebot/server/internal/models"
)

// Capacity is the number of entries remembered per user.
const Capacity = 5

// Store is a process-lifetime, per-user history. Entries are ordered
// most-recent-first; it is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	capacity int
	entries  map[int64][]models.HistoryEntry
}

func NewStore() *Store {
	return &Store{
		capacity: Capacity,
		entries:  make(map[int64][]models.HistoryEntry),
	}
}

// Record inserts entry at the front of the user's history, evicting the
// oldest entry once the history is full.
func (s *Store) Record(userID int64, entry models.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.entries[userID]
	n := len(old) + 1
	if n > s.capacity {
		n = s.capacity
	}

	next := make([]models.HistoryEntry, n)
	next[0] = entry
	copy(next[1:], old)
	s.entries[userID] = next
}

// List returns a copy of the user's history, empty when there is none.
func (s *Store) List(userID int64) []models.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.HistoryEntry, len(s.entries[userID]))
	copy(out, s.entries[userID])
	return out
}

// Users returns the number of users with at least one entry.
func (s *Store) Users() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
