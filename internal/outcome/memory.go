package outcome

import (
	"errors"
	"sync"
	"time"

	"github.com/youmna-rabie/line-relay/internal/types"
)

var (
	ErrNotFound        = errors.New("outcome not found")
	ErrDuplicate       = errors.New("event already claimed")
	ErrInvalidCapacity = errors.New("capacity must be greater than zero")
)

// MemoryStore is an in-memory outcome log backed by a ring buffer.
// Lookups by event ID are O(1) via a map index. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	buf   []types.Outcome
	index map[string]int // event ID → position in buf
	cap   int
	count int
	head  int // next write position
}

// NewMemoryStore creates a MemoryStore with the given capacity.
func NewMemoryStore(capacity int) (*MemoryStore, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &MemoryStore{
		buf:   make([]types.Outcome, capacity),
		index: make(map[string]int, capacity),
		cap:   capacity,
	}, nil
}

// Claim reserves id so that a redelivered copy of the same event is
// recognised. When the log is full the oldest entry is evicted.
func (s *MemoryStore) Claim(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; ok {
		return ErrDuplicate
	}
	s.insert(types.Outcome{EventID: id, Status: types.OutcomePending, Timestamp: time.Now()})
	return nil
}

// Save records o. A previously claimed event is updated in place.
func (s *MemoryStore) Save(o types.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pos, ok := s.index[o.EventID]; ok {
		s.buf[pos] = o
		return nil
	}
	s.insert(o)
	return nil
}

func (s *MemoryStore) insert(o types.Outcome) {
	if s.count == s.cap {
		delete(s.index, s.buf[s.head].EventID)
	}

	s.buf[s.head] = o
	s.index[o.EventID] = s.head

	s.head = (s.head + 1) % s.cap
	if s.count < s.cap {
		s.count++
	}
}

// Get retrieves the outcome recorded for an event ID.
func (s *MemoryStore) Get(id string) (types.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.index[id]
	if !ok {
		return types.Outcome{}, ErrNotFound
	}
	return s.buf[pos], nil
}

// List returns up to limit outcomes ordered newest-first, skipping the first offset results.
func (s *MemoryStore) List(limit, offset int) ([]types.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		return nil, nil
	}
	if offset < 0 {
		offset = 0
	}

	result := make([]types.Outcome, 0, min(limit, s.count))
	skipped := 0
	for i := 0; i < s.count; i++ {
		pos := (s.head - 1 - i + s.cap) % s.cap
		if skipped < offset {
			skipped++
			continue
		}
		result = append(result, s.buf[pos])
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

// Count returns the number of outcomes currently stored.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}
