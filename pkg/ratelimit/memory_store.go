package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Record is the per-address counter of the active window.
type Record struct {
	Count         int
	WindowResetAt time.Time
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

func (s *MemoryStore) Hit(_ context.Context, key string, max int, window time.Duration) (bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || now.After(rec.WindowResetAt) {
		s.records[key] = &Record{Count: 1, WindowResetAt: now.Add(window)}
		return true, nil
	}
	if rec.Count >= max {
		return false, nil
	}
	rec.Count++
	return true, nil
}

// Get returns a copy of the record for key.
func (s *MemoryStore) Get(key string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Len returns the number of tracked addresses, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Sweep drops every record whose window has expired.
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		if now.After(rec.WindowResetAt) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// Run sweeps expired records every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}
