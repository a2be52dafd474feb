package crawler

import (
	"context"
	"sync"
	"sync/atomic"
)

// VisitedSet records every URL ever accepted into a run's frontier.
// TryMark is an atomic check-and-insert: among concurrent callers with the
// same URL exactly one receives true.
type VisitedSet interface {
	TryMark(ctx context.Context, url string) (bool, error)
}

// MemoryVisitedSet is the in-process VisitedSet
type MemoryVisitedSet struct {
	seen  sync.Map
	count atomic.Int64
}

// NewMemoryVisitedSet creates an empty in-memory visited set
func NewMemoryVisitedSet() *MemoryVisitedSet {
	return &MemoryVisitedSet{}
}

// TryMark inserts url and reports whether it was absent
func (s *MemoryVisitedSet) TryMark(_ context.Context, url string) (bool, error) {
	if _, loaded := s.seen.LoadOrStore(url, struct{}{}); loaded {
		return false, nil
	}
	s.count.Add(1)
	return true, nil
}

// Len returns the number of marked URLs
func (s *MemoryVisitedSet) Len() int {
	return int(s.count.Load())
}
