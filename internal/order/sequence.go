package order

import "sync"

// Sequence hands out venue order ids starting from the venue's next valid id.
type Sequence struct {
	mu     sync.Mutex
	next   int64
	seeded bool
}

// Seed moves the sequence to id unless it is already past it.
func (s *Sequence) Seed(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seeded || id > s.next {
		s.next = id
	}
	s.seeded = true
}

// Next returns a fresh id.
func (s *Sequence) Next() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seeded {
		return 0, ErrSequenceNotSeeded
	}
	id := s.next
	s.next++
	return id, nil
}

// Seeded reports whether the venue has supplied a starting id.
func (s *Sequence) Seeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeded
}
