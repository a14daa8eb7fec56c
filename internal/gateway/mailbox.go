package gateway

import (
	"context"
	"sync"
)

// mailbox is an unbounded FIFO. push never blocks, so request methods stay
// fire-and-forget even while the consumer is busy.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{signal: make(chan struct{}, 1)}
}

func (m *mailbox[T]) push(v T) {
	m.mu.Lock()
	m.items = append(m.items, v)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) take() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.items
	m.items = nil
	return out
}

func (m *mailbox[T]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// drain hands queued items to fn in order until ctx is canceled.
func (m *mailbox[T]) drain(ctx context.Context, fn func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.signal:
			for _, v := range m.take() {
				if ctx.Err() != nil {
					return
				}
				fn(v)
			}
		}
	}
}
