package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Envelope carries a payload together with its topic and publish time.
type Envelope struct {
	Event   Event     `json:"event"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// Bus is a lightweight pub/sub broker using channels. It is passed to the
// components that need it; there is no package-level instance.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Event][]chan Envelope
	dropped atomic.Uint64
	now     func() time.Time
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan Envelope), now: time.Now}
}

// Subscribe registers a listener for one event and returns the channel and an unsubscribe function.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan Envelope, func()) {
	return b.SubscribeMany(buffer, e)
}

// SubscribeMany registers one channel for several events.
func (b *Bus) SubscribeMany(buffer int, evs ...Event) (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Envelope, buffer)
	for _, e := range evs {
		b.subs[e] = append(b.subs[e], ch)
	}

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for _, e := range evs {
				subs := b.subs[e]
				for i, c := range subs {
					if c == ch {
						b.subs[e] = append(subs[:i], subs[i+1:]...)
						break
					}
				}
			}
			close(ch)
		})
	}

	return ch, unsub
}

// Publish fans the payload out without blocking. Slow subscribers miss events.
func (b *Bus) Publish(e Event, payload any) {
	if b == nil {
		return
	}
	env := Envelope{Event: e, At: b.now(), Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		select {
		case ch <- env:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }
