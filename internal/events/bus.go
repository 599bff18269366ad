// Package events carries process-wide signals between components that do not
// otherwise know about each other.
package events

import (
	"sync"
)

type Signal string

const (
	NetworkConfirmed Signal = "network-confirmed"
	NetworkLost      Signal = "network-lost"
)

// Bus fans signals out to subscribers synchronously, in subscription order.
type Bus struct {
	mu   sync.RWMutex
	next uint64
	subs []subscription
}

type subscription struct {
	id uint64
	fn func(Signal)
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn func(Signal)) (unsubscribe func()) {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (b *Bus) Emit(sig Signal) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(sig)
	}
}

func (b *Bus) EmitNetworkConfirmed() { b.Emit(NetworkConfirmed) }

func (b *Bus) EmitNetworkLost() { b.Emit(NetworkLost) }
