// Package topiclock serialises writers per topic so that each topic's
// ledger has a single writer at a time while different topics proceed in
// parallel.
package topiclock

import (
	"context"
	"sync"
)

// Locker acquires an exclusive per-topic lock. The returned function
// releases it and is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, topic string) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker. Entries are reference counted and
// removed once no goroutine holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an in-process locker
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

// Lock blocks until the topic is free or ctx is done
func (k *KeyedMutex) Lock(ctx context.Context, topic string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[topic]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		k.locks[topic] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(topic, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(topic, e)
		})
	}, nil
}

func (k *KeyedMutex) release(topic string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, topic)
	}
}

// Len returns the number of topics currently held or awaited
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
