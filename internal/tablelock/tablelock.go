package tablelock

import (
	"context"
	"sync"
)

// Locker serializes work per table. Entries are reference counted and dropped
// once no goroutine holds or waits on them.
type Locker struct {
	mu    sync.Mutex
	slots map[int]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func New() *Locker {
	return &Locker{slots: make(map[int]*slot)}
}

// Lock blocks until table is free or ctx is done. The returned func releases the lock.
func (l *Locker) Lock(ctx context.Context, table int) (func(), error) {
	s := l.acquireSlot(table)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.releaseSlot(table, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.releaseSlot(table, s)
		})
	}, nil
}

// Held reports the number of tables with an active holder or waiter.
func (l *Locker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func (l *Locker) acquireSlot(table int) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[table]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[table] = s
	}
	s.refs++
	return s
}

func (l *Locker) releaseSlot(table int, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, table)
	}
}
