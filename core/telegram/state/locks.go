// Package state serializes work per conversation.
//
// Every update of one chat, and every out-of-band event that touches the same chat
// (for example a payment webhook), runs under the same key so that reads and writes of
// the conversation never interleave. Different keys proceed concurrently.
package state

import (
	"context"
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locks is a keyed mutex with reference-counted entries: a key uses memory only while
// somebody holds or waits for it.
type Locks struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// NewLocks returns an empty lock table.
func NewLocks() *Locks {
	return &Locks{entries: make(map[int64]*entry)}
}

type heldKey struct{ locks *Locks }

// Lock acquires the lock for key. The returned context records the ownership so that
// nested calls can detect it with Held and skip re-locking. The unlock function must be
// called exactly once.
func (l *Locks) Lock(ctx context.Context, key int64) (context.Context, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	held := heldSet(ctx, l)
	next := make(map[int64]struct{}, len(held)+1)
	for k := range held {
		next[k] = struct{}{}
	}
	next[key] = struct{}{}

	var once sync.Once
	return context.WithValue(ctx, heldKey{l}, next), func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.entries, key)
			}
			l.mu.Unlock()
		})
	}
}

// LockUnlessHeld behaves like Lock unless ctx already owns key, in which case it
// returns ctx unchanged and a no-op unlock.
func (l *Locks) LockUnlessHeld(ctx context.Context, key int64) (context.Context, func()) {
	if l.Held(ctx, key) {
		return ctx, func() {}
	}
	return l.Lock(ctx, key)
}

// Held reports whether ctx was derived from a Lock call for key on this table.
func (l *Locks) Held(ctx context.Context, key int64) bool {
	_, ok := heldSet(ctx, l)[key]
	return ok
}

// Len reports the number of keys currently held or awaited.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func heldSet(ctx context.Context, l *Locks) map[int64]struct{} {
	if ctx == nil {
		return nil
	}
	held, _ := ctx.Value(heldKey{l}).(map[int64]struct{})
	return held
}
