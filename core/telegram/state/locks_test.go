package state

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLocksSerializeSameKey(t *testing.T) {
	locks := NewLocks()
	var (
		wg      sync.WaitGroup
		active  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, unlock := locks.Lock(context.Background(), 42)
			defer unlock()
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxSeen)
	}
	if locks.Len() != 0 {
		t.Fatalf("entries leaked: %d", locks.Len())
	}
}

func TestLocksDifferentKeysDoNotBlock(t *testing.T) {
	locks := NewLocks()
	_, unlockA := locks.Lock(context.Background(), 1)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		_, unlockB := locks.Lock(context.Background(), 2)
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another key blocked")
	}
}

func TestLockUnlessHeldIsReentrantThroughContext(t *testing.T) {
	locks := NewLocks()
	ctx, unlock := locks.Lock(context.Background(), 7)
	defer unlock()

	if !locks.Held(ctx, 7) {
		t.Fatal("expected key to be held")
	}
	if locks.Held(ctx, 8) {
		t.Fatal("unrelated key reported held")
	}
	if locks.Held(context.Background(), 7) {
		t.Fatal("fresh context must not report ownership")
	}

	done := make(chan struct{})
	go func() {
		inner, release := locks.LockUnlessHeld(ctx, 7)
		if inner != ctx {
			t.Error("expected ctx to be returned unchanged")
		}
		release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("LockUnlessHeld deadlocked on an owned key")
	}
}

func TestUnlockIsIdempotent(t *testing.T) {
	locks := NewLocks()
	_, unlock := locks.Lock(context.Background(), 3)
	unlock()
	unlock()
	_, again := locks.Lock(context.Background(), 3)
	again()
}
