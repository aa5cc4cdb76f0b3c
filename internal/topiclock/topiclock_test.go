package topiclock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyedMutex_SerialisesSameTopic(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(ctx, "algebra")
			if err != nil {
				t.Errorf("Lock() error = %v", err)
				return
			}
			defer unlock()

			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d; want 1", maxActive)
	}
	if k.Len() != 0 {
		t.Errorf("Len() = %d; want 0 after all unlocks", k.Len())
	}
}

func TestKeyedMutex_DifferentTopicsIndependent(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := k.Lock(ctx, "algebra")
	if err != nil {
		t.Fatalf("Lock(algebra) error = %v", err)
	}
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := k.Lock(ctx, "geometry")
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locking another topic should not block")
	}
}

func TestKeyedMutex_ContextCanceled(t *testing.T) {
	k := NewKeyedMutex()

	unlock, _ := k.Lock(context.Background(), "algebra")
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := k.Lock(ctx, "algebra"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Lock() error = %v; want DeadlineExceeded", err)
	}
	if k.Len() != 1 {
		t.Errorf("Len() = %d; want 1 (held topic only)", k.Len())
	}
}

func TestKeyedMutex_UnlockIdempotent(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	unlock, _ := k.Lock(ctx, "algebra")
	unlock()
	unlock()

	again, err := k.Lock(ctx, "algebra")
	if err != nil {
		t.Fatalf("Lock() after unlock error = %v", err)
	}
	again()
	if k.Len() != 0 {
		t.Errorf("Len() = %d; want 0", k.Len())
	}
}
