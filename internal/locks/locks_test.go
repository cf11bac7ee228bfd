package locks

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestKeyedMutexExcludesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	release, err := km.Acquire(ctx, "batch:a")
	if err != nil {
		t.Fatal(err)
	}

	acquired := make(chan struct{})
	go func() {
		r2, err := km.Acquire(ctx, "batch:a")
		if err != nil {
			t.Error(err)
			return
		}
		close(acquired)
		r2()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while lock held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed after release")
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	release, err := km.Acquire(ctx, "batch:a")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	done := make(chan struct{})
	go func() {
		r, err := km.Acquire(ctx, "batch:b")
		if err != nil {
			t.Error(err)
			return
		}
		r()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("different key blocked by unrelated lock")
	}
}

func TestKeyedMutexCounter(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()
	n := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := km.Acquire(ctx, "counter")
			if err != nil {
				t.Error(err)
				return
			}
			n++
			release()
		}()
	}
	wg.Wait()
	if n != 50 {
		t.Fatalf("expected 50 increments, got %d", n)
	}
}
