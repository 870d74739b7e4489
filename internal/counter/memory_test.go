package counter

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreIncrementAndRead(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ttl := 15 * time.Minute

	if err := store.Increment(ctx, "GTBank", testBucket(), true, ttl); err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}
	if err := store.Increment(ctx, "GTBank", testBucket(), false, ttl); err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}

	counts, err := store.Read(ctx, "GTBank", testBucket())
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if counts.Success != 1 || counts.Total != 2 {
		t.Fatalf("expected {1 2}, got %+v", counts)
	}
}

func TestMemoryStoreConcurrentIncrements(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ttl := 15 * time.Minute

	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := store.Increment(ctx, "UBA", testBucket(), i%5 != 0, ttl); err != nil {
					t.Errorf("Increment returned error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	counts, err := store.Read(ctx, "UBA", testBucket())
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if counts.Total != workers*perWorker {
		t.Fatalf("expected total %d, got %d", workers*perWorker, counts.Total)
	}
	if counts.Success != workers*perWorker*4/5 {
		t.Fatalf("expected success %d, got %d", workers*perWorker*4/5, counts.Success)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()

	now := time.Date(2026, 3, 14, 10, 7, 30, 0, time.UTC)
	store.WithClock(func() time.Time { return now })

	ctx := context.Background()
	ttl := 15 * time.Minute

	if err := store.Increment(ctx, "GTBank", testBucket(), true, ttl); err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}

	now = now.Add(ttl - time.Second)
	counts, err := store.Read(ctx, "GTBank", testBucket())
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if counts.Total != 1 {
		t.Fatalf("bucket should still be present just before ttl, got %+v", counts)
	}

	now = now.Add(2 * time.Second)
	counts, err = store.Read(ctx, "GTBank", testBucket())
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if counts != (Counts{}) {
		t.Fatalf("bucket should be gone after ttl, got %+v", counts)
	}
}

func TestMemoryStoreWriteRefreshesTTL(t *testing.T) {
	store := NewMemoryStore()

	now := time.Date(2026, 3, 14, 10, 7, 0, 0, time.UTC)
	store.WithClock(func() time.Time { return now })

	ctx := context.Background()
	ttl := 15 * time.Minute

	if err := store.Increment(ctx, "GTBank", testBucket(), true, ttl); err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}

	now = now.Add(14 * time.Minute)
	if err := store.Increment(ctx, "GTBank", testBucket(), false, ttl); err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}

	now = now.Add(14 * time.Minute)
	counts, err := store.Read(ctx, "GTBank", testBucket())
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if counts.Total != 2 {
		t.Fatalf("refreshed bucket should survive, got %+v", counts)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	store := NewMemoryStore()

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store.WithClock(func() time.Time { return now })

	ctx := context.Background()
	if err := store.Increment(ctx, "GTBank", testBucket(), true, time.Minute); err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}
	if err := store.Increment(ctx, "UBA", testBucket(), true, time.Hour); err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if removed := store.Sweep(); removed != 1 {
		t.Fatalf("expected 1 swept entry, got %d", removed)
	}

	counts, err := store.Read(ctx, "UBA", testBucket())
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if counts.Total != 1 {
		t.Fatalf("unexpired bucket should survive sweep, got %+v", counts)
	}
}
