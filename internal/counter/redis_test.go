package counter

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func testBucket() time.Time {
	return time.Date(2026, 3, 14, 10, 7, 0, 0, time.UTC)
}

func TestRedisStoreIncrementAndRead(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewRedisStore(client, RedisOptions{KeyPrefix: "sr"}, zerolog.Nop())

	ctx := context.Background()
	ttl := 15 * time.Minute

	if err := store.Increment(ctx, "GTBank", testBucket(), true, ttl); err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}
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
	if counts.Success != 2 || counts.Total != 3 {
		t.Fatalf("expected {2 3}, got %+v", counts)
	}
}

func TestRedisStoreConcurrentIncrements(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewRedisStore(client, RedisOptions{}, zerolog.Nop())

	ctx := context.Background()
	ttl := 15 * time.Minute

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// Every other write in each worker is a success.
				success := i%2 == 0
				if err := store.Increment(ctx, "AccessBank", testBucket(), success, ttl); err != nil {
					t.Errorf("Increment returned error: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	counts, err := store.Read(ctx, "AccessBank", testBucket())
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if counts.Total != workers*perWorker {
		t.Fatalf("expected total %d, got %d", workers*perWorker, counts.Total)
	}
	if counts.Success != workers*(perWorker+1)/2 {
		t.Fatalf("expected success %d, got %d", workers*(perWorker+1)/2, counts.Success)
	}
}

func TestRedisStoreAbsentIsZero(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewRedisStore(client, RedisOptions{}, zerolog.Nop())

	counts, err := store.Read(context.Background(), "ZenithBank", testBucket())
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if counts != (Counts{}) {
		t.Fatalf("absent bucket should read as zero, got %+v", counts)
	}
}

func TestRedisStoreWriteRefreshesTTL(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewRedisStore(client, RedisOptions{KeyPrefix: "sr"}, zerolog.Nop())

	ctx := context.Background()
	ttl := 15 * time.Minute

	if err := store.Increment(ctx, "GTBank", testBucket(), true, ttl); err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}

	// Nearly expire the key, then write again: the TTL must be extended to
	// a full ttl from the second write, not remain anchored to the first.
	server.FastForward(14 * time.Minute)
	if err := store.Increment(ctx, "GTBank", testBucket(), false, ttl); err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}

	server.FastForward(14 * time.Minute)
	counts, err := store.Read(ctx, "GTBank", testBucket())
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if counts.Total != 2 {
		t.Fatalf("bucket should survive, expected total 2, got %+v", counts)
	}

	server.FastForward(2 * time.Minute)
	counts, err = store.Read(ctx, "GTBank", testBucket())
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if counts != (Counts{}) {
		t.Fatalf("expired bucket should read as zero, got %+v", counts)
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewRedisStore(client, RedisOptions{}, zerolog.Nop())

	ctx := context.Background()
	if err := store.Increment(ctx, "GTBank", testBucket(), true, 15*time.Minute); err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}

	server.FastForward(15*time.Minute - time.Second)
	counts, err := store.Read(ctx, "GTBank", testBucket())
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if counts.Total != 1 {
		t.Fatalf("bucket should still be present just before ttl, got %+v", counts)
	}

	server.FastForward(2 * time.Second)
	counts, err = store.Read(ctx, "GTBank", testBucket())
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if counts != (Counts{}) {
		t.Fatalf("bucket should be gone after ttl, got %+v", counts)
	}
}

func TestRedisStoreCorruptCounterReadAsZero(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewRedisStore(client, RedisOptions{KeyPrefix: "sr"}, zerolog.Nop())

	ctx := context.Background()
	if err := store.Increment(ctx, "GTBank", testBucket(), true, time.Hour); err != nil {
		t.Fatalf("Increment returned error: %v", err)
	}

	// Corrupt the backend directly: success > total.
	key := fmt.Sprintf("sr:GTBank:%d", testBucket().Unix())
	server.HSet(key, fieldSuccess, "9")
	server.HSet(key, fieldTotal, "3")

	counts, err := store.Read(ctx, "GTBank", testBucket())
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if counts != (Counts{}) {
		t.Fatalf("corrupt counter should read as zero, got %+v", counts)
	}
}
