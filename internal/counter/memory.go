package counter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps bucket counters in process memory. Data is lost on
// restart; useful for development and tests. Expired entries are dropped
// lazily on read and by the optional background sweep, and the observable
// contract is identical either way: expired reads come back as zero.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry

	now func() time.Time
}

type memoryEntry struct {
	counts    Counts
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *MemoryStore) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Increment bumps the bucket's counters and extends its expiry to ttl from now.
func (s *MemoryStore) Increment(ctx context.Context, bank string, bucketStart time.Time, success bool, ttl time.Duration) error {
	if bank == "" {
		return fmt.Errorf("bank is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := memoryKey(bank, bucketStart)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || !entry.expiresAt.After(now) {
		entry = &memoryEntry{}
		s.entries[key] = entry
	}

	entry.counts.Total++
	if success {
		entry.counts.Success++
	}
	entry.expiresAt = now.Add(ttl)
	return nil
}

// Read returns the bucket's counters, or the zero Counts when absent or expired.
func (s *MemoryStore) Read(ctx context.Context, bank string, bucketStart time.Time) (Counts, error) {
	if err := ctx.Err(); err != nil {
		return Counts{}, err
	}

	key := memoryKey(bank, bucketStart)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return Counts{}, nil
	}
	if !entry.expiresAt.After(now) {
		delete(s.entries, key)
		return Counts{}, nil
	}
	return entry.counts, nil
}

// Sweep removes all expired entries and reports how many were dropped.
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if !entry.expiresAt.After(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on the given cadence until ctx is cancelled.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

func memoryKey(bank string, bucketStart time.Time) string {
	return fmt.Sprintf("%s:%d", bank, bucketStart.UTC().Unix())
}

var _ Store = (*MemoryStore)(nil)
