package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bank-success-rates/internal/window"
)

type fakeRateSource struct {
	snapshots map[string]window.Snapshot
}

func (f *fakeRateSource) Rate(ctx context.Context, bank string, lookback time.Duration) (window.Snapshot, error) {
	snap, ok := f.snapshots[bank]
	if !ok {
		return window.Snapshot{Bank: bank}, nil
	}
	return snap, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, note Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

func newTestWatcher(source RateSource, notifier Notifier, banks ...string) *Watcher {
	return NewWatcher(source, []Notifier{notifier}, WatcherOptions{
		MinRate:  0.9,
		Lookback: 15 * time.Minute,
		Cooldown: 10 * time.Minute,
		Banks:    banks,
	}, zerolog.Nop())
}

func TestWatcherFiresBelowThreshold(t *testing.T) {
	source := &fakeRateSource{snapshots: map[string]window.Snapshot{
		"GTBank": {Bank: "GTBank", Success: 62, Total: 100},
		"UBA":    {Bank: "UBA", Success: 99, Total: 100},
	}}
	notifier := &recordingNotifier{}
	watcher := newTestWatcher(source, notifier, "GTBank", "UBA")

	if err := watcher.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected exactly one alert, got %d", notifier.count())
	}
	if notifier.notes[0].Bank != "GTBank" {
		t.Fatalf("expected GTBank alert, got %s", notifier.notes[0].Bank)
	}
}

func TestWatcherSkipsUndefinedRate(t *testing.T) {
	source := &fakeRateSource{snapshots: map[string]window.Snapshot{
		"GTBank": {Bank: "GTBank", Success: 0, Total: 0},
	}}
	notifier := &recordingNotifier{}
	watcher := newTestWatcher(source, notifier, "GTBank")

	if err := watcher.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	if notifier.count() != 0 {
		t.Fatalf("no traffic must never alert, got %d alerts", notifier.count())
	}
}

func TestWatcherFiresOnObservedZeroRate(t *testing.T) {
	source := &fakeRateSource{snapshots: map[string]window.Snapshot{
		"GTBank": {Bank: "GTBank", Success: 0, Total: 40},
	}}
	notifier := &recordingNotifier{}
	watcher := newTestWatcher(source, notifier, "GTBank")

	if err := watcher.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	if notifier.count() != 1 {
		t.Fatalf("an observed 0%% rate must alert, got %d alerts", notifier.count())
	}
}

func TestWatcherCooldownSuppressesRepeats(t *testing.T) {
	source := &fakeRateSource{snapshots: map[string]window.Snapshot{
		"GTBank": {Bank: "GTBank", Success: 62, Total: 100},
	}}
	notifier := &recordingNotifier{}
	watcher := newTestWatcher(source, notifier, "GTBank")

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	watcher.WithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		if err := watcher.Tick(context.Background(), now); err != nil {
			t.Fatalf("Tick returned error: %v", err)
		}
	}
	if notifier.count() != 1 {
		t.Fatalf("cooldown must suppress repeats, got %d alerts", notifier.count())
	}

	now = now.Add(11 * time.Minute)
	if err := watcher.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	if notifier.count() != 2 {
		t.Fatalf("expected second alert after cooldown, got %d", notifier.count())
	}
}
