package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bank-success-rates/internal/window"
)

// RateSource yields the current sliding-window snapshot for a bank. Satisfied
// by window.Reader.
type RateSource interface {
	Rate(ctx context.Context, bank string, lookback time.Duration) (window.Snapshot, error)
}

// WatcherOptions tune the alert watcher.
type WatcherOptions struct {
	// MinRate is the alert threshold in [0, 1].
	MinRate float64
	// Lookback is the sliding window evaluated per check.
	Lookback time.Duration
	// Cooldown suppresses repeat alerts per bank.
	Cooldown time.Duration
	// Banks lists the banks to watch.
	Banks []string
	// Channels is carried into the notification for routing context.
	Channels []string
}

// Watcher periodically evaluates each watched bank's recent success rate and
// notifies when it drops below the threshold. A bank with no traffic in the
// window never alerts: an undefined rate is not a low rate.
type Watcher struct {
	source    RateSource
	notifiers []Notifier
	opts      WatcherOptions
	threshold decimal.Decimal
	logger    zerolog.Logger
	now       func() time.Time

	mu        sync.Mutex
	lastFired map[string]time.Time
}

// NewWatcher constructs a Watcher.
func NewWatcher(source RateSource, notifiers []Notifier, opts WatcherOptions, logger zerolog.Logger) *Watcher {
	return &Watcher{
		source:    source,
		notifiers: notifiers,
		opts:      opts,
		threshold: decimal.NewFromFloat(opts.MinRate),
		logger:    logger.With().Str("component", "alert_watcher").Logger(),
		now:       time.Now,
		lastFired: make(map[string]time.Time),
	}
}

// WithClock overrides the internal clock, used in tests.
func (w *Watcher) WithClock(clock func() time.Time) {
	if clock != nil {
		w.now = clock
	}
}

// Tick is the scheduler entry point: check every watched bank once.
func (w *Watcher) Tick(ctx context.Context, _ time.Time) error {
	var firstErr error
	for _, bank := range w.opts.Banks {
		if err := w.checkBank(ctx, bank); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (w *Watcher) checkBank(ctx context.Context, bank string) error {
	snapshot, err := w.source.Rate(ctx, bank, w.opts.Lookback)
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", bank, err)
	}

	rate, ok := snapshot.Rate()
	if !ok {
		w.logger.Debug().Str("bank", bank).Msg("no traffic in window, skipping")
		return nil
	}
	if rate.GreaterThanOrEqual(w.threshold) {
		return nil
	}

	if !w.shouldFire(bank) {
		w.logger.Debug().Str("bank", bank).Msg("alert suppressed by cooldown")
		return nil
	}

	note := Notification{
		Bank:        bank,
		WindowStart: snapshot.WindowStart,
		WindowEnd:   snapshot.WindowEnd,
		Rate:        rate,
		Threshold:   w.threshold,
		Success:     snapshot.Success,
		Total:       snapshot.Total,
		Channels:    w.opts.Channels,
	}
	var firstErr error
	for _, notifier := range w.notifiers {
		if err := notifier.Notify(ctx, note); err != nil {
			w.logger.Error().Err(err).Str("bank", bank).Msg("notifier delivery failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// shouldFire records the firing time when the cooldown has elapsed. The
// timestamp is set even if delivery later fails, so a flapping notifier does
// not spam the channel.
func (w *Watcher) shouldFire(bank string) bool {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()
	if last, ok := w.lastFired[bank]; ok && now.Sub(last) < w.opts.Cooldown {
		return false
	}
	w.lastFired[bank] = now
	return true
}
