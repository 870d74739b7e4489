// Package service wires the ingest consumers, rollup runners, retention pass
// and alert watcher into one supervised process.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"bank-success-rates/internal/alerting"
	"bank-success-rates/internal/config"
	"bank-success-rates/internal/ingest"
	"bank-success-rates/internal/retention"
	"bank-success-rates/internal/rollup"
	"bank-success-rates/internal/scheduler"
	"bank-success-rates/internal/storage"
	"bank-success-rates/internal/window"
)

// Service orchestrates ingestion, rollups, retention and alerting.
type Service struct {
	cfg        *config.Config
	recorder   *ingest.Recorder
	source     ingest.Source
	reader     *window.Reader
	aggregates storage.AggregateStore
	runners    []*rollup.Runner
	retention  *retention.Manager
	watcher    *alerting.Watcher
	logger     zerolog.Logger
}

// New constructs the service. source, retention and watcher may be nil; the
// corresponding loop is simply not started.
func New(cfg *config.Config, recorder *ingest.Recorder, source ingest.Source, reader *window.Reader, aggregates storage.AggregateStore, runners []*rollup.Runner, retentionMgr *retention.Manager, watcher *alerting.Watcher, logger zerolog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		recorder:   recorder,
		source:     source,
		reader:     reader,
		aggregates: aggregates,
		runners:    runners,
		retention:  retentionMgr,
		watcher:    watcher,
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// Run blocks until ctx is cancelled or a loop fails fatally. Cancellation is
// a clean shutdown, not an error.
func (s *Service) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	if s.source != nil {
		if s.recorder == nil {
			return fmt.Errorf("recorder not configured")
		}
		for w := 0; w < s.cfg.Ingest.Workers; w++ {
			w := w
			group.Go(func() error {
				return s.consume(gctx, w)
			})
		}
	}

	for _, runner := range s.runners {
		runner := runner
		sched := scheduler.New(scheduler.Options{
			Name:            "rollup_" + runner.Unit().String(),
			Interval:        s.cfg.Rollup.CheckInterval,
			AlignToInterval: true,
			RunAtStart:      s.cfg.Rollup.CatchUpOnStart,
		}, s.logger)
		group.Go(func() error {
			return sched.Run(gctx, runner.Tick)
		})
	}

	if s.cfg.Retention.Enabled && s.retention != nil {
		sched := scheduler.New(scheduler.Options{
			Name:     "retention",
			Interval: s.cfg.Retention.Interval,
		}, s.logger)
		group.Go(func() error {
			return sched.Run(gctx, s.retention.Tick)
		})
	}

	if s.cfg.Alerting.Enabled && s.watcher != nil {
		sched := scheduler.New(scheduler.Options{
			Name:     "alert_watcher",
			Interval: s.cfg.Alerting.CheckInterval,
		}, s.logger)
		group.Go(func() error {
			return sched.Run(gctx, s.watcher.Tick)
		})
	}

	s.logger.Info().
		Int("ingest_workers", s.cfg.Ingest.Workers).
		Int("rollup_units", len(s.runners)).
		Bool("retention", s.cfg.Retention.Enabled).
		Bool("alerting", s.cfg.Alerting.Enabled).
		Msg("service started")

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// consume drains the inbound source until it closes or ctx is cancelled.
// Record failures are logged and skipped; a poisoned outcome must not stall
// the stream.
func (s *Service) consume(ctx context.Context, worker int) error {
	logger := s.logger.With().Int("worker", worker).Logger()
	for {
		outcome, err := s.source.Next(ctx)
		if err != nil {
			if errors.Is(err, ingest.ErrSourceClosed) {
				logger.Info().Msg("source closed, consumer stopping")
				return nil
			}
			return err
		}
		if err := s.recorder.Record(ctx, outcome); err != nil {
			logger.Error().Err(err).
				Str("bank", outcome.DestinationBank).
				Int("status_code", outcome.StatusCode).
				Msg("record failed")
		}
	}
}

// GetRecentRate returns the sliding-window snapshot for the bank. A
// non-positive lookback falls back to the configured default.
func (s *Service) GetRecentRate(ctx context.Context, bank string, lookback time.Duration) (window.Snapshot, error) {
	if s.reader == nil {
		return window.Snapshot{}, fmt.Errorf("window reader not configured")
	}
	if lookback <= 0 {
		lookback = s.cfg.Window.DefaultLookback
	}
	return s.reader.Rate(ctx, bank, lookback)
}

// GetHistoricalSeries queries committed aggregates.
func (s *Service) GetHistoricalSeries(ctx context.Context, filter storage.AggregateFilter) ([]storage.AggregateRecord, error) {
	if s.aggregates == nil {
		return nil, fmt.Errorf("aggregate store not configured")
	}
	return s.aggregates.QueryAggregates(ctx, filter)
}
