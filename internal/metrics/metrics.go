// Package metrics exposes operational counters for ingestion, rollup and
// retention over a Prometheus endpoint.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	OutcomesRecorded     *prometheus.CounterVec
	CounterWriteFailures prometheus.Counter
	RawWriteFailures     prometheus.Counter
	RollupCycles         *prometheus.CounterVec
	RollupCheckpoint     *prometheus.GaugeVec
	RowsReclaimed        prometheus.Counter

	registerOnce sync.Once
)

// Init registers the collectors. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		OutcomesRecorded = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bankpulse",
				Name:      "outcomes_recorded_total",
				Help:      "Total number of transaction outcomes recorded, by bank and class.",
			},
			[]string{"bank", "class"},
		)
		CounterWriteFailures = prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "bankpulse",
				Name:      "counter_write_failures_total",
				Help:      "Counter-store increments that failed after all retries.",
			},
		)
		RawWriteFailures = prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "bankpulse",
				Name:      "raw_write_failures_total",
				Help:      "Raw-store appends that failed after all retries.",
			},
		)
		RollupCycles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bankpulse",
				Name:      "rollup_cycles_total",
				Help:      "Rollup cycles executed, by interval unit and result.",
			},
			[]string{"unit", "status"},
		)
		RollupCheckpoint = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "bankpulse",
				Name:      "rollup_checkpoint_seconds",
				Help:      "Unix timestamp of the last processed interval end, by unit.",
			},
			[]string{"unit"},
		)
		RowsReclaimed = prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "bankpulse",
				Name:      "raw_rows_reclaimed_total",
				Help:      "Raw outcome rows deleted by the retention manager.",
			},
		)

		prometheus.MustRegister(
			OutcomesRecorded,
			CounterWriteFailures,
			RawWriteFailures,
			RollupCycles,
			RollupCheckpoint,
			RowsReclaimed,
		)
	})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
