// Package app aggregates shared dependencies behind the CLI commands.
package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bank-success-rates/internal/alerting"
	"bank-success-rates/internal/config"
	"bank-success-rates/internal/counter"
	"bank-success-rates/internal/ingest"
	"bank-success-rates/internal/metrics"
	"bank-success-rates/internal/retention"
	"bank-success-rates/internal/rollup"
	"bank-success-rates/internal/service"
	"bank-success-rates/internal/storage"
	"bank-success-rates/internal/window"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newCounterStore() (counter.Store, func()) {
	cfg := a.Config.Redis
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	store := counter.NewRedisStore(client, counter.RedisOptions{
		KeyPrefix: cfg.KeyPrefix,
		OpTimeout: cfg.OpTimeout,
	}, a.Logger)
	return store, func() { _ = client.Close() }
}

func (a *App) newRecorder(counters counter.Store, raw storage.RawOutcomeStore) *ingest.Recorder {
	cfg := a.Config.Ingest
	return ingest.NewRecorder(counters, raw, ingest.Options{
		SuccessStatusCode: cfg.SuccessStatusCode,
		BucketSize:        cfg.BucketSize,
		CounterTTL:        cfg.CounterTTL,
		RetryAttempts:     cfg.RetryAttempts,
		RetryBackoff:      cfg.RetryBackoff,
	}, a.Logger)
}

func (a *App) newNotifiers() []alerting.Notifier {
	var notifiers []alerting.Notifier
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}
	if len(notifiers) == 0 {
		notifiers = append(notifiers, alerting.NewLogNotifier(a.Logger))
	}
	return notifiers
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) buildRunners(store *storage.Store) []*rollup.Runner {
	cfg := a.Config.Rollup
	units := cfg.ParsedUnits()
	runners := make([]*rollup.Runner, 0, len(units))
	for i, unit := range units {
		lockKey := int64(0)
		if cfg.AdvisoryLockKey != 0 {
			lockKey = cfg.AdvisoryLockKey + int64(i) + 1
		}
		runners = append(runners, rollup.NewRunner(unit, store, store, store, store, rollup.Options{
			SuccessStatusCode: a.Config.Ingest.SuccessStatusCode,
			SafetyMargin:      cfg.SafetyMargin,
			OpTimeout:         cfg.OpTimeout,
			AdvisoryLockKey:   lockKey,
		}, a.Logger))
	}
	return runners
}

// Run executes the long-running tracker service: rollup runners per unit,
// the retention pass, the alert watcher and the metrics endpoint. Outcome
// ingestion happens through the Recorder API; this process has no inbound
// transport of its own.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; the tracker cannot run without the durable tier")
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	counters, closeCounters := a.newCounterStore()
	defer closeCounters()

	reader := window.NewReader(counters, a.Config.Ingest.BucketSize, a.Logger)

	var watcher *alerting.Watcher
	if a.Config.Alerting.Enabled {
		watcher = alerting.NewWatcher(reader, a.newNotifiers(), alerting.WatcherOptions{
			MinRate:  a.Config.Alerting.MinRate,
			Lookback: a.Config.Alerting.Lookback,
			Cooldown: a.Config.Alerting.Cooldown,
			Banks:    a.Config.Alerting.Banks,
			Channels: a.Config.Alerting.Channels,
		}, a.Logger)
	}

	var retentionMgr *retention.Manager
	if a.Config.Retention.Enabled {
		retentionMgr = retention.NewManager(store, store, nil, a.Config.Rollup.ParsedUnits(), a.Logger)
	}

	if a.Config.Metrics.Enabled {
		metrics.Init()
		go func() {
			if err := metrics.Serve(ctx, a.Config.Metrics.Addr, a.Logger); err != nil {
				a.Logger.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	runners := a.buildRunners(store)

	a.Logger.Warn().Msg("no inbound transport configured; outcomes arrive via the simulate command or the Recorder API")
	svc := service.New(a.Config, nil, nil, reader, store, runners, retentionMgr, watcher, a.Logger)

	a.Logger.Info().Msg("starting tracker service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("tracker service stopped")
	return nil
}

// RateOptions configure the rate command.
type RateOptions struct {
	Bank     string
	Lookback time.Duration
}

// SeriesOptions configure the series command.
type SeriesOptions struct {
	Bank  string
	Unit  string
	From  *time.Time
	To    *time.Time
	Limit int
}

// ExportOptions hold parameters for exporting a historical series.
type ExportOptions struct {
	Bank      string
	Unit      string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// RollupOptions configure the manual rollup command.
type RollupOptions struct {
	Unit string
}

// SimulateOptions configure the simulate command.
type SimulateOptions struct {
	Banks       []string
	Count       int
	FailureRate float64
	Persist     bool
}
