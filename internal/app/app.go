// Package app wires the application components and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"nutriscan/internal/config"
	"nutriscan/internal/events"
	"nutriscan/internal/history"
	"nutriscan/internal/openfoodfacts"
	"nutriscan/internal/scan"
	"nutriscan/internal/store"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Application is created once at startup and released at shutdown
type Application struct {
	cfg      *config.Config
	logger   *zap.Logger
	kv       store.KV
	bus      events.Bus
	history  *history.Store
	products *history.ProductCache
	client   *openfoodfacts.Client
	scanner  *scan.Controller
	sched    *cron.Cron
}

// New opens storage, loads the persisted history and product cache and
// builds the scan controller.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	kv, err := store.Open(ctx, store.Options{
		Backend:     cfg.StoreBackend,
		DataDir:     cfg.DataDir,
		RedisAddr:   cfg.RedisAddr,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreBackend, err)
	}
	logger.Info("store opened", zap.String("backend", cfg.StoreBackend), zap.String("data_dir", cfg.DataDir))

	a := &Application{
		cfg:    cfg,
		logger: logger,
		kv:     kv,
		bus:    events.New(),
	}

	a.history = history.New(kv, history.Options{
		Limit:  cfg.HistoryLimit,
		Bus:    a.bus,
		Logger: logger.Named("history"),
	})
	a.products = history.NewProductCache(kv, history.DefaultProductsKey, cfg.ProductsLimit, logger.Named("products"))

	items := a.history.Load(ctx)
	cached := a.products.Load(ctx)
	logger.Info("history loaded", zap.Int("items", len(items)), zap.Int("cached_products", cached))

	a.client = openfoodfacts.NewClient(openfoodfacts.Options{
		BaseURL:       cfg.OFFBaseURL,
		Language:      cfg.OFFLanguage,
		UserAgent:     cfg.OFFUserAgent,
		Timeout:       cfg.OFFTimeout,
		RatePerMinute: cfg.OFFRatePerMinute,
		MaxRetries:    cfg.OFFMaxRetries,
		Logger:        logger.Named("openfoodfacts"),
	})

	a.scanner = scan.NewController(scan.Options{
		Settle:   cfg.ScanDebounce,
		Fetcher:  a.client,
		History:  a.history,
		Products: a.products,
		Bus:      a.bus,
		Logger:   logger.Named("scan"),
	})

	return a, nil
}

func (a *Application) Config() *config.Config {
	return a.cfg
}

func (a *Application) Logger() *zap.Logger {
	return a.logger
}

func (a *Application) Bus() events.Bus {
	return a.bus
}

func (a *Application) History() *history.Store {
	return a.history
}

func (a *Application) Products() *history.ProductCache {
	return a.products
}

func (a *Application) Scanner() *scan.Controller {
	return a.scanner
}

// StartBackgroundJobs schedules the periodic flush of unsaved state
func (a *Application) StartBackgroundJobs() error {
	a.sched = cron.New(cron.WithParser(cronParser))

	_, err := a.sched.AddFunc(a.cfg.FlushInterval, a.SchedFlushTask)
	if err != nil {
		return fmt.Errorf("init flush job: %w", err)
	}

	a.sched.Start()
	a.logger.Info("background jobs started", zap.String("flush", a.cfg.FlushInterval))
	return nil
}

// SchedFlushTask retries persists that failed since the last run
func (a *Application) SchedFlushTask() {
	defer func() {
		if err := recover(); err != nil {
			a.logger.Error("flush task panicked", zap.Any("panic", err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.Flush(ctx); err != nil {
		a.logger.Warn("flush failed, will retry", zap.Error(err))
	}
}

// Flush persists the history and product cache if either is behind
func (a *Application) Flush(ctx context.Context) error {
	return errors.Join(
		a.history.Flush(ctx),
		a.products.Flush(ctx),
	)
}

// Release stops the scanner and jobs, flushes state and closes storage
func (a *Application) Release(ctx context.Context) {
	if a.sched != nil {
		<-a.sched.Stop().Done()
	}
	if a.scanner != nil {
		a.scanner.Close()
	}

	if err := a.Flush(ctx); err != nil {
		a.logger.Error("final flush failed", zap.Error(err))
	}
	if err := a.kv.Close(); err != nil {
		a.logger.Error("failed to close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
