// Package app wires the listing client, reference table, analyzer, storage,
// collector and scheduler from a loaded configuration. The HTTP server and
// the CLI commands share it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/srrmlwn/dealflowanalyzer.ai/internal/analysis"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/analysis/rental"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/collector"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/config"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/datasource"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/reference"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/scheduler"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/storage"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
)

// Storage drivers.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// App holds the wired components.
type App struct {
	Logger    *slog.Logger
	Listing   *datasource.Zillow
	Matcher   *reference.Matcher
	Analyzer  *analysis.Analyzer
	Files     *storage.FileStore
	Results   storage.ResultStore
	Collector *collector.Collector
	Scheduler *scheduler.Scheduler
	Events    *Events

	mu  sync.RWMutex
	cfg *config.Config
	db  *sql.DB
}

// New builds the application from cfg. With the postgres driver the database
// is opened and migrated; listings and error records always live on disk.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Financial = cfg.Financial.ApplyDefaults()
	if err := cfg.Financial.Validate(); err != nil {
		return nil, err
	}

	a := &App{Logger: logger, cfg: cfg, Events: &Events{}}

	files, err := storage.NewFileStore(cfg.Storage.DataPath, logger)
	if err != nil {
		return nil, fmt.Errorf("file storage: %w", err)
	}
	a.Files = files
	a.Results = files

	switch cfg.Storage.Driver {
	case "", DriverFile:
	case DriverPostgres:
		db, err := storage.OpenPostgres(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := storage.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		a.db = db
		a.Results = storage.NewPGStore(db)
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", models.ErrConfiguration, cfg.Storage.Driver)
	}

	a.Listing = datasource.NewZillow(datasource.ZillowConfig{
		APIKey:            cfg.Listing.APIKey,
		Host:              cfg.Listing.Host,
		RateLimit:         cfg.Listing.RateLimit,
		RateWindow:        cfg.Listing.RateWindow(),
		RequestsPerSecond: cfg.Listing.RequestsPerSec,
		CacheTTL:          cfg.Listing.CacheTTL(),
	}, logger)

	a.Matcher = reference.NewMatcher(reference.NewFileSource(cfg.Financial.Rental.HUDDataPath, logger), logger)
	a.Analyzer = analysis.New(rental.NewEstimator(a.Matcher, logger),
		analysis.WithLogger(logger),
		analysis.WithConcurrency(cfg.Analysis.Concurrency))

	a.Collector = collector.New(a.Listing, files,
		collector.WithLogger(logger),
		collector.WithNotifier(a.Events.Publish),
		collector.WithAnalysis(a.Analyzer, a.Results, cfg.Financial))

	a.Scheduler, err = scheduler.New(scheduler.Config{
		Enabled:       cfg.Scheduler.Enabled,
		CronSchedule:  cfg.Scheduler.Cron,
		Timezone:      cfg.Scheduler.Timezone,
		RetentionDays: cfg.Storage.RetentionDays,
	}, cfg.Buybox, a.Collector, files, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Config returns the running configuration.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Financial returns the current financial assumptions.
func (a *App) Financial() models.FinancialConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg.Financial
}

// Buybox returns the configured buybox.
func (a *App) Buybox() models.Buybox {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg.Buybox
}

// SetFinancial validates f and makes it the default for new analyses and
// scheduled collections.
func (a *App) SetFinancial(f models.FinancialConfig) (models.FinancialConfig, error) {
	f, err := analysis.PrepareConfig(f)
	if err != nil {
		return f, err
	}
	a.mu.Lock()
	a.cfg.Financial = f
	a.mu.Unlock()
	a.Collector.SetFinancialConfig(f)
	return f, nil
}

// SetBuybox validates b and makes it the buybox for scheduled collections.
func (a *App) SetBuybox(b models.Buybox) error {
	if err := b.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	a.cfg.Buybox = b
	a.mu.Unlock()
	a.Scheduler.SetBuybox(b)
	return nil
}

// DB returns the Postgres handle, or nil with the file driver.
func (a *App) DB() *sql.DB { return a.db }

// Close stops the scheduler and closes the database.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Close()
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Events fans collector events out to subscribers.
type Events struct {
	mu   sync.RWMutex
	subs []func(collector.Event)
}

// Subscribe registers fn for every later event.
func (e *Events) Subscribe(fn func(collector.Event)) {
	e.mu.Lock()
	e.subs = append(e.subs, fn)
	e.mu.Unlock()
}

// Publish delivers ev to all subscribers in registration order.
func (e *Events) Publish(ev collector.Event) {
	e.mu.RLock()
	subs := e.subs
	e.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}
