// Package scheduler runs the buybox collection on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/srrmlwn/dealflowanalyzer.ai/internal/collector"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/datasource"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/infra"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/storage"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/utils"
)

// Defaults.
const (
	DefaultCronSchedule  = "0 2 * * *"
	DefaultTimezone      = "America/Chicago"
	DefaultRetentionDays = 30
)

var (
	// ErrDisabled is returned by Start when the schedule is disabled.
	ErrDisabled = errors.New("scheduler is disabled")

	// ErrRunInProgress is returned when a collection run is already active.
	ErrRunInProgress = errors.New("collection run already in progress")
)

// Config is the schedule definition.
type Config struct {
	Enabled       bool   `json:"enabled"`
	CronSchedule  string `json:"cronSchedule"`
	Timezone      string `json:"timezone"`
	RetentionDays int    `json:"retentionDays"`
}

// withDefaults fills empty fields.
func (c Config) withDefaults() Config {
	if c.CronSchedule == "" {
		c.CronSchedule = DefaultCronSchedule
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = DefaultRetentionDays
	}
	return c
}

// parse validates the cron expression and timezone.
func (c Config) parse() (cron.Schedule, *time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unknown timezone %q", models.ErrValidation, c.Timezone)
	}
	sched, err := cron.ParseStandard(c.CronSchedule)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid cron schedule %q: %v", models.ErrValidation, c.CronSchedule, err)
	}
	return sched, loc, nil
}

// ConfigUpdate changes selected fields. Nil fields are left as they are.
type ConfigUpdate struct {
	Enabled       *bool   `json:"enabled,omitempty"`
	CronSchedule  *string `json:"cronSchedule,omitempty"`
	Timezone      *string `json:"timezone,omitempty"`
	RetentionDays *int    `json:"retentionDays,omitempty"`
}

// Collector is the work a run performs. *collector.Collector implements it.
type Collector interface {
	Collect(ctx context.Context, b models.Buybox) (collector.Result, error)
	APIStats() datasource.APIStats
}

// Cleaner applies retention. *storage.FileStore implements it.
type Cleaner interface {
	Cleanup(ctx context.Context, daysToKeep int) (storage.CleanupResult, error)
}

// RunSummary describes a finished run.
type RunSummary struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Duration   string    `json:"duration"`
	Success    bool      `json:"success"`
	Skipped    bool      `json:"skipped,omitempty"`
	Message    string    `json:"message"`
	Properties int       `json:"properties"`
	ZipCodes   int       `json:"zipCodes"`
	Errors     int       `json:"errors"`
	Removed    int       `json:"removed"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running      bool        `json:"running"`
	InProgress   bool        `json:"inProgress"`
	Enabled      bool        `json:"enabled"`
	CronSchedule string      `json:"cronSchedule"`
	Timezone     string      `json:"timezone"`
	NextRun      *time.Time  `json:"nextRun"`
	LastRun      *RunSummary `json:"lastRun,omitempty"`
}

// Scheduler triggers collection runs.
type Scheduler struct {
	collector Collector
	cleaner   Cleaner
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	cfg     Config
	buybox  models.Buybox
	cron    *cron.Cron
	sched   cron.Schedule
	loc     *time.Location
	lastRun *RunSummary

	busy   atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a stopped scheduler. cleaner may be nil.
func New(cfg Config, buybox models.Buybox, c Collector, cleaner Cleaner, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	sched, loc, err := cfg.parse()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		collector: c,
		cleaner:   cleaner,
		logger:    logger,
		now:       time.Now,
		cfg:       cfg,
		buybox:    buybox,
		sched:     sched,
		loc:       loc,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// SetBuybox replaces the buybox used by subsequent runs.
func (s *Scheduler) SetBuybox(b models.Buybox) {
	s.mu.Lock()
	s.buybox = b
	s.mu.Unlock()
}

// Config returns the current configuration.
func (s *Scheduler) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Start begins scheduled runs. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Scheduler) startLocked() error {
	if !s.cfg.Enabled {
		s.logger.Info("data collection scheduler is disabled")
		return ErrDisabled
	}
	if s.cron != nil {
		s.logger.Info("scheduler is already running")
		return nil
	}

	c := cron.New(cron.WithLocation(s.loc))
	c.Schedule(s.sched, cron.FuncJob(func() {
		if _, err := s.RunOnce(s.ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
			s.logger.Error("scheduled collection failed", "error", err)
		}
	}))
	c.Start()
	s.cron = c
	s.logger.Info("data collection scheduler started", "cron", s.cfg.CronSchedule, "timezone", s.cfg.Timezone)
	return nil
}

// Stop halts scheduled runs. A run already in progress finishes on its own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.cron == nil {
		return
	}
	s.cron.Stop()
	s.cron = nil
	s.logger.Info("data collection scheduler stopped")
}

// Close stops the schedule, cancels any active run and waits for
// background runs started by RunNow.
func (s *Scheduler) Close() {
	s.Stop()
	s.cancel()
	s.wg.Wait()
}

// UpdateConfig applies u and restarts the schedule if it was running.
// An invalid update leaves the configuration unchanged.
func (s *Scheduler) UpdateConfig(u ConfigUpdate) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	if u.Enabled != nil {
		next.Enabled = *u.Enabled
	}
	if u.CronSchedule != nil {
		next.CronSchedule = *u.CronSchedule
	}
	if u.Timezone != nil {
		next.Timezone = *u.Timezone
	}
	if u.RetentionDays != nil {
		next.RetentionDays = *u.RetentionDays
	}
	next = next.withDefaults()
	sched, loc, err := next.parse()
	if err != nil {
		return s.cfg, err
	}

	wasRunning := s.cron != nil
	s.cfg, s.sched, s.loc = next, sched, loc
	if wasRunning {
		s.stopLocked()
		if err := s.startLocked(); err != nil && !errors.Is(err, ErrDisabled) {
			return s.cfg, err
		}
	}
	s.logger.Info("scheduler configuration updated", "cron", next.CronSchedule, "timezone", next.Timezone, "enabled", next.Enabled)
	return s.cfg, nil
}

// Status reports whether the schedule is active and when it fires next.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running:      s.cron != nil,
		InProgress:   s.busy.Load(),
		Enabled:      s.cfg.Enabled,
		CronSchedule: s.cfg.CronSchedule,
		Timezone:     s.cfg.Timezone,
	}
	if s.cron != nil {
		next := s.sched.Next(s.now().In(s.loc))
		st.NextRun = &next
	}
	if s.lastRun != nil {
		last := *s.lastRun
		st.LastRun = &last
	}
	return st
}

// RunNow starts a run in the background and returns immediately.
func (s *Scheduler) RunNow() error {
	if s.busy.Load() {
		return ErrRunInProgress
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.RunOnce(s.ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
			s.logger.Error("manual collection failed", "error", err)
		}
	}()
	return nil
}

// RunOnce performs one collection run synchronously: it checks the API key
// and remaining quota, collects the buybox, then applies retention.
func (s *Scheduler) RunOnce(ctx context.Context) (RunSummary, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return RunSummary{}, ErrRunInProgress
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	buybox, retention := s.buybox, s.cfg.RetentionDays
	s.mu.Unlock()

	sum := RunSummary{StartedAt: s.now().UTC()}
	s.logger.Info("starting data collection", "buybox", buybox.Name)

	err := s.run(ctx, buybox, retention, &sum)

	sum.FinishedAt = s.now().UTC()
	sum.Duration = utils.FormatDuration(sum.FinishedAt.Sub(sum.StartedAt))
	if err != nil && sum.Message == "" {
		sum.Message = err.Error()
	}
	s.mu.Lock()
	s.lastRun = &sum
	s.mu.Unlock()
	return sum, err
}

func (s *Scheduler) run(ctx context.Context, buybox models.Buybox, retention int, sum *RunSummary) error {
	api := s.collector.APIStats()
	if !api.Configured {
		sum.Skipped = true
		sum.Message = "listing API key not configured, skipping data collection"
		s.logger.Error(sum.Message)
		return datasource.ErrNotConfigured
	}
	if api.RemainingRequests == 0 {
		retry := time.Duration(api.TimeUntilResetMs) * time.Millisecond
		sum.Skipped = true
		sum.Message = fmt.Sprintf("no API requests remaining, next reset in %s", utils.FormatDuration(retry))
		s.logger.Warn(sum.Message)
		return &infra.QuotaError{Limit: api.RateLimit, RetryAfter: retry}
	}
	s.logger.Info("API requests remaining", "remaining", api.RemainingRequests)

	res, collectErr := s.collector.Collect(ctx, buybox)
	sum.Success = collectErr == nil && res.Success
	sum.Properties = res.Stats.TotalProperties
	sum.ZipCodes = res.Stats.ZipCodesProcessed
	sum.Errors = len(res.Errors)
	if sum.Success {
		sum.Message = fmt.Sprintf("fetched %d properties across %d zip codes", sum.Properties, sum.ZipCodes)
		s.logger.Info("data collection completed",
			"properties", sum.Properties, "zip_codes", sum.ZipCodes,
			"api_requests", res.Stats.APIRequestsUsed, "remaining", res.Stats.RemainingRequests)
	} else {
		for _, e := range res.Errors {
			s.logger.Error("collection error", "type", e.ErrorType, "message", e.ErrorMessage)
		}
	}

	if s.cleaner != nil && ctx.Err() == nil {
		cleaned, err := s.cleaner.Cleanup(ctx, retention)
		if err != nil {
			s.logger.Warn("retention cleanup failed", "error", err)
		} else {
			sum.Removed = len(cleaned.Removed)
		}
	}
	return collectErr
}
