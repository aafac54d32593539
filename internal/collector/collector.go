// Package collector fetches listings for a buybox, files them by zip code and
// optionally analyzes the fresh listings in the same pass.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/srrmlwn/dealflowanalyzer.ai/internal/analysis"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/datasource"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/infra"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/storage"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/utils"
)

// AdhocBuyboxName names buyboxes built by Adhoc.
const AdhocBuyboxName = "adhoc-request"

// Default ad-hoc price bounds.
const (
	DefaultAdhocMinPrice = 0
	DefaultAdhocMaxPrice = 1_000_000
)

// maxSaveWorkers bounds concurrent per-zip writes.
const maxSaveWorkers = 4

// Source is the listing API as seen by the collector. *datasource.Zillow
// implements it.
type Source interface {
	SearchBuybox(ctx context.Context, b models.Buybox) ([]models.Property, error)
	Stats() datasource.APIStats
}

// PropertyStore persists listing snapshots and error records.
// *storage.FileStore implements it.
type PropertyStore interface {
	SaveProperties(ctx context.Context, zip string, props []models.Property, buybox string) (string, error)
	SaveError(ctx context.Context, rec models.ErrorRecord) error
}

// Stats summarizes one collection run.
type Stats struct {
	TotalProperties   int   `json:"totalProperties"`
	ZipCodesProcessed int   `json:"zipCodesProcessed"`
	APIRequestsUsed   int64 `json:"apiRequestsUsed"`
	RemainingRequests int   `json:"remainingRequests"`
}

// Result is the outcome of a collection run. Properties and Errors are
// never nil.
type Result struct {
	Success    bool                        `json:"success"`
	BuyboxName string                      `json:"buyboxName"`
	Properties []models.Property           `json:"properties"`
	Errors     []models.ErrorRecord        `json:"errors"`
	Stats      Stats                       `json:"stats"`
	Duration   time.Duration               `json:"-"`
	Analysis   *models.BatchAnalysisResult `json:"analysis,omitempty"`
}

// Event is published while a run progresses.
type Event struct {
	Type       string `json:"type"` // collection_started, collection_completed, collection_failed
	BuyboxName string `json:"buyboxName"`
	Message    string `json:"message,omitempty"`
	Stats      *Stats `json:"stats,omitempty"`
}

// Collector ties a listing source to storage.
type Collector struct {
	source Source
	store  PropertyStore
	logger *slog.Logger
	now    func() time.Time
	notify func(Event)

	analyzer  *analysis.Analyzer
	results   storage.ResultStore
	mu        sync.RWMutex
	financial models.FinancialConfig
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) { c.logger = l }
}

// WithClock overrides the time source for error records.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// WithNotifier registers a callback for run events.
func WithNotifier(fn func(Event)) Option {
	return func(c *Collector) { c.notify = fn }
}

// WithAnalysis analyzes valid listings after each run and stores the batch.
func WithAnalysis(a *analysis.Analyzer, results storage.ResultStore, cfg models.FinancialConfig) Option {
	return func(c *Collector) {
		c.analyzer = a
		c.results = results
		c.financial = cfg
	}
}

// New creates a collector.
func New(source Source, store PropertyStore, opts ...Option) *Collector {
	c := &Collector{
		source: source,
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetFinancialConfig replaces the assumptions used for post-collection analysis.
func (c *Collector) SetFinancialConfig(cfg models.FinancialConfig) {
	c.mu.Lock()
	c.financial = cfg
	c.mu.Unlock()
}

func (c *Collector) financialConfig() models.FinancialConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.financial
}

// APIStats returns the source's request counters.
func (c *Collector) APIStats() datasource.APIStats { return c.source.Stats() }

// Collect fetches listings for b and saves them grouped by zip code. A fetch
// failure is recorded as an API_ERROR and returned alongside a Result with
// Success false. Per-zip save failures become STORAGE_ERROR records and do
// not fail the run.
func (c *Collector) Collect(ctx context.Context, b models.Buybox) (Result, error) {
	started := c.now()
	res := Result{
		BuyboxName: b.Name,
		Properties: []models.Property{},
		Errors:     []models.ErrorRecord{},
	}
	if err := b.Validate(); err != nil {
		return res, err
	}

	c.logger.Info("fetching properties for buybox", "buybox", b.Name, "zip_codes", len(b.ZipCodes))
	c.publish(Event{Type: "collection_started", BuyboxName: b.Name})

	props, err := c.source.SearchBuybox(ctx, b)
	if err != nil {
		rec := c.errorRecord(models.ErrorTypeAPI,
			"Failed to fetch properties for buybox "+b.Name, err,
			&models.ErrorContext{BuyboxName: b.Name, Operation: "fetch_properties"})
		c.saveError(ctx, rec)
		res.Errors = append(res.Errors, rec)
		res.Stats = c.stats(0, 0)
		res.Duration = c.now().Sub(started)

		c.logger.Error("property fetch failed", "buybox", b.Name, "error", err)
		c.publish(Event{Type: "collection_failed", BuyboxName: b.Name, Message: err.Error(), Stats: &res.Stats})
		return res, fmt.Errorf("collect %s: %w", b.Name, err)
	}
	res.Properties = props

	zips, groups := storage.GroupPropertiesByZip(props)
	res.Errors = append(res.Errors, c.saveGroups(ctx, b.Name, zips, groups)...)
	if err := ctx.Err(); err != nil {
		return res, err
	}

	if c.analyzer != nil && len(props) > 0 {
		batch, errs := c.analyze(ctx, b.Name, props)
		res.Analysis = batch
		res.Errors = append(res.Errors, errs...)
	}

	res.Success = true
	res.Stats = c.stats(len(props), len(zips))
	res.Duration = c.now().Sub(started)

	c.logger.Info("property fetch completed",
		"buybox", b.Name,
		"properties", res.Stats.TotalProperties,
		"zip_codes", res.Stats.ZipCodesProcessed,
		"api_requests", res.Stats.APIRequestsUsed,
		"remaining", res.Stats.RemainingRequests,
		"errors", len(res.Errors),
		"duration", utils.FormatDuration(res.Duration))
	c.publish(Event{Type: "collection_completed", BuyboxName: b.Name, Stats: &res.Stats})
	return res, nil
}

// saveGroups writes each zip code's listings with bounded concurrency and
// returns STORAGE_ERROR records in zip order.
func (c *Collector) saveGroups(ctx context.Context, buybox string, zips []string, groups map[string][]models.Property) []models.ErrorRecord {
	failures := make([]*models.ErrorRecord, len(zips))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxSaveWorkers)
	for i, zip := range zips {
		g.Go(func() error {
			if _, err := c.store.SaveProperties(gctx, zip, groups[zip], buybox); err != nil {
				rec := c.errorRecord(models.ErrorTypeStorage,
					"Failed to save properties for zip code "+zip, err,
					&models.ErrorContext{ZipCode: zip, BuyboxName: buybox, Operation: "save_properties"})
				c.saveError(ctx, rec)
				failures[i] = &rec
			}
			return nil
		})
	}
	_ = g.Wait()

	out := []models.ErrorRecord{}
	for _, f := range failures {
		if f != nil {
			out = append(out, *f)
		}
	}
	return out
}

// analyze runs the analyzer over the valid listings and stores the batch.
func (c *Collector) analyze(ctx context.Context, buybox string, props []models.Property) (*models.BatchAnalysisResult, []models.ErrorRecord) {
	valid, invalid, _ := models.ValidateProperties(props)
	if len(invalid) > 0 {
		c.logger.Warn("skipping invalid listings", "buybox", buybox, "count", len(invalid))
	}

	batch, err := c.analyzer.AnalyzeBatch(ctx, valid, c.financialConfig(), analysis.WithBuyboxName(buybox))
	if err != nil {
		rec := c.errorRecord(models.ErrorTypeAnalysis, "Failed to analyze properties for buybox "+buybox, err,
			&models.ErrorContext{BuyboxName: buybox, Operation: "batch_analysis"})
		c.saveError(ctx, rec)
		return nil, []models.ErrorRecord{rec}
	}
	if c.results != nil {
		if err := c.results.SaveBatch(ctx, batch); err != nil {
			rec := c.errorRecord(models.ErrorTypeStorage, "Failed to save analysis results for buybox "+buybox, err,
				&models.ErrorContext{BuyboxName: buybox, Operation: "save_analysis"})
			c.saveError(ctx, rec)
			return &batch, []models.ErrorRecord{rec}
		}
	}
	return &batch, nil
}

// AdhocRequest is a one-off search outside the configured buybox.
type AdhocRequest struct {
	ZipCodes   []string `json:"zipCodes"`
	MinPrice   *float64 `json:"minPrice,omitempty"`
	MaxPrice   *float64 `json:"maxPrice,omitempty"`
	StatusType string   `json:"statusType,omitempty"`
}

// Buybox converts the request into a buybox with the ad-hoc defaults.
func (r AdhocRequest) Buybox() (models.Buybox, error) {
	zips := utils.NormalizeZipCodes(r.ZipCodes)
	if len(zips) == 0 {
		return models.Buybox{}, fmt.Errorf("%w: zipCodes array is required", models.ErrValidation)
	}
	minPrice, maxPrice := float64(DefaultAdhocMinPrice), float64(DefaultAdhocMaxPrice)
	if r.MinPrice != nil {
		minPrice = *r.MinPrice
	}
	if r.MaxPrice != nil {
		maxPrice = *r.MaxPrice
	}
	if minPrice > maxPrice {
		return models.Buybox{}, fmt.Errorf("%w: minPrice exceeds maxPrice", models.ErrValidation)
	}
	status := r.StatusType
	if status == "" {
		status = "ForSale"
	}
	return models.Buybox{
		Name:       AdhocBuyboxName,
		ZipCodes:   zips,
		PriceRange: models.Range{Min: &minPrice, Max: &maxPrice},
		StatusType: status,
	}, nil
}

// Adhoc collects listings for an ad-hoc request.
func (c *Collector) Adhoc(ctx context.Context, req AdhocRequest) (Result, error) {
	b, err := req.Buybox()
	if err != nil {
		return Result{Properties: []models.Property{}, Errors: []models.ErrorRecord{}}, err
	}
	return c.Collect(ctx, b)
}

func (c *Collector) stats(total, zips int) Stats {
	api := c.source.Stats()
	return Stats{
		TotalProperties:   total,
		ZipCodesProcessed: zips,
		APIRequestsUsed:   api.RequestCount,
		RemainingRequests: api.RemainingRequests,
	}
}

func (c *Collector) errorRecord(kind models.ErrorType, msg string, err error, ectx *models.ErrorContext) models.ErrorRecord {
	return models.ErrorRecord{
		ID:           uuid.NewString(),
		Timestamp:    c.now().UTC(),
		ErrorType:    kind,
		ErrorMessage: msg,
		ErrorDetails: err.Error(),
		Context:      ectx,
	}
}

func (c *Collector) saveError(ctx context.Context, rec models.ErrorRecord) {
	if c.store == nil {
		return
	}
	// the run's own context may already be cancelled
	if err := c.store.SaveError(context.WithoutCancel(ctx), rec); err != nil {
		c.logger.Warn("failed to save error record", "type", rec.ErrorType, "error", err)
	}
}

func (c *Collector) publish(e Event) {
	if c.notify != nil {
		c.notify(e)
	}
}

// IsQuotaError reports whether err came from an exhausted request quota or a
// 429 from the listing API.
func IsQuotaError(err error) bool {
	return errors.Is(err, datasource.ErrRateLimited) || errors.Is(err, infra.ErrQuotaExceeded)
}
