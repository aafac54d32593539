package analysis

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/utils"
)

// maxTopPerformers bounds BatchSummary.TopPerformers.
const maxTopPerformers = 5

// ProgressFunc is called after each property finishes.
type ProgressFunc func(done, total int, propertyID string)

type batchOptions struct {
	buyboxName string
	progress   ProgressFunc
}

// BatchOption configures a single AnalyzeBatch call.
type BatchOption func(*batchOptions)

// WithBuyboxName tags the result and its error records with a buybox name.
func WithBuyboxName(name string) BatchOption {
	return func(o *batchOptions) { o.buyboxName = name }
}

// WithProgress registers a progress callback. It is never called concurrently.
func WithProgress(fn ProgressFunc) BatchOption {
	return func(o *batchOptions) { o.progress = fn }
}

// outcome is the per-property result slot: exactly one field is set.
type outcome struct {
	result *models.DetailedAnalysisResult
	err    *models.ErrorRecord
}

// AnalyzeBatch analyzes every property. Property failures become error
// records and never abort the batch; results keep input order. The only
// errors returned are configuration errors and context cancellation.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, props []models.Property, cfg models.FinancialConfig, opts ...BatchOption) (models.BatchAnalysisResult, error) {
	var o batchOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := PrepareConfig(cfg)
	if err != nil {
		return models.BatchAnalysisResult{}, err
	}

	started := a.now()
	a.logger.Info("batch analysis started", "properties", len(props), "buybox", o.buyboxName)

	slots := make([]outcome, len(props))
	var (
		mu   sync.Mutex
		done int
	)
	report := func(i int) {
		if o.progress == nil {
			return
		}
		mu.Lock()
		done++
		o.progress(done, len(props), props[i].ZPID)
		mu.Unlock()
	}
	run := func(i int) {
		slots[i] = a.analyzeOne(ctx, props[i], cfg, o.buyboxName)
		report(i)
	}

	if a.concurrency > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.concurrency)
		for i := range props {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				run(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range props {
			if ctx.Err() != nil {
				break
			}
			run(i)
		}
	}
	if err := ctx.Err(); err != nil {
		return models.BatchAnalysisResult{}, err
	}

	batch := models.BatchAnalysisResult{
		ID:              uuid.NewString(),
		BuyboxName:      o.buyboxName,
		Timestamp:       started.UTC(),
		ZipCodes:        zipCodesOf(props),
		TotalProperties: len(props),
		Results:         []models.DetailedAnalysisResult{},
		Errors:          []models.ErrorRecord{},
	}
	for _, s := range slots {
		if s.result != nil {
			batch.Results = append(batch.Results, *s.result)
		} else {
			batch.Errors = append(batch.Errors, *s.err)
		}
	}
	batch.SuccessfulAnalyses = len(batch.Results)
	batch.FailedAnalyses = len(batch.Errors)
	batch.Summary = Summarize(batch.Results)

	a.logger.Info("batch analysis completed",
		"successful", batch.SuccessfulAnalyses,
		"failed", batch.FailedAnalyses,
		"duration", a.now().Sub(started))
	return batch, nil
}

func (a *Analyzer) analyzeOne(ctx context.Context, p models.Property, cfg models.FinancialConfig, buybox string) outcome {
	res, err := a.analyze(ctx, p, cfg)
	if err == nil {
		return outcome{result: &res}
	}
	a.logger.Warn("property analysis failed", "zpid", p.ZPID, "error", err)
	return outcome{err: &models.ErrorRecord{
		ID:           uuid.NewString(),
		Timestamp:    a.now().UTC(),
		PropertyID:   p.ZPID,
		ErrorType:    models.ErrorTypeAnalysis,
		ErrorMessage: "Failed to analyze property: " + err.Error(),
		Context: &models.ErrorContext{
			ZipCode:    utils.ExtractZipCode(p.Address),
			BuyboxName: buybox,
			Operation:  "batch_analysis",
		},
	}}
}

// zipCodesOf returns the distinct parseable zips in input order.
func zipCodesOf(props []models.Property) []string {
	seen := make(map[string]bool)
	zips := []string{}
	for _, p := range props {
		zip := utils.ExtractZipCode(p.Address)
		if zip == "" || seen[zip] {
			continue
		}
		seen[zip] = true
		zips = append(zips, zip)
	}
	return zips
}

// Summarize computes batch statistics. All fields are zero for no results.
func Summarize(results []models.DetailedAnalysisResult) models.BatchSummary {
	summary := models.BatchSummary{TopPerformers: []string{}}
	if len(results) == 0 {
		return summary
	}

	var cashFlow, roi, capRate float64
	var quality int
	for _, r := range results {
		cashFlow += r.FinancialMetrics.AnnualCashFlow
		roi += r.FinancialMetrics.CashOnCashReturn
		capRate += r.FinancialMetrics.CapRate
		dq := r.DataQuality
		if dq.HasRentalData && dq.HasZestimate && len(dq.MissingDataFields) <= 2 {
			quality++
		}
	}
	n := float64(len(results))
	summary.AverageCashFlow = utils.Round2(cashFlow / n)
	summary.AverageROI = utils.Round2(roi / n)
	summary.AverageCapRate = utils.Round2(capRate / n)
	summary.DataQualityScore = utils.Round2(float64(quality) / n * 100)

	ranked := make([]models.DetailedAnalysisResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinancialMetrics.CashOnCashReturn > ranked[j].FinancialMetrics.CashOnCashReturn
	})
	for i := 0; i < len(ranked) && i < maxTopPerformers; i++ {
		summary.TopPerformers = append(summary.TopPerformers, ranked[i].PropertyID)
	}
	return summary
}
