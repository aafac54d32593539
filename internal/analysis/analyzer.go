// Package analysis orchestrates rent estimation and the financial
// calculators into per-property results and batch summaries.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/srrmlwn/dealflowanalyzer.ai/internal/analysis/finance"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/analysis/rental"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/utils"
)

// ErrNonFinite is wrapped when a calculator produces NaN or Inf.
var ErrNonFinite = errors.New("non-finite metric")

// AnalysisError is a failure to analyze one property.
type AnalysisError struct {
	PropertyID string
	Err        error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed for property %s: %v", e.PropertyID, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Analyzer runs the full per-property pipeline.
type Analyzer struct {
	estimator   *rental.Estimator
	logger      *slog.Logger
	now         func() time.Time
	concurrency int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithClock overrides the clock used for analysis dates.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithConcurrency sets how many properties a batch analyzes at once.
// Values below 2 keep batches sequential.
func WithConcurrency(n int) Option {
	return func(a *Analyzer) { a.concurrency = n }
}

// New creates an analyzer around a rent estimator.
func New(estimator *rental.Estimator, opts ...Option) *Analyzer {
	a := &Analyzer{
		estimator:   estimator,
		logger:      slog.Default(),
		now:         time.Now,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.estimator == nil {
		a.estimator = rental.NewEstimator(nil, a.logger)
	}
	return a
}

// Estimator returns the rent estimator used by the analyzer.
func (a *Analyzer) Estimator() *rental.Estimator { return a.estimator }

// PrepareConfig applies defaults and validates cfg. The error wraps
// models.ErrConfiguration.
func PrepareConfig(cfg models.FinancialConfig) (models.FinancialConfig, error) {
	cfg = cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Analyze produces the detailed analysis of one property. A configuration
// problem returns an error wrapping models.ErrConfiguration; any failure
// specific to the property returns an *AnalysisError.
func (a *Analyzer) Analyze(ctx context.Context, p models.Property, cfg models.FinancialConfig) (models.DetailedAnalysisResult, error) {
	cfg, err := PrepareConfig(cfg)
	if err != nil {
		return models.DetailedAnalysisResult{}, err
	}
	return a.analyze(ctx, p, cfg)
}

// analyze assumes cfg is already prepared.
func (a *Analyzer) analyze(ctx context.Context, p models.Property, cfg models.FinancialConfig) (res models.DetailedAnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = models.DetailedAnalysisResult{}
			err = &AnalysisError{PropertyID: p.ZPID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) || p.Price <= 0 {
		return res, &AnalysisError{PropertyID: p.ZPID, Err: fmt.Errorf("%w: price must be a positive number", models.ErrValidation)}
	}

	estimate := a.estimator.Estimate(ctx, p, cfg)
	mortgage := finance.CalculateMortgage(p.Price, cfg.Mortgage)
	expenses := finance.CalculateOperatingExpenses(estimate.MonthlyRent, p.Price, cfg.OperatingExpenses)
	cashFlow := finance.CalculateCashFlow(estimate.MonthlyRent, mortgage, expenses)
	roi := finance.CalculateROI(cashFlow, mortgage, p.Price)
	appreciation := finance.ProjectAppreciation(p.Price, cfg.Appreciation, cashFlow.AnnualCashFlow)

	metrics := models.FinancialMetrics{
		MonthlyRent:              estimate.MonthlyRent,
		MonthlyMortgagePayment:   mortgage.MonthlyPayment,
		MonthlyOperatingExpenses: expenses.Total,
		MonthlyCashFlow:          cashFlow.MonthlyCashFlow,
		AnnualCashFlow:           cashFlow.AnnualCashFlow,

		OperatingExpensesBreakdown: expenses,
		MortgageDetails:            mortgage,

		CashOnCashReturn:         roi.CashOnCashReturn,
		CapRate:                  roi.CapRate,
		TotalReturn:              appreciation.TotalReturn,
		AppreciationValue:        appreciation.AppreciationValue,
		TotalCashInvested:        roi.TotalCashInvested,
		GrossRentMultiplier:      roi.GrossRentMultiplier,
		DebtServiceCoverageRatio: roi.DebtServiceCoverageRatio,

		NetOperatingIncome:      cashFlow.AnnualNetOperatingIncome,
		MonthlyPrincipalPayment: mortgage.MonthlyPrincipal,
		MonthlyInterestPayment:  mortgage.MonthlyInterest,

		ProjectedValue:         appreciation.ProjectedValue,
		TotalCashFlowProjected: cashFlow.AnnualCashFlow * cfg.Appreciation.HoldingPeriodYears,
		TotalReturnProjected:   appreciation.TotalReturn,
		AnnualizedReturn:       appreciation.AnnualizedReturn,
	}
	if name, ok := firstNonFinite(metrics); !ok {
		return res, &AnalysisError{PropertyID: p.ZPID, Err: fmt.Errorf("%w: %s", ErrNonFinite, name)}
	}

	missing := p.MissingOptionalFields()
	return models.DetailedAnalysisResult{
		PropertyID:       p.ZPID,
		Address:          p.Address,
		ZipCode:          utils.ExtractZipCode(p.Address),
		PurchasePrice:    p.Price,
		AnalysisDate:     a.now().UTC(),
		FinancialMetrics: metrics,
		RentalEstimate:   estimate,
		Assumptions:      assumptionsFrom(cfg),
		DataQuality: models.DataQuality{
			HasRentalData:     estimate.Source != models.RentSourceFallback,
			HasZestimate:      p.HasZestimate(),
			HasPriceHistory:   p.HasPriceChange(),
			MissingDataFields: missing,
		},
	}, nil
}

func assumptionsFrom(cfg models.FinancialConfig) models.Assumptions {
	return models.Assumptions{
		MortgageRate:              cfg.Mortgage.InterestRate,
		DownPaymentPercent:        cfg.Mortgage.DownPaymentPercent,
		LoanTermYears:             cfg.Mortgage.LoanTermYears,
		PropertyManagementPercent: cfg.OperatingExpenses.PropertyManagementPercent,
		MaintenancePercent:        cfg.OperatingExpenses.MaintenancePercent,
		VacancyRate:               cfg.OperatingExpenses.VacancyRate,
		InsurancePercent:          cfg.OperatingExpenses.InsurancePercent,
		PropertyTaxPercent:        cfg.OperatingExpenses.PropertyTaxPercent,
		AnnualAppreciationPercent: cfg.Appreciation.AnnualAppreciationPercent,
		HoldingPeriodYears:        cfg.Appreciation.HoldingPeriodYears,
	}
}

// firstNonFinite returns the name of the first NaN/Inf headline metric.
func firstNonFinite(m models.FinancialMetrics) (string, bool) {
	fields := []struct {
		name string
		v    float64
	}{
		{"monthlyRent", m.MonthlyRent},
		{"monthlyMortgagePayment", m.MonthlyMortgagePayment},
		{"monthlyOperatingExpenses", m.MonthlyOperatingExpenses},
		{"monthlyCashFlow", m.MonthlyCashFlow},
		{"annualCashFlow", m.AnnualCashFlow},
		{"cashOnCashReturn", m.CashOnCashReturn},
		{"capRate", m.CapRate},
		{"grossRentMultiplier", m.GrossRentMultiplier},
		{"debtServiceCoverageRatio", m.DebtServiceCoverageRatio},
		{"netOperatingIncome", m.NetOperatingIncome},
		{"projectedValue", m.ProjectedValue},
		{"totalReturn", m.TotalReturn},
		{"annualizedReturn", m.AnnualizedReturn},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return f.name, false
		}
	}
	return "", true
}
