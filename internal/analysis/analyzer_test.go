package analysis

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/srrmlwn/dealflowanalyzer.ai/internal/analysis/rental"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/reference"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
)

func ptr[T any](v T) *T { return &v }

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func scenarioConfig() models.FinancialConfig {
	return models.FinancialConfig{
		Mortgage: models.MortgageConfig{InterestRate: 7.5, DownPaymentPercent: 20, LoanTermYears: 30},
		OperatingExpenses: models.OperatingExpenseConfig{
			PropertyManagementPercent: 10,
			MaintenancePercent:        8,
			VacancyRate:               5,
			InsurancePercent:          0.5,
			PropertyTaxPercent:        1.2,
		},
		Appreciation: models.AppreciationConfig{AnnualAppreciationPercent: 3, HoldingPeriodYears: 10},
		Rental:       models.RentalConfig{UseHUDData: false},
	}
}

func scenarioProperty(id string) models.Property {
	return models.Property{
		ZPID:          id,
		Address:       "123 Oak St, Austin, TX 78701",
		Price:         150000,
		Bedrooms:      3,
		LivingArea:    1200,
		RentZestimate: ptr(1200.0),
	}
}

func newTestAnalyzer(opts ...Option) *Analyzer {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(nil, opts...)
}

func TestAnalyzeEndToEnd(t *testing.T) {
	res, err := newTestAnalyzer().Analyze(context.Background(), scenarioProperty("z1"), scenarioConfig())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if res.RentalEstimate.Source != models.RentSourceListingAPI {
		t.Errorf("Source = %v, want ZILLOW", res.RentalEstimate.Source)
	}
	if res.RentalEstimate.MonthlyRent != 1200 {
		t.Errorf("MonthlyRent = %v, want 1200", res.RentalEstimate.MonthlyRent)
	}

	m := res.FinancialMetrics
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"MonthlyMortgagePayment", m.MonthlyMortgagePayment, 839.06},
		{"MonthlyOperatingExpenses", m.MonthlyOperatingExpenses, 488.5},
		{"MonthlyCashFlow", m.MonthlyCashFlow, -127.56},
		{"AnnualCashFlow", m.AnnualCashFlow, -1530.72},
		{"NetOperatingIncome", m.NetOperatingIncome, 8538},
		{"CashOnCashReturn", m.CashOnCashReturn, -5.1},
		{"CapRate", m.CapRate, 5.69},
		{"GrossRentMultiplier", m.GrossRentMultiplier, 10.42},
		{"DebtServiceCoverageRatio", m.DebtServiceCoverageRatio, 0.85},
		{"TotalCashInvested", m.TotalCashInvested, 30000},
		{"ProjectedValue", m.ProjectedValue, 201587.46},
		{"AppreciationValue", m.AppreciationValue, 51587.46},
		{"TotalReturn", m.TotalReturn, 36280.26},
		{"MonthlyPrincipalPayment", m.MonthlyPrincipalPayment, 89.06},
		{"MonthlyInterestPayment", m.MonthlyInterestPayment, 750},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if want := m.AnnualCashFlow * 10; m.TotalCashFlowProjected != want {
		t.Errorf("TotalCashFlowProjected = %v, want unrounded %v", m.TotalCashFlowProjected, want)
	}

	if res.PropertyID != "z1" || res.ZipCode != "78701" {
		t.Errorf("PropertyID=%q ZipCode=%q", res.PropertyID, res.ZipCode)
	}
	if !res.AnalysisDate.Equal(fixedNow) {
		t.Errorf("AnalysisDate = %v, want %v", res.AnalysisDate, fixedNow)
	}
	if res.Assumptions.MortgageRate != 7.5 || res.Assumptions.HoldingPeriodYears != 10 {
		t.Errorf("Assumptions = %+v", res.Assumptions)
	}

	dq := res.DataQuality
	if !dq.HasRentalData || dq.HasZestimate || dq.HasPriceHistory {
		t.Errorf("DataQuality flags = %+v", dq)
	}
	wantMissing := []string{"zestimate", "imgSrc", "priceChange", "datePriceChanged"}
	if !reflect.DeepEqual(dq.MissingDataFields, wantMissing) {
		t.Errorf("MissingDataFields = %v, want %v", dq.MissingDataFields, wantMissing)
	}
}

func TestAnalyzeUsesReferenceRent(t *testing.T) {
	matcher := reference.NewMatcher(reference.StaticSource{
		{ZipCode: "78701", Bedrooms: 3, FairMarketRent: 1650, Year: 2023, County: "Travis", State: "TX"},
		{ZipCode: "78701", Bedrooms: 3, FairMarketRent: 1700, Year: 2024, County: "Travis", State: "TX"},
	}, nil)
	a := New(rental.NewEstimator(matcher, nil))

	cfg := scenarioConfig()
	cfg.Rental.UseHUDData = true
	res, err := a.Analyze(context.Background(), scenarioProperty("z1"), cfg)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.RentalEstimate.Source != models.RentSourceReference || res.RentalEstimate.MonthlyRent != 1700 {
		t.Errorf("estimate = %+v, want HUD 1700", res.RentalEstimate)
	}
	if res.RentalEstimate.Confidence != models.ConfidenceHigh {
		t.Errorf("Confidence = %v, want HIGH", res.RentalEstimate.Confidence)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	a := newTestAnalyzer()

	bad := scenarioProperty("bad")
	bad.Price = 0
	_, err := a.Analyze(context.Background(), bad, scenarioConfig())
	var ae *AnalysisError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want *AnalysisError", err)
	}
	if ae.PropertyID != "bad" {
		t.Errorf("PropertyID = %q, want bad", ae.PropertyID)
	}
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}

	cfg := scenarioConfig()
	cfg.Mortgage.LoanTermYears = 0
	_, err = a.Analyze(context.Background(), scenarioProperty("z1"), cfg)
	if !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
	if errors.As(err, &ae) {
		t.Error("configuration error should not be an AnalysisError")
	}
}

func TestAnalyzeBatchAccounting(t *testing.T) {
	badPrice := scenarioProperty("bad")
	badPrice.Price = math.NaN()
	noZip := scenarioProperty("nozip")
	noZip.Address = "somewhere without a zip"
	other := scenarioProperty("z3")
	other.Address = "9 Elm St, Dallas, TX 75201"

	props := []models.Property{scenarioProperty("z1"), badPrice, noZip, other, scenarioProperty("z5")}

	for _, conc := range []int{1, 3} {
		var calls []int
		a := newTestAnalyzer(WithConcurrency(conc))
		batch, err := a.AnalyzeBatch(context.Background(), props, scenarioConfig(),
			WithBuyboxName("austin"),
			WithProgress(func(done, total int, _ string) { calls = append(calls, done) }))
		if err != nil {
			t.Fatalf("concurrency %d: AnalyzeBatch: %v", conc, err)
		}

		if batch.TotalProperties != 5 || batch.SuccessfulAnalyses != 4 || batch.FailedAnalyses != 1 {
			t.Errorf("concurrency %d: counts = %d/%d/%d", conc, batch.TotalProperties, batch.SuccessfulAnalyses, batch.FailedAnalyses)
		}
		if len(batch.Results)+len(batch.Errors) != len(props) {
			t.Errorf("concurrency %d: results+errors = %d", conc, len(batch.Results)+len(batch.Errors))
		}

		var ids []string
		for _, r := range batch.Results {
			ids = append(ids, r.PropertyID)
		}
		if want := []string{"z1", "nozip", "z3", "z5"}; !reflect.DeepEqual(ids, want) {
			t.Errorf("concurrency %d: result order = %v, want %v", conc, ids, want)
		}
		if want := []string{"78701", "75201"}; !reflect.DeepEqual(batch.ZipCodes, want) {
			t.Errorf("concurrency %d: ZipCodes = %v, want %v", conc, batch.ZipCodes, want)
		}

		e := batch.Errors[0]
		if e.PropertyID != "bad" || e.ErrorType != models.ErrorTypeAnalysis || e.ID == "" {
			t.Errorf("concurrency %d: error record = %+v", conc, e)
		}
		if e.Context == nil || e.Context.BuyboxName != "austin" || e.Context.ZipCode != "78701" {
			t.Errorf("concurrency %d: error context = %+v", conc, e.Context)
		}
		if len(calls) != 5 || calls[4] != 5 {
			t.Errorf("concurrency %d: progress calls = %v", conc, calls)
		}
		if batch.BuyboxName != "austin" || batch.ID == "" {
			t.Errorf("concurrency %d: BuyboxName=%q ID=%q", conc, batch.BuyboxName, batch.ID)
		}
	}
}

func TestAnalyzeBatchEmpty(t *testing.T) {
	batch, err := newTestAnalyzer().AnalyzeBatch(context.Background(), nil, scenarioConfig())
	if err != nil {
		t.Fatalf("AnalyzeBatch: %v", err)
	}
	if batch.Results == nil || batch.Errors == nil || batch.ZipCodes == nil {
		t.Error("Results, Errors and ZipCodes must be non-nil")
	}
	s := batch.Summary
	for name, v := range map[string]float64{
		"AverageCashFlow":  s.AverageCashFlow,
		"AverageROI":       s.AverageROI,
		"AverageCapRate":   s.AverageCapRate,
		"DataQualityScore": s.DataQualityScore,
	} {
		if v != 0 || math.IsNaN(v) {
			t.Errorf("%s = %v, want 0", name, v)
		}
	}
	if len(s.TopPerformers) != 0 {
		t.Errorf("TopPerformers = %v, want empty", s.TopPerformers)
	}
}

func TestAnalyzeBatchConfigError(t *testing.T) {
	cfg := scenarioConfig()
	cfg.Mortgage.InterestRate = -1
	_, err := newTestAnalyzer().AnalyzeBatch(context.Background(), []models.Property{scenarioProperty("z1")}, cfg)
	if !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}

func TestAnalyzeBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestAnalyzer().AnalyzeBatch(ctx, []models.Property{scenarioProperty("z1")}, scenarioConfig())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func result(id string, coc, capRate, annualCF float64, quality bool) models.DetailedAnalysisResult {
	r := models.DetailedAnalysisResult{PropertyID: id}
	r.FinancialMetrics.CashOnCashReturn = coc
	r.FinancialMetrics.CapRate = capRate
	r.FinancialMetrics.AnnualCashFlow = annualCF
	if quality {
		r.DataQuality = models.DataQuality{HasRentalData: true, HasZestimate: true, MissingDataFields: []string{"imgSrc"}}
	} else {
		r.DataQuality = models.DataQuality{HasRentalData: true, MissingDataFields: []string{"zestimate", "imgSrc", "priceChange"}}
	}
	return r
}

func TestSummarize(t *testing.T) {
	results := []models.DetailedAnalysisResult{
		result("a", 1, 5, 100, true),
		result("b", 8, 6, 200, false),
		result("c", 3, 7, 300, true),
		result("d", 8, 4, 400, false),
		result("e", -2, 5, -100, false),
		result("f", 5, 6, 0, true),
	}
	s := Summarize(results)

	if s.AverageCashFlow != 150 {
		t.Errorf("AverageCashFlow = %v, want 150", s.AverageCashFlow)
	}
	if s.AverageROI != 3.83 {
		t.Errorf("AverageROI = %v, want 3.83", s.AverageROI)
	}
	if s.AverageCapRate != 5.5 {
		t.Errorf("AverageCapRate = %v, want 5.5", s.AverageCapRate)
	}
	if s.DataQualityScore != 50 {
		t.Errorf("DataQualityScore = %v, want 50", s.DataQualityScore)
	}
	if want := []string{"b", "d", "f", "c", "a"}; !reflect.DeepEqual(s.TopPerformers, want) {
		t.Errorf("TopPerformers = %v, want %v", s.TopPerformers, want)
	}
	if results[0].PropertyID != "a" || results[1].PropertyID != "b" {
		t.Error("Summarize reordered its input")
	}
}
