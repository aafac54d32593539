package report

import (
	"strings"
	"testing"
	"time"

	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

func sampleResult(id, address string, cashFlow float64) models.DetailedAnalysisResult {
	return models.DetailedAnalysisResult{
		PropertyID:    id,
		Address:       address,
		ZipCode:       "78701",
		PurchasePrice: 250000,
		RentalEstimate: models.RentalEstimate{
			MonthlyRent: 1800,
			Source:      models.RentSourceReference,
			Confidence:  models.ConfidenceHigh,
			Details:     "HUD FMR for 2BR in 78701",
		},
		FinancialMetrics: models.FinancialMetrics{
			MonthlyRent:      1800,
			MonthlyCashFlow:  cashFlow,
			AnnualCashFlow:   cashFlow * 12,
			CashOnCashReturn: 4.5,
			CapRate:          6.1,
			MortgageDetails: models.MortgageCalculation{
				MonthlyPayment:    1264.14,
				DownPayment:       50000,
				TotalLoanAmount:   200000,
				ClosingCosts:      7500,
				TotalCashRequired: 57500,
			},
			OperatingExpensesBreakdown: models.OperatingExpenses{
				PropertyManagement: 144,
				HOAFees:            75,
				Total:              520,
			},
		},
		Assumptions: models.Assumptions{MortgageRate: 6.5, LoanTermYears: 30, HoldingPeriodYears: 5},
	}
}

func sampleBatch() *models.BatchAnalysisResult {
	return &models.BatchAnalysisResult{
		ID:                 "b-1",
		BuyboxName:         "austin",
		Timestamp:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ZipCodes:           []string{"78701"},
		TotalProperties:    3,
		SuccessfulAnalyses: 2,
		FailedAnalyses:     1,
		Results: []models.DetailedAnalysisResult{
			sampleResult("1", "1 Low St", 50),
			sampleResult("2", "2 High St", 300),
		},
		Errors: []models.ErrorRecord{
			{PropertyID: "3", ErrorType: models.ErrorTypeAnalysis, ErrorMessage: "invalid purchase price"},
		},
		Summary: models.BatchSummary{
			AverageCashFlow: 2100,
			AverageROI:      4.5,
			AverageCapRate:  6.1,
			TopPerformers:   []string{"2", "1"},
		},
	}
}

// ════════════════════════════════════════════════════════════════════
// GenerateText
// ════════════════════════════════════════════════════════════════════

func TestGenerateText_Basic(t *testing.T) {
	text, err := GenerateText(sampleBatch(), DefaultReportConfig())
	if err != nil {
		t.Fatalf("GenerateText failed: %v", err)
	}

	checks := []string{
		"Deal Flow Analysis Report",
		"Buybox: austin",
		"Batch: b-1",
		"2026-03-01 12:00:00 UTC",
		"SUMMARY",
		"Properties: 3 | Analyzed: 2 | Failed: 1",
		"$2,100.00",
		"+4.50%",
		"PROPERTIES (2 of 2)",
		"ERRORS (1)",
		"[ANALYSIS_ERROR] 3: invalid purchase price",
	}
	for _, c := range checks {
		if !strings.Contains(text, c) {
			t.Errorf("expected %q in text report", c)
		}
	}
}

func TestGenerateText_OrdersByCashFlow(t *testing.T) {
	text, err := GenerateText(sampleBatch(), DefaultReportConfig())
	if err != nil {
		t.Fatal(err)
	}
	high := strings.Index(text, "2 High St")
	low := strings.Index(text, "1 Low St")
	if high < 0 || low < 0 || high > low {
		t.Errorf("expected 2 High St before 1 Low St (high=%d low=%d)", high, low)
	}
}

func TestGenerateText_TopN(t *testing.T) {
	cfg := DefaultReportConfig()
	cfg.TopN = 1
	text, err := GenerateText(sampleBatch(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "PROPERTIES (1 of 2)") {
		t.Error("expected truncated property list")
	}
	if strings.Contains(text, "1 Low St") {
		t.Error("lower cash flow property should be cut")
	}
}

func TestGenerateText_Sections(t *testing.T) {
	cfg := ReportConfig{Sections: []ReportSection{SectionSummary}, Title: "Only Summary"}
	text, err := GenerateText(sampleBatch(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "Only Summary") || !strings.Contains(text, "SUMMARY") {
		t.Error("expected title and summary")
	}
	for _, s := range []string{"PROPERTIES", "ERRORS"} {
		if strings.Contains(text, s) {
			t.Errorf("section %s should be excluded", s)
		}
	}
}

func TestGenerateText_NilBatch(t *testing.T) {
	if _, err := GenerateText(nil, DefaultReportConfig()); err == nil {
		t.Error("expected error for nil batch")
	}
}

func TestGenerateText_EmptyBatch(t *testing.T) {
	text, err := GenerateText(&models.BatchAnalysisResult{}, ReportConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "No successful analyses.") {
		t.Error("expected empty notice")
	}
	if strings.Contains(text, "ERRORS") {
		t.Error("errors section should be omitted when there are none")
	}
}

// ════════════════════════════════════════════════════════════════════
// PropertyText
// ════════════════════════════════════════════════════════════════════

func TestPropertyText(t *testing.T) {
	r := sampleResult("42", "42 Congress Ave, Austin, TX 78701", 215.5)
	r.DataQuality.MissingDataFields = []string{"zestimate"}
	text := PropertyText(r)

	checks := []string{
		"42 Congress Ave, Austin, TX 78701",
		"Property 42 | Price $250,000.00",
		"HUD (HIGH confidence)",
		"$1,264.14/mo (6.50%, 30 yr)",
		"HOA",
		"$215.50",
		"PROJECTION (5 yr hold)",
		"Missing data: zestimate",
	}
	for _, c := range checks {
		if !strings.Contains(text, c) {
			t.Errorf("expected %q in property report", c)
		}
	}
	if strings.Contains(text, "Utilities") {
		t.Error("zero utilities should be omitted")
	}
}
