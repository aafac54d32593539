package finance

import (
	"math"
	"testing"

	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
)

func sampleMortgageConfig() models.MortgageConfig {
	return models.MortgageConfig{InterestRate: 7.5, DownPaymentPercent: 20, LoanTermYears: 30}
}

func sampleExpenseConfig() models.OperatingExpenseConfig {
	return models.OperatingExpenseConfig{
		PropertyManagementPercent: 10,
		MaintenancePercent:        8,
		VacancyRate:               5,
		InsurancePercent:          0.5,
		PropertyTaxPercent:        1.2,
	}
}

func TestCalculateMortgage(t *testing.T) {
	m := CalculateMortgage(150000, sampleMortgageConfig())

	if m.DownPayment != 30000 {
		t.Errorf("DownPayment = %.2f, want 30000", m.DownPayment)
	}
	if m.TotalLoanAmount != 120000 {
		t.Errorf("TotalLoanAmount = %.2f, want 120000", m.TotalLoanAmount)
	}
	if m.MonthlyPayment != 839.06 {
		t.Errorf("MonthlyPayment = %.2f, want 839.06", m.MonthlyPayment)
	}
	if m.MonthlyInterest != 750 {
		t.Errorf("MonthlyInterest = %.2f, want 750", m.MonthlyInterest)
	}
	if m.MonthlyPrincipal != 89.06 {
		t.Errorf("MonthlyPrincipal = %.2f, want 89.06", m.MonthlyPrincipal)
	}
	if m.TotalCashRequired != 30000 {
		t.Errorf("TotalCashRequired = %.2f, want 30000", m.TotalCashRequired)
	}
}

func TestCalculateMortgageZeroRate(t *testing.T) {
	cases := []struct {
		price float64
		years float64
	}{
		{150000, 30},
		{99999, 15},
		{250000, 7},
	}
	for _, c := range cases {
		cfg := models.MortgageConfig{InterestRate: 0, DownPaymentPercent: 20, LoanTermYears: c.years}
		m := CalculateMortgage(c.price, cfg)
		loan := c.price * 0.8
		want := math.Round(loan/(c.years*12)*100) / 100

		if m.MonthlyInterest != 0 {
			t.Errorf("price %v: MonthlyInterest = %v, want 0", c.price, m.MonthlyInterest)
		}
		if m.MonthlyPayment != want || m.MonthlyPrincipal != want {
			t.Errorf("price %v: payment=%v principal=%v, want %v", c.price, m.MonthlyPayment, m.MonthlyPrincipal, want)
		}
	}
}

func TestCalculateMortgagePointsAndClosing(t *testing.T) {
	cfg := sampleMortgageConfig()
	cfg.Points = 1
	cfg.ClosingCostsPercent = 3
	m := CalculateMortgage(200000, cfg)

	// 40000 down + 6000 closing + 1600 points
	if m.ClosingCosts != 6000 || m.PointsCost != 1600 {
		t.Errorf("ClosingCosts=%.2f PointsCost=%.2f", m.ClosingCosts, m.PointsCost)
	}
	if m.TotalCashRequired != 47600 {
		t.Errorf("TotalCashRequired = %.2f, want 47600", m.TotalCashRequired)
	}
}

func TestCalculateOperatingExpenses(t *testing.T) {
	e := CalculateOperatingExpenses(1200, 150000, sampleExpenseConfig())

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"PropertyManagement", e.PropertyManagement, 120},
		{"Maintenance", e.Maintenance, 96},
		{"Vacancy", e.Vacancy, 60},
		{"Insurance", e.Insurance, 62.5},
		{"PropertyTax", e.PropertyTax, 150},
		{"HOAFees", e.HOAFees, 0},
		{"Total", e.Total, 488.5},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %.2f, want %.2f", c.name, c.got, c.want)
		}
	}
}

func TestOperatingExpensesTotalFromUnrounded(t *testing.T) {
	cfg := models.OperatingExpenseConfig{
		PropertyManagementPercent: 0.333,
		MaintenancePercent:        0.333,
		VacancyRate:               0.333,
	}
	e := CalculateOperatingExpenses(100, 0, cfg)
	if e.PropertyManagement != 0.33 || e.Maintenance != 0.33 || e.Vacancy != 0.33 {
		t.Errorf("items = %.2f %.2f %.2f, want 0.33 each", e.PropertyManagement, e.Maintenance, e.Vacancy)
	}
	// 0.999 rounded once, not 0.33*3.
	if e.Total != 1 {
		t.Errorf("Total = %.2f, want 1.00", e.Total)
	}
}

func TestCalculateCashFlow(t *testing.T) {
	m := CalculateMortgage(150000, sampleMortgageConfig())
	e := CalculateOperatingExpenses(1200, 150000, sampleExpenseConfig())
	cf := CalculateCashFlow(1200, m, e)

	if cf.MonthlyNetOperatingIncome != 711.5 {
		t.Errorf("MonthlyNetOperatingIncome = %.2f, want 711.50", cf.MonthlyNetOperatingIncome)
	}
	if cf.MonthlyCashFlow != -127.56 {
		t.Errorf("MonthlyCashFlow = %.2f, want -127.56", cf.MonthlyCashFlow)
	}
	if cf.AnnualCashFlow != -1530.72 {
		t.Errorf("AnnualCashFlow = %.2f, want -1530.72", cf.AnnualCashFlow)
	}
	if cf.AnnualNetOperatingIncome != 8538 {
		t.Errorf("AnnualNetOperatingIncome = %.2f, want 8538", cf.AnnualNetOperatingIncome)
	}
}

func TestCalculateCashFlowHalfCentRoundsUp(t *testing.T) {
	cf := CalculateCashFlow(0, models.MortgageCalculation{MonthlyPayment: 100.125}, models.OperatingExpenses{})
	if cf.MonthlyCashFlow != -100.12 {
		t.Errorf("MonthlyCashFlow = %v, want -100.12", cf.MonthlyCashFlow)
	}
	if cf.AnnualCashFlow != -1201.5 {
		t.Errorf("AnnualCashFlow = %v, want -1201.5", cf.AnnualCashFlow)
	}
}

func TestCalculateROI(t *testing.T) {
	m := CalculateMortgage(150000, sampleMortgageConfig())
	e := CalculateOperatingExpenses(1200, 150000, sampleExpenseConfig())
	cf := CalculateCashFlow(1200, m, e)
	roi := CalculateROI(cf, m, 150000)

	if roi.CashOnCashReturn != -5.1 {
		t.Errorf("CashOnCashReturn = %.2f, want -5.10", roi.CashOnCashReturn)
	}
	if roi.CapRate != 5.69 {
		t.Errorf("CapRate = %.2f, want 5.69", roi.CapRate)
	}
	if roi.GrossRentMultiplier != 10.42 {
		t.Errorf("GrossRentMultiplier = %.2f, want 10.42", roi.GrossRentMultiplier)
	}
	if roi.DebtServiceCoverageRatio != 0.85 {
		t.Errorf("DebtServiceCoverageRatio = %.2f, want 0.85", roi.DebtServiceCoverageRatio)
	}
	if roi.TotalCashInvested != 30000 {
		t.Errorf("TotalCashInvested = %.2f, want 30000", roi.TotalCashInvested)
	}
}

func TestCalculateROIZeroDenominators(t *testing.T) {
	roi := CalculateROI(models.CashFlowMetrics{AnnualCashFlow: 1000, AnnualNetOperatingIncome: 5000}, models.MortgageCalculation{}, 0)

	for name, v := range map[string]float64{
		"CashOnCashReturn":         roi.CashOnCashReturn,
		"CapRate":                  roi.CapRate,
		"GrossRentMultiplier":      roi.GrossRentMultiplier,
		"DebtServiceCoverageRatio": roi.DebtServiceCoverageRatio,
	} {
		if v != 0 || math.IsNaN(v) {
			t.Errorf("%s = %v, want 0", name, v)
		}
	}
}

func TestProjectAppreciation(t *testing.T) {
	a := ProjectAppreciation(150000, models.AppreciationConfig{AnnualAppreciationPercent: 3, HoldingPeriodYears: 10}, -1530.72)

	if a.ProjectedValue != 201587.46 {
		t.Errorf("ProjectedValue = %.2f, want 201587.46", a.ProjectedValue)
	}
	if a.AppreciationValue != 51587.46 {
		t.Errorf("AppreciationValue = %.2f, want 51587.46", a.AppreciationValue)
	}
	if a.TotalReturn != 36280.26 {
		t.Errorf("TotalReturn = %.2f, want 36280.26", a.TotalReturn)
	}
	if a.AnnualizedReturn != 3 {
		t.Errorf("AnnualizedReturn = %.2f, want 3", a.AnnualizedReturn)
	}
}

func TestProjectAppreciationZeroRate(t *testing.T) {
	for _, years := range []float64{0, 1, 5, 30} {
		a := ProjectAppreciation(180000, models.AppreciationConfig{AnnualAppreciationPercent: 0, HoldingPeriodYears: years}, 0)
		if a.ProjectedValue != 180000 || a.AppreciationValue != 0 {
			t.Errorf("years=%v: projected=%v appreciation=%v", years, a.ProjectedValue, a.AppreciationValue)
		}
		if a.AnnualizedReturn != 0 {
			t.Errorf("years=%v: annualized=%v, want 0", years, a.AnnualizedReturn)
		}
	}
}

func TestProjectAppreciationAnnualizedGuardOnlyOnYears(t *testing.T) {
	a := ProjectAppreciation(0, models.AppreciationConfig{AnnualAppreciationPercent: 3, HoldingPeriodYears: 5}, 0)
	if !math.IsNaN(a.AnnualizedReturn) {
		t.Errorf("AnnualizedReturn = %v, want NaN for a zero value", a.AnnualizedReturn)
	}
}

func TestProjectAppreciationZeroHolding(t *testing.T) {
	a := ProjectAppreciation(100000, models.AppreciationConfig{AnnualAppreciationPercent: 5, HoldingPeriodYears: 0}, 1200)
	if a.AnnualizedReturn != 0 || a.TotalReturn != 0 {
		t.Errorf("zero holding period: %+v", a)
	}
}
