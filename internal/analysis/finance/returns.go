package finance

import (
	"math"

	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/utils"
)

// CalculateCashFlow derives NOI and cash flow from rent, the mortgage
// payment and the operating expense total.
func CalculateCashFlow(monthlyRent float64, mortgage models.MortgageCalculation, expenses models.OperatingExpenses) models.CashFlowMetrics {
	noi := monthlyRent - expenses.Total
	cashFlow := noi - mortgage.MonthlyPayment

	return models.CashFlowMetrics{
		MonthlyRent:               utils.Round2(monthlyRent),
		MonthlyMortgagePayment:    utils.Round2(mortgage.MonthlyPayment),
		MonthlyOperatingExpenses:  utils.Round2(expenses.Total),
		MonthlyNetOperatingIncome: utils.Round2(noi),
		MonthlyCashFlow:           utils.Round2(cashFlow),
		AnnualCashFlow:            utils.Round2(cashFlow * 12),
		AnnualNetOperatingIncome:  utils.Round2(noi * 12),
	}
}

// CalculateROI computes cash-on-cash return, cap rate, gross rent multiplier
// and debt service coverage. Each ratio is 0 when its denominator is not positive.
func CalculateROI(cf models.CashFlowMetrics, mortgage models.MortgageCalculation, price float64) models.ROIMetrics {
	invested := mortgage.TotalCashRequired
	annualRent := cf.MonthlyRent * 12
	annualDebtService := mortgage.MonthlyPayment * 12

	var m models.ROIMetrics
	if invested > 0 {
		m.CashOnCashReturn = cf.AnnualCashFlow / invested * 100
	}
	if price > 0 {
		m.CapRate = cf.AnnualNetOperatingIncome / price * 100
	}
	if annualRent > 0 {
		m.GrossRentMultiplier = price / annualRent
	}
	if annualDebtService > 0 {
		m.DebtServiceCoverageRatio = cf.AnnualNetOperatingIncome / annualDebtService
	}

	return models.ROIMetrics{
		CashOnCashReturn:         utils.Round2(m.CashOnCashReturn),
		CapRate:                  utils.Round2(m.CapRate),
		GrossRentMultiplier:      utils.Round2(m.GrossRentMultiplier),
		DebtServiceCoverageRatio: utils.Round2(m.DebtServiceCoverageRatio),
		TotalCashInvested:        utils.Round2(invested),
	}
}

// ProjectAppreciation compounds currentValue over the holding period and
// combines it with cumulative cash flow into a total return.
func ProjectAppreciation(currentValue float64, cfg models.AppreciationConfig, annualCashFlow float64) models.AppreciationMetrics {
	rate := cfg.AnnualAppreciationPercent / 100
	years := cfg.HoldingPeriodYears

	projected := currentValue * math.Pow(1+rate, years)
	appreciation := projected - currentValue
	totalReturn := annualCashFlow*years + appreciation

	var annualized float64
	if years > 0 {
		annualized = (math.Pow(projected/currentValue, 1/years) - 1) * 100
	}

	return models.AppreciationMetrics{
		CurrentValue:      utils.Round2(currentValue),
		ProjectedValue:    utils.Round2(projected),
		AppreciationValue: utils.Round2(appreciation),
		TotalReturn:       utils.Round2(totalReturn),
		AnnualizedReturn:  utils.Round2(annualized),
	}
}
