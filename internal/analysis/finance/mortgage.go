// Package finance implements the investment calculators: mortgage
// amortization, operating expenses, cash flow, return ratios and
// appreciation. Every monetary output is rounded to cents on its own;
// totals are summed from unrounded components and rounded once.
package finance

import (
	"math"

	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/utils"
)

// CalculateMortgage computes the down payment, loan amount, up-front cash and
// the first-period payment split for a purchase price.
//
// Callers must guard price <= 0 and LoanTermYears <= 0; those inputs
// propagate NaN or Inf rather than being rejected here.
func CalculateMortgage(price float64, cfg models.MortgageConfig) models.MortgageCalculation {
	downPayment := price * cfg.DownPaymentPercent / 100
	loanAmount := price - downPayment
	closingCosts := price * cfg.ClosingCostsPercent / 100
	pointsCost := loanAmount * cfg.Points / 100

	monthlyRate := cfg.InterestRate / 100 / 12
	n := cfg.LoanTermYears * 12

	var payment, principal, interest float64
	if monthlyRate > 0 {
		compounded := math.Pow(1+monthlyRate, n)
		payment = loanAmount * monthlyRate * compounded / (compounded - 1)
		// First period; the split shifts toward principal each month.
		interest = loanAmount * monthlyRate
		principal = payment - interest
	} else {
		payment = loanAmount / n
		principal = payment
	}

	return models.MortgageCalculation{
		MonthlyPayment:    utils.Round2(payment),
		MonthlyPrincipal:  utils.Round2(principal),
		MonthlyInterest:   utils.Round2(interest),
		TotalLoanAmount:   utils.Round2(loanAmount),
		DownPayment:       utils.Round2(downPayment),
		ClosingCosts:      utils.Round2(closingCosts),
		PointsCost:        utils.Round2(pointsCost),
		TotalCashRequired: utils.Round2(downPayment + closingCosts + pointsCost),
	}
}

// CalculateOperatingExpenses computes the monthly expense line items.
func CalculateOperatingExpenses(monthlyRent, price float64, cfg models.OperatingExpenseConfig) models.OperatingExpenses {
	management := monthlyRent * cfg.PropertyManagementPercent / 100
	maintenance := monthlyRent * cfg.MaintenancePercent / 100
	vacancy := monthlyRent * cfg.VacancyRate / 100
	utilities := monthlyRent * cfg.UtilitiesPercent / 100
	other := monthlyRent * cfg.OtherExpensesPercent / 100

	// Annual price-based costs, spread monthly.
	insurance := price * cfg.InsurancePercent / 100 / 12
	propertyTax := price * cfg.PropertyTaxPercent / 100 / 12
	hoa := cfg.HOAFees

	total := management + maintenance + vacancy + insurance + propertyTax + hoa + utilities + other

	return models.OperatingExpenses{
		PropertyManagement: utils.Round2(management),
		Maintenance:        utils.Round2(maintenance),
		Vacancy:            utils.Round2(vacancy),
		Insurance:          utils.Round2(insurance),
		PropertyTax:        utils.Round2(propertyTax),
		HOAFees:            utils.Round2(hoa),
		Utilities:          utils.Round2(utilities),
		Other:              utils.Round2(other),
		Total:              utils.Round2(total),
	}
}
