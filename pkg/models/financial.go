package models

import (
	"fmt"
	"math"
	"strings"
)

// Defaults applied by FinancialConfig.ApplyDefaults.
const (
	DefaultFallbackRentPercent = 0.8
	DefaultReferenceDataPath   = "./data/hud-rental-data.json"
)

// FinancialConfig holds the investment assumptions for an analysis run.
type FinancialConfig struct {
	Mortgage          MortgageConfig          `json:"mortgage"          yaml:"mortgage"           mapstructure:"mortgage"`
	OperatingExpenses OperatingExpenseConfig  `json:"operatingExpenses" yaml:"operating_expenses" mapstructure:"operating_expenses"`
	Appreciation      AppreciationConfig      `json:"appreciation"      yaml:"appreciation"       mapstructure:"appreciation"`
	Rental            RentalConfig            `json:"rental"            yaml:"rental"             mapstructure:"rental"`
}

// MortgageConfig holds loan terms. Percentages are whole numbers (7.5 = 7.5%).
type MortgageConfig struct {
	InterestRate        float64 `json:"interestRate"                  yaml:"interest_rate"         mapstructure:"interest_rate"`
	DownPaymentPercent  float64 `json:"downPaymentPercent"            yaml:"down_payment_percent"  mapstructure:"down_payment_percent"`
	LoanTermYears       float64 `json:"loanTermYears"                 yaml:"loan_term_years"       mapstructure:"loan_term_years"`
	Points              float64 `json:"points,omitempty"              yaml:"points"                mapstructure:"points"`
	ClosingCostsPercent float64 `json:"closingCostsPercent,omitempty" yaml:"closing_costs_percent" mapstructure:"closing_costs_percent"`
}

// OperatingExpenseConfig holds expense ratios. Management, maintenance, vacancy,
// utilities and other are a percent of monthly rent; insurance and property tax
// are an annual percent of purchase price; HOA fees are a flat monthly amount.
type OperatingExpenseConfig struct {
	PropertyManagementPercent float64 `json:"propertyManagementPercent"      yaml:"property_management_percent" mapstructure:"property_management_percent"`
	MaintenancePercent        float64 `json:"maintenancePercent"             yaml:"maintenance_percent"         mapstructure:"maintenance_percent"`
	VacancyRate               float64 `json:"vacancyRate"                    yaml:"vacancy_rate"                mapstructure:"vacancy_rate"`
	InsurancePercent          float64 `json:"insurancePercent"               yaml:"insurance_percent"           mapstructure:"insurance_percent"`
	PropertyTaxPercent        float64 `json:"propertyTaxPercent"             yaml:"property_tax_percent"        mapstructure:"property_tax_percent"`
	HOAFees                   float64 `json:"hoaFees,omitempty"              yaml:"hoa_fees"                    mapstructure:"hoa_fees"`
	UtilitiesPercent          float64 `json:"utilitiesPercent,omitempty"     yaml:"utilities_percent"           mapstructure:"utilities_percent"`
	OtherExpensesPercent      float64 `json:"otherExpensesPercent,omitempty" yaml:"other_expenses_percent"      mapstructure:"other_expenses_percent"`
}

// AppreciationConfig holds the value growth assumptions.
type AppreciationConfig struct {
	AnnualAppreciationPercent float64 `json:"annualAppreciationPercent" yaml:"annual_appreciation_percent" mapstructure:"annual_appreciation_percent"`
	HoldingPeriodYears        float64 `json:"holdingPeriodYears"        yaml:"holding_period_years"        mapstructure:"holding_period_years"`
}

// RentalConfig controls rent estimation.
type RentalConfig struct {
	UseHUDData          bool    `json:"useHudData"                    yaml:"use_hud_data"          mapstructure:"use_hud_data"`
	HUDDataPath         string  `json:"hudDataPath,omitempty"         yaml:"hud_data_path"         mapstructure:"hud_data_path"`
	FallbackRentPercent float64 `json:"fallbackRentPercent,omitempty" yaml:"fallback_rent_percent" mapstructure:"fallback_rent_percent"`
}

// ApplyDefaults returns a copy with optional fields resolved. A zero
// fallback rent percent becomes DefaultFallbackRentPercent and an empty
// reference data path becomes DefaultReferenceDataPath.
func (c FinancialConfig) ApplyDefaults() FinancialConfig {
	if c.Rental.FallbackRentPercent == 0 {
		c.Rental.FallbackRentPercent = DefaultFallbackRentPercent
	}
	if strings.TrimSpace(c.Rental.HUDDataPath) == "" {
		c.Rental.HUDDataPath = DefaultReferenceDataPath
	}
	return c
}

// Validate rejects configurations the calculators cannot evaluate.
// The returned error wraps ErrConfiguration.
func (c FinancialConfig) Validate() error {
	var problems []string
	check := func(name string, v float64, allowNegative bool) {
		switch {
		case math.IsNaN(v) || math.IsInf(v, 0):
			problems = append(problems, name+" must be a finite number")
		case !allowNegative && v < 0:
			problems = append(problems, name+" must not be negative")
		}
	}

	m := c.Mortgage
	check("mortgage.interestRate", m.InterestRate, false)
	check("mortgage.downPaymentPercent", m.DownPaymentPercent, false)
	check("mortgage.loanTermYears", m.LoanTermYears, false)
	check("mortgage.points", m.Points, false)
	check("mortgage.closingCostsPercent", m.ClosingCostsPercent, false)
	if m.LoanTermYears <= 0 {
		problems = append(problems, "mortgage.loanTermYears must be positive")
	}
	if m.DownPaymentPercent > 100 {
		problems = append(problems, "mortgage.downPaymentPercent must not exceed 100")
	}

	e := c.OperatingExpenses
	check("operatingExpenses.propertyManagementPercent", e.PropertyManagementPercent, false)
	check("operatingExpenses.maintenancePercent", e.MaintenancePercent, false)
	check("operatingExpenses.vacancyRate", e.VacancyRate, false)
	check("operatingExpenses.insurancePercent", e.InsurancePercent, false)
	check("operatingExpenses.propertyTaxPercent", e.PropertyTaxPercent, false)
	check("operatingExpenses.hoaFees", e.HOAFees, false)
	check("operatingExpenses.utilitiesPercent", e.UtilitiesPercent, false)
	check("operatingExpenses.otherExpensesPercent", e.OtherExpensesPercent, false)

	// Depreciating markets are allowed.
	check("appreciation.annualAppreciationPercent", c.Appreciation.AnnualAppreciationPercent, true)
	check("appreciation.holdingPeriodYears", c.Appreciation.HoldingPeriodYears, false)
	check("rental.fallbackRentPercent", c.Rental.FallbackRentPercent, false)

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
}
