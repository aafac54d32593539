package models

import "time"

// RentSource identifies where a monthly rent figure came from.
type RentSource string

const (
	RentSourceReference  RentSource = "HUD"      // government fair-market-rent table
	RentSourceListingAPI RentSource = "ZILLOW"   // listing API rent estimate
	RentSourceFallback   RentSource = "FALLBACK" // percentage of purchase price
)

// Confidence grades a rent estimate.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// ReferenceRentRecord is one fair-market-rent row keyed by zip and bedroom count.
type ReferenceRentRecord struct {
	ZipCode        string  `json:"zipCode"`
	Bedrooms       int     `json:"bedrooms"`
	FairMarketRent float64 `json:"fairMarketRent"`
	Year           int     `json:"year"`
	County         string  `json:"county"`
	State          string  `json:"state"`
	PropertyType   string  `json:"propertyType,omitempty"`
}

// ReferenceMatch is the outcome of a fair-market-rent lookup.
type ReferenceMatch struct {
	Matched       bool                 `json:"matched"`
	Rent          float64              `json:"hudRent,omitempty"`
	MatchCriteria string               `json:"matchCriteria,omitempty"`
	Confidence    Confidence           `json:"confidence"`
	Record        *ReferenceRentRecord `json:"hudData,omitempty"`
}

// RentalEstimate is the monthly rent chosen for a property.
type RentalEstimate struct {
	MonthlyRent    float64         `json:"monthlyRent"`
	Source         RentSource      `json:"source"`
	Confidence     Confidence      `json:"confidence"`
	ReferenceMatch *ReferenceMatch `json:"hudMatch,omitempty"`
	Details        string          `json:"details"`
}

// MortgageCalculation holds loan amounts and the first-period payment split.
type MortgageCalculation struct {
	MonthlyPayment    float64 `json:"monthlyPayment"`
	MonthlyPrincipal  float64 `json:"monthlyPrincipal"`
	MonthlyInterest   float64 `json:"monthlyInterest"`
	TotalLoanAmount   float64 `json:"totalLoanAmount"`
	DownPayment       float64 `json:"downPayment"`
	ClosingCosts      float64 `json:"closingCosts"`
	PointsCost        float64 `json:"pointsCost"`
	TotalCashRequired float64 `json:"totalCashRequired"`
}

// OperatingExpenses is the monthly expense breakdown.
type OperatingExpenses struct {
	PropertyManagement float64 `json:"propertyManagement"`
	Maintenance        float64 `json:"maintenance"`
	Vacancy            float64 `json:"vacancy"`
	Insurance          float64 `json:"insurance"`
	PropertyTax        float64 `json:"propertyTax"`
	HOAFees            float64 `json:"hoaFees"`
	Utilities          float64 `json:"utilities"`
	Other              float64 `json:"other"`
	Total              float64 `json:"total"`
}

// CashFlowMetrics holds income after expenses and debt service.
type CashFlowMetrics struct {
	MonthlyRent               float64 `json:"monthlyRent"`
	MonthlyMortgagePayment    float64 `json:"monthlyMortgagePayment"`
	MonthlyOperatingExpenses  float64 `json:"monthlyOperatingExpenses"`
	MonthlyNetOperatingIncome float64 `json:"monthlyNetOperatingIncome"`
	MonthlyCashFlow           float64 `json:"monthlyCashFlow"`
	AnnualCashFlow            float64 `json:"annualCashFlow"`
	AnnualNetOperatingIncome  float64 `json:"annualNetOperatingIncome"`
}

// ROIMetrics holds return ratios. Percent fields are whole numbers.
type ROIMetrics struct {
	CashOnCashReturn         float64 `json:"cashOnCashReturn"`
	CapRate                  float64 `json:"capRate"`
	GrossRentMultiplier      float64 `json:"grossRentMultiplier"`
	DebtServiceCoverageRatio float64 `json:"debtServiceCoverageRatio"`
	TotalCashInvested        float64 `json:"totalCashInvested"`
}

// AppreciationMetrics holds the holding-period value projection.
type AppreciationMetrics struct {
	CurrentValue      float64 `json:"currentValue"`
	ProjectedValue    float64 `json:"projectedValue"`
	AppreciationValue float64 `json:"appreciationValue"`
	TotalReturn       float64 `json:"totalReturn"`
	AnnualizedReturn  float64 `json:"annualizedReturn"`
}

// FinancialMetrics flattens the calculator outputs for one property.
type FinancialMetrics struct {
	MonthlyRent              float64 `json:"monthlyRent"`
	MonthlyMortgagePayment   float64 `json:"monthlyMortgagePayment"`
	MonthlyOperatingExpenses float64 `json:"monthlyOperatingExpenses"`
	MonthlyCashFlow          float64 `json:"monthlyCashFlow"`
	AnnualCashFlow           float64 `json:"annualCashFlow"`

	OperatingExpensesBreakdown OperatingExpenses   `json:"operatingExpensesBreakdown"`
	MortgageDetails            MortgageCalculation `json:"mortgageDetails"`

	CashOnCashReturn         float64 `json:"cashOnCashReturn"`
	CapRate                  float64 `json:"capRate"`
	TotalReturn              float64 `json:"totalReturn"`
	AppreciationValue        float64 `json:"appreciationValue"`
	TotalCashInvested        float64 `json:"totalCashInvested"`
	GrossRentMultiplier      float64 `json:"grossRentMultiplier"`
	DebtServiceCoverageRatio float64 `json:"debtServiceCoverageRatio"`

	NetOperatingIncome      float64 `json:"netOperatingIncome"` // annual
	MonthlyPrincipalPayment float64 `json:"monthlyPrincipalPayment"`
	MonthlyInterestPayment  float64 `json:"monthlyInterestPayment"`

	ProjectedValue         float64 `json:"projectedValue"`
	TotalCashFlowProjected float64 `json:"totalCashFlowProjected"`
	TotalReturnProjected   float64 `json:"totalReturnProjected"`
	AnnualizedReturn       float64 `json:"annualizedReturn"`
}

// Assumptions echoes the key configuration inputs used for a result.
type Assumptions struct {
	MortgageRate              float64 `json:"mortgageRate"`
	DownPaymentPercent        float64 `json:"downPaymentPercent"`
	LoanTermYears             float64 `json:"loanTermYears"`
	PropertyManagementPercent float64 `json:"propertyManagementPercent"`
	MaintenancePercent        float64 `json:"maintenancePercent"`
	VacancyRate               float64 `json:"vacancyRate"`
	InsurancePercent          float64 `json:"insurancePercent"`
	PropertyTaxPercent        float64 `json:"propertyTaxPercent"`
	AnnualAppreciationPercent float64 `json:"annualAppreciationPercent"`
	HoldingPeriodYears        float64 `json:"holdingPeriodYears"`
}

// DataQuality flags how complete the input listing was.
type DataQuality struct {
	HasRentalData     bool     `json:"hasRentalData"`
	HasZestimate      bool     `json:"hasZestimate"`
	HasPriceHistory   bool     `json:"hasPriceHistory"`
	MissingDataFields []string `json:"missingDataFields"`
}

// DetailedAnalysisResult is the full analysis of one property.
type DetailedAnalysisResult struct {
	PropertyID       string           `json:"propertyId"`
	Address          string           `json:"address"`
	ZipCode          string           `json:"zipCode,omitempty"`
	PurchasePrice    float64          `json:"purchasePrice"`
	AnalysisDate     time.Time        `json:"analysisDate"`
	FinancialMetrics FinancialMetrics `json:"financialMetrics"`
	RentalEstimate   RentalEstimate   `json:"rentalEstimate"`
	Assumptions      Assumptions      `json:"assumptions"`
	DataQuality      DataQuality      `json:"dataQuality"`
}

// BatchSummary aggregates the successful results of a batch.
type BatchSummary struct {
	AverageCashFlow  float64  `json:"averageCashFlow"` // annual
	AverageROI       float64  `json:"averageROI"`      // cash-on-cash %
	AverageCapRate   float64  `json:"averageCapRate"`
	TopPerformers    []string `json:"topPerformers"`
	DataQualityScore float64  `json:"dataQualityScore"`
}

// BatchAnalysisResult is the outcome of analyzing a set of properties.
// SuccessfulAnalyses+FailedAnalyses == TotalProperties and
// len(Results) == SuccessfulAnalyses.
type BatchAnalysisResult struct {
	ID                 string                   `json:"id,omitempty"`
	BuyboxName         string                   `json:"buyboxName,omitempty"`
	Timestamp          time.Time                `json:"timestamp"`
	ZipCodes           []string                 `json:"zipCodes"`
	TotalProperties    int                      `json:"totalProperties"`
	SuccessfulAnalyses int                      `json:"successfulAnalyses"`
	FailedAnalyses     int                      `json:"failedAnalyses"`
	Results            []DetailedAnalysisResult `json:"results"`
	Errors             []ErrorRecord            `json:"errors"`
	Summary            BatchSummary             `json:"summary"`
}
