// Package report renders analysis results as plain text for the terminal.
package report

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/utils"
)

// ════════════════════════════════════════════════════════════════════
// Report configuration
// ════════════════════════════════════════════════════════════════════

// ReportSection identifies a section to include/exclude.
type ReportSection string

const (
	SectionSummary    ReportSection = "summary"
	SectionProperties ReportSection = "properties"
	SectionErrors     ReportSection = "errors"
)

// AllSections returns all report sections in display order.
func AllSections() []ReportSection {
	return []ReportSection{SectionSummary, SectionProperties, SectionErrors}
}

// ReportConfig controls report generation behaviour.
type ReportConfig struct {
	Sections []ReportSection // sections to include (default: all)
	Title    string          // custom report title (optional)
	TopN     int             // properties listed, best cash flow first (0 = all)
	Location *time.Location  // timestamp zone (nil = UTC)
}

// DefaultReportConfig returns sensible defaults.
func DefaultReportConfig() ReportConfig {
	return ReportConfig{
		Sections: AllSections(),
		Title:    "Deal Flow Analysis Report",
		TopN:     10,
	}
}

func (rc ReportConfig) hasSection(s ReportSection) bool {
	for _, sec := range rc.Sections {
		if sec == s {
			return true
		}
	}
	return false
}

const width = 60

var (
	line     = strings.Repeat("═", width)
	thinLine = strings.Repeat("─", width)
)

// ════════════════════════════════════════════════════════════════════
// Batch report
// ════════════════════════════════════════════════════════════════════

// GenerateText renders a batch result as a plain-text report.
func GenerateText(batch *models.BatchAnalysisResult, cfg ReportConfig) (string, error) {
	if batch == nil {
		return "", errors.New("batch is nil")
	}
	if len(cfg.Sections) == 0 {
		cfg.Sections = AllSections()
	}
	title := cfg.Title
	if title == "" {
		title = DefaultReportConfig().Title
	}

	var sb strings.Builder
	sb.WriteString("\n" + line + "\n")
	sb.WriteString(fmt.Sprintf("  %s\n", title))
	generated := batch.Timestamp
	if generated.IsZero() {
		generated = time.Now()
	}
	sb.WriteString(fmt.Sprintf("  Generated: %s", utils.FormatDateTime(generated, cfg.Location)))
	if batch.BuyboxName != "" {
		sb.WriteString(fmt.Sprintf(" | Buybox: %s", batch.BuyboxName))
	}
	sb.WriteString("\n")
	if batch.ID != "" {
		sb.WriteString(fmt.Sprintf("  Batch: %s\n", batch.ID))
	}
	sb.WriteString(line + "\n")

	if cfg.hasSection(SectionSummary) {
		writeSummary(&sb, batch)
	}
	if cfg.hasSection(SectionProperties) {
		writeProperties(&sb, batch.Results, cfg.TopN)
	}
	if cfg.hasSection(SectionErrors) && len(batch.Errors) > 0 {
		writeErrors(&sb, batch.Errors)
	}
	return sb.String(), nil
}

func writeSummary(sb *strings.Builder, batch *models.BatchAnalysisResult) {
	s := batch.Summary
	sb.WriteString("\n  ■ SUMMARY\n")
	sb.WriteString(fmt.Sprintf("    Properties: %d | Analyzed: %d | Failed: %d\n",
		batch.TotalProperties, batch.SuccessfulAnalyses, batch.FailedAnalyses))
	if len(batch.ZipCodes) > 0 {
		sb.WriteString(fmt.Sprintf("    Zip codes: %s\n", strings.Join(batch.ZipCodes, ", ")))
	}
	sb.WriteString(fmt.Sprintf("    %-24s %s\n", "Avg annual cash flow", utils.FormatUSD(s.AverageCashFlow)))
	sb.WriteString(fmt.Sprintf("    %-24s %s\n", "Avg cash-on-cash", utils.FormatPct(s.AverageROI)))
	sb.WriteString(fmt.Sprintf("    %-24s %s\n", "Avg cap rate", utils.FormatPct(s.AverageCapRate)))
	sb.WriteString(fmt.Sprintf("    %-24s %.0f%%\n", "Data quality", s.DataQualityScore))
	if len(s.TopPerformers) > 0 {
		sb.WriteString(fmt.Sprintf("    Top performers: %s\n", strings.Join(s.TopPerformers, ", ")))
	}
	sb.WriteString(thinLine + "\n")
}

func writeProperties(sb *strings.Builder, results []models.DetailedAnalysisResult, topN int) {
	sorted := make([]models.DetailedAnalysisResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FinancialMetrics.MonthlyCashFlow > sorted[j].FinancialMetrics.MonthlyCashFlow
	})
	if topN > 0 && len(sorted) > topN {
		sorted = sorted[:topN]
	}

	sb.WriteString(fmt.Sprintf("\n  ■ PROPERTIES (%d of %d)\n", len(sorted), len(results)))
	if len(sorted) == 0 {
		sb.WriteString("    No successful analyses.\n")
	}
	for i, r := range sorted {
		fm := r.FinancialMetrics
		sb.WriteString(fmt.Sprintf("    %2d. %s\n", i+1, r.Address))
		sb.WriteString(fmt.Sprintf("        Price %s | Rent %s (%s/%s) | Cash flow %s/mo\n",
			utils.FormatUSDCompact(r.PurchasePrice),
			utils.FormatUSD(fm.MonthlyRent),
			r.RentalEstimate.Source, r.RentalEstimate.Confidence,
			utils.FormatUSD(fm.MonthlyCashFlow)))
		sb.WriteString(fmt.Sprintf("        CoC %s | Cap %s | DSCR %.2f\n",
			utils.FormatPct(fm.CashOnCashReturn), utils.FormatPct(fm.CapRate), fm.DebtServiceCoverageRatio))
	}
	sb.WriteString(thinLine + "\n")
}

func writeErrors(sb *strings.Builder, errs []models.ErrorRecord) {
	sb.WriteString(fmt.Sprintf("\n  ■ ERRORS (%d)\n", len(errs)))
	for _, e := range errs {
		id := e.PropertyID
		if id == "" {
			id = "-"
		}
		sb.WriteString(fmt.Sprintf("    [%s] %s: %s\n", e.ErrorType, id, e.ErrorMessage))
	}
	sb.WriteString(thinLine + "\n")
}

// ════════════════════════════════════════════════════════════════════
// Single property report
// ════════════════════════════════════════════════════════════════════

// PropertyText renders the full breakdown of one analysis.
func PropertyText(r models.DetailedAnalysisResult) string {
	fm := r.FinancialMetrics
	md := fm.MortgageDetails
	ex := fm.OperatingExpensesBreakdown
	a := r.Assumptions

	var sb strings.Builder
	row := func(label, value string) {
		sb.WriteString(fmt.Sprintf("    %-26s %s\n", label, value))
	}

	sb.WriteString("\n" + line + "\n")
	sb.WriteString(fmt.Sprintf("  %s\n", r.Address))
	sb.WriteString(fmt.Sprintf("  Property %s | Price %s\n", r.PropertyID, utils.FormatUSD(r.PurchasePrice)))
	sb.WriteString(line + "\n")

	sb.WriteString("\n  ■ RENT\n")
	row("Monthly rent", utils.FormatUSD(r.RentalEstimate.MonthlyRent))
	row("Source", fmt.Sprintf("%s (%s confidence)", r.RentalEstimate.Source, r.RentalEstimate.Confidence))
	if r.RentalEstimate.Details != "" {
		row("Details", r.RentalEstimate.Details)
	}
	sb.WriteString(thinLine + "\n")

	sb.WriteString("\n  ■ FINANCING\n")
	row("Down payment", utils.FormatUSD(md.DownPayment))
	row("Loan amount", utils.FormatUSD(md.TotalLoanAmount))
	row("Closing costs", utils.FormatUSD(md.ClosingCosts))
	if md.PointsCost > 0 {
		row("Points", utils.FormatUSD(md.PointsCost))
	}
	row("Cash required", utils.FormatUSD(md.TotalCashRequired))
	row("Mortgage payment", fmt.Sprintf("%s/mo (%.2f%%, %.0f yr)", utils.FormatUSD(md.MonthlyPayment), a.MortgageRate, a.LoanTermYears))
	sb.WriteString(thinLine + "\n")

	sb.WriteString("\n  ■ OPERATING EXPENSES (monthly)\n")
	row("Management", utils.FormatUSD(ex.PropertyManagement))
	row("Maintenance", utils.FormatUSD(ex.Maintenance))
	row("Vacancy", utils.FormatUSD(ex.Vacancy))
	row("Insurance", utils.FormatUSD(ex.Insurance))
	row("Property tax", utils.FormatUSD(ex.PropertyTax))
	if ex.HOAFees > 0 {
		row("HOA", utils.FormatUSD(ex.HOAFees))
	}
	if ex.Utilities > 0 {
		row("Utilities", utils.FormatUSD(ex.Utilities))
	}
	if ex.Other > 0 {
		row("Other", utils.FormatUSD(ex.Other))
	}
	row("Total", utils.FormatUSD(ex.Total))
	sb.WriteString(thinLine + "\n")

	sb.WriteString("\n  ■ RETURNS\n")
	row("Monthly cash flow", utils.FormatUSD(fm.MonthlyCashFlow))
	row("Annual cash flow", utils.FormatUSD(fm.AnnualCashFlow))
	row("Net operating income", utils.FormatUSD(fm.NetOperatingIncome))
	row("Cash-on-cash", utils.FormatPct(fm.CashOnCashReturn))
	row("Cap rate", utils.FormatPct(fm.CapRate))
	row("Gross rent multiplier", fmt.Sprintf("%.2f", fm.GrossRentMultiplier))
	row("DSCR", fmt.Sprintf("%.2f", fm.DebtServiceCoverageRatio))
	sb.WriteString(thinLine + "\n")

	sb.WriteString(fmt.Sprintf("\n  ■ PROJECTION (%.0f yr hold)\n", a.HoldingPeriodYears))
	row("Projected value", utils.FormatUSD(fm.ProjectedValue))
	row("Appreciation", utils.FormatUSD(fm.AppreciationValue))
	row("Total return", utils.FormatPct(fm.TotalReturn))
	row("Annualized return", utils.FormatPct(fm.AnnualizedReturn))
	sb.WriteString(thinLine + "\n")

	if len(r.DataQuality.MissingDataFields) > 0 {
		sb.WriteString(fmt.Sprintf("\n  Missing data: %s\n", strings.Join(r.DataQuality.MissingDataFields, ", ")))
	}
	return sb.String()
}
