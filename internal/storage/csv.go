package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
)

// isoMillis matches the timestamp format of stored JSON dates.
const isoMillis = "2006-01-02T15:04:05.000Z"

type csvColumn struct {
	name   string
	text   func(models.DetailedAnalysisResult) string
	number func(models.DetailedAnalysisResult) float64
}

var analysisColumns = []csvColumn{
	{name: "Property ID", text: func(r models.DetailedAnalysisResult) string { return r.PropertyID }},
	{name: "Analysis Date", text: func(r models.DetailedAnalysisResult) string { return r.AnalysisDate.UTC().Format(isoMillis) }},
	{name: "Monthly Rent", number: func(r models.DetailedAnalysisResult) float64 { return r.FinancialMetrics.MonthlyRent }},
	{name: "Monthly Cash Flow", number: func(r models.DetailedAnalysisResult) float64 { return r.FinancialMetrics.MonthlyCashFlow }},
	{name: "Annual Cash Flow", number: func(r models.DetailedAnalysisResult) float64 { return r.FinancialMetrics.AnnualCashFlow }},
	{name: "Cash-on-Cash Return %", number: func(r models.DetailedAnalysisResult) float64 { return r.FinancialMetrics.CashOnCashReturn }},
	{name: "Cap Rate %", number: func(r models.DetailedAnalysisResult) float64 { return r.FinancialMetrics.CapRate }},
	{name: "Total Cash Invested", number: func(r models.DetailedAnalysisResult) float64 { return r.FinancialMetrics.TotalCashInvested }},
	{name: "Rent Source", text: func(r models.DetailedAnalysisResult) string { return string(r.RentalEstimate.Source) }},
	{name: "Rent Confidence", text: func(r models.DetailedAnalysisResult) string { return string(r.RentalEstimate.Confidence) }},
}

// ExportColumns returns the exportable analysis column names in canonical order.
func ExportColumns() []string {
	names := make([]string, len(analysisColumns))
	for i, c := range analysisColumns {
		names[i] = c.name
	}
	return names
}

// WriteAnalysisCSV writes results as CSV. include selects a subset of
// ExportColumns in the given order; unknown names are dropped and an empty
// include means all columns. Strings are always quoted, numbers never.
func WriteAnalysisCSV(w io.Writer, results []models.DetailedAnalysisResult, include []string) error {
	cols := selectColumns(include)
	if len(cols) == 0 {
		return fmt.Errorf("%w: no known export columns in %v", models.ErrValidation, include)
	}

	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(c.name)
	}
	for _, r := range results {
		b.WriteByte('\n')
		for i, c := range cols {
			if i > 0 {
				b.WriteByte(',')
			}
			if c.number != nil {
				b.WriteString(strconv.FormatFloat(c.number(r), 'f', -1, 64))
			} else {
				b.WriteString(quote(c.text(r)))
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func selectColumns(include []string) []csvColumn {
	if len(include) == 0 {
		return analysisColumns
	}
	var out []csvColumn
	for _, name := range include {
		for _, c := range analysisColumns {
			if c.name == strings.TrimSpace(name) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// PropertyCSVHeader is the column order of WritePropertiesCSV.
var PropertyCSVHeader = []string{
	"zpid", "address", "price", "bedrooms", "bathrooms", "livingArea",
	"lotAreaValue", "rentZestimate", "zestimate", "priceChange",
	"daysOnZillow", "listingStatus", "propertyType", "latitude", "longitude",
	"imgSrc", "detailUrl", "zipCode", "exportDate",
}

// ZipProperty pairs a listing with the zip code it was stored under.
type ZipProperty struct {
	ZipCode  string
	Property models.Property
}

// WritePropertiesCSV writes listings as CSV, quoting only when needed.
// Absent optional values are empty cells.
func WritePropertiesCSV(w io.Writer, rows []ZipProperty, exportedAt time.Time) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(PropertyCSVHeader); err != nil {
		return err
	}
	stamp := exportedAt.UTC().Format(isoMillis)
	for _, row := range rows {
		p := row.Property
		rec := []string{
			p.ZPID,
			p.Address,
			num(p.Price),
			strconv.Itoa(p.Bedrooms),
			num(p.Bathrooms),
			num(p.LivingArea),
			num(p.LotAreaValue),
			optNum(p.RentZestimate),
			optNum(p.Zestimate),
			optNum(p.PriceChange),
			strconv.Itoa(p.DaysOnZillow),
			p.ListingStatus,
			p.PropertyType,
			num(p.Latitude),
			num(p.Longitude),
			p.ImgSrc,
			p.DetailURL,
			row.ZipCode,
			stamp,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func optNum(v *float64) string {
	if v == nil {
		return ""
	}
	return num(*v)
}
