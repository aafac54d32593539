// Package storage persists listings, analysis results, batch runs and error
// records. FileStore keeps them as JSON files under a data directory;
// PGStore keeps analysis results and batch runs in Postgres.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/utils"
)

// ErrNotFound is returned when the requested snapshot does not exist.
var ErrNotFound = errors.New("not found")

// DateLatest selects the newest stored date.
const DateLatest = "latest"

// UnknownZip groups results whose address has no parseable zip code.
const UnknownZip = "unknown"

// ResultStore persists analysis output.
type ResultStore interface {
	// SaveBatch stores the batch run and its results grouped by zip code.
	SaveBatch(ctx context.Context, batch models.BatchAnalysisResult) error

	// LoadBatch returns a stored batch run by ID.
	LoadBatch(ctx context.Context, id string) (models.BatchAnalysisResult, error)

	// SaveResults stores results for one zip code under today's date.
	SaveResults(ctx context.Context, zip string, results []models.DetailedAnalysisResult, buybox string) error

	// LoadResults returns results for a zip code and date ("" is today,
	// DateLatest is the newest). An empty buybox returns every snapshot.
	LoadResults(ctx context.Context, zip, date, buybox string) ([]models.DetailedAnalysisResult, error)

	// QueryResults returns stored results matching f.
	QueryResults(ctx context.Context, f Filter) ([]models.DetailedAnalysisResult, error)

	// AnalysisZipCodes lists zip codes with stored results, ascending.
	AnalysisZipCodes(ctx context.Context) ([]string, error)
}

// Filter selects stored analysis results. Zero values are ignored; the
// numeric bounds are pointers so that zero is a usable bound.
type Filter struct {
	ZipCodes    []string `json:"zipCodes,omitempty"`
	StartDate   string   `json:"startDate,omitempty"` // YYYY-MM-DD, inclusive
	EndDate     string   `json:"endDate,omitempty"`   // YYYY-MM-DD, inclusive
	MinCashFlow *float64 `json:"minCashFlow,omitempty"`
	MaxPrice    *float64 `json:"maxPrice,omitempty"`
	MinROI      *float64 `json:"minROI,omitempty"`
	BuyboxName  string   `json:"buyboxName,omitempty"`
}

// Validate checks the date bounds.
func (f Filter) Validate() error {
	for _, d := range []string{f.StartDate, f.EndDate} {
		if d == "" {
			continue
		}
		if _, err := utils.ParseDateKey(d); err != nil {
			return fmt.Errorf("%w: invalid date %q, want YYYY-MM-DD", models.ErrValidation, d)
		}
	}
	if f.StartDate != "" && f.EndDate != "" && f.StartDate > f.EndDate {
		return fmt.Errorf("%w: startDate is after endDate", models.ErrValidation)
	}
	return nil
}

func (f Filter) dateInRange(date string) bool {
	if f.StartDate != "" && date < f.StartDate {
		return false
	}
	if f.EndDate != "" && date > f.EndDate {
		return false
	}
	return true
}

func (f Filter) matches(r models.DetailedAnalysisResult) bool {
	m := r.FinancialMetrics
	if f.MinCashFlow != nil && m.AnnualCashFlow < *f.MinCashFlow {
		return false
	}
	if f.MinROI != nil && m.CashOnCashReturn < *f.MinROI {
		return false
	}
	if f.MaxPrice != nil && r.PurchasePrice > *f.MaxPrice {
		return false
	}
	return true
}

// ZipOf returns the zip code a result is filed under.
func ZipOf(r models.DetailedAnalysisResult) string {
	if r.ZipCode != "" {
		return r.ZipCode
	}
	if zip := utils.ExtractZipCode(r.Address); zip != "" {
		return zip
	}
	return UnknownZip
}

// GroupByZip splits results by ZipOf, returning zip codes in first-seen order.
func GroupByZip(results []models.DetailedAnalysisResult) ([]string, map[string][]models.DetailedAnalysisResult) {
	var order []string
	groups := make(map[string][]models.DetailedAnalysisResult)
	for _, r := range results {
		zip := ZipOf(r)
		if _, ok := groups[zip]; !ok {
			order = append(order, zip)
		}
		groups[zip] = append(groups[zip], r)
	}
	return order, groups
}

// GroupPropertiesByZip splits listings by the zip in their address.
func GroupPropertiesByZip(props []models.Property) ([]string, map[string][]models.Property) {
	var order []string
	groups := make(map[string][]models.Property)
	for _, p := range props {
		zip := utils.ExtractZipCode(p.Address)
		if zip == "" {
			zip = UnknownZip
		}
		if _, ok := groups[zip]; !ok {
			order = append(order, zip)
		}
		groups[zip] = append(groups[zip], p)
	}
	return order, groups
}

// checkName rejects names that would escape the data directory.
func checkName(kind, name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: invalid %s %q", models.ErrValidation, kind, name)
	}
	return nil
}
