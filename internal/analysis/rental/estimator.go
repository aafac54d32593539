// Package rental chooses a monthly rent figure for a property from, in
// order of preference, the fair-market-rent reference table, the listing
// API's rent estimate, and a percentage of the purchase price.
package rental

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/srrmlwn/dealflowanalyzer.ai/internal/reference"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/utils"
)

// RentMatcher looks up reference rents. *reference.Matcher implements it.
type RentMatcher interface {
	Match(ctx context.Context, p models.Property) (models.ReferenceMatch, error)
}

// Estimator picks a rent estimate for a property. It never fails; lookup
// errors and panics are treated as "no reference match".
type Estimator struct {
	matcher RentMatcher
	logger  *slog.Logger
}

// NewEstimator creates an estimator. matcher may be nil, in which case the
// reference tier is skipped.
func NewEstimator(matcher RentMatcher, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{matcher: matcher, logger: logger}
}

// Estimate returns the first estimate that applies:
//  1. reference table match with positive rent, when cfg.Rental.UseHUDData
//  2. positive listing-API rent estimate (MEDIUM)
//  3. price × FallbackRentPercent / 100 / 12 (LOW)
//
// cfg is expected to have had ApplyDefaults applied.
func (e *Estimator) Estimate(ctx context.Context, p models.Property, cfg models.FinancialConfig) models.RentalEstimate {
	if cfg.Rental.UseHUDData && e.matcher != nil {
		match, err := e.lookup(ctx, p)
		if err != nil {
			e.logger.Warn("reference rent lookup failed", "zpid", p.ZPID, "error", err)
		} else if match.Matched && match.Rent > 0 {
			return models.RentalEstimate{
				MonthlyRent:    match.Rent,
				Source:         models.RentSourceReference,
				Confidence:     match.Confidence,
				ReferenceMatch: &match,
				Details:        fmt.Sprintf("HUD Fair Market Rent: $%s/month (%s)", formatAmount(match.Rent), match.MatchCriteria),
			}
		}
	}

	if p.HasRentZestimate() {
		rent := *p.RentZestimate
		return models.RentalEstimate{
			MonthlyRent: rent,
			Source:      models.RentSourceListingAPI,
			Confidence:  models.ConfidenceMedium,
			Details:     fmt.Sprintf("Zillow rent estimate: $%s/month", formatAmount(rent)),
		}
	}

	return Fallback(p, cfg)
}

// lookup calls the matcher, converting a panic into an error.
func (e *Estimator) lookup(ctx context.Context, p models.Property) (match models.ReferenceMatch, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &reference.ReferenceDataError{Op: "match", Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return e.matcher.Match(ctx, p)
}

// Fallback estimates rent as an annual percentage of the purchase price.
func Fallback(p models.Property, cfg models.FinancialConfig) models.RentalEstimate {
	pct := cfg.Rental.FallbackRentPercent
	monthly := p.Price * pct / 100 / 12
	return models.RentalEstimate{
		MonthlyRent: utils.Round2(monthly),
		Source:      models.RentSourceFallback,
		Confidence:  models.ConfidenceLow,
		Details:     fmt.Sprintf("Fallback estimate: %g%% of purchase price annually ($%.0f/month)", pct, math.Round(monthly)),
	}
}

func formatAmount(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
