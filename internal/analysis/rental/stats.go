package rental

import (
	"context"
	"fmt"

	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/utils"
)

// Range is a min/max pair.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// EstimationStats summarizes rent estimates over a set of properties.
type EstimationStats struct {
	TotalProperties     int                       `json:"totalProperties"`
	HUDMatches          int                       `json:"hudMatches"`
	ZillowEstimates     int                       `json:"zillowEstimates"`
	FallbackEstimates   int                       `json:"fallbackEstimates"`
	AverageRent         float64                   `json:"averageRent"`
	RentRange           Range                     `json:"rentRange"`
	SourceBreakdown     map[models.RentSource]int `json:"sourceBreakdown"`
	ConfidenceBreakdown map[models.Confidence]int `json:"confidenceBreakdown"`
}

// Stats estimates every property and aggregates the outcomes.
// Average and range consider positive rents only.
func (e *Estimator) Stats(ctx context.Context, props []models.Property, cfg models.FinancialConfig) EstimationStats {
	s := EstimationStats{
		TotalProperties:     len(props),
		SourceBreakdown:     make(map[models.RentSource]int),
		ConfidenceBreakdown: make(map[models.Confidence]int),
	}

	var total float64
	var counted int
	for _, p := range props {
		est := e.Estimate(ctx, p, cfg)
		s.SourceBreakdown[est.Source]++
		s.ConfidenceBreakdown[est.Confidence]++
		if est.MonthlyRent <= 0 {
			continue
		}
		if counted == 0 {
			s.RentRange = Range{Min: est.MonthlyRent, Max: est.MonthlyRent}
		} else {
			s.RentRange.Min = min(s.RentRange.Min, est.MonthlyRent)
			s.RentRange.Max = max(s.RentRange.Max, est.MonthlyRent)
		}
		total += est.MonthlyRent
		counted++
	}

	s.HUDMatches = s.SourceBreakdown[models.RentSourceReference]
	s.ZillowEstimates = s.SourceBreakdown[models.RentSourceListingAPI]
	s.FallbackEstimates = s.SourceBreakdown[models.RentSourceFallback]
	if counted > 0 {
		s.AverageRent = utils.Round2(total / float64(counted))
	}
	return s
}

// Validation reports whether an estimate looks plausible for the property.
type Validation struct {
	IsReasonable bool     `json:"isReasonable"`
	Warnings     []string `json:"warnings"`
	Suggestions  []string `json:"suggestions"`
}

// Validate checks the monthly rent-to-price ratio (0.3% to 3%) and rent per
// square foot ($0.50 to $5), and suggests follow-ups for weak sources.
func Validate(p models.Property, est models.RentalEstimate) Validation {
	v := Validation{Warnings: []string{}, Suggestions: []string{}}

	if p.Price > 0 {
		ratio := est.MonthlyRent / p.Price * 100
		switch {
		case ratio < 0.3:
			v.Warnings = append(v.Warnings, fmt.Sprintf("Very low rent-to-price ratio: %.2f%% (typical range: 0.5-2%%)", ratio))
			v.Suggestions = append(v.Suggestions, "Consider reviewing rental market data or property condition")
		case ratio > 3:
			v.Warnings = append(v.Warnings, fmt.Sprintf("Very high rent-to-price ratio: %.2f%% (typical range: 0.5-2%%)", ratio))
			v.Suggestions = append(v.Suggestions, "Verify property price and rental estimate accuracy")
		}
	}

	if p.LivingArea > 0 {
		perSqFt := est.MonthlyRent / p.LivingArea
		switch {
		case perSqFt < 0.5:
			v.Warnings = append(v.Warnings, fmt.Sprintf("Low rent per sq ft: $%.2f", perSqFt))
		case perSqFt > 5:
			v.Warnings = append(v.Warnings, fmt.Sprintf("High rent per sq ft: $%.2f", perSqFt))
		}
	}

	if est.Confidence == models.ConfidenceLow {
		v.Suggestions = append(v.Suggestions, "Consider getting professional rental market analysis")
	}
	if est.Source == models.RentSourceFallback {
		v.Suggestions = append(v.Suggestions, "Try to obtain actual rental comps for more accurate estimates")
	}

	v.IsReasonable = len(v.Warnings) == 0 && est.MonthlyRent > 0
	return v
}
