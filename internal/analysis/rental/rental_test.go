package rental

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
)

type fakeMatcher struct {
	match models.ReferenceMatch
	err   error
	panic bool
	calls int
}

func (f *fakeMatcher) Match(_ context.Context, _ models.Property) (models.ReferenceMatch, error) {
	f.calls++
	if f.panic {
		panic("boom")
	}
	return f.match, f.err
}

func ptr[T any](v T) *T { return &v }

func testConfig(useRef bool) models.FinancialConfig {
	cfg := models.FinancialConfig{}.ApplyDefaults()
	cfg.Rental.UseHUDData = useRef
	cfg.Rental.FallbackRentPercent = 0.8
	return cfg
}

func testProperty() models.Property {
	return models.Property{
		ZPID:       "1",
		Address:    "1 Main St, Austin, TX 78701",
		Price:      150000,
		Bedrooms:   3,
		LivingArea: 1500,
	}
}

func hit(rent float64, conf models.Confidence) models.ReferenceMatch {
	return models.ReferenceMatch{
		Matched:       true,
		Rent:          rent,
		MatchCriteria: "Exact match: 78701, 3 bedrooms, 2024",
		Confidence:    conf,
		Record:        &models.ReferenceRentRecord{ZipCode: "78701", Bedrooms: 3, FairMarketRent: rent, Year: 2024},
	}
}

func TestEstimatePriority(t *testing.T) {
	withZest := testProperty()
	withZest.RentZestimate = ptr(1450.0)

	tests := []struct {
		name       string
		prop       models.Property
		matcher    *fakeMatcher
		useRef     bool
		wantSource models.RentSource
		wantConf   models.Confidence
		wantRent   float64
	}{
		{"reference wins", withZest, &fakeMatcher{match: hit(1650, models.ConfidenceHigh)}, true, models.RentSourceReference, models.ConfidenceHigh, 1650},
		{"reference medium confidence kept", withZest, &fakeMatcher{match: hit(1500, models.ConfidenceMedium)}, true, models.RentSourceReference, models.ConfidenceMedium, 1500},
		{"reference disabled", withZest, &fakeMatcher{match: hit(1650, models.ConfidenceHigh)}, false, models.RentSourceListingAPI, models.ConfidenceMedium, 1450},
		{"no reference match", withZest, &fakeMatcher{match: models.ReferenceMatch{Confidence: models.ConfidenceLow}}, true, models.RentSourceListingAPI, models.ConfidenceMedium, 1450},
		{"zero reference rent", withZest, &fakeMatcher{match: hit(0, models.ConfidenceHigh)}, true, models.RentSourceListingAPI, models.ConfidenceMedium, 1450},
		{"lookup error", withZest, &fakeMatcher{err: errors.New("io")}, true, models.RentSourceListingAPI, models.ConfidenceMedium, 1450},
		{"lookup panic", withZest, &fakeMatcher{panic: true}, true, models.RentSourceListingAPI, models.ConfidenceMedium, 1450},
		{"fallback", testProperty(), &fakeMatcher{}, true, models.RentSourceFallback, models.ConfidenceLow, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEstimator(tt.matcher, nil)
			got := e.Estimate(context.Background(), tt.prop, testConfig(tt.useRef))
			if got.Source != tt.wantSource {
				t.Errorf("Source = %v, want %v", got.Source, tt.wantSource)
			}
			if got.Confidence != tt.wantConf {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tt.wantConf)
			}
			if got.MonthlyRent != tt.wantRent {
				t.Errorf("MonthlyRent = %v, want %v", got.MonthlyRent, tt.wantRent)
			}
			if got.Details == "" {
				t.Error("Details is empty")
			}
			if (got.Source == models.RentSourceReference) != (got.ReferenceMatch != nil) {
				t.Errorf("ReferenceMatch presence = %v for source %v", got.ReferenceMatch != nil, got.Source)
			}
		})
	}
}

func TestEstimateSkipsMatcherWhenDisabled(t *testing.T) {
	m := &fakeMatcher{match: hit(1650, models.ConfidenceHigh)}
	NewEstimator(m, nil).Estimate(context.Background(), testProperty(), testConfig(false))
	if m.calls != 0 {
		t.Errorf("matcher calls = %d, want 0", m.calls)
	}
}

func TestEstimateNilMatcher(t *testing.T) {
	got := NewEstimator(nil, nil).Estimate(context.Background(), testProperty(), testConfig(true))
	if got.Source != models.RentSourceFallback {
		t.Errorf("Source = %v, want FALLBACK", got.Source)
	}
}

func TestEstimateDetails(t *testing.T) {
	p := testProperty()
	p.RentZestimate = ptr(1450.0)
	got := NewEstimator(nil, nil).Estimate(context.Background(), p, testConfig(false))
	if got.Details != "Zillow rent estimate: $1450/month" {
		t.Errorf("Details = %q", got.Details)
	}

	fb := Fallback(testProperty(), testConfig(false))
	if fb.Details != "Fallback estimate: 0.8% of purchase price annually ($100/month)" {
		t.Errorf("fallback Details = %q", fb.Details)
	}

	ref := NewEstimator(&fakeMatcher{match: hit(1650, models.ConfidenceHigh)}, nil).
		Estimate(context.Background(), testProperty(), testConfig(true))
	if !strings.HasPrefix(ref.Details, "HUD Fair Market Rent: $1650/month (Exact match") {
		t.Errorf("reference Details = %q", ref.Details)
	}
}

func TestFallbackRounding(t *testing.T) {
	p := testProperty()
	p.Price = 123457
	got := Fallback(p, testConfig(false))
	// 123457 * 0.8 / 100 / 12 = 82.304666...
	if got.MonthlyRent != 82.3 {
		t.Errorf("MonthlyRent = %v, want 82.3", got.MonthlyRent)
	}
}

func TestStats(t *testing.T) {
	withZest := testProperty()
	withZest.RentZestimate = ptr(1400.0)
	zeroPrice := testProperty()
	zeroPrice.Price = 0

	props := []models.Property{testProperty(), withZest, zeroPrice}
	s := NewEstimator(nil, nil).Stats(context.Background(), props, testConfig(false))

	if s.TotalProperties != 3 {
		t.Errorf("TotalProperties = %d, want 3", s.TotalProperties)
	}
	if s.ZillowEstimates != 1 || s.FallbackEstimates != 2 || s.HUDMatches != 0 {
		t.Errorf("counts = %d/%d/%d, want 0/1/2", s.HUDMatches, s.ZillowEstimates, s.FallbackEstimates)
	}
	if s.AverageRent != 750 {
		t.Errorf("AverageRent = %v, want 750", s.AverageRent)
	}
	if s.RentRange.Min != 100 || s.RentRange.Max != 1400 {
		t.Errorf("RentRange = %+v, want {100 1400}", s.RentRange)
	}
	if s.ConfidenceBreakdown[models.ConfidenceLow] != 2 {
		t.Errorf("LOW count = %d, want 2", s.ConfidenceBreakdown[models.ConfidenceLow])
	}
}

func TestStatsEmpty(t *testing.T) {
	s := NewEstimator(nil, nil).Stats(context.Background(), nil, testConfig(false))
	if s.TotalProperties != 0 || s.AverageRent != 0 {
		t.Errorf("empty stats = %+v", s)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		rent        float64
		source      models.RentSource
		conf        models.Confidence
		wantOK      bool
		wantWarn    int
		wantSuggest int
	}{
		{"reasonable", 1500, models.RentSourceListingAPI, models.ConfidenceMedium, true, 0, 0},
		{"low ratio and low per sqft", 300, models.RentSourceListingAPI, models.ConfidenceMedium, false, 2, 1},
		{"high ratio", 6000, models.RentSourceListingAPI, models.ConfidenceMedium, false, 1, 1},
		{"fallback low confidence", 1500, models.RentSourceFallback, models.ConfidenceLow, true, 0, 2},
		{"zero rent", 0, models.RentSourceFallback, models.ConfidenceLow, false, 2, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := models.RentalEstimate{MonthlyRent: tt.rent, Source: tt.source, Confidence: tt.conf}
			got := Validate(testProperty(), est)
			if got.IsReasonable != tt.wantOK {
				t.Errorf("IsReasonable = %v, want %v", got.IsReasonable, tt.wantOK)
			}
			if len(got.Warnings) != tt.wantWarn {
				t.Errorf("Warnings = %v, want %d", got.Warnings, tt.wantWarn)
			}
			if len(got.Suggestions) != tt.wantSuggest {
				t.Errorf("Suggestions = %v, want %d", got.Suggestions, tt.wantSuggest)
			}
		})
	}
}
