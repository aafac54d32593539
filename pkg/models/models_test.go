package models

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

// ── Property Tests ──

func TestMissingOptionalFields(t *testing.T) {
	full := Property{
		ZPID:             "1",
		RentZestimate:    ptr(1500.0),
		Zestimate:        ptr(210000.0),
		ImgSrc:           "https://img.example/1.jpg",
		PriceChange:      ptr(-5000.0),
		DatePriceChanged: ptr(int64(1700000000000)),
	}
	if got := full.MissingOptionalFields(); len(got) != 0 {
		t.Errorf("full property: missing = %v, want none", got)
	}

	// Zero values count as absent.
	sparse := Property{ZPID: "2", Zestimate: ptr(0.0), PriceChange: ptr(0.0)}
	want := []string{"rentZestimate", "zestimate", "imgSrc", "priceChange", "datePriceChanged"}
	if got := sparse.MissingOptionalFields(); !reflect.DeepEqual(got, want) {
		t.Errorf("sparse property: missing = %v, want %v", got, want)
	}
	if sparse.HasZestimate() || sparse.HasPriceChange() || sparse.HasRentZestimate() {
		t.Error("sparse property should report no optional estimates")
	}
}

func TestPropertyValidate(t *testing.T) {
	good := Property{ZPID: "1", Address: "1 A St, Austin, TX 78701", Price: 100000, LivingArea: 900}
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate(good) = %v", err)
	}

	bad := Property{ZPID: "2", Address: "x", Price: 0, LivingArea: -1}
	err := bad.Validate()
	if err == nil {
		t.Fatal("Validate(bad) = nil, want error")
	}
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Validate(bad) error %v does not wrap ErrValidation", err)
	}
}

func TestValidateProperties(t *testing.T) {
	props := []Property{
		{ZPID: "1", Address: "a, TX 78701", Price: 100000, LivingArea: 900, RentZestimate: ptr(1000.0)},
		{ZPID: "2", Address: "b, TX 78701", Price: 0, LivingArea: 900},
		{ZPID: "3", Address: "c, TX 78702", Price: 120000, LivingArea: 1100, ImgSrc: "x"},
	}
	valid, invalid, report := ValidateProperties(props)
	if len(valid) != 2 || len(invalid) != 1 {
		t.Fatalf("valid=%d invalid=%d, want 2/1", len(valid), len(invalid))
	}
	if valid[0].ZPID != "1" || valid[1].ZPID != "3" {
		t.Errorf("valid order = %s,%s", valid[0].ZPID, valid[1].ZPID)
	}
	if report.Total != 3 || report.Valid != 2 || report.Invalid != 1 {
		t.Errorf("report counts = %+v", report)
	}
	if report.MissingRentZestimate != 1 || report.MissingZestimate != 2 || report.MissingImages != 1 {
		t.Errorf("report missing counts = %+v", report)
	}
	if report.InvalidReasons["price must be positive"] != 1 {
		t.Errorf("InvalidReasons = %v", report.InvalidReasons)
	}
}

// ── Buybox Tests ──

func TestBuyboxValidate(t *testing.T) {
	tests := []struct {
		name    string
		box     Buybox
		wantErr bool
	}{
		{"ok", Buybox{Name: "austin", ZipCodes: []string{"78701"}}, false},
		{"no name", Buybox{ZipCodes: []string{"78701"}}, true},
		{"no zips", Buybox{Name: "empty"}, true},
		{"inverted price", Buybox{Name: "x", ZipCodes: []string{"78701"}, PriceRange: Range{Min: ptr(500000.0), Max: ptr(100000.0)}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.box.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfiguration) {
				t.Errorf("error %v does not wrap ErrConfiguration", err)
			}
		})
	}
}

// ── FinancialConfig Tests ──

func TestFinancialConfigApplyDefaults(t *testing.T) {
	cfg := FinancialConfig{}.ApplyDefaults()
	if cfg.Rental.FallbackRentPercent != DefaultFallbackRentPercent {
		t.Errorf("FallbackRentPercent: got %v, want %v", cfg.Rental.FallbackRentPercent, DefaultFallbackRentPercent)
	}
	if cfg.Rental.HUDDataPath != DefaultReferenceDataPath {
		t.Errorf("HUDDataPath: got %q, want %q", cfg.Rental.HUDDataPath, DefaultReferenceDataPath)
	}

	custom := FinancialConfig{Rental: RentalConfig{FallbackRentPercent: 1.1, HUDDataPath: "/tmp/hud.json"}}.ApplyDefaults()
	if custom.Rental.FallbackRentPercent != 1.1 || custom.Rental.HUDDataPath != "/tmp/hud.json" {
		t.Errorf("explicit values overwritten: %+v", custom.Rental)
	}
}

func TestFinancialConfigValidate(t *testing.T) {
	valid := FinancialConfig{
		Mortgage:     MortgageConfig{InterestRate: 7.5, DownPaymentPercent: 20, LoanTermYears: 30},
		Appreciation: AppreciationConfig{AnnualAppreciationPercent: -1, HoldingPeriodYears: 5},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate(valid) = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*FinancialConfig)
	}{
		{"zero term", func(c *FinancialConfig) { c.Mortgage.LoanTermYears = 0 }},
		{"negative rate", func(c *FinancialConfig) { c.Mortgage.InterestRate = -1 }},
		{"down over 100", func(c *FinancialConfig) { c.Mortgage.DownPaymentPercent = 120 }},
		{"NaN vacancy", func(c *FinancialConfig) { c.OperatingExpenses.VacancyRate = math.NaN() }},
		{"negative hold", func(c *FinancialConfig) { c.Appreciation.HoldingPeriodYears = -3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("Validate() = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestFinancialConfigJSONNames(t *testing.T) {
	raw := `{
		"mortgage": {"interestRate": 7.5, "downPaymentPercent": 20, "loanTermYears": 30, "points": 1},
		"operatingExpenses": {"propertyManagementPercent": 10, "maintenancePercent": 8, "vacancyRate": 5,
			"insurancePercent": 0.5, "propertyTaxPercent": 1.2, "hoaFees": 50},
		"appreciation": {"annualAppreciationPercent": 3, "holdingPeriodYears": 10},
		"rental": {"useHudData": true, "fallbackRentPercent": 0.9}
	}`
	var cfg FinancialConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if cfg.Mortgage.Points != 1 || cfg.OperatingExpenses.HOAFees != 50 || !cfg.Rental.UseHUDData {
		t.Errorf("decoded config = %+v", cfg)
	}
}

// ── Batch Result Tests ──

func TestBatchAnalysisResultJSON(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	batch := BatchAnalysisResult{
		Timestamp:          ts,
		ZipCodes:           []string{"78701"},
		TotalProperties:    2,
		SuccessfulAnalyses: 1,
		FailedAnalyses:     1,
		Results: []DetailedAnalysisResult{{
			PropertyID:   "1",
			AnalysisDate: ts,
			RentalEstimate: RentalEstimate{
				MonthlyRent: 1200, Source: RentSourceListingAPI, Confidence: ConfidenceMedium,
			},
			DataQuality: DataQuality{MissingDataFields: []string{"imgSrc"}},
		}},
		Errors: []ErrorRecord{{
			Timestamp: ts, PropertyID: "2", ErrorType: ErrorTypeAnalysis, ErrorMessage: "boom",
			Context: &ErrorContext{ZipCode: "78701", Operation: "batch_analysis"},
		}},
		Summary: BatchSummary{TopPerformers: []string{"1"}},
	}

	data, err := json.Marshal(batch)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	var decoded BatchAnalysisResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(decoded, batch) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, batch)
	}

	var generic map[string]any
	_ = json.Unmarshal(data, &generic)
	for _, key := range []string{"results", "errors", "summary", "successfulAnalyses"} {
		if _, ok := generic[key]; !ok {
			t.Errorf("JSON missing key %q", key)
		}
	}
}
