// Package models defines the core data structures used throughout dealflow.
package models

import (
	"fmt"
	"strings"
)

// PropertyType is a listing-API home type.
type PropertyType string

const (
	PropertySingleFamily PropertyType = "SINGLE_FAMILY"
	PropertyCondo        PropertyType = "CONDO"
	PropertyTownhouse    PropertyType = "TOWNHOUSE"
	PropertyMultiFamily  PropertyType = "MULTI_FAMILY"
	PropertyApartment    PropertyType = "APARTMENT"
	PropertyManufactured PropertyType = "MANUFACTURED"
	PropertyLot          PropertyType = "LOT"
	PropertyLand         PropertyType = "LAND"
)

// Property is a for-sale listing as returned by the listing API.
// Optional numeric fields are pointers; nil or zero both count as absent.
type Property struct {
	ZPID             string   `json:"zpid"`
	Address          string   `json:"address"`
	Price            float64  `json:"price"`
	Bedrooms         int      `json:"bedrooms"`
	Bathrooms        float64  `json:"bathrooms"`
	LivingArea       float64  `json:"livingArea"`
	LotAreaValue     float64  `json:"lotAreaValue,omitempty"`
	LotAreaUnit      string   `json:"lotAreaUnit,omitempty"`
	PropertyType     string   `json:"propertyType,omitempty"`
	ListingStatus    string   `json:"listingStatus,omitempty"`
	Latitude         float64  `json:"latitude,omitempty"`
	Longitude        float64  `json:"longitude,omitempty"`
	ImgSrc           string   `json:"imgSrc,omitempty"`
	RentZestimate    *float64 `json:"rentZestimate,omitempty"`
	Zestimate        *float64 `json:"zestimate,omitempty"`
	PriceChange      *float64 `json:"priceChange,omitempty"`
	DatePriceChanged *int64   `json:"datePriceChanged,omitempty"` // epoch millis
	DaysOnZillow     int      `json:"daysOnZillow,omitempty"`
	DetailURL        string   `json:"detailUrl,omitempty"`
	Country          string   `json:"country,omitempty"`
	Currency         string   `json:"currency,omitempty"`
}

// HasRentZestimate reports whether the listing API supplied a positive rent estimate.
func (p Property) HasRentZestimate() bool {
	return p.RentZestimate != nil && *p.RentZestimate > 0
}

// HasZestimate reports whether a non-zero value estimate is present.
func (p Property) HasZestimate() bool {
	return p.Zestimate != nil && *p.Zestimate != 0
}

// HasPriceChange reports whether a non-zero price change is present.
func (p Property) HasPriceChange() bool {
	return p.PriceChange != nil && *p.PriceChange != 0
}

// MissingOptionalFields lists the optional listing fields that are absent,
// in a fixed order: rentZestimate, zestimate, imgSrc, priceChange, datePriceChanged.
func (p Property) MissingOptionalFields() []string {
	missing := make([]string, 0, 5)
	if p.RentZestimate == nil || *p.RentZestimate == 0 {
		missing = append(missing, "rentZestimate")
	}
	if !p.HasZestimate() {
		missing = append(missing, "zestimate")
	}
	if p.ImgSrc == "" {
		missing = append(missing, "imgSrc")
	}
	if !p.HasPriceChange() {
		missing = append(missing, "priceChange")
	}
	if p.DatePriceChanged == nil || *p.DatePriceChanged == 0 {
		missing = append(missing, "datePriceChanged")
	}
	return missing
}

// Validate checks the fields the analysis engine depends on.
// It returns an error wrapping ErrValidation.
func (p Property) Validate() error {
	problems := p.problems()
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: property %q: %s", ErrValidation, p.ZPID, strings.Join(problems, "; "))
}

func (p Property) problems() []string {
	var problems []string
	if strings.TrimSpace(p.ZPID) == "" {
		problems = append(problems, "zpid is required")
	}
	if strings.TrimSpace(p.Address) == "" {
		problems = append(problems, "address is required")
	}
	if p.Price <= 0 {
		problems = append(problems, "price must be positive")
	}
	if p.LivingArea <= 0 {
		problems = append(problems, "livingArea must be positive")
	}
	return problems
}

// PropertyQualityReport summarizes a ValidateProperties pass.
type PropertyQualityReport struct {
	Total                int            `json:"total"`
	Valid                int            `json:"valid"`
	Invalid              int            `json:"invalid"`
	MissingRentZestimate int            `json:"missingRentZestimate"`
	MissingZestimate     int            `json:"missingZestimate"`
	MissingImages        int            `json:"missingImages"`
	InvalidReasons       map[string]int `json:"invalidReasons,omitempty"`
}

// ValidateProperties splits properties into valid and invalid sets,
// preserving input order, and counts missing optional data.
func ValidateProperties(props []Property) (valid, invalid []Property, report PropertyQualityReport) {
	report.Total = len(props)
	report.InvalidReasons = make(map[string]int)
	for _, p := range props {
		if problems := p.problems(); len(problems) > 0 {
			invalid = append(invalid, p)
			for _, reason := range problems {
				report.InvalidReasons[reason]++
			}
			continue
		}
		valid = append(valid, p)
		if !p.HasRentZestimate() {
			report.MissingRentZestimate++
		}
		if !p.HasZestimate() {
			report.MissingZestimate++
		}
		if p.ImgSrc == "" {
			report.MissingImages++
		}
	}
	report.Valid = len(valid)
	report.Invalid = len(invalid)
	return valid, invalid, report
}

// Range is an optional numeric bound pair; nil means unbounded.
type Range struct {
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty" mapstructure:"min"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty" mapstructure:"max"`
}

// Buybox is a named filter profile used to source candidate properties.
type Buybox struct {
	Name          string         `json:"name"                    yaml:"name"           mapstructure:"name"`
	ZipCodes      []string       `json:"zipCodes"                yaml:"zip_codes"      mapstructure:"zip_codes"`
	PropertyTypes []PropertyType `json:"propertyTypes,omitempty" yaml:"property_types" mapstructure:"property_types"`
	PriceRange    Range          `json:"priceRange"              yaml:"price_range"    mapstructure:"price_range"`
	Bedrooms      Range          `json:"bedrooms"                yaml:"bedrooms"       mapstructure:"bedrooms"`
	Bathrooms     Range          `json:"bathrooms"               yaml:"bathrooms"      mapstructure:"bathrooms"`
	SquareFeet    Range          `json:"squareFeet"              yaml:"square_feet"    mapstructure:"square_feet"`
	YearBuilt     Range          `json:"yearBuilt"               yaml:"year_built"     mapstructure:"year_built"`
	DaysOnMarket  string         `json:"daysOnMarket,omitempty"  yaml:"days_on_market" mapstructure:"days_on_market"` // "1", "7", "30", "6m", ...
	StatusType    string         `json:"statusType,omitempty"    yaml:"status_type"    mapstructure:"status_type"`    // ForSale when empty
}

// Validate checks that the buybox can be used for a search.
func (b Buybox) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("%w: buybox name is required", ErrConfiguration)
	}
	if len(b.ZipCodes) == 0 {
		return fmt.Errorf("%w: buybox %q has no zip codes", ErrConfiguration, b.Name)
	}
	if b.PriceRange.Min != nil && b.PriceRange.Max != nil && *b.PriceRange.Min > *b.PriceRange.Max {
		return fmt.Errorf("%w: buybox %q price range min exceeds max", ErrConfiguration, b.Name)
	}
	return nil
}
