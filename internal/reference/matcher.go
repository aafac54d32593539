package reference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/utils"
)

// Table is an immutable, indexed snapshot of the reference records.
type Table struct {
	Records  []models.ReferenceRentRecord
	LoadedAt time.Time
	byZip    map[string][]int // record indexes in input order
}

func newTable(records []models.ReferenceRentRecord) *Table {
	t := &Table{
		Records:  records,
		LoadedAt: time.Now().UTC(),
		byZip:    make(map[string][]int),
	}
	for i, r := range records {
		t.byZip[r.ZipCode] = append(t.byZip[r.ZipCode], i)
	}
	return t
}

// Matcher looks up fair market rents. The table is loaded on first use and
// cached; Reload replaces it atomically so readers never see a partial table.
type Matcher struct {
	source Source
	logger *slog.Logger

	loadMu sync.Mutex
	table  atomic.Pointer[Table] // nil until loaded
}

// NewMatcher creates a matcher over the given source.
func NewMatcher(source Source, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{source: source, logger: logger}
}

// Loaded reports whether a table has been installed.
func (m *Matcher) Loaded() bool {
	return m.table.Load() != nil
}

// Available reports whether a loaded table has at least one record.
func (m *Matcher) Available() bool {
	t := m.table.Load()
	return t != nil && len(t.Records) > 0
}

// Load loads the table if it is not loaded yet and returns any load error
// to the caller. On failure an empty table is cached so later lookups do
// not retry.
func (m *Matcher) Load(ctx context.Context) error {
	if m.table.Load() != nil {
		return nil
	}
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if m.table.Load() != nil {
		return nil
	}
	_, err := m.fetch(ctx)
	return err
}

// Reload fetches the table again and swaps it in. On failure the current
// table is kept and the error is returned.
func (m *Matcher) Reload(ctx context.Context) error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	records, err := m.source.Load(ctx)
	if err != nil {
		return err
	}
	m.table.Store(newTable(records))
	m.logger.Info("reference data reloaded", "records", len(records))
	return nil
}

// fetch loads from the source and installs the result, or an empty table
// on error. Must be called with loadMu held.
func (m *Matcher) fetch(ctx context.Context) (*Table, error) {
	records, err := m.source.Load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		t := newTable(nil)
		m.table.Store(t)
		return t, err
	}
	t := newTable(records)
	m.table.Store(t)
	return t, nil
}

// current returns the cached table, loading it lazily. Absent or broken
// data degrades to an empty table with a warning.
func (m *Matcher) current(ctx context.Context) (*Table, error) {
	if t := m.table.Load(); t != nil {
		return t, nil
	}
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if t := m.table.Load(); t != nil {
		return t, nil
	}
	t, err := m.fetch(ctx)
	if t == nil {
		return nil, err
	}
	if err != nil {
		if errors.Is(err, ErrDataNotFound) {
			m.logger.Warn("reference data file not found, continuing without it", "error", err)
		} else {
			m.logger.Warn("reference data failed to load, continuing without it", "error", err)
		}
	}
	return t, nil
}

// Match finds the fair market rent for a property:
//  1. same zip and bedroom count, most recent year (HIGH)
//  2. same zip, nearest bedroom count, most recent year (MEDIUM)
//  3. otherwise no match (LOW)
func (m *Matcher) Match(ctx context.Context, p models.Property) (models.ReferenceMatch, error) {
	t, err := m.current(ctx)
	if err != nil {
		return models.ReferenceMatch{}, &ReferenceDataError{Op: "match", Err: err}
	}
	return t.Match(p), nil
}

// Match runs the lookup against this table snapshot.
func (t *Table) Match(p models.Property) models.ReferenceMatch {
	if len(t.Records) == 0 {
		return noMatch("No reference rent data available")
	}

	zip := utils.ExtractZipCode(p.Address)
	if zip == "" {
		return noMatch("Could not extract zip code from property address")
	}

	candidates := t.byZip[zip]
	if len(candidates) == 0 {
		return noMatch(fmt.Sprintf("No reference rent data found for zip code %s", zip))
	}

	if best, ok := t.latestWithBedrooms(candidates, p.Bedrooms); ok {
		return models.ReferenceMatch{
			Matched:       true,
			Rent:          best.FairMarketRent,
			MatchCriteria: fmt.Sprintf("Exact match: %s, %d bedrooms, %d", zip, p.Bedrooms, best.Year),
			Confidence:    models.ConfidenceHigh,
			Record:        &best,
		}
	}

	closest := t.Records[candidates[0]]
	for _, idx := range candidates[1:] {
		cur := t.Records[idx]
		if absInt(cur.Bedrooms-p.Bedrooms) < absInt(closest.Bedrooms-p.Bedrooms) {
			closest = cur
		}
	}
	best, _ := t.latestWithBedrooms(candidates, closest.Bedrooms)
	return models.ReferenceMatch{
		Matched: true,
		Rent:    best.FairMarketRent,
		MatchCriteria: fmt.Sprintf("Fallback match: %s, %d bedrooms (property has %d), %d",
			zip, best.Bedrooms, p.Bedrooms, best.Year),
		Confidence: models.ConfidenceMedium,
		Record:     &best,
	}
}

// latestWithBedrooms returns the most recent record among candidates with
// the given bedroom count; the first one wins on equal years.
func (t *Table) latestWithBedrooms(candidates []int, bedrooms int) (models.ReferenceRentRecord, bool) {
	var best models.ReferenceRentRecord
	found := false
	for _, idx := range candidates {
		r := t.Records[idx]
		if r.Bedrooms != bedrooms {
			continue
		}
		if !found || r.Year > best.Year {
			best = r
			found = true
		}
	}
	return best, found
}

func noMatch(criteria string) models.ReferenceMatch {
	return models.ReferenceMatch{
		Matched:       false,
		MatchCriteria: criteria,
		Confidence:    models.ConfidenceLow,
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// IntRange is an inclusive min/max pair.
type IntRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Stats summarizes the loaded table.
type Stats struct {
	Loaded         bool      `json:"loaded"`
	LoadedAt       time.Time `json:"loadedAt,omitempty"`
	TotalRecords   int       `json:"totalRecords"`
	UniqueZipCodes int       `json:"uniqueZipCodes"`
	BedroomRange   IntRange  `json:"bedroomRange"`
	YearRange      IntRange  `json:"yearRange"`
	AverageRent    float64   `json:"averageRent"`
}

// Stats returns table statistics, loading the table if needed.
func (m *Matcher) Stats(ctx context.Context) (Stats, error) {
	t, err := m.current(ctx)
	if err != nil {
		return Stats{}, err
	}
	return t.Stats(), nil
}

// Stats computes statistics for this snapshot.
func (t *Table) Stats() Stats {
	s := Stats{Loaded: true, LoadedAt: t.LoadedAt, TotalRecords: len(t.Records), UniqueZipCodes: len(t.byZip)}
	if len(t.Records) == 0 {
		return s
	}
	first := t.Records[0]
	s.BedroomRange = IntRange{Min: first.Bedrooms, Max: first.Bedrooms}
	s.YearRange = IntRange{Min: first.Year, Max: first.Year}
	var total float64
	for _, r := range t.Records {
		s.BedroomRange.Min = min(s.BedroomRange.Min, r.Bedrooms)
		s.BedroomRange.Max = max(s.BedroomRange.Max, r.Bedrooms)
		s.YearRange.Min = min(s.YearRange.Min, r.Year)
		s.YearRange.Max = max(s.YearRange.Max, r.Year)
		total += r.FairMarketRent
	}
	s.AverageRent = utils.Round2(total / float64(len(t.Records)))
	return s
}

// Query filters reference records. Zero values are ignored except Bedrooms,
// which is a pointer so studio (0 bedroom) rows can be selected.
type Query struct {
	ZipCode  string
	Bedrooms *int
	MinRent  float64
	MaxRent  float64
	Year     int
}

// Search returns the records matching q in table order.
func (m *Matcher) Search(ctx context.Context, q Query) ([]models.ReferenceRentRecord, error) {
	t, err := m.current(ctx)
	if err != nil {
		return nil, err
	}
	return t.Search(q), nil
}

// Search filters this snapshot.
func (t *Table) Search(q Query) []models.ReferenceRentRecord {
	out := []models.ReferenceRentRecord{}
	for _, r := range t.Records {
		if q.ZipCode != "" && r.ZipCode != q.ZipCode {
			continue
		}
		if q.Bedrooms != nil && r.Bedrooms != *q.Bedrooms {
			continue
		}
		if q.MinRent > 0 && r.FairMarketRent < q.MinRent {
			continue
		}
		if q.MaxRent > 0 && r.FairMarketRent > q.MaxRent {
			continue
		}
		if q.Year != 0 && r.Year != q.Year {
			continue
		}
		out = append(out, r)
	}
	return out
}
