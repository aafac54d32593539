// Package reference loads government fair-market-rent tables and matches
// properties to them by zip code and bedroom count.
package reference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
)

// ErrDataNotFound is returned when the reference data file does not exist.
var ErrDataNotFound = errors.New("reference data not found")

// ReferenceDataError wraps a failure inside the reference data layer.
type ReferenceDataError struct {
	Op  string // "load", "decode", "match"
	Err error
}

func (e *ReferenceDataError) Error() string {
	return fmt.Sprintf("reference data %s: %v", e.Op, e.Err)
}

func (e *ReferenceDataError) Unwrap() error { return e.Err }

// Source provides the flat reference rent table.
type Source interface {
	Load(ctx context.Context) ([]models.ReferenceRentRecord, error)
}

// FileSource reads a JSON array of reference records from disk.
type FileSource struct {
	Path   string
	Logger *slog.Logger
}

// NewFileSource creates a file-backed source. An empty path uses the default location.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if strings.TrimSpace(path) == "" {
		path = models.DefaultReferenceDataPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{Path: path, Logger: logger}
}

// Load reads and validates the file. Malformed rows are skipped with a
// warning; a missing file returns an error wrapping ErrDataNotFound.
func (s *FileSource) Load(ctx context.Context) ([]models.ReferenceRentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ReferenceDataError{Op: "load", Err: fmt.Errorf("%w: %s", ErrDataNotFound, s.Path)}
		}
		return nil, &ReferenceDataError{Op: "load", Err: err}
	}
	defer f.Close()

	records, rejected, err := DecodeRecords(f)
	if err != nil {
		return nil, &ReferenceDataError{Op: "decode", Err: fmt.Errorf("%s: %w", s.Path, err)}
	}
	if len(rejected) > 0 {
		first := rejected
		if len(first) > 5 {
			first = first[:5]
		}
		s.Logger.Warn("reference data rows rejected",
			"path", s.Path, "rejected", len(rejected), "first", first)
	}
	s.Logger.Info("reference data loaded", "path", s.Path, "records", len(records))
	return records, nil
}

// RowError describes one rejected input row (1-based).
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

func (e RowError) String() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// rawRecord mirrors ReferenceRentRecord with pointer fields so absent and
// wrongly typed values can be told apart.
type rawRecord struct {
	ZipCode        *string  `json:"zipCode"`
	Bedrooms       *float64 `json:"bedrooms"`
	FairMarketRent *float64 `json:"fairMarketRent"`
	Year           *float64 `json:"year"`
	County         *string  `json:"county"`
	State          *string  `json:"state"`
	PropertyType   *string  `json:"propertyType"`
}

// DecodeRecords decodes a JSON array of records. Each element is validated
// on its own; invalid elements are returned as RowErrors and never abort
// the decode. Only a document that is not a JSON array fails as a whole.
func DecodeRecords(r io.Reader) ([]models.ReferenceRentRecord, []RowError, error) {
	var rows []json.RawMessage
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, nil, fmt.Errorf("reference data must be a JSON array: %w", err)
	}

	records := make([]models.ReferenceRentRecord, 0, len(rows))
	var rejected []RowError
	for i, row := range rows {
		rec, err := decodeRow(row)
		if err != nil {
			rejected = append(rejected, RowError{Row: i + 1, Reason: err.Error()})
			continue
		}
		records = append(records, rec)
	}
	return records, rejected, nil
}

func decodeRow(row json.RawMessage) (models.ReferenceRentRecord, error) {
	var raw rawRecord
	if err := json.Unmarshal(row, &raw); err != nil {
		return models.ReferenceRentRecord{}, err
	}

	var missing []string
	if raw.ZipCode == nil || strings.TrimSpace(*raw.ZipCode) == "" {
		missing = append(missing, "zipCode")
	}
	if raw.Bedrooms == nil {
		missing = append(missing, "bedrooms")
	}
	if raw.FairMarketRent == nil {
		missing = append(missing, "fairMarketRent")
	}
	if raw.Year == nil {
		missing = append(missing, "year")
	}
	if raw.County == nil {
		missing = append(missing, "county")
	}
	if raw.State == nil {
		missing = append(missing, "state")
	}
	if len(missing) > 0 {
		return models.ReferenceRentRecord{}, fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}

	if *raw.Bedrooms < 0 || *raw.Bedrooms != math.Trunc(*raw.Bedrooms) {
		return models.ReferenceRentRecord{}, fmt.Errorf("bedrooms must be a non-negative integer, got %v", *raw.Bedrooms)
	}
	if *raw.Year != math.Trunc(*raw.Year) {
		return models.ReferenceRentRecord{}, fmt.Errorf("year must be an integer, got %v", *raw.Year)
	}

	rec := models.ReferenceRentRecord{
		ZipCode:        strings.TrimSpace(*raw.ZipCode),
		Bedrooms:       int(*raw.Bedrooms),
		FairMarketRent: *raw.FairMarketRent,
		Year:           int(*raw.Year),
		County:         *raw.County,
		State:          *raw.State,
	}
	if raw.PropertyType != nil {
		rec.PropertyType = *raw.PropertyType
	}
	return rec, nil
}

// StaticSource serves a fixed in-memory table.
type StaticSource []models.ReferenceRentRecord

// Load returns a copy of the records.
func (s StaticSource) Load(ctx context.Context) ([]models.ReferenceRentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]models.ReferenceRentRecord, len(s))
	copy(out, s)
	return out, nil
}
