package reference

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/utils"
)

// ErrNoColumns is returned when a table has no recognizable zip/rent columns.
var ErrNoColumns = errors.New("required columns not found")

// ImportResult is the outcome of converting a published rent table.
type ImportResult struct {
	Records  []models.ReferenceRentRecord `json:"records"`
	Rejected []RowError                   `json:"rejected,omitempty"`
	Layout   string                       `json:"layout"` // "long" or "wide"
}

var bedroomColumn = regexp.MustCompile(`(?i)\b(\d)\s*-?\s*br\b`)

// ImportCSV converts a CSV rent table. Two layouts are recognized:
//
//	long: one row per zip and bedroom count (zip, bedrooms, rent columns)
//	wide: one row per zip with 0BR..4BR rent columns
//
// defaultYear is used when the table has no year column.
func ImportCSV(r io.Reader, defaultYear int) (ImportResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return ImportResult{}, fmt.Errorf("read csv: %w", err)
	}
	return importRows(rows, defaultYear)
}

// ImportHTML converts the first HTML table in a saved rent-schedule page.
func ImportHTML(r io.Reader, defaultYear int) (ImportResult, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("parse html: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return ImportResult{}, fmt.Errorf("%w: no table in document", ErrNoColumns)
	}

	var rows [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.Join(strings.Fields(cell.Text()), " "))
		})
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	return importRows(rows, defaultYear)
}

func importRows(rows [][]string, defaultYear int) (ImportResult, error) {
	if len(rows) < 2 {
		return ImportResult{}, fmt.Errorf("%w: table has no data rows", ErrNoColumns)
	}
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}

	zipIdx := columnIndex(headers, "zipcode", "zip_code", "zip")
	if zipIdx < 0 {
		return ImportResult{}, fmt.Errorf("%w: zip code", ErrNoColumns)
	}
	cols := tableColumns{
		zip:    zipIdx,
		year:   columnIndex(headers, "year"),
		county: columnIndex(headers, "county"),
		state:  columnIndex(headers, "state"),
		ptype:  columnIndex(headers, "propertytype", "property_type", "type"),
	}

	if bedIdx := columnIndex(headers, "bedrooms", "bedroom_count", "beds"); bedIdx >= 0 {
		rentIdx := columnIndex(headers, "fairmarketrent", "fair_market_rent", "rent", "fmr")
		if rentIdx < 0 {
			return ImportResult{}, fmt.Errorf("%w: rent", ErrNoColumns)
		}
		return importLong(rows[1:], cols, bedIdx, rentIdx, defaultYear), nil
	}

	wide := make(map[int]int) // bedrooms -> column
	for i, h := range headers {
		if m := bedroomColumn.FindStringSubmatch(h); m != nil {
			beds, _ := strconv.Atoi(m[1])
			if _, dup := wide[beds]; !dup {
				wide[beds] = i
			}
		}
	}
	if len(wide) == 0 {
		return ImportResult{}, fmt.Errorf("%w: bedrooms or 0BR..4BR rent columns", ErrNoColumns)
	}
	return importWide(rows[1:], cols, wide, defaultYear), nil
}

type tableColumns struct {
	zip, year, county, state, ptype int
}

func (c tableColumns) base(row []string, defaultYear int) (models.ReferenceRentRecord, error) {
	zip := cell(row, c.zip)
	if !utils.IsZipCode(zip) {
		return models.ReferenceRentRecord{}, fmt.Errorf("invalid zip code %q", zip)
	}
	rec := models.ReferenceRentRecord{
		ZipCode:      zip,
		Year:         defaultYear,
		County:       cell(row, c.county),
		State:        cell(row, c.state),
		PropertyType: cell(row, c.ptype),
	}
	if y, err := strconv.Atoi(cell(row, c.year)); err == nil && y > 0 {
		rec.Year = y
	}
	return rec, nil
}

func importLong(rows [][]string, cols tableColumns, bedIdx, rentIdx, defaultYear int) ImportResult {
	res := ImportResult{Layout: "long"}
	for i, row := range rows {
		rec, err := cols.base(row, defaultYear)
		if err != nil {
			res.Rejected = append(res.Rejected, RowError{Row: i + 2, Reason: err.Error()})
			continue
		}
		beds, err := strconv.Atoi(cell(row, bedIdx))
		if err != nil || beds < 0 {
			res.Rejected = append(res.Rejected, RowError{Row: i + 2, Reason: fmt.Sprintf("invalid bedrooms %q", cell(row, bedIdx))})
			continue
		}
		rent, err := parseMoney(cell(row, rentIdx))
		if err != nil {
			res.Rejected = append(res.Rejected, RowError{Row: i + 2, Reason: err.Error()})
			continue
		}
		rec.Bedrooms = beds
		rec.FairMarketRent = rent
		res.Records = append(res.Records, rec)
	}
	return res
}

func importWide(rows [][]string, cols tableColumns, bedCols map[int]int, defaultYear int) ImportResult {
	res := ImportResult{Layout: "wide"}
	for i, row := range rows {
		base, err := cols.base(row, defaultYear)
		if err != nil {
			res.Rejected = append(res.Rejected, RowError{Row: i + 2, Reason: err.Error()})
			continue
		}
		for beds := 0; beds <= 9; beds++ {
			idx, ok := bedCols[beds]
			if !ok {
				continue
			}
			rent, err := parseMoney(cell(row, idx))
			if err != nil || rent <= 0 {
				continue
			}
			rec := base
			rec.Bedrooms = beds
			rec.FairMarketRent = rent
			res.Records = append(res.Records, rec)
		}
	}
	return res
}

// columnIndex returns the first header containing any of names, in name order.
func columnIndex(headers []string, names ...string) int {
	for _, name := range names {
		for i, h := range headers {
			if strings.Contains(h, name) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(strings.Trim(row[idx], `"`))
}

func parseMoney(s string) (float64, error) {
	clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rent %q", s)
	}
	return v, nil
}

// WriteJSON writes records as an indented JSON array, creating parent directories.
func WriteJSON(path string, records []models.ReferenceRentRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if records == nil {
		records = []models.ReferenceRentRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
