package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/utils"
)

const (
	propertiesDir = "properties"
	analysisDir   = "analysis"
	errorsDir     = "errors"
	batchesDir    = "batches"

	defaultPropertiesFile = "properties.json"
	defaultAnalysisFile   = "analysis-results.json"
	analysisSuffix        = "-analysis.json"
)

// PropertySnapshot is the on-disk form of a listing fetch for one zip code.
type PropertySnapshot struct {
	Timestamp     time.Time         `json:"timestamp"`
	ZipCode       string            `json:"zipCode"`
	BuyboxName    string            `json:"buyboxName,omitempty"`
	PropertyCount int               `json:"propertyCount"`
	Properties    []models.Property `json:"properties"`
}

// AnalysisSnapshot is the on-disk form of analysis results for one zip code.
type AnalysisSnapshot struct {
	Timestamp    time.Time                       `json:"timestamp"`
	ZipCode      string                          `json:"zipCode"`
	BuyboxName   string                          `json:"buyboxName,omitempty"`
	TotalResults int                             `json:"totalResults"`
	Results      []models.DetailedAnalysisResult `json:"results"`
}

// FileStore keeps data as JSON under a root directory:
//
//	properties/<zip>/<date>/<buybox|properties>.json
//	analysis/<zip>/<date>/<buybox>-analysis.json | analysis-results.json
//	batches/<date>/<id>.json
//	errors/<date>/errors-<timestamp>.json
//
// A single process is assumed to be the only writer.
type FileStore struct {
	root   string
	logger *slog.Logger
	now    func() time.Time
	mu     sync.Mutex
}

var _ ResultStore = (*FileStore)(nil)

// NewFileStore creates the directory layout under root.
func NewFileStore(root string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, dir := range []string{propertiesDir, analysisDir, errorsDir, batchesDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	return &FileStore{root: root, logger: logger, now: time.Now}, nil
}

// Root returns the data directory.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) today() string { return utils.DateKey(s.now()) }

// --- Properties ---

// SaveProperties writes a listing snapshot for zip under today's date and
// returns the file path.
func (s *FileStore) SaveProperties(ctx context.Context, zip string, props []models.Property, buybox string) (string, error) {
	if err := checkName("zip code", zip); err != nil {
		return "", err
	}
	name := defaultPropertiesFile
	if buybox != "" {
		if err := checkName("buybox name", buybox); err != nil {
			return "", err
		}
		name = buybox + ".json"
	}
	if props == nil {
		props = []models.Property{}
	}

	path := filepath.Join(s.root, propertiesDir, zip, s.today(), name)
	snap := PropertySnapshot{
		Timestamp:     s.now().UTC(),
		ZipCode:       zip,
		BuyboxName:    buybox,
		PropertyCount: len(props),
		Properties:    props,
	}
	if err := s.writeJSON(ctx, path, snap); err != nil {
		return "", fmt.Errorf("save properties for %s: %w", zip, err)
	}
	s.logger.Info("saved properties", "zip", zip, "count", len(props), "path", path)
	return path, nil
}

// LoadProperties returns the listings stored for zip on date ("" is today,
// DateLatest the newest). With no buybox, properties.json is preferred and
// otherwise every snapshot of that date is merged.
func (s *FileStore) LoadProperties(ctx context.Context, zip, date, buybox string) ([]models.Property, error) {
	files, err := s.snapshotFiles(propertiesDir, zip, date, func(name string) bool {
		if buybox != "" {
			return name == buybox+".json"
		}
		return true
	}, defaultPropertiesFile, buybox == "")
	if err != nil {
		return nil, err
	}

	out := []models.Property{}
	for _, f := range files {
		var snap PropertySnapshot
		if err := readJSON(f, &snap); err != nil {
			return nil, err
		}
		out = append(out, snap.Properties...)
	}
	return out, nil
}

// PropertyZipCodes lists zip codes with stored listings, ascending.
func (s *FileStore) PropertyZipCodes(ctx context.Context) ([]string, error) {
	return listDirs(filepath.Join(s.root, propertiesDir), false)
}

// PropertyDates lists the dates stored for zip, newest first.
func (s *FileStore) PropertyDates(ctx context.Context, zip string) ([]string, error) {
	if err := checkName("zip code", zip); err != nil {
		return nil, err
	}
	return listDirs(filepath.Join(s.root, propertiesDir, zip), true)
}

// --- Analysis results ---

// SaveResults writes analysis results for zip under today's date.
func (s *FileStore) SaveResults(ctx context.Context, zip string, results []models.DetailedAnalysisResult, buybox string) error {
	if err := checkName("zip code", zip); err != nil {
		return err
	}
	name := defaultAnalysisFile
	if buybox != "" {
		if err := checkName("buybox name", buybox); err != nil {
			return err
		}
		name = buybox + analysisSuffix
	}
	if results == nil {
		results = []models.DetailedAnalysisResult{}
	}

	path := filepath.Join(s.root, analysisDir, zip, s.today(), name)
	snap := AnalysisSnapshot{
		Timestamp:    s.now().UTC(),
		ZipCode:      zip,
		BuyboxName:   buybox,
		TotalResults: len(results),
		Results:      results,
	}
	if err := s.writeJSON(ctx, path, snap); err != nil {
		return fmt.Errorf("save analysis results for %s: %w", zip, err)
	}
	s.logger.Info("saved analysis results", "zip", zip, "count", len(results), "path", path)
	return nil
}

// SaveBatch writes each zip code's results and the batch run itself.
func (s *FileStore) SaveBatch(ctx context.Context, batch models.BatchAnalysisResult) error {
	zips, groups := GroupByZip(batch.Results)
	for _, zip := range zips {
		if err := s.SaveResults(ctx, zip, groups[zip], batch.BuyboxName); err != nil {
			return err
		}
	}

	id := batch.ID
	if id == "" {
		id = utils.FileTimestamp(s.now())
	}
	if err := checkName("batch id", id); err != nil {
		return err
	}
	path := filepath.Join(s.root, batchesDir, s.today(), id+".json")
	if err := s.writeJSON(ctx, path, batch); err != nil {
		return fmt.Errorf("save batch %s: %w", id, err)
	}
	s.logger.Info("saved batch analysis", "id", id, "zip_codes", len(zips), "results", len(batch.Results))
	return nil
}

// LoadBatch finds a batch run by ID across all dates.
func (s *FileStore) LoadBatch(ctx context.Context, id string) (models.BatchAnalysisResult, error) {
	if err := checkName("batch id", id); err != nil {
		return models.BatchAnalysisResult{}, err
	}
	dates, err := listDirs(filepath.Join(s.root, batchesDir), true)
	if err != nil {
		return models.BatchAnalysisResult{}, err
	}
	for _, d := range dates {
		path := filepath.Join(s.root, batchesDir, d, id+".json")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		var batch models.BatchAnalysisResult
		if err := readJSON(path, &batch); err != nil {
			return models.BatchAnalysisResult{}, err
		}
		return batch, nil
	}
	return models.BatchAnalysisResult{}, fmt.Errorf("batch %s: %w", id, ErrNotFound)
}

// LoadResults returns the results stored for zip on date.
func (s *FileStore) LoadResults(ctx context.Context, zip, date, buybox string) ([]models.DetailedAnalysisResult, error) {
	files, err := s.snapshotFiles(analysisDir, zip, date, analysisFileFilter(buybox), defaultAnalysisFile, buybox == "")
	if err != nil {
		return nil, err
	}
	return readAnalysisFiles(files)
}

// AnalysisZipCodes lists zip codes with stored analysis results.
func (s *FileStore) AnalysisZipCodes(ctx context.Context) ([]string, error) {
	return listDirs(filepath.Join(s.root, analysisDir), false)
}

// AnalysisDates lists analysis dates for zip, newest first.
func (s *FileStore) AnalysisDates(ctx context.Context, zip string) ([]string, error) {
	if err := checkName("zip code", zip); err != nil {
		return nil, err
	}
	return listDirs(filepath.Join(s.root, analysisDir, zip), true)
}

// QueryResults scans stored analysis results. Zip codes are visited in
// the filter's order (or ascending), dates newest first.
func (s *FileStore) QueryResults(ctx context.Context, f Filter) ([]models.DetailedAnalysisResult, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	zips := f.ZipCodes
	if len(zips) == 0 {
		var err error
		if zips, err = s.AnalysisZipCodes(ctx); err != nil {
			return nil, err
		}
	}

	out := []models.DetailedAnalysisResult{}
	for _, zip := range zips {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dates, err := s.AnalysisDates(ctx, zip)
		if err != nil {
			return nil, err
		}
		for _, date := range dates {
			if !f.dateInRange(date) {
				continue
			}
			dir := filepath.Join(s.root, analysisDir, zip, date)
			files, err := matchingFiles(dir, analysisFileFilter(f.BuyboxName))
			if err != nil {
				return nil, err
			}
			results, err := readAnalysisFiles(files)
			if err != nil {
				s.logger.Warn("skipping unreadable analysis snapshot", "dir", dir, "error", err)
				continue
			}
			for _, r := range results {
				if f.matches(r) {
					out = append(out, r)
				}
			}
		}
	}
	return out, nil
}

func analysisFileFilter(buybox string) func(string) bool {
	return func(name string) bool {
		if buybox != "" {
			return name == buybox+analysisSuffix
		}
		return name == defaultAnalysisFile || strings.HasSuffix(name, analysisSuffix)
	}
}

func readAnalysisFiles(files []string) ([]models.DetailedAnalysisResult, error) {
	out := []models.DetailedAnalysisResult{}
	for _, f := range files {
		var snap AnalysisSnapshot
		if err := readJSON(f, &snap); err != nil {
			return nil, err
		}
		out = append(out, snap.Results...)
	}
	return out, nil
}

// --- Errors ---

// SaveError writes one error record under today's date.
func (s *FileStore) SaveError(ctx context.Context, rec models.ErrorRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now().UTC()
	}
	name := "errors-" + utils.FileTimestamp(rec.Timestamp) + ".json"
	if rec.ID != "" {
		name = "errors-" + utils.FileTimestamp(rec.Timestamp) + "-" + rec.ID + ".json"
	}
	path := filepath.Join(s.root, errorsDir, utils.DateKey(rec.Timestamp), name)
	if err := s.writeJSON(ctx, path, rec); err != nil {
		return fmt.Errorf("save error record: %w", err)
	}
	return nil
}

// LoadErrors returns the error records stored on date ("" is today).
func (s *FileStore) LoadErrors(ctx context.Context, date string) ([]models.ErrorRecord, error) {
	if date == "" {
		date = s.today()
	}
	if err := checkName("date", date); err != nil {
		return nil, err
	}
	files, err := matchingFiles(filepath.Join(s.root, errorsDir, date), func(name string) bool {
		return strings.HasPrefix(name, "errors-")
	})
	if err != nil {
		return nil, err
	}
	out := []models.ErrorRecord{}
	for _, f := range files {
		var rec models.ErrorRecord
		if err := readJSON(f, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// --- Maintenance ---

// CleanupResult lists what a retention pass removed.
type CleanupResult struct {
	Cutoff  string   `json:"cutoff"`
	Removed []string `json:"removed"`
}

// Cleanup deletes date directories older than daysToKeep days, then any
// zip directory left empty.
func (s *FileStore) Cleanup(ctx context.Context, daysToKeep int) (CleanupResult, error) {
	if daysToKeep < 1 {
		return CleanupResult{}, fmt.Errorf("%w: daysToKeep must be at least 1", models.ErrValidation)
	}
	res := CleanupResult{
		Cutoff:  utils.DateKey(s.now().AddDate(0, 0, -daysToKeep)),
		Removed: []string{},
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prune := func(dateParent string) error {
		dates, err := listDirs(dateParent, false)
		if err != nil {
			return err
		}
		for _, d := range dates {
			if _, err := utils.ParseDateKey(d); err != nil || d >= res.Cutoff {
				continue
			}
			full := filepath.Join(dateParent, d)
			if err := os.RemoveAll(full); err != nil {
				return fmt.Errorf("remove %s: %w", full, err)
			}
			res.Removed = append(res.Removed, full)
		}
		return nil
	}

	for _, base := range []string{propertiesDir, analysisDir} {
		zips, err := listDirs(filepath.Join(s.root, base), false)
		if err != nil {
			return res, err
		}
		for _, zip := range zips {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			zipDir := filepath.Join(s.root, base, zip)
			if err := prune(zipDir); err != nil {
				return res, err
			}
			if left, _ := listDirs(zipDir, false); len(left) == 0 {
				_ = os.Remove(zipDir)
			}
		}
	}
	for _, base := range []string{errorsDir, batchesDir} {
		if err := prune(filepath.Join(s.root, base)); err != nil {
			return res, err
		}
	}

	s.logger.Info("storage cleanup completed", "cutoff", res.Cutoff, "removed", len(res.Removed))
	return res, nil
}

// Stats summarizes the stored data.
type Stats struct {
	PropertyZipCodes  int    `json:"propertyZipCodes"`
	AnalysisZipCodes  int    `json:"analysisZipCodes"`
	PropertySnapshots int    `json:"propertySnapshots"`
	AnalysisSnapshots int    `json:"analysisSnapshots"`
	BatchRuns         int    `json:"batchRuns"`
	ErrorRecords      int    `json:"errorRecords"`
	LatestDate        string `json:"latestDate,omitempty"`
}

// Stats walks the data directory and counts snapshots.
func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error
	var zips []string
	if zips, err = s.PropertyZipCodes(ctx); err != nil {
		return st, err
	}
	st.PropertyZipCodes = len(zips)
	if zips, err = s.AnalysisZipCodes(ctx); err != nil {
		return st, err
	}
	st.AnalysisZipCodes = len(zips)

	counts := map[string]*int{
		propertiesDir: &st.PropertySnapshots,
		analysisDir:   &st.AnalysisSnapshots,
		batchesDir:    &st.BatchRuns,
		errorsDir:     &st.ErrorRecords,
	}
	for base, counter := range counts {
		err := filepath.WalkDir(filepath.Join(s.root, base), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if _, perr := utils.ParseDateKey(d.Name()); perr == nil && d.Name() > st.LatestDate {
					st.LatestDate = d.Name()
				}
				return nil
			}
			if strings.HasSuffix(d.Name(), ".json") {
				*counter++
			}
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return st, err
		}
	}
	return st, nil
}

// --- file helpers ---

// snapshotFiles resolves date and returns the matching JSON files in the
// date directory. When preferDefault is set and defaultName exists, only
// that file is returned.
func (s *FileStore) snapshotFiles(base, zip, date string, keep func(string) bool, defaultName string, preferDefault bool) ([]string, error) {
	if err := checkName("zip code", zip); err != nil {
		return nil, err
	}
	zipDir := filepath.Join(s.root, base, zip)
	switch date {
	case "":
		date = s.today()
	case DateLatest:
		dates, err := listDirs(zipDir, true)
		if err != nil {
			return nil, err
		}
		if len(dates) == 0 {
			return nil, fmt.Errorf("%s for zip %s: %w", base, zip, ErrNotFound)
		}
		date = dates[0]
	default:
		if err := checkName("date", date); err != nil {
			return nil, err
		}
	}

	dir := filepath.Join(zipDir, date)
	if preferDefault {
		def := filepath.Join(dir, defaultName)
		if _, err := os.Stat(def); err == nil {
			return []string{def}, nil
		}
	}
	files, err := matchingFiles(dir, keep)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s for zip %s on %s: %w", base, zip, date, ErrNotFound)
	}
	return files, nil
}

// matchingFiles returns the sorted .json files in dir accepted by keep.
// A missing directory yields no files.
func matchingFiles(dir string, keep func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || !keep(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// listDirs returns subdirectory names sorted ascending, or descending when
// newestFirst is set. A missing directory yields an empty list.
func listDirs(dir string, newestFirst bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if newestFirst {
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
	} else {
		sort.Strings(names)
	}
	return names, nil
}

// writeJSON writes v as indented JSON through a temp file and rename.
func (s *FileStore) writeJSON(ctx context.Context, path string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
