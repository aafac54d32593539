package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	"github.com/pressly/goose/v3"

	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/utils"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies the embedded SQL migrations via goose.
func Migrate(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return nil
	}
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// OpenPostgres opens a pooled connection and verifies connectivity.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("%w: database URL is empty", models.ErrConfiguration)
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(2 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// PGStore implements ResultStore using Postgres.
type PGStore struct {
	DB  *sql.DB
	now func() time.Time
}

var _ ResultStore = (*PGStore)(nil)

// NewPGStore wraps an open database.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{DB: db, now: time.Now}
}

const insertResultSQL = `
INSERT INTO analysis_results (
	batch_id, property_id, zip_code, buybox_name, stored_on, analyzed_at,
	purchase_price, annual_cash_flow, cash_on_cash, result
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func insertResult(ctx context.Context, tx *sql.Tx, batchID, zip, buybox, storedOn string, r models.DetailedAnalysisResult) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result %s: %w", r.PropertyID, err)
	}
	_, err = tx.ExecContext(ctx, insertResultSQL,
		sql.NullString{String: batchID, Valid: batchID != ""},
		r.PropertyID,
		zip,
		buybox,
		storedOn,
		r.AnalysisDate.UTC(),
		r.PurchasePrice,
		r.FinancialMetrics.AnnualCashFlow,
		r.FinancialMetrics.CashOnCashReturn,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert result %s: %w", r.PropertyID, err)
	}
	return nil
}

// SaveResults inserts results for one zip code in a single transaction.
func (s *PGStore) SaveResults(ctx context.Context, zip string, results []models.DetailedAnalysisResult, buybox string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	today := utils.DateKey(s.now())
	for _, r := range results {
		if err := insertResult(ctx, tx, "", zip, buybox, today, r); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveBatch inserts the batch run and every result in one transaction.
func (s *PGStore) SaveBatch(ctx context.Context, batch models.BatchAnalysisResult) error {
	if batch.ID == "" {
		return fmt.Errorf("%w: batch id is required", models.ErrValidation)
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const query = `
INSERT INTO batch_runs (id, buybox_name, run_at, total_properties, successful_analyses, failed_analyses, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.ExecContext(ctx, query,
		batch.ID,
		batch.BuyboxName,
		batch.Timestamp.UTC(),
		batch.TotalProperties,
		batch.SuccessfulAnalyses,
		batch.FailedAnalyses,
		payload,
	); err != nil {
		return fmt.Errorf("insert batch %s: %w", batch.ID, err)
	}

	today := utils.DateKey(s.now())
	for _, r := range batch.Results {
		if err := insertResult(ctx, tx, batch.ID, ZipOf(r), batch.BuyboxName, today, r); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadBatch returns a stored batch run.
func (s *PGStore) LoadBatch(ctx context.Context, id string) (models.BatchAnalysisResult, error) {
	var payload []byte
	err := s.DB.QueryRowContext(ctx, `SELECT payload FROM batch_runs WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return models.BatchAnalysisResult{}, fmt.Errorf("batch %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.BatchAnalysisResult{}, err
	}
	var batch models.BatchAnalysisResult
	if err := json.Unmarshal(payload, &batch); err != nil {
		return models.BatchAnalysisResult{}, fmt.Errorf("decode batch %s: %w", id, err)
	}
	return batch, nil
}

// LoadResults returns results for zip on date.
func (s *PGStore) LoadResults(ctx context.Context, zip, date, buybox string) ([]models.DetailedAnalysisResult, error) {
	switch date {
	case "":
		date = utils.DateKey(s.now())
	case DateLatest:
		var latest sql.NullString
		err := s.DB.QueryRowContext(ctx,
			`SELECT to_char(MAX(stored_on), 'YYYY-MM-DD') FROM analysis_results WHERE zip_code = $1`, zip).Scan(&latest)
		if err != nil {
			return nil, err
		}
		if !latest.Valid {
			return nil, fmt.Errorf("analysis for zip %s: %w", zip, ErrNotFound)
		}
		date = latest.String
	}

	query := `SELECT result FROM analysis_results WHERE zip_code = $1 AND stored_on = $2`
	args := []any{zip, date}
	if buybox != "" {
		query += ` AND buybox_name = $3`
		args = append(args, buybox)
	}
	query += ` ORDER BY id`

	results, err := s.scanResults(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("analysis for zip %s on %s: %w", zip, date, ErrNotFound)
	}
	return results, nil
}

// QueryResults filters stored results in SQL.
func (s *PGStore) QueryResults(ctx context.Context, f Filter) ([]models.DetailedAnalysisResult, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if len(f.ZipCodes) > 0 {
		ph := make([]string, len(f.ZipCodes))
		for i, z := range f.ZipCodes {
			args = append(args, z)
			ph[i] = "$" + strconv.Itoa(len(args))
		}
		where = append(where, "zip_code IN ("+strings.Join(ph, ", ")+")")
	}
	if f.StartDate != "" {
		add("stored_on >= ?", f.StartDate)
	}
	if f.EndDate != "" {
		add("stored_on <= ?", f.EndDate)
	}
	if f.MinCashFlow != nil {
		add("annual_cash_flow >= ?", *f.MinCashFlow)
	}
	if f.MaxPrice != nil {
		add("purchase_price <= ?", *f.MaxPrice)
	}
	if f.MinROI != nil {
		add("cash_on_cash >= ?", *f.MinROI)
	}
	if f.BuyboxName != "" {
		add("buybox_name = ?", f.BuyboxName)
	}

	query := `SELECT result FROM analysis_results`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY zip_code, stored_on DESC, id`
	return s.scanResults(ctx, query, args...)
}

// AnalysisZipCodes lists distinct zip codes.
func (s *PGStore) AnalysisZipCodes(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT DISTINCT zip_code FROM analysis_results ORDER BY zip_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	zips := []string{}
	for rows.Next() {
		var z string
		if err := rows.Scan(&z); err != nil {
			return nil, err
		}
		zips = append(zips, z)
	}
	return zips, rows.Err()
}

func (s *PGStore) scanResults(ctx context.Context, query string, args ...any) ([]models.DetailedAnalysisResult, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.DetailedAnalysisResult{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r models.DetailedAnalysisResult
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
