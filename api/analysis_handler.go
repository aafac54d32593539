package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/srrmlwn/dealflowanalyzer.ai/internal/analysis"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/analysis/rental"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/storage"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/utils"
)

// AnalyzePropertyRequest is the body for POST /api/v1/analysis/property.
type AnalyzePropertyRequest struct {
	Property        *models.Property        `json:"property"`
	FinancialConfig *models.FinancialConfig `json:"financialConfig,omitempty"`
}

// AnalyzePropertyResponse pairs the analysis with a plausibility check of
// its rent estimate.
type AnalyzePropertyResponse struct {
	Result         models.DetailedAnalysisResult `json:"result"`
	RentValidation rental.Validation             `json:"rentValidation"`
}

// AnalyzeBatchRequest is the body for POST /api/v1/analysis/batch.
type AnalyzeBatchRequest struct {
	Properties      []models.Property       `json:"properties"`
	FinancialConfig *models.FinancialConfig `json:"financialConfig,omitempty"`
	BuyboxName      string                  `json:"buyboxName,omitempty"`
	Save            bool                    `json:"save,omitempty"`
}

// AnalyzeZipCodeRequest is the body for POST /api/v1/analysis/zipcode.
type AnalyzeZipCodeRequest struct {
	ZipCode         string                  `json:"zipCode"`
	Date            string                  `json:"date,omitempty"`   // defaults to latest
	Buybox          string                  `json:"buybox,omitempty"` // stored snapshot name; empty merges all
	FinancialConfig *models.FinancialConfig `json:"financialConfig,omitempty"`
	Save            bool                    `json:"save,omitempty"`
}

// ZipCodeAnalysisResponse is a batch result plus the quality report of the
// stored listings it was built from.
type ZipCodeAnalysisResponse struct {
	models.BatchAnalysisResult
	PropertyQuality models.PropertyQualityReport `json:"propertyQuality"`
}

// ResultsResponse is returned by GET /api/v1/analysis/results.
type ResultsResponse struct {
	Count   int                             `json:"count"`
	Filter  storage.Filter                  `json:"filter"`
	Results []models.DetailedAnalysisResult `json:"results"`
}

// StatisticsResponse is returned by GET /api/v1/analysis/statistics.
type StatisticsResponse struct {
	TotalResults int                 `json:"totalResults"`
	ByZipCode    map[string]int      `json:"byZipCode"`
	Summary      models.BatchSummary `json:"summary"`
}

// RentalStatsRequest is the body for POST /api/v1/analysis/rental-stats.
type RentalStatsRequest struct {
	Properties      []models.Property       `json:"properties"`
	FinancialConfig *models.FinancialConfig `json:"financialConfig,omitempty"`
}

func (s *Server) handleAnalyzeProperty(w http.ResponseWriter, r *http.Request) {
	var req AnalyzePropertyRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeFailure(w, err, nil)
		return
	}
	if req.Property == nil {
		writeError(w, http.StatusBadRequest, "property is required")
		return
	}

	res, err := s.app.Analyzer.Analyze(r.Context(), *req.Property, s.financialOrDefault(req.FinancialConfig))
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: AnalyzePropertyResponse{
			Result:         res,
			RentValidation: rental.Validate(*req.Property, res.RentalEstimate),
		},
	})
}

func (s *Server) handleAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeBatchRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeFailure(w, err, nil)
		return
	}
	if req.Properties == nil {
		writeError(w, http.StatusBadRequest, "properties array is required")
		return
	}

	batch, err := s.runBatch(r, req.Properties, req.FinancialConfig, req.BuyboxName, req.Save)
	if err != nil {
		writeFailure(w, err, batch)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: batch})
}

func (s *Server) handleAnalyzeZipCode(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeZipCodeRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeFailure(w, err, nil)
		return
	}
	zip := strings.TrimSpace(req.ZipCode)
	if zip == "" {
		writeError(w, http.StatusBadRequest, "zipCode is required")
		return
	}
	date := req.Date
	if date == "" {
		date = storage.DateLatest
	}

	props, err := s.app.Files.LoadProperties(r.Context(), zip, date, req.Buybox)
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	valid, _, quality := models.ValidateProperties(props)

	batch, err := s.runBatch(r, valid, req.FinancialConfig, req.Buybox, req.Save)
	resp := ZipCodeAnalysisResponse{BatchAnalysisResult: batch, PropertyQuality: quality}
	if err != nil {
		writeFailure(w, err, resp)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

// runBatch analyzes props, streaming progress over the WebSocket, and saves
// the batch when asked. The returned batch always has non-nil Results and
// Errors.
func (s *Server) runBatch(r *http.Request, props []models.Property, override *models.FinancialConfig, buybox string, save bool) (models.BatchAnalysisResult, error) {
	batch, err := s.app.Analyzer.AnalyzeBatch(r.Context(), props, s.financialOrDefault(override),
		analysis.WithBuyboxName(buybox),
		analysis.WithProgress(func(done, total int, id string) {
			s.wsHub.Broadcast(WSMessage{Type: MsgAnalysisProgress, Data: AnalysisProgress{Done: done, Total: total, PropertyID: id}})
		}))
	if batch.Results == nil {
		batch.Results = []models.DetailedAnalysisResult{}
	}
	if batch.Errors == nil {
		batch.Errors = []models.ErrorRecord{}
	}
	if err != nil {
		return batch, err
	}

	if save {
		if err := s.app.Results.SaveBatch(r.Context(), batch); err != nil {
			return batch, fmt.Errorf("save batch: %w", err)
		}
	}
	s.wsHub.Broadcast(WSMessage{Type: MsgAnalysisCompleted, Data: batch.Summary})
	return batch, nil
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	results, err := s.app.Results.QueryResults(r.Context(), f)
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    ResultsResponse{Count: len(results), Filter: f, Results: results},
	})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := s.app.Results.LoadBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: batch})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	results, err := s.app.Results.QueryResults(r.Context(), f)
	if err != nil {
		writeFailure(w, err, nil)
		return
	}

	byZip := make(map[string]int)
	for _, res := range results {
		zip := res.ZipCode
		if zip == "" {
			zip = storage.UnknownZip
		}
		byZip[zip]++
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: StatisticsResponse{
			TotalResults: len(results),
			ByZipCode:    byZip,
			Summary:      analysis.Summarize(results),
		},
	})
}

func (s *Server) handleExportAnalysisCSV(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	results, err := s.app.Results.QueryResults(r.Context(), f)
	if err != nil {
		writeFailure(w, err, nil)
		return
	}

	var buf bytes.Buffer
	if err := storage.WriteAnalysisCSV(&buf, results, queryList(r, "columns")); err != nil {
		writeFailure(w, err, nil)
		return
	}
	setCSVHeaders(w, fmt.Sprintf("analysis-%s.csv", utils.DateKey(time.Now())))
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn("analysis CSV export failed", "error", err)
	}
}

func (s *Server) handleExportColumns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: storage.ExportColumns()})
}

func (s *Server) handleRentalStats(w http.ResponseWriter, r *http.Request) {
	var req RentalStatsRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeFailure(w, err, nil)
		return
	}
	if req.Properties == nil {
		writeError(w, http.StatusBadRequest, "properties array is required")
		return
	}
	cfg, err := analysis.PrepareConfig(s.financialOrDefault(req.FinancialConfig))
	if err != nil {
		writeFailure(w, err, nil)
		return
	}

	stats := s.app.Analyzer.Estimator().Stats(r.Context(), req.Properties, cfg)
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: stats})
}

// parseFilter reads a storage.Filter from the query string.
func parseFilter(r *http.Request) (storage.Filter, error) {
	q := r.URL.Query()
	f := storage.Filter{
		ZipCodes:   queryList(r, "zipCode"),
		StartDate:  q.Get("startDate"),
		EndDate:    q.Get("endDate"),
		BuyboxName: q.Get("buybox"),
	}
	var err error
	if f.MinCashFlow, err = queryFloat(r, "minCashFlow"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = queryFloat(r, "maxPrice"); err != nil {
		return f, err
	}
	if f.MinROI, err = queryFloat(r, "minROI"); err != nil {
		return f, err
	}
	return f, f.Validate()
}
