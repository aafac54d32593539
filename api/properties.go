package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/srrmlwn/dealflowanalyzer.ai/internal/collector"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/datasource"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/storage"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/utils"
)

// PropertiesResponse is returned by GET /api/v1/properties.
type PropertiesResponse struct {
	ZipCode    string            `json:"zipCode"`
	Date       string            `json:"date"`
	Buybox     string            `json:"buybox,omitempty"`
	Count      int               `json:"count"`
	Properties []models.Property `json:"properties"`
}

// FetchRequest is the optional body for POST /api/v1/properties/fetch.
type FetchRequest struct {
	Buybox *models.Buybox `json:"buybox,omitempty"` // defaults to the configured buybox
}

// CleanupRequest is the optional body for POST /api/v1/properties/cleanup.
type CleanupRequest struct {
	DaysToKeep *int `json:"daysToKeep,omitempty"`
}

// StatsResponse is returned by GET /api/v1/properties/stats.
type StatsResponse struct {
	Storage storage.Stats       `json:"storage"`
	API     datasource.APIStats `json:"api"`
}

func (s *Server) handleGetProperties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	zip := strings.TrimSpace(q.Get("zipCode"))
	if zip == "" {
		writeError(w, http.StatusBadRequest, "zipCode query parameter is required")
		return
	}
	date := q.Get("date")
	if date == "" {
		date = storage.DateLatest
	}

	props, err := s.app.Files.LoadProperties(r.Context(), zip, date, q.Get("buybox"))
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: PropertiesResponse{
			ZipCode:    zip,
			Date:       date,
			Buybox:     q.Get("buybox"),
			Count:      len(props),
			Properties: props,
		},
	})
}

func (s *Server) handleFetchProperties(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeFailure(w, err, nil)
		return
	}
	b := s.app.Buybox()
	if req.Buybox != nil {
		b = *req.Buybox
	}

	res, err := s.app.Collector.Collect(r.Context(), b)
	s.writeCollection(w, res, err)
}

func (s *Server) handleAdhocFetch(w http.ResponseWriter, r *http.Request) {
	var req collector.AdhocRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeFailure(w, err, nil)
		return
	}

	res, err := s.app.Collector.Adhoc(r.Context(), req)
	s.writeCollection(w, res, err)
}

// writeCollection returns the run result, keeping it in the body on failure
// so its error records reach the client.
func (s *Server) writeCollection(w http.ResponseWriter, res collector.Result, err error) {
	if err != nil {
		writeFailure(w, err, res)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: res})
}

func (s *Server) handlePropertyZipCodes(w http.ResponseWriter, r *http.Request) {
	zips, err := s.app.Files.PropertyZipCodes(r.Context())
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: zips})
}

func (s *Server) handlePropertyDates(w http.ResponseWriter, r *http.Request) {
	dates, err := s.app.Files.PropertyDates(r.Context(), chi.URLParam(r, "zip"))
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: dates})
}

func (s *Server) handlePropertyStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.app.Files.Stats(r.Context())
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    StatsResponse{Storage: st, API: s.app.Collector.APIStats()},
	})
}

// handleExportPropertiesCSV exports one zip code, or every stored zip code,
// for a date (latest by default).
func (s *Server) handleExportPropertiesCSV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := q.Get("date")
	if date == "" {
		date = storage.DateLatest
	}
	buybox := q.Get("buybox")

	zips := queryList(r, "zipCode")
	if len(zips) == 0 {
		var err error
		if zips, err = s.app.Files.PropertyZipCodes(r.Context()); err != nil {
			writeFailure(w, err, nil)
			return
		}
	}

	var rows []storage.ZipProperty
	for _, zip := range zips {
		props, err := s.app.Files.LoadProperties(r.Context(), zip, date, buybox)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			writeFailure(w, err, nil)
			return
		}
		for _, p := range props {
			rows = append(rows, storage.ZipProperty{ZipCode: zip, Property: p})
		}
	}

	now := time.Now()
	setCSVHeaders(w, fmt.Sprintf("properties-%s.csv", utils.DateKey(now)))
	if err := storage.WritePropertiesCSV(w, rows, now); err != nil {
		s.logger.Warn("property CSV export failed", "error", err)
	}
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeFailure(w, err, nil)
		return
	}
	days := s.app.Config().Storage.RetentionDays
	if req.DaysToKeep != nil {
		days = *req.DaysToKeep
	}

	res, err := s.app.Files.Cleanup(r.Context(), days)
	if err != nil {
		writeFailure(w, err, res)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: res})
}

func setCSVHeaders(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
}
