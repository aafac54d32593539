package api

import (
	"net/http"
	"strings"

	"github.com/srrmlwn/dealflowanalyzer.ai/internal/reference"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
)

// ReferenceSearchResponse is returned by GET /api/v1/reference/search.
type ReferenceSearchResponse struct {
	Count   int                          `json:"count"`
	Records []models.ReferenceRentRecord `json:"records"`
}

func (s *Server) handleReferenceStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.app.Matcher.Stats(r.Context())
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: st})
}

func (s *Server) handleReferenceSearch(w http.ResponseWriter, r *http.Request) {
	q := reference.Query{ZipCode: strings.TrimSpace(r.URL.Query().Get("zipCode"))}
	var err error
	if q.Bedrooms, err = queryInt(r, "bedrooms"); err != nil {
		writeFailure(w, err, nil)
		return
	}
	for name, dst := range map[string]*float64{"minRent": &q.MinRent, "maxRent": &q.MaxRent} {
		v, err := queryFloat(r, name)
		if err != nil {
			writeFailure(w, err, nil)
			return
		}
		if v != nil {
			*dst = *v
		}
	}
	year, err := queryInt(r, "year")
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	if year != nil {
		q.Year = *year
	}

	records, err := s.app.Matcher.Search(r.Context(), q)
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    ReferenceSearchResponse{Count: len(records), Records: records},
	})
}

// handleReferenceReload re-reads the reference file. On failure the
// previous table stays in use.
func (s *Server) handleReferenceReload(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Matcher.Reload(r.Context()); err != nil {
		writeFailure(w, err, nil)
		return
	}
	s.handleReferenceStats(w, r)
}
