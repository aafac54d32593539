// Configuration management endpoints.

package api

import (
	"net/http"
	"sync"

	"github.com/srrmlwn/dealflowanalyzer.ai/internal/config"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
)

// configMu serialises writes to the config directory.
var configMu sync.Mutex

// ConfigResponse is the JSON envelope returned by GET /api/v1/config.
type ConfigResponse struct {
	Config    *config.Config `json:"config"`
	ConfigDir string         `json:"configDir"` // where buybox.json / financial.json are saved
}

// ConfigUpdateResponse is returned by the PUT endpoints.
type ConfigUpdateResponse struct {
	Value interface{} `json:"value"`
	File  string      `json:"file,omitempty"` // empty when nothing was persisted
}

// handleGetConfig returns the current (running) configuration.
// Sensitive keys are excluded via json:"-" tags.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	configMu.Lock()
	cfg := *s.app.Config()
	configMu.Unlock()

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ConfigResponse{
			Config:    &cfg,
			ConfigDir: cfg.ConfigDir,
		},
	})
}

// handleGetConfigKeys returns the status of all sensitive keys.
func (s *Server) handleGetConfigKeys(w http.ResponseWriter, r *http.Request) {
	keys := config.CheckAPIKeys(s.app.Config())
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    keys,
	})
}

// handleUpdateFinancial replaces the financial assumptions and saves them as
// financial.json in the config directory.
func (s *Server) handleUpdateFinancial(w http.ResponseWriter, r *http.Request) {
	var incoming models.FinancialConfig
	if err := decodeBody(r, &incoming, false); err != nil {
		writeFailure(w, err, nil)
		return
	}

	configMu.Lock()
	defer configMu.Unlock()

	applied, err := s.app.SetFinancial(incoming)
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	path, err := s.persist(func(dir string) (string, error) { return config.SaveFinancialFile(dir, applied) })
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save config: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    ConfigUpdateResponse{Value: applied, File: path},
	})
}

// handleUpdateBuybox replaces the buybox used by scheduled collections and
// saves it as buybox.json in the config directory.
func (s *Server) handleUpdateBuybox(w http.ResponseWriter, r *http.Request) {
	var incoming models.Buybox
	if err := decodeBody(r, &incoming, false); err != nil {
		writeFailure(w, err, nil)
		return
	}

	configMu.Lock()
	defer configMu.Unlock()

	if err := s.app.SetBuybox(incoming); err != nil {
		writeFailure(w, err, nil)
		return
	}
	path, err := s.persist(func(dir string) (string, error) { return config.SaveBuyboxFile(dir, incoming) })
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save config: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    ConfigUpdateResponse{Value: incoming, File: path},
	})
}

// persist runs save against the config directory, if one is configured.
func (s *Server) persist(save func(dir string) (string, error)) (string, error) {
	dir := s.app.Config().ConfigDir
	if dir == "" {
		return "", nil
	}
	return save(dir)
}
