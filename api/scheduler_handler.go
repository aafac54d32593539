package api

import (
	"net/http"

	"github.com/srrmlwn/dealflowanalyzer.ai/internal/scheduler"
)

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.app.Scheduler.Status()})
}

// handleSchedulerRun starts a collection run in the background.
func (s *Server) handleSchedulerRun(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Scheduler.RunNow(); err != nil {
		writeFailure(w, err, nil)
		return
	}
	s.wsHub.Broadcast(WSMessage{Type: MsgSchedulerRun})
	writeJSON(w, http.StatusAccepted, APIResponse{
		Success: true,
		Data:    map[string]string{"message": "collection run started"},
	})
}

func (s *Server) handleSchedulerStart(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Scheduler.Start(); err != nil {
		writeFailure(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.app.Scheduler.Status()})
}

func (s *Server) handleSchedulerStop(w http.ResponseWriter, r *http.Request) {
	s.app.Scheduler.Stop()
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.app.Scheduler.Status()})
}

func (s *Server) handleSchedulerConfig(w http.ResponseWriter, r *http.Request) {
	var u scheduler.ConfigUpdate
	if err := decodeBody(r, &u, false); err != nil {
		writeFailure(w, err, nil)
		return
	}
	cfg, err := s.app.Scheduler.UpdateConfig(u)
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: cfg})
}
