package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"pce/internal/enhance"
	"pce/internal/patterns"
	"pce/internal/storage"
	"pce/internal/version"
)

const maxRequestBytes = 1 << 20

// EnhanceRequest is the body of POST /v1/enhance.
type EnhanceRequest struct {
	Prompt  string          `json:"prompt"`
	Options enhance.Options `json:"options"`
}

// FeedbackRequest is the body of POST /v1/feedback. Either PatternID
// names one pattern directly, or Prompt re-runs detection and applies
// the outcome to every matched pattern.
type FeedbackRequest struct {
	PatternID  string `json:"patternId,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
	Successful bool   `json:"successful"`
}

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	Version  string               `json:"version"`
	Cache    *storage.CacheStats  `json:"cache,omitempty"`
	Patterns PatternStatsResponse `json:"patterns"`
}

// PatternStatsResponse summarizes the registry state.
type PatternStatsResponse struct {
	Total   int `json:"total"`
	Trusted int `json:"trusted"`
	Demoted int `json:"demoted"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) handleEnhance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST")
		return
	}

	var req EnhanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "prompt is required")
		return
	}

	result, err := s.engine.Enhance(r.Context(), req.Prompt, req.Options)
	if err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST")
		return
	}

	var req FeedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}

	var applied []string
	switch {
	case req.PatternID != "":
		s.registry.RecordOutcome(req.PatternID, req.Successful)
		applied = []string{req.PatternID}
	case req.Prompt != "":
		for _, m := range s.registry.Match(req.Prompt) {
			s.registry.RecordOutcome(m.PatternID, req.Successful)
			applied = append(applied, m.PatternID)
		}
	default:
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "patternId or prompt is required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"applied":    applied,
		"successful": req.Successful,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use GET")
		return
	}

	resp := StatsResponse{Version: version.Version}

	if s.cache != nil {
		stats, err := s.cache.Stats()
		if err != nil {
			s.logger.Warn("Cache stats unavailable", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			resp.Cache = stats
		}
	}

	for _, p := range s.registry.Patterns() {
		resp.Patterns.Total++
		switch p.State {
		case patterns.StateTrusted:
			resp.Patterns.Trusted++
		case patterns.StateDemoted:
			resp.Patterns.Demoted++
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body: "+err.Error())
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
