package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/macha/internal/flows"
)

// runFlow serves the in-process flows with the same envelope a remote flow
// server speaks, so HTTPInvoker can point at another macha instance.
func (s *Server) runFlow(w http.ResponseWriter, r *http.Request) {
	if s.flows == nil {
		writeEnvelopeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "flows are served remotely")
		return
	}
	name := chi.URLParam(r, "flow")
	if !slices.Contains(s.flows.Flows(), name) {
		writeEnvelopeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("unknown flow %q", name))
		return
	}

	var req flows.Envelope
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelopeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid JSON: "+err.Error())
		return
	}
	if req.Data == nil {
		writeEnvelopeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "missing data")
		return
	}

	out, err := s.flows.Invoke(r.Context(), name, req.Data)
	if err != nil {
		s.logger.Error("flow failed", "flow", name, "error", err)
		switch {
		case errors.Is(err, flows.ErrMalformedOutput):
			writeEnvelopeError(w, http.StatusBadGateway, "INTERNAL", err.Error())
		case errors.Is(err, flows.ErrInvalidInput):
			writeEnvelopeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		default:
			writeEnvelopeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, flows.Envelope{Result: out})
}

func writeEnvelopeError(w http.ResponseWriter, code int, status, msg string) {
	writeJSON(w, code, flows.Envelope{Error: &flows.EnvelopeError{Status: status, Message: msg}})
}

// getStats handles GET /api/v1/stats?since=24h&failures=10
func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		http.Error(w, `{"error":"turn ledger is not configured"}`, http.StatusServiceUnavailable)
		return
	}

	window := 24 * time.Hour
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			http.Error(w, `{"error":"invalid since duration"}`, http.StatusBadRequest)
			return
		}
		window = d
	}
	limit := 10
	if v := r.URL.Query().Get("failures"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			http.Error(w, `{"error":"failures must be between 0 and 100"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	stats, err := s.stats.Stats(r.Context(), time.Now().Add(-window))
	if err != nil {
		s.logger.Error("failed to read stats", "error", err)
		http.Error(w, `{"error":"failed to read stats"}`, http.StatusInternalServerError)
		return
	}
	failures, err := s.stats.RecentFailures(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read recent failures", "error", err)
		http.Error(w, `{"error":"failed to read stats"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"window":   window.String(),
		"stats":    stats,
		"failures": failures,
	})
}
