package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/focusops/focus-collector/internal/focus"
	"github.com/focusops/focus-collector/internal/store"
)

const enqueueTimeout = 5 * time.Second

type createRunRequest struct {
	QueryID string `json:"query_id"`
}

// createRun creates a PENDING run for the query and schedules it.
func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QueryID == "" {
		s.writeError(w, http.StatusBadRequest, "query_id is required")
		return
	}

	if _, err := s.store.GetQuery(r.Context(), req.QueryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "query not found")
			return
		}
		s.logger.Error("query lookup failed", zap.String("query_id", req.QueryID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "query lookup failed")
		return
	}

	runID, err := s.idGen.NewID()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "generate run id failed")
		return
	}
	now := s.clock.Now()

	if err := s.store.CreateRun(r.Context(), focus.QueryRun{
		ID:      runID,
		QueryID: req.QueryID,
		Status:  focus.RunPending,
	}); err != nil {
		s.logger.Error("create run failed", zap.String("run_id", runID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "create run failed")
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	job := focus.RunJob{
		RunID:     runID,
		QueryID:   req.QueryID,
		Attempt:   1,
		Submitted: now.Unix(),
	}
	if err := s.queue.Enqueue(queueCtx, job); err != nil {
		s.logger.Error("enqueue run failed", zap.String("run_id", runID), zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "run queue unavailable")
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// getRun is the polling fallback for clients not holding an event stream.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("run lookup failed", zap.String("run_id", runID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "run lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}
