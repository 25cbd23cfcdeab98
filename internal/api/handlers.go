package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jandubois/healthagent/internal/db"
	"github.com/jandubois/healthagent/internal/metrics"
	"github.com/jandubois/healthagent/internal/runner"
)

const maxHistoryLimit = 1000

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"server":         s.agent.Hostname(),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, metrics.Snapshot{
		Timestamp: time.Now(),
		Server:    s.agent.Hostname(),
		Checks:    s.agent.Results(),
	})
}

func (s *Server) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.agent.Configured(name) {
		s.writeError(w, http.StatusNotFound, "unknown check")
		return
	}
	result, ok := s.agent.Result(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "check has not run yet")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRunCheck(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := s.agent.Trigger(name)
	switch {
	case errors.Is(err, runner.ErrUnknownCheck):
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, runner.ErrCheckRunning):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	result, _ := s.agent.Result(name)
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCheckHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.agent.Configured(name) {
		s.writeError(w, http.StatusNotFound, "unknown check")
		return
	}

	limit := db.DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	runs, err := s.opts.History.RecentRuns(r.Context(), name, limit)
	if err != nil {
		s.logger.Error("history query failed", zap.String("check", name), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}
