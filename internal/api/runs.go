package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/congestion.report/internal/db"
	"github.com/banshee-data/congestion.report/internal/hotspot"
	"github.com/banshee-data/congestion.report/internal/httputil"
)

const (
	defaultRunsLimit = 50
	maxRunsLimit     = 1000
)

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cfg.Store == nil {
		httputil.NotFound(w, "run persistence is not enabled")
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = v
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}

	runs, err := s.cfg.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleRunByID serves /api/runs/{id}, /api/runs/{id}/clusters and
// /api/runs/{id}/records.
func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		httputil.NotFound(w, "run persistence is not enabled")
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/"), "/")
	id := parts[0]
	if id == "" || len(parts) > 2 {
		httputil.NotFound(w, "not found")
		return
	}

	if len(parts) == 2 {
		s.handleRunChild(w, r, id, parts[1])
		return
	}

	switch r.Method {
	case http.MethodGet:
		run, err := s.cfg.Store.GetRun(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		httputil.WriteJSONOK(w, run)
	case http.MethodDelete:
		if err := s.cfg.Store.DeleteRun(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w)
	}
}

// handleRunChild serves the read-only collections stored under a run.
func (s *Server) handleRunChild(w http.ResponseWriter, r *http.Request, id, child string) {
	if child != "clusters" && child != "records" {
		httputil.NotFound(w, "not found")
		return
	}
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	var (
		items interface{}
		count int
		err   error
	)
	if child == "clusters" {
		var clusters []db.RunCluster
		clusters, err = s.cfg.Store.RunClusters(r.Context(), id)
		items, count = clusters, len(clusters)
	} else {
		var records []hotspot.Record
		records, err = s.cfg.Store.RunRecords(r.Context(), id)
		items, count = records, len(records)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"run_id": id,
		child:    items,
		"count":  count,
	})
}
