package api

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/banshee-data/stride/internal/activity"
	"github.com/banshee-data/stride/internal/httputil"
	"github.com/banshee-data/stride/internal/stats"
)

func errInvalidParam(name, value string) error {
	return fmt.Errorf("invalid %s %q", name, value)
}

// history returns the stored activities shaped by the order and limit query
// parameters. limit keeps the most recent n activities.
func (s *Server) history(r *http.Request) ([]activity.Activity, int, error) {
	q := r.URL.Query()

	limit := -1
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, http.StatusBadRequest, errInvalidParam("limit", v)
		}
		limit = n
	}

	newest := false
	switch order := q.Get("order"); order {
	case "", "oldest":
	case "newest":
		newest = true
	default:
		return nil, http.StatusBadRequest, errInvalidParam("order", order)
	}

	acts, err := s.store.ListActivities(r.Context())
	if err != nil {
		return nil, 0, err
	}
	if limit >= 0 && limit < len(acts) {
		acts = acts[len(acts)-limit:]
	}
	if newest {
		slices.Reverse(acts)
	}
	return acts, http.StatusOK, nil
}

func (s *Server) listActivities(w http.ResponseWriter, r *http.Request) {
	acts, status, err := s.history(r)
	if status == http.StatusBadRequest {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, acts)
}

func (s *Server) showActivity(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetActivity(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, a)
}

func (s *Server) deleteActivity(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteActivity(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rounded := q.Get("rounded") == "true"

	by := q.Get("by")
	if by != "" && by != "type" {
		httputil.BadRequest(w, errInvalidParam("by", by).Error())
		return
	}

	acts, err := s.store.ListActivities(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	if by == "type" {
		groups := stats.ByType(acts)
		if rounded {
			for t, sum := range groups {
				groups[t] = sum.Rounded()
			}
		}
		httputil.WriteJSONOK(w, groups)
		return
	}

	sum := stats.Summarize(acts)
	if rounded {
		sum = sum.Rounded()
	}
	httputil.WriteJSONOK(w, sum)
}
