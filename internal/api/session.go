package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/stride/internal/activity"
	"github.com/banshee-data/stride/internal/httputil"
	"github.com/banshee-data/stride/internal/session"
	"github.com/banshee-data/stride/internal/units"
)

type sessionResponse struct {
	Recording bool              `json:"recording"`
	Elapsed   string            `json:"elapsed,omitempty"`
	Session   *session.Snapshot `json:"session,omitempty"`

	// set when the request names display units
	Units        string   `json:"units,omitempty"`
	CurrentSpeed *float64 `json:"current_speed,omitempty"`
	MaxSpeed     *float64 `json:"max_speed,omitempty"`
}

// newSessionResponse describes snap, converting speeds into speedUnits when
// it is not empty.
func newSessionResponse(snap session.Snapshot, recording bool, speedUnits string) sessionResponse {
	resp := sessionResponse{Recording: recording}
	if !recording {
		return resp
	}
	resp.Elapsed = snap.Elapsed()
	resp.Session = &snap
	if speedUnits != "" {
		current := units.ConvertSpeed(snap.CurrentSpeedKmh/units.MPSToKmh, speedUnits)
		top := units.ConvertSpeed(snap.MaxSpeedMPS, speedUnits)
		resp.Units = speedUnits
		resp.CurrentSpeed = &current
		resp.MaxSpeed = &top
	}
	return resp
}

type startRequest struct {
	Type string `json:"type"`
}

type stopFailure struct {
	Error    string             `json:"error"`
	Activity *activity.Activity `json:"activity"`
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	speedUnits := r.URL.Query().Get("units")
	if speedUnits != "" && !units.IsValid(speedUnits) {
		httputil.BadRequest(w, fmt.Sprintf("invalid units %q: expected one of %s", speedUnits, units.GetValidUnitsString()))
		return
	}

	snap, ok, err := s.rec.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, newSessionResponse(snap, ok, speedUnits))
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	t, err := activity.ParseType(req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.rec.Start(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}

	snap, ok, err := s.rec.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, newSessionResponse(snap, ok, ""))
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	act, err := s.rec.Stop(r.Context())
	var pe *activity.PersistenceError
	switch {
	case err != nil && act != nil && errors.As(err, &pe):
		httputil.WriteJSON(w, http.StatusBadGateway, stopFailure{Error: err.Error(), Activity: act})
	case err != nil:
		writeError(w, err)
	case act == nil:
		httputil.NoContent(w)
	default:
		httputil.WriteJSONOK(w, act)
	}
}
