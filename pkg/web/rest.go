package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/crystal-mush/gridadmin/pkg/admin"
	"github.com/crystal-mush/gridadmin/pkg/attach"
	"github.com/crystal-mush/gridadmin/pkg/audit"
	"github.com/crystal-mush/gridadmin/pkg/validate"
	"github.com/crystal-mush/gridadmin/pkg/world"
)

// registerRESTRoutes registers the admin API. Every route requires a token.
func (s *Server) registerRESTRoutes() {
	authed := func(pattern string, h http.HandlerFunc) {
		s.mux.Handle(pattern, authMiddleware(s.auth, h))
	}

	authed("GET /api/v1/grids/{id}/attached", s.handleAttached)
	authed("GET /api/v1/grids/{id}/owners", s.handleOwners)
	authed("POST /api/v1/grids/{id}/stop", s.handleStopShip)
	authed("POST /api/v1/grids/{id}/eject", s.handleEject)
	authed("POST /api/v1/entities/{id}/stop", s.handleStop)
	authed("POST /api/v1/blocks/{id}/power", s.handlePower)
	authed("GET /api/v1/audit", s.handleAudit)
	authed("GET /api/v1/validate", s.handleValidate)
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (world.EntityID, bool) {
	n, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return world.NoEntity, false
	}
	return world.EntityID(n), true
}

// writeAdminError maps admin errors onto HTTP statuses.
func writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, admin.ErrNoSuchEntity):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, admin.ErrNotGrid), errors.Is(err, admin.ErrNotBlock):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleAttached(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid grid id")
		return
	}
	mode := s.mode
	if q := r.URL.Query().Get("mode"); q != "" {
		m, err := attach.ParseMode(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mode = m
	}

	set, err := s.actorService(r).AttachedGrids(id, mode)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"origin": id,
		"mode":   mode.String(),
		"grids":  set.IDs(),
	})
}

func (s *Server) handleOwners(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid grid id")
		return
	}
	owners, err := s.actorService(r).AllSmallOwners(id)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	if owners == nil {
		owners = []world.PlayerID{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"origin": id, "owners": owners})
}

func (s *Server) handleStopShip(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid grid id")
		return
	}
	rep, err := s.actorService(r).StopShip(id)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid entity id")
		return
	}
	stopped, err := s.actorService(r).Stop(id)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entity": id, "stopped": stopped})
}

func (s *Server) handleEject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid grid id")
		return
	}
	ejected, err := s.actorService(r).EjectControllingPlayers(id)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	if ejected == nil {
		ejected = []world.PlayerID{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"grid": id, "ejected": ejected})
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid block id")
		return
	}
	var req struct {
		On *bool `json:"on"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil || req.On == nil {
		writeError(w, http.StatusBadRequest, `body must be {"on": true|false}`)
		return
	}
	if err := s.actorService(r).SetPower(id, *req.On); err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"block": id, "on": *req.On})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	store := s.svc.Audit()
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log not configured")
		return
	}
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, 1000)
	}
	entries, err := store.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var rep *validate.Report
	s.svc.Read(func(wd *world.World) {
		v := validate.New(wd)
		v.Run()
		rep = validate.GenerateReport(v)
	})
	writeJSON(w, http.StatusOK, rep)
}
