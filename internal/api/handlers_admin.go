package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sarvex/keywhiz/internal/apperr"
)

type createClientRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Automation  bool   `json:"automation"`
}

func (s *Server) createClientHandler(w http.ResponseWriter, r *http.Request) {
	caller := mustPrincipal(r)
	var req createClientRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, apperr.Wrap(apperr.InvalidInput, "malformed request body", err))
		return
	}
	id, err := s.clients.CreateClient(r.Context(), req.Name, req.Description, caller.Name(), req.Automation)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	client, err := s.clients.GetClientByID(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

func (s *Server) listClientsHandler(w http.ResponseWriter, r *http.Request) {
	clients, err := s.clients.ListClients(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

func (s *Server) deleteClientHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	client, err := s.clients.GetClientByName(r.Context(), name)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := s.clients.DeleteClient(r.Context(), client.ID); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (s *Server) createGroupHandler(w http.ResponseWriter, r *http.Request) {
	caller := mustPrincipal(r)
	var req createGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, apperr.Wrap(apperr.InvalidInput, "malformed request body", err))
		return
	}
	id, err := s.groups.CreateGroup(r.Context(), req.Name, req.Description, caller.Name())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	group, err := s.groups.GetGroupByID(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (s *Server) listGroupsHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := s.groups.ListGroups(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) deleteGroupHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	group, err := s.groups.GetGroupByName(r.Context(), name)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := s.groups.DeleteGroup(r.Context(), group.ID); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathInt64(r *http.Request, key string) (int64, error) {
	v := chi.URLParam(r, key)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, apperr.Wrap(apperr.InvalidInput, key+" must be numeric", err)
	}
	return n, nil
}

// enrollHandler and its three siblings mutate the ClientInGroup /
// SeriesInGroup bipartite edges directly; both edge relations are
// idempotent set-algebra, so a repeat call is not an error.
func (s *Server) enrollHandler(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathInt64(r, "clientID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	groupID, err := pathInt64(r, "groupID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := s.members.Enroll(r.Context(), clientID, groupID); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) evictHandler(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathInt64(r, "clientID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	groupID, err := pathInt64(r, "groupID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := s.members.Evict(r.Context(), clientID, groupID); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) allowHandler(w http.ResponseWriter, r *http.Request) {
	seriesID, err := pathInt64(r, "seriesID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	groupID, err := pathInt64(r, "groupID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := s.members.Allow(r.Context(), seriesID, groupID); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) disallowHandler(w http.ResponseWriter, r *http.Request) {
	seriesID, err := pathInt64(r, "seriesID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	groupID, err := pathInt64(r, "groupID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := s.members.Disallow(r.Context(), seriesID, groupID); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
