package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/francaflow/flow-go/internal/clients"
)

// LookupResponse is the body of GET /api/clients/{code}.
type LookupResponse struct {
	Name     string `json:"nome"`
	Category string `json:"categoria"`
}

func (s *Server) handleLookupClient(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Clients.Lookup(r.Context(), r.PathValue("code"))
	if err != nil {
		s.clientError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, LookupResponse{Name: c.Name, Category: c.Category})
}

type clientListResponse struct {
	Clients []clients.Client `json:"clientes"`
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	all, err := s.deps.Clients.List(r.Context())
	if err != nil {
		s.clientError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, clientListResponse{Clients: all})
}

type addClientResponse struct {
	Success bool           `json:"success"`
	Client  clients.Client `json:"cliente"`
}

func (s *Server) handleAddClient(w http.ResponseWriter, r *http.Request) {
	var req clients.NewClient
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.deps.Clients.Add(r.Context(), req)
	if err != nil {
		s.clientError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, addClientResponse{Success: true, Client: c})
}

type removeClientRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleRemoveClient(w http.ResponseWriter, r *http.Request) {
	var req removeClientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.ID == "" {
		s.writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := s.deps.Clients.Remove(r.Context(), req.ID); err != nil {
		s.clientError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

type migrateResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Clients []clients.Client `json:"clientes"`
}

func (s *Server) handleMigrateClients(w http.ResponseWriter, r *http.Request) {
	seeded, err := s.deps.Clients.Migrate(r.Context())
	if err != nil {
		s.clientError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, migrateResponse{
		Success: true,
		Message: fmt.Sprintf("%d clientes migrados com sucesso!", len(seeded)),
		Clients: seeded,
	})
}

func (s *Server) clientError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, clients.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "client not found")
	case errors.Is(err, clients.ErrInvalidClient):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, clients.ErrDuplicateCode):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("client directory error", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
