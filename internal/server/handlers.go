package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/firegres/firegres/internal/storage"
)

// maxBodySize caps request bodies at 1MB.
const maxBodySize = 1 << 20

// dbNameRequest is the JSON body for /createdb and /deletedb.
type dbNameRequest struct {
	DBName string `json:"db_name"`
}

// errorResponse is the JSON body for every non-2xx response.
type errorResponse struct {
	Reason string `json:"reason"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, errorResponse{Reason: reason})
}

// writeStorageError maps storage sentinel errors onto HTTP statuses.
func writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrAlreadyExists):
		writeError(w, http.StatusBadRequest, "db with the same name already exists")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "database not found")
	case errors.Is(err, storage.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "invalid database name")
	case errors.Is(err, storage.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, "invalid path")
	case errors.Is(err, storage.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		log.Printf("server: storage error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody parses a JSON request body. Any valid JSON value is accepted;
// numbers decode as float64.
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// pathParam returns the path remainder after the database name; empty when
// the route matched without a wildcard.
func pathParam(r *http.Request) string {
	return chi.URLParam(r, "*")
}

func (s *Server) handleCreateDB(w http.ResponseWriter, r *http.Request) {
	var req dbNameRequest
	if err := decodeBody(r, &req); err != nil || req.DBName == "" {
		writeError(w, http.StatusBadRequest, "expected JSON body with db_name")
		return
	}
	if _, err := s.store.CreateDatabase(r.Context(), req.DBName); err != nil {
		writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteDB(w http.ResponseWriter, r *http.Request) {
	var req dbNameRequest
	if err := decodeBody(r, &req); err != nil || req.DBName == "" {
		writeError(w, http.StatusBadRequest, "expected JSON body with db_name")
		return
	}
	if err := s.store.DeleteDatabase(r.Context(), req.DBName); err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, true)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	value, err := s.store.Get(r.Context(), chi.URLParam(r, "ldb"), pathParam(r))
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, value)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	var value any
	if err := decodeBody(r, &value); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	echo, err := s.store.Put(r.Context(), chi.URLParam(r, "ldb"), pathParam(r), value)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, echo)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	var value any
	if err := decodeBody(r, &value); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, ok := value.(map[string]any); !ok {
		writeError(w, http.StatusBadRequest, "patch body must be a JSON object")
		return
	}
	echo, err := s.store.Patch(r.Context(), chi.URLParam(r, "ldb"), pathParam(r), value)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, echo)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	var value any
	if err := decodeBody(r, &value); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	posted, err := s.store.Post(r.Context(), chi.URLParam(r, "ldb"), pathParam(r), value)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posted)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.store.Delete(r.Context(), chi.URLParam(r, "ldb"), pathParam(r))
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}
