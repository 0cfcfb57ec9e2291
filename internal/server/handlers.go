package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/veilproject/veil/internal/engine"
	"github.com/veilproject/veil/internal/vault"
)

// AnonymizeRequest is the body of POST /v1/anonymize. Input is either a
// server-local file path or literal text.
type AnonymizeRequest struct {
	Input    string `json:"input"`
	BaseName string `json:"base_name,omitempty"`
}

// AnonymizeResponse reports where the artifacts of the session landed.
type AnonymizeResponse struct {
	SessionID      string `json:"session_id"`
	BaseName       string `json:"base_name"`
	AnonymizedPath string `json:"anonymized_path"`
	MappingPath    string `json:"mapping_path"`
	AnonymizedText string `json:"anonymized_text"`
	Entities       int    `json:"entities"`
}

// DeanonymizeRequest is the body of POST /v1/deanonymize.
type DeanonymizeRequest struct {
	AnonymizedPath string `json:"anonymized_path"`
}

// DeanonymizeResponse reports the restored file.
type DeanonymizeResponse struct {
	RestoredPath string `json:"restored_path"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	var req AnonymizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Input == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}

	result, err := s.engine.Anonymize(r.Context(), req.Input, s.config.Server.OutputDir, req.BaseName)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AnonymizeResponse{
		SessionID:      result.Session.ID,
		BaseName:       result.Session.BaseName,
		AnonymizedPath: result.AnonymizedPath,
		MappingPath:    result.MappingPath,
		AnonymizedText: result.AnonymizedText,
		Entities:       len(result.Resolutions),
	})
}

func (s *Server) handleDeanonymize(w http.ResponseWriter, r *http.Request) {
	var req DeanonymizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AnonymizedPath == "" {
		writeError(w, http.StatusBadRequest, "anonymized_path is required")
		return
	}

	restoredPath, err := s.engine.Deanonymize(r.Context(), req.AnonymizedPath, "")
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DeanonymizeResponse{RestoredPath: restoredPath})
}

// writeEngineError maps engine failures onto HTTP statuses without leaking
// original values into the response.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var notFound *vault.NotFoundError
	var corrupt *vault.CorruptError
	var fsErr *engine.FilesystemError

	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &corrupt):
		writeError(w, http.StatusUnprocessableEntity, corrupt.Error())
	case errors.As(err, &fsErr):
		writeError(w, http.StatusInternalServerError, fsErr.Error())
	default:
		s.logger.Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
