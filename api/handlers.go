// Package api exposes the polling-client HTTP surface. It is a thin layer:
// every route resolves the requester identity, delegates to the
// orchestrator and maps domain errors onto status codes.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"polydoc/langcat"
	"polydoc/models"
	"polydoc/orchestrator"
)

// Authenticator resolves the requester identity from a request. Identity
// is opaque here; JWT/session handling lives with the auth collaborator.
type Authenticator interface {
	UserID(r *http.Request) (string, error)
}

type Handler struct {
	orch *orchestrator.Orchestrator
	auth Authenticator
}

func NewHandler(orch *orchestrator.Orchestrator, auth Authenticator) *Handler {
	return &Handler{orch: orch, auth: auth}
}

// Routes returns the API mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/files/{id}/convert", h.convert)
	mux.HandleFunc("GET /api/files/{id}/status", h.status)
	mux.HandleFunc("GET /api/files", h.listFiles)
	mux.HandleFunc("GET /api/files/converted", h.listConverted)
	mux.HandleFunc("GET /api/files/converted/{id}/download", h.download)
	mux.HandleFunc("DELETE /api/files/{id}", h.deleteFile)
	mux.HandleFunc("GET /api/languages", h.languages)
	return mux
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	userID, fileID, ok := h.identify(w, r)
	if !ok {
		return
	}

	var req orchestrator.ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	jobID, err := h.orch.RequestConversion(r.Context(), fileID, userID, req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message": "Conversion started",
		"jobId":   jobID,
	})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	userID, fileID, ok := h.identify(w, r)
	if !ok {
		return
	}

	st, err := h.orch.GetStatus(r.Context(), fileID, userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) listFiles(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	files, err := h.orch.ListFiles(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if files == nil {
		files = []models.File{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"files": files})
}

func (h *Handler) listConverted(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	converted, err := h.orch.ListConvertedFiles(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if converted == nil {
		converted = []models.ConvertedFile{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"convertedFiles": converted})
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.identify(w, r)
	if !ok {
		return
	}

	url, err := h.orch.DownloadURL(r.Context(), id, userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"url": url})
}

func (h *Handler) deleteFile(w http.ResponseWriter, r *http.Request) {
	userID, fileID, ok := h.identify(w, r)
	if !ok {
		return
	}

	if err := h.orch.DeleteFile(r.Context(), fileID, userID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "File deleted successfully"})
}

func (h *Handler) languages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"languages": langcat.All()})
}

// identify authenticates and parses the {id} path segment.
func (h *Handler) identify(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return "", 0, false
	}
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return "", 0, false
	}
	return userID, id, true
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := h.auth.UserID(r)
	if err != nil || userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	return userID, true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		// Same body for missing and foreign files.
		writeError(w, http.StatusNotFound, "File not found")
	case errors.Is(err, models.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrConflict):
		writeError(w, http.StatusConflict, "A conversion is already in progress for this file")
	default:
		log.Printf("[API] Internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
