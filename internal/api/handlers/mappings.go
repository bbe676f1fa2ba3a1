package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/sorabane/bangusync/internal/mapping"
)

// MappingsHandler manages custom title -> subject overrides over HTTP.
type MappingsHandler struct {
	store  *mapping.Store
	logger *logrus.Logger
}

// NewMappingsHandler creates a mappings handler.
func NewMappingsHandler(store *mapping.Store, logger *logrus.Logger) *MappingsHandler {
	return &MappingsHandler{store: store, logger: logger}
}

// List returns every override.
func (h *MappingsHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.List()
	if err != nil {
		h.logger.WithError(err).Error("Failed to list mappings")
		writeError(w, http.StatusInternalServerError, "failed to list mappings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mappings": entries,
		"total":    len(entries),
	})
}

// Add inserts or replaces one override.
func (h *MappingsHandler) Add(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title     string `json:"title"`
		SubjectID int    `json:"subject_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	if err := h.store.Add(body.Title, body.SubjectID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"title":      body.Title,
		"subject_id": body.SubjectID,
	})
}

// Delete removes one override by title (path parameter).
func (h *MappingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	title := r.PathValue("title")
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	if err := h.store.Delete(title); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export dumps the overrides as a flat title -> subject map.
func (h *MappingsHandler) Export(w http.ResponseWriter, r *http.Request) {
	out, err := h.store.Export()
	if err != nil {
		h.logger.WithError(err).Error("Failed to export mappings")
		writeError(w, http.StatusInternalServerError, "failed to export mappings")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Import merges a flat title -> subject map, replacing duplicates.
func (h *MappingsHandler) Import(w http.ResponseWriter, r *http.Request) {
	var mappings map[string]int
	if err := json.NewDecoder(r.Body).Decode(&mappings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	count, err := h.store.Import(mappings)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": count})
}
