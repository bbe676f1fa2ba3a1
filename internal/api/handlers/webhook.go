package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sorabane/bangusync/internal/config"
	"github.com/sorabane/bangusync/internal/models"
	"github.com/sorabane/bangusync/internal/normalizer"
)

// EventRunner executes one normalized event.
type EventRunner interface {
	Execute(ctx context.Context, event models.SyncEvent, binding config.AccountBinding) *models.SyncRecord
}

// WebhookHandler receives media-server webhooks, one endpoint per source.
type WebhookHandler struct {
	norm   *normalizer.Normalizer
	runner EventRunner
	logger *logrus.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(norm *normalizer.Normalizer, runner EventRunner, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{norm: norm, runner: runner, logger: logger}
}

// HandleCustom accepts the canonical payload directly.
func (h *WebhookHandler) HandleCustom(w http.ResponseWriter, r *http.Request) {
	var payload normalizer.CanonicalPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	h.process(w, r, payload, models.SourceCustom)
}

// HandlePlex accepts Plex webhooks. Plex posts multipart/form-data with the
// JSON under the "payload" field.
func (h *WebhookHandler) HandlePlex(w http.ResponseWriter, r *http.Request) {
	var raw []byte
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart payload")
			return
		}
		raw = []byte(r.FormValue("payload"))
	} else {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}
		raw = body
	}

	var payload normalizer.PlexPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid Plex payload")
		return
	}

	canonical, err := payload.Canonical()
	if err != nil {
		h.respondFiltered(w, err)
		return
	}
	h.process(w, r, canonical, models.SourcePlex)
}

// HandleEmby accepts Emby webhooks.
func (h *WebhookHandler) HandleEmby(w http.ResponseWriter, r *http.Request) {
	var payload normalizer.EmbyPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid Emby payload")
		return
	}

	canonical, err := payload.Canonical()
	if err != nil {
		h.respondFiltered(w, err)
		return
	}
	h.process(w, r, canonical, models.SourceEmby)
}

// HandleJellyfin accepts Jellyfin webhook-plugin notifications.
func (h *WebhookHandler) HandleJellyfin(w http.ResponseWriter, r *http.Request) {
	var payload normalizer.JellyfinPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid Jellyfin payload")
		return
	}

	canonical, err := payload.Canonical()
	if err != nil {
		h.respondFiltered(w, err)
		return
	}
	h.process(w, r, canonical, models.SourceJellyfin)
}

// process runs the shared gate and, when the event survives, executes it
// synchronously so the response carries the outcome.
func (h *WebhookHandler) process(w http.ResponseWriter, r *http.Request, payload normalizer.CanonicalPayload, source models.Source) {
	event, binding, err := h.norm.Normalize(payload, source)
	if err != nil {
		if normalizer.IsFiltered(err) {
			h.respondFiltered(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record := h.runner.Execute(r.Context(), event, binding)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  record.Status,
		"message": record.Message,
	})
}

// respondFiltered acknowledges a deliberately dropped event. Filtered events
// never produce a record, so the media server must still see a 2xx.
func (h *WebhookHandler) respondFiltered(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "filtered",
		"message": err.Error(),
	})
}
