package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sorabane/bangusync/internal/config"
	"github.com/sorabane/bangusync/internal/models"
	"github.com/sorabane/bangusync/internal/services/trakt"
)

// TraktHandler exposes connection management and manual pulls.
type TraktHandler struct {
	puller *trakt.Puller
	cfg    *config.Config
	logger *logrus.Logger
}

// NewTraktHandler creates a Trakt handler. puller is nil when the application
// has no Trakt credentials; every endpoint then answers 503.
func NewTraktHandler(puller *trakt.Puller, cfg *config.Config, logger *logrus.Logger) *TraktHandler {
	return &TraktHandler{puller: puller, cfg: cfg, logger: logger}
}

func (h *TraktHandler) ready(w http.ResponseWriter) bool {
	if h.puller == nil {
		writeError(w, http.StatusServiceUnavailable, "trakt integration is not configured")
		return false
	}
	return true
}

// binding resolves the target account from the "account" query parameter,
// defaulting to the sole Trakt-enabled binding when there is exactly one.
func (h *TraktHandler) binding(r *http.Request) (config.AccountBinding, bool) {
	account := r.URL.Query().Get("account")
	if account != "" {
		b, ok := h.cfg.BindingFor(account)
		return b, ok && b.TraktEnabled
	}
	accounts := h.cfg.TraktAccounts()
	if len(accounts) == 1 {
		return accounts[0], true
	}
	return config.AccountBinding{}, false
}

// Sync triggers an incremental pull for one account.
func (h *TraktHandler) Sync(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, false)
}

// SyncFull triggers a full-history pull, ignoring the cursor.
func (h *TraktHandler) SyncFull(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, true)
}

func (h *TraktHandler) trigger(w http.ResponseWriter, r *http.Request, full bool) {
	if !h.ready(w) {
		return
	}
	binding, ok := h.binding(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown or non-trakt account")
		return
	}

	// The pull outlives the request, so it runs under its own context.
	err := h.puller.Trigger(context.Background(), binding, full)
	if err != nil {
		if errors.Is(err, trakt.ErrSyncActive) {
			writeError(w, http.StatusConflict, "a sync is already running for this account")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"account": binding.UserName,
		"full":    full,
		"status":  "started",
	})
}

// Status reports connection and cursor state for one account.
func (h *TraktHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	binding, ok := h.binding(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown or non-trakt account")
		return
	}

	status, err := h.puller.Status(binding.UserName)
	if err != nil {
		h.logger.WithError(err).Error("Failed to read Trakt status")
		writeError(w, http.StatusInternalServerError, "failed to read status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Token stores a token pair pasted in directly, bypassing the browser flow.
func (h *TraktHandler) Token(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var body struct {
		Account      string    `json:"account"`
		AccessToken  string    `json:"access_token"`
		RefreshToken string    `json:"refresh_token"`
		ExpiresAt    time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if body.ExpiresAt.IsZero() {
		body.ExpiresAt = time.Now().Add(90 * 24 * time.Hour)
	}

	err := h.puller.SetToken(&models.TraktToken{
		Account:      body.Account,
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    body.ExpiresAt,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"account": body.Account, "status": "connected"})
}

// Disconnect drops the stored token and cursor for one account.
func (h *TraktHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	binding, ok := h.binding(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown or non-trakt account")
		return
	}

	if err := h.puller.Disconnect(binding.UserName); err != nil {
		h.logger.WithError(err).WithField("account", binding.UserName).Error("Trakt disconnect failed")
		writeError(w, http.StatusInternalServerError, "disconnect failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"account": binding.UserName, "status": "disconnected"})
}

// Authorize redirects the browser to Trakt's consent page. The account name
// rides along in the OAuth state parameter.
func (h *TraktHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	binding, ok := h.binding(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown or non-trakt account")
		return
	}
	http.Redirect(w, r, h.puller.AuthorizeURL(binding.UserName), http.StatusFound)
}

// Callback finishes the authorization-code flow.
func (h *TraktHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	code := r.URL.Query().Get("code")
	account := r.URL.Query().Get("state")
	if code == "" || account == "" {
		writeError(w, http.StatusBadRequest, "code and state are required")
		return
	}
	if _, ok := h.cfg.BindingFor(account); !ok {
		writeError(w, http.StatusBadRequest, "unknown account in state")
		return
	}

	if err := h.puller.Connect(r.Context(), account, code); err != nil {
		h.logger.WithError(err).WithField("account", account).Error("Trakt code exchange failed")
		writeError(w, http.StatusBadGateway, "code exchange failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"account": account, "status": "connected"})
}
