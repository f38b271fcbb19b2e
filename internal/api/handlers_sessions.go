// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package api

import (
	"net/http"
	"time"

	"github.com/versepulse/versepulse/internal/models"
)

// sessionView is the session introspection payload. The raw IP and
// user agent stay server-side.
type sessionView struct {
	ID          string              `json:"id"`
	TenantID    *string             `json:"tenant_id,omitempty"`
	FirstSeenAt time.Time           `json:"first_seen_at"`
	LastSeenAt  time.Time           `json:"last_seen_at"`
	Attribution *models.Attribution `json:"attribution,omitempty"`
}

// GetSession handles session introspection requests
//
// @Summary Inspect the current session
// @Description Returns the caller's session and its live tag attribution, minting a session if none exists
// @Tags Sessions
// @Accept json
// @Produce json
// @Success 200 {object} models.APIResponse "Current session"
// @Router /session [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	sess, err := h.ensureSession(w, r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", "Session store unavailable", err)
		return
	}

	view := sessionView{
		ID:          sess.ID,
		TenantID:    sess.TenantID,
		FirstSeenAt: sess.FirstSeenAt,
		LastSeenAt:  sess.LastSeenAt,
		Attribution: h.resolver.Current(sess.ID, time.Now().UTC()),
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   view,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// EndSession handles explicit session termination
//
// @Summary End the current session
// @Description Ends the caller's session and clears the session cookie. A later request mints a fresh identity.
// @Tags Sessions
// @Accept json
// @Produce json
// @Success 200 {object} models.APIResponse "Session ended"
// @Router /session [delete]
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	ended := false
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		if err := h.sessions.End(r.Context(), c.Value, "user_request"); err == nil {
			ended = true
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"ended": ended,
		},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}
