// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package api

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/versepulse/versepulse/internal/ingest"
	"github.com/versepulse/versepulse/internal/logging"
	"github.com/versepulse/versepulse/internal/middleware"
	"github.com/versepulse/versepulse/internal/models"
)

// maxEventBodyBytes caps ingest request bodies. Batches beyond this
// should be split client-side.
const maxEventBodyBytes = 1 << 20

// maxBatchEvents caps entries per batch request.
const maxBatchEvents = 500

// batchRequest is the batch ingest envelope.
type batchRequest struct {
	Events []ingest.RawEvent `json:"events"`
}

// clientIP extracts the peer address without the port. RealIP
// middleware has already rewritten RemoteAddr behind trusted proxies.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ensureSession reads the session cookie and resolves it to a live
// session, minting a fresh one when the cookie is absent or names an
// unknown token. The cookie is re-set on every call so its expiry
// slides with activity.
func (h *Handler) ensureSession(w http.ResponseWriter, r *http.Request) (*models.Session, error) {
	token := ""
	if c, err := r.Cookie(SessionCookie); err == nil {
		token = c.Value
	}

	sess, created, err := h.sessions.GetOrCreate(r.Context(), token, clientIP(r), r.UserAgent())
	if err != nil {
		return nil, err
	}
	if created && token != "" {
		logging.Ctx(r.Context()).Debug().
			Msg("Unknown session token replaced with fresh identity")
	}

	maxAge := int(h.config.Session.IdleCutoff.Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, nil
}

// stampEvent overwrites the client-controllable identity fields with
// server-derived values. Tokens in the body are ignored; the cookie
// session is authoritative.
func stampEvent(raw *ingest.RawEvent, sess *models.Session, tenantID, ip, userAgent string) {
	raw.SessionToken = sess.ID
	raw.TenantHint = tenantID
	if raw.IPAddress == "" {
		raw.IPAddress = ip
	}
	if raw.UserAgent == "" {
		raw.UserAgent = userAgent
	}
}

// IngestEvent handles single event submission
//
// @Summary Ingest one analytics event or an array of events
// @Description Accepts a single event object or a JSON array of events. Single events attribute through the fallback chain and append to the event store; arrays are processed as a batch with independent entries.
// @Tags Events
// @Accept json
// @Produce json
// @Success 202 {object} models.APIResponse{data=models.IngestResponse} "Event accepted"
// @Failure 400 {object} models.APIResponse "Malformed event"
// @Failure 503 {object} models.APIResponse "Event store unavailable"
// @Router /events [post]
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxEventBodyBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Failed to read request body", err)
		return
	}

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var events []ingest.RawEvent
		if err := json.Unmarshal(body, &events); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be a JSON event or array of events", err)
			return
		}
		h.ingestBatch(w, r, events)
		return
	}

	var raw ingest.RawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be a JSON event", err)
		return
	}

	sess, err := h.ensureSession(w, r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", "Session store unavailable", err)
		return
	}

	tenantID := ""
	if t := middleware.GetTenant(r.Context()); t != nil {
		tenantID = t.ID
	}
	ip := clientIP(r)
	stampEvent(&raw, sess, tenantID, ip, r.UserAgent())

	if err := h.pipeline.Ingest(r.Context(), &raw); err != nil {
		switch {
		case errors.Is(err, ingest.ErrMalformedEvent):
			respondError(w, http.StatusBadRequest, "MALFORMED_EVENT", "Event failed validation", err)
		case errors.Is(err, ingest.ErrStorageUnavailable):
			respondError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Event store unavailable", err)
		default:
			respondError(w, http.StatusInternalServerError, "INGEST_FAILED", "Failed to ingest event", err)
		}
		return
	}

	respondJSON(w, http.StatusAccepted, &models.APIResponse{
		Status: "success",
		Data:   models.IngestResponse{Processed: 1},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// IngestEventBatch handles batched event submission
//
// @Summary Ingest a batch of analytics events
// @Description Accepts up to 500 events. Entries are processed independently; malformed entries are counted and skipped without aborting the batch.
// @Tags Events
// @Accept json
// @Produce json
// @Success 202 {object} models.APIResponse{data=models.IngestResponse} "Batch accepted"
// @Failure 400 {object} models.APIResponse "Invalid batch envelope"
// @Router /events/batch [post]
func (h *Handler) IngestEventBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxEventBodyBytes)

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be a JSON batch envelope", err)
		return
	}

	h.ingestBatch(w, r, req.Events)
}

// ingestBatch is the shared batch path behind the batch envelope route
// and array bodies on the single-event route.
func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request, events []ingest.RawEvent) {
	if len(events) == 0 {
		respondError(w, http.StatusBadRequest, "EMPTY_BATCH", "Batch must contain at least one event", nil)
		return
	}
	if len(events) > maxBatchEvents {
		respondError(w, http.StatusBadRequest, "BATCH_TOO_LARGE", "Batch exceeds 500 events", nil)
		return
	}

	sess, err := h.ensureSession(w, r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", "Session store unavailable", err)
		return
	}

	tenantID := ""
	if t := middleware.GetTenant(r.Context()); t != nil {
		tenantID = t.ID
	}
	ip := clientIP(r)
	for i := range events {
		stampEvent(&events[i], sess, tenantID, ip, r.UserAgent())
	}

	result := h.pipeline.IngestBatch(r.Context(), events)

	respondJSON(w, http.StatusAccepted, &models.APIResponse{
		Status: "success",
		Data: models.IngestResponse{
			Processed: result.Processed,
			Failed:    result.Failed,
			Errors:    result.Errors,
		},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}
