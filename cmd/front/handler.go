// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Finatext/orgu/lib/events"
	"github.com/Finatext/orgu/lib/relay"
	"github.com/Finatext/orgu/lib/webhook"
)

// maxWebhookBodySize caps the accepted request body. GitHub's
// documented maximum webhook payload is well under this; the margin
// protects against a misbehaving or malicious sender.
const maxWebhookBodySize = 10 * 1024 * 1024

// webhookHandler serves POST /github/events. It verifies the HMAC
// signature, canonicalizes the payload into a CheckRequest, and
// relays it, mapping every outcome onto the status codes documented
// in the external interface.
type webhookHandler struct {
	secret       []byte
	canonicalize *events.Canonicalizer
	properties   events.PropertiesFetcher
	publisher    relay.Publisher
	logger       *slog.Logger
}

func newWebhookHandler(secret []byte, canonicalizer *events.Canonicalizer, properties events.PropertiesFetcher, publisher relay.Publisher, logger *slog.Logger) *webhookHandler {
	return &webhookHandler{
		secret:       secret,
		canonicalize: canonicalizer,
		properties:   properties,
		publisher:    publisher,
		logger:       logger,
	}
}

func (h *webhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		h.logger.Error("reading webhook body failed", "error", err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	if err := webhook.Verify(h.secret, body, r.Header.Get("X-Hub-Signature-256")); err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err, "remote_addr", r.RemoteAddr)
		http.Error(w, "", http.StatusUnauthorized)
		return
	}

	eventName := r.Header.Get("X-GitHub-Event")
	deliveryID := r.Header.Get("X-GitHub-Delivery")
	logger := h.logger.With("event_name", eventName, "delivery_id", deliveryID)

	request, err := h.canonicalize.Canonicalize(r.Context(), eventName, body, deliveryID, h.properties)
	if err != nil {
		var ignored *events.IgnoredError
		if errors.As(err, &ignored) {
			logger.Info("ignoring webhook delivery", "reason", ignored.Reason)
			writeJSON(w, http.StatusOK, map[string]string{"ignored": ignored.Reason})
			return
		}
		if errors.Is(err, events.ErrMalformedPayload) {
			logger.Warn("malformed webhook payload", "error", err)
			http.Error(w, "", http.StatusBadRequest)
			return
		}
		logger.Error("canonicalizing webhook payload failed", "error", err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	if err := h.publisher.Publish(r.Context(), request); err != nil {
		logger.Error("relaying check request failed", "error", err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	logger.Info("webhook delivery relayed", "repo", request.Repository.FullName, "head_sha", request.Head.SHA)
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// healthHandler answers GET /health with 200 whenever the process is
// live. No deep checks — front has no dependency whose health would
// make a shallow check meaningful before the first request arrives.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
