// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Finatext/orgu/lib/dispatcher"
	"github.com/Finatext/orgu/lib/events"
)

// maxRunBodySize caps the accepted CheckRequest envelope body.
const maxRunBodySize = 1 * 1024 * 1024

// runHandler serves POST /run. The body is a CheckRequest envelope;
// per the rule that once a check run exists the runner always
// attempts a terminal update and always returns 200, only a
// dispatcher.HardError (failure to even open the check run) or a
// malformed body produces a non-200 response.
type runHandler struct {
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
}

func newRunHandler(d *dispatcher.Dispatcher, logger *slog.Logger) *runHandler {
	return &runHandler{dispatcher: d, logger: logger}
}

func (h *runHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRunBodySize))
	if err != nil {
		h.logger.Error("reading run request body failed", "error", err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	var request events.CheckRequest
	if err := json.Unmarshal(body, &request); err != nil {
		h.logger.Warn("malformed run request body", "error", err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}
	if err := request.Validate(); err != nil {
		h.logger.Warn("invalid check request", "error", err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), &request); err != nil {
		var hardErr *dispatcher.HardError
		if errors.As(err, &hardErr) {
			h.logger.Error("dispatch failed before a check run could be opened", "error", err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
		h.logger.Error("dispatch returned an unexpected error", "error", err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// healthHandler answers GET /health with 200 whenever the process is
// live. No deep checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
