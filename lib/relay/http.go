// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Finatext/orgu/lib/events"
)

// HTTPPublisher POSTs the envelope as JSON to a configured endpoint.
// It is used for both the "HTTP relay" variant (an arbitrary relay
// endpoint) and the "Direct" variant (the runner's own /run endpoint)
// — the two differ only in which URL front is given, not in behavior.
type HTTPPublisher struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPPublisher creates a Publisher that POSTs to url. This serves
// both the HTTP-relay and Direct-to-runner configurations.
func NewHTTPPublisher(url string, httpClient *http.Client, logger *slog.Logger) *HTTPPublisher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPPublisher{url: url, httpClient: httpClient, logger: logger}
}

func (publisher *HTTPPublisher) Publish(ctx context.Context, request *events.CheckRequest) error {
	body, err := json.Marshal(request)
	if err != nil {
		return wrapFailure(publisher.url, fmt.Errorf("marshaling check request: %w", err))
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, publisher.url, bytes.NewReader(body))
	if err != nil {
		return wrapFailure(publisher.url, fmt.Errorf("building request: %w", err))
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	response, err := publisher.httpClient.Do(httpRequest)
	if err != nil {
		return wrapFailure(publisher.url, fmt.Errorf("sending request: %w", err))
	}
	defer response.Body.Close()
	responseBody, _ := io.ReadAll(io.LimitReader(response.Body, 4096))

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return wrapFailure(publisher.url, fmt.Errorf("status %d: %s", response.StatusCode, responseBody))
	}

	publisher.logger.Debug("relayed check request", "url", publisher.url, "status", response.StatusCode)
	return nil
}
