// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
)

// Config selects and configures exactly one Publisher variant.
// Precedence matches the front binary's documented environment
// variables: an event bus name wins over a relay endpoint, which wins
// over the direct-to-runner default.
type Config struct {
	EventBusName   string
	EventBusClient *eventbridge.Client // required when EventBusName is set

	RelayEndpoint string

	RunnerEndpoint string // used when neither of the above is set

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// New builds the Publisher selected by Config.
func New(config Config) Publisher {
	switch {
	case config.EventBusName != "":
		return NewBusPublisher(config.EventBusClient, config.EventBusName, config.Logger)
	case config.RelayEndpoint != "":
		return NewHTTPPublisher(config.RelayEndpoint, config.HTTPClient, config.Logger)
	default:
		return NewHTTPPublisher(config.RunnerEndpoint, config.HTTPClient, config.Logger)
	}
}
