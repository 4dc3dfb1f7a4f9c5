// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// config holds front's startup configuration, assembled from
// environment variables per the documented external interface. All
// required fields are validated eagerly in one place so a
// misconfigured deployment fails with one clear message instead of a
// crash on the first webhook.
type config struct {
	appID          int64
	installationID int64
	privateKeyPEM  []byte
	webhookSecret  []byte

	listenAddress string
	logLevel      string

	// Relay destination. Exactly one of these takes effect, in this
	// precedence: eventBusName, then relayEndpoint, then
	// runnerEndpoint.
	eventBusName   string
	relayEndpoint  string
	runnerEndpoint string
}

func loadConfig() (config, error) {
	var cfg config
	var errs []error

	cfg.appID = parseInt64Env("GITHUB_APP_ID", &errs)
	cfg.installationID = parseInt64Env("GITHUB_INSTALLATION_ID", &errs)

	privateKey := os.Getenv("GITHUB_PRIVATE_KEY")
	if privateKey == "" {
		errs = append(errs, errors.New("GITHUB_PRIVATE_KEY is required"))
	}
	cfg.privateKeyPEM = []byte(privateKey)

	webhookSecret := os.Getenv("GITHUB_WEBHOOK_SECRET")
	if webhookSecret == "" {
		errs = append(errs, errors.New("GITHUB_WEBHOOK_SECRET is required"))
	}
	cfg.webhookSecret = []byte(webhookSecret)

	cfg.eventBusName = os.Getenv("ORGU_EVENT_BUS_NAME")
	cfg.relayEndpoint = os.Getenv("ORGU_EVENT_QUEUE_RELAY_ENDPOINT")
	cfg.runnerEndpoint = os.Getenv("ORGU_RUNNER_ENDPOINT")
	if cfg.eventBusName == "" && cfg.relayEndpoint == "" && cfg.runnerEndpoint == "" {
		errs = append(errs, errors.New("one of ORGU_EVENT_BUS_NAME, ORGU_EVENT_QUEUE_RELAY_ENDPOINT, or ORGU_RUNNER_ENDPOINT is required"))
	}

	cfg.logLevel = os.Getenv("ORGU_LOG")
	if cfg.logLevel == "" {
		cfg.logLevel = "info"
	}

	if len(errs) > 0 {
		return config{}, fmt.Errorf("front: invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func parseInt64Env(name string, errs *[]error) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		*errs = append(*errs, fmt.Errorf("%s is required", name))
		return 0
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s %q is not a valid integer: %w", name, raw, err))
		return 0
	}
	return value
}
