// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// config holds runner's startup configuration, assembled from
// environment variables per the documented external interface.
type config struct {
	appID          int64
	installationID int64
	privateKeyPEM  []byte

	listenAddress string
	logLevel      string

	workDir         string
	jobArgv         []string
	jobName         string
	jobTimeout      time.Duration
	checkoutTimeout time.Duration
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

	cfg.workDir = os.Getenv("ORGU_WORK_DIR")
	if cfg.workDir == "" {
		cfg.workDir = os.TempDir()
	}

	cfg.jobName = os.Getenv("ORGU_JOB_NAME")
	if cfg.jobName == "" {
		cfg.jobName = "orgu-ci"
	}

	if rawArgv := os.Getenv("ORGU_JOB_COMMAND"); rawArgv != "" {
		cfg.jobArgv = strings.Fields(rawArgv)
	}

	cfg.jobTimeout = parseDurationEnv("ORGU_JOB_TIMEOUT", 10*time.Minute, &errs)
	cfg.checkoutTimeout = parseDurationEnv("ORGU_CHECKOUT_TIMEOUT", 10*time.Minute, &errs)

	cfg.logLevel = os.Getenv("ORGU_LOG")
	if cfg.logLevel == "" {
		cfg.logLevel = "info"
	}

	if len(errs) > 0 {
		return config{}, fmt.Errorf("runner: invalid configuration: %w", errors.Join(errs...))
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

func parseDurationEnv(name string, fallback time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s %q is not a valid duration: %w", name, raw, err))
		return fallback
	}
	return value
}
