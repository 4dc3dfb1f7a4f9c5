// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

// Package tokenminter caches GitHub App installation access tokens,
// keyed by installation ID. A global lock across every installation
// would serialize unrelated dispatches; instead each installation ID
// gets its own entry with its own mutex, so concurrent dispatches for
// different installations never contend and concurrent dispatches for
// the same installation collapse into a single mint.
package tokenminter

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Finatext/orgu/lib/clock"
	"github.com/Finatext/orgu/lib/github"
)

// rotationMargin is how far before expiry a cached token is
// considered stale and re-minted. Installation tokens are opaque
// strings valid for roughly one hour; GitHub's own clients typically
// rotate a few minutes early, but the pipeline's dispatch loop is
// short-lived enough that 60 seconds of margin is sufficient.
const rotationMargin = 60 * time.Second

// Config configures a Minter.
type Config struct {
	AppID      int64
	PrivateKey []byte // PEM-encoded RS256 private key
	HTTPClient *http.Client
	BaseURL    string // defaults to the public GitHub API
	Clock      clock.Clock
}

// Minter produces and caches installation access tokens. Safe for
// concurrent use by many dispatches at once.
type Minter struct {
	appID      int64
	privateKey []byte
	httpClient *http.Client
	baseURL    string
	clock      clock.Clock

	// mapMu guards only the map's structure (inserting a new
	// installation's entry). Once an entry exists, callers contend on
	// that entry's own mutex, not mapMu — so minting for installation
	// A never blocks minting for installation B.
	mapMu   sync.Mutex
	entries map[int64]*entry
}

// entry is one installation's cached token plus the exclusion that
// ensures concurrent callers for the same installation mint at most
// once.
type entry struct {
	mu        sync.Mutex
	source    *github.InstallationTokenSource
	token     string
	expiresAt time.Time
}

// New creates a Minter for a single GitHub App, able to serve tokens
// for any number of the App's installations.
func New(config Config) *Minter {
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Minter{
		appID:      config.AppID,
		privateKey: config.PrivateKey,
		httpClient: config.HTTPClient,
		baseURL:    config.BaseURL,
		clock:      clk,
		entries:    make(map[int64]*entry),
	}
}

// Token returns a valid installation access token for installationID,
// reusing a cached token when it has more than rotationMargin left
// before expiry, and minting a fresh one otherwise. Tokens are never
// logged in full by this package; callers that log should truncate.
func (minter *Minter) Token(ctx context.Context, installationID int64) (string, error) {
	e, err := minter.entryFor(installationID)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.token != "" && minter.clock.Now().Before(e.expiresAt.Add(-rotationMargin)) {
		return e.token, nil
	}

	token, expiresAt, err := e.source.Mint(ctx)
	if err != nil {
		return "", fmt.Errorf("tokenminter: minting token for installation %d: %w", installationID, err)
	}
	e.token = token
	e.expiresAt = expiresAt
	return token, nil
}

// entryFor returns the cache entry for installationID, creating it
// under mapMu if this is the first request for that installation.
func (minter *Minter) entryFor(installationID int64) (*entry, error) {
	minter.mapMu.Lock()
	defer minter.mapMu.Unlock()

	if e, ok := minter.entries[installationID]; ok {
		return e, nil
	}

	source, err := github.NewInstallationTokenSource(minter.appID, installationID, minter.privateKey, minter.httpClient, minter.baseURL, minter.clock)
	if err != nil {
		return nil, fmt.Errorf("tokenminter: creating token source for installation %d: %w", installationID, err)
	}
	e := &entry{source: source}
	minter.entries[installationID] = e
	return e, nil
}
