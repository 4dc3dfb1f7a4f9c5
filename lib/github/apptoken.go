// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"net/http"
	"time"

	"github.com/Finatext/orgu/lib/clock"
)

// InstallationTokenSource mints a short-lived installation access
// token for a single (app, installation) pair by signing a fresh App
// JWT and exchanging it with GitHub. It holds no cache of its own —
// lib/tokenminter wraps one of these per installation ID and owns the
// expiry-aware caching, so that each installation gets its own mutex
// instead of one global lock across every installation a process
// serves.
type InstallationTokenSource struct {
	auth *appAuth
}

// NewInstallationTokenSource creates a token source for one GitHub App
// installation. privateKeyPEM is the App's RS256 private key.
func NewInstallationTokenSource(appID, installationID int64, privateKeyPEM []byte, httpClient *http.Client, baseURL string, clk clock.Clock) (*InstallationTokenSource, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if clk == nil {
		clk = clock.Real()
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	auth, err := newAppAuth(appID, installationID, privateKeyPEM, clk)
	if err != nil {
		return nil, err
	}
	auth.httpClient = httpClient
	auth.baseURL = baseURL

	return &InstallationTokenSource{auth: auth}, nil
}

// Mint signs a fresh App JWT and exchanges it for a new installation
// access token. It does not cache — every call hits the network. This
// is intentional: lib/tokenminter is the single point that decides
// when a cached token is still fresh enough to reuse, per the 60-
// second rotation margin in its own documentation.
func (source *InstallationTokenSource) Mint(ctx context.Context) (token string, expiresAt time.Time, err error) {
	source.auth.mu.Lock()
	defer source.auth.mu.Unlock()
	return source.auth.rotate(ctx)
}
