// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

// Package github provides a typed Go client for the GitHub REST API,
// including GitHub App JWT authentication, installation token minting,
// and the Checks API used to report CI results back onto a commit.
//
// The client authenticates via GitHub App installation tokens (preferred)
// or personal access tokens. It handles rate limiting (X-RateLimit-*
// headers with automatic backoff), conditional requests (ETags), and
// structured error mapping. It does not follow pagination links.
//
// All requests are made over HTTPS. The client refuses non-HTTPS base URLs.
package github
