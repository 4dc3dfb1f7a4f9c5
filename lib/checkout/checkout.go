// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

// Package checkout shallow-clones a single commit of a GitHub
// repository into a scratch directory using an installation-scoped
// token, under a wall-clock timeout. It drives the system git binary
// through lib/git's Repository wrapper rather than linking a git
// library directly, matching how the rest of this tree treats git as
// an external tool rather than an embedded dependency.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Finatext/orgu/lib/git"
)

// defaultDepth is used when Input.Depth is zero.
const defaultDepth = 1

// Error categories. The engine classifies failures into one of these
// so the runner dispatcher can close a check run with a summary that
// names the failing stage without parsing git's own error text.
var (
	ErrCheckoutTimeout  = errors.New("checkout: timed out")
	ErrCheckoutAuth     = errors.New("checkout: authentication failed")
	ErrCheckoutNotFound = errors.New("checkout: repository or commit not found")
	ErrCheckoutFetch    = errors.New("checkout: fetch failed")
	ErrCheckoutIo       = errors.New("checkout: local filesystem error")
)

// Input describes one checkout request.
type Input struct {
	Owner   string
	Repo    string
	HeadSHA string
	BaseSHA string // optional; fetched as a second step when set
	Token   string
	Dest    string
	Depth   int // defaults to 1 (defaultDepth) when zero
	Timeout time.Duration

	// RemoteURL overrides the token-based github.com URL Checkout would
	// otherwise construct. Production callers leave this empty; tests set
	// it to a local repository path so they can exercise Checkout without
	// a real GitHub remote.
	RemoteURL string
}

func (input Input) depth() int {
	if input.Depth <= 0 {
		return defaultDepth
	}
	return input.Depth
}

func (input Input) remoteURL() string {
	if input.RemoteURL != "" {
		return input.RemoteURL
	}
	return fmt.Sprintf("https://x-access-token:%s@github.com/%s/%s", input.Token, input.Owner, input.Repo)
}

// Engine runs checkouts. It holds no per-request state; Checkout is
// safe to call concurrently for independent Inputs (each targets a
// distinct Dest).
type Engine struct {
	logger *slog.Logger
}

// New creates a checkout Engine.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Checkout creates input.Dest, shallow-clones input.HeadSHA into it at
// the configured depth, checks it out detached, optionally fetches
// input.BaseSHA, and enforces input.Timeout across the whole
// operation. If Dest cannot be prepared (it is not empty, or cannot be
// inspected or created) Checkout returns without removing it; on any
// later failure Dest is removed before returning.
func (engine *Engine) Checkout(ctx context.Context, input Input) error {
	if err := prepareDest(input.Dest); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, input.Timeout)
	defer cancel()

	err := engine.checkoutLocked(ctx, input)
	if err != nil {
		os.RemoveAll(input.Dest)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: after %s", ErrCheckoutTimeout, input.Timeout)
		}
		return err
	}
	return nil
}

func prepareDest(dest string) error {
	entries, err := os.ReadDir(dest)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return fmt.Errorf("%w: creating destination %s: %w", ErrCheckoutIo, dest, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("%w: inspecting destination %s: %w", ErrCheckoutIo, dest, err)
	case len(entries) > 0:
		return fmt.Errorf("%w: destination %s is not empty", ErrCheckoutIo, dest)
	default:
		return nil
	}
}

func (engine *Engine) checkoutLocked(ctx context.Context, input Input) error {
	repo := git.NewRepository(input.Dest)

	if _, err := repo.Run(ctx, "init"); err != nil {
		return classifyGitError(err)
	}
	if _, err := repo.Run(ctx, "remote", "add", "origin", input.remoteURL()); err != nil {
		return classifyGitError(err)
	}

	logger := engine.logger.With("owner", input.Owner, "repo", input.Repo, "sha", input.HeadSHA)

	logger.Debug("fetching head commit", "depth", input.depth())
	if _, err := repo.Run(ctx, "fetch", "--depth", fmt.Sprint(input.depth()), "origin", input.HeadSHA); err != nil {
		return classifyGitError(err)
	}

	if _, err := repo.Run(ctx, "checkout", "--detach", input.HeadSHA); err != nil {
		logger.Debug("head commit missing from shallow fetch, escalating to full fetch")
		if _, unshallowErr := repo.Run(ctx, "fetch", "--unshallow", "origin"); unshallowErr != nil {
			return classifyGitError(unshallowErr)
		}
		if _, err := repo.Run(ctx, "checkout", "--detach", input.HeadSHA); err != nil {
			return classifyGitError(err)
		}
	}

	if input.BaseSHA != "" {
		logger.Debug("fetching base commit", "base_sha", input.BaseSHA)
		if _, err := repo.Run(ctx, "fetch", "--depth", "1", "origin", input.BaseSHA); err != nil {
			return classifyGitError(err)
		}
	}

	return nil
}

// classifyGitError maps git CLI failure text onto the engine's error
// categories. git does not give structured exit codes for most
// failure modes, so this is necessarily a text match against the
// stderr lib/git.Repository.Run embeds in its error. The command line
// and directory that precede the stderr (which carry the commit SHA
// and the scratch path) are not matched.
func classifyGitError(err error) error {
	message := strings.ToLower(err.Error())
	if index := strings.Index(message, "(stderr: "); index >= 0 {
		message = message[index:]
	}
	switch {
	case strings.Contains(message, "authentication failed"),
		strings.Contains(message, "could not read username"),
		strings.Contains(message, "401"),
		strings.Contains(message, "403"):
		return fmt.Errorf("%w: %w", ErrCheckoutAuth, err)
	case strings.Contains(message, "repository not found"),
		strings.Contains(message, "could not find"),
		strings.Contains(message, "does not exist"),
		strings.Contains(message, "404"):
		return fmt.Errorf("%w: %w", ErrCheckoutNotFound, err)
	default:
		return fmt.Errorf("%w: %w", ErrCheckoutFetch, err)
	}
}
