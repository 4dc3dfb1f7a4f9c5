// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newOriginWithTwoCommits creates a bare repository with a two-commit
// history on "main" and returns its path along with the SHA of each
// commit. Modeled on lib/git's own initBareRepo: a bare repo plus a
// worktree clone used to build real history, rather than hand-crafting
// git objects.
func newOriginWithTwoCommits(t *testing.T) (originDir, baseSHA, headSHA string) {
	t.Helper()

	root := t.TempDir()
	originDir = filepath.Join(root, "origin.git")
	runGit(t, "", "init", "--bare", "-b", "main", originDir)

	workDir := filepath.Join(root, "work")
	runGit(t, "", "clone", originDir, workDir)
	runGit(t, workDir, "config", "user.email", "test@test.local")
	runGit(t, workDir, "config", "user.name", "Test")

	writeFile(t, filepath.Join(workDir, "base.txt"), "base\n")
	runGit(t, workDir, "add", "base.txt")
	runGit(t, workDir, "commit", "-m", "base commit")
	baseSHA = runGit(t, workDir, "rev-parse", "HEAD")

	writeFile(t, filepath.Join(workDir, "head.txt"), "head\n")
	runGit(t, workDir, "add", "head.txt")
	runGit(t, workDir, "commit", "-m", "head commit")
	headSHA = runGit(t, workDir, "rev-parse", "HEAD")

	runGit(t, workDir, "push", "origin", "main")
	return originDir, baseSHA, headSHA
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, output)
	}
	return strings.TrimSpace(string(output))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCheckout_ClonesAndChecksOutHeadCommit(t *testing.T) {
	origin, _, headSHA := newOriginWithTwoCommits(t)
	dest := filepath.Join(t.TempDir(), "dest")
	engine := New(slog.Default())

	err := engine.Checkout(context.Background(), Input{
		Owner:     "acme",
		Repo:      "widgets",
		HeadSHA:   headSHA,
		RemoteURL: origin,
		Dest:      dest,
		Timeout:   30 * time.Second,
	})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dest, "head.txt"))
	require.NoError(t, err)
	assert.Equal(t, "head\n", string(content))
}

func TestCheckout_FetchesBaseSHA(t *testing.T) {
	origin, baseSHA, headSHA := newOriginWithTwoCommits(t)
	dest := filepath.Join(t.TempDir(), "dest")
	engine := New(slog.Default())

	err := engine.Checkout(context.Background(), Input{
		Owner:     "acme",
		Repo:      "widgets",
		HeadSHA:   headSHA,
		BaseSHA:   baseSHA,
		RemoteURL: origin,
		Dest:      dest,
		Timeout:   30 * time.Second,
	})
	require.NoError(t, err)

	output, err := exec.Command("git", "-C", dest, "cat-file", "-e", baseSHA).CombinedOutput()
	assert.NoError(t, err, string(output))
}

func TestCheckout_TimeoutRemovesDestAndWrapsError(t *testing.T) {
	origin, _, headSHA := newOriginWithTwoCommits(t)
	dest := filepath.Join(t.TempDir(), "dest")
	engine := New(slog.Default())

	err := engine.Checkout(context.Background(), Input{
		Owner:     "acme",
		Repo:      "widgets",
		HeadSHA:   headSHA,
		RemoteURL: origin,
		Dest:      dest,
		Timeout:   1 * time.Nanosecond,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCheckoutTimeout)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

// TestCheckout_EscalatesToFullFetchWhenShallowCheckoutMisses drives the
// exact sequence Checkout's escalation branch exists for: a shallow
// fetch of the head SHA that reports success but leaves the commit not
// directly checkout-able (real GitHub remotes have been observed to do
// this when a ref advances between webhook delivery and checkout).
// Reproducing that with a real local git server is not reliable — an
// ordinary git server's object-want policy makes a shallow fetch of a
// non-tip SHA fail outright rather than succeed-then-miss — so this
// stubs the git binary on PATH to reproduce the sequence deterministically:
// first checkout attempt fails, forcing the unshallow fetch, after which
// the retry succeeds.
func TestCheckout_EscalatesToFullFetchWhenShallowCheckoutMisses(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "unshallowed")
	installFakeGit(t, fmt.Sprintf(`#!/bin/sh
case "$*" in
  *"fetch --unshallow"*)
    touch %q
    exit 0
    ;;
  *"checkout --detach"*)
    if [ -f %q ]; then
      exit 0
    fi
    exit 1
    ;;
  *)
    exit 0
    ;;
esac
`, marker, marker))

	engine := New(slog.Default())
	dest := filepath.Join(t.TempDir(), "dest")
	err := engine.Checkout(context.Background(), Input{
		Owner:     "acme",
		Repo:      "widgets",
		HeadSHA:   "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef",
		RemoteURL: "https://example.invalid/acme/widgets",
		Dest:      dest,
		Timeout:   30 * time.Second,
	})
	require.NoError(t, err)

	_, err = os.Stat(marker)
	assert.NoError(t, err, "expected the unshallow fetch to have run")
}

func installFakeGit(t *testing.T, script string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "git")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}
