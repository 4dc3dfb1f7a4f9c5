// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatcher implements the runner's per-request algorithm:
// open a check run, mint an installation token, check out the commit,
// run the configured job under supervision, and close the check run
// with the outcome. Every dependency is expressed as a small
// capability interface so the algorithm can be exercised against
// fakes without a real GitHub App, git remote, or child process.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Finatext/orgu/lib/checkout"
	"github.com/Finatext/orgu/lib/events"
	"github.com/Finatext/orgu/lib/github"
	"github.com/Finatext/orgu/lib/jobexec"
)

// ChecksClient is the subset of the GitHub Checks API the dispatcher
// needs. *github.Client satisfies this structurally.
type ChecksClient interface {
	CreateCheckRun(ctx context.Context, owner, repo string, request github.CreateCheckRunRequest) (*github.CheckRun, error)
	UpdateCheckRun(ctx context.Context, owner, repo string, checkRunID int64, request github.UpdateCheckRunRequest) (*github.CheckRun, error)
}

// TokenMinter mints installation access tokens. *tokenminter.Minter
// satisfies this structurally.
type TokenMinter interface {
	Token(ctx context.Context, installationID int64) (string, error)
}

// Checkout runs a single shallow-clone-and-checkout operation.
// *checkout.Engine satisfies this structurally.
type Checkout interface {
	Checkout(ctx context.Context, input checkout.Input) error
}

// JobRunner runs a single job under supervision. *jobexec.Executor
// satisfies this structurally.
type JobRunner interface {
	Run(ctx context.Context, spec jobexec.Spec) jobexec.Outcome
}

// Config configures a Dispatcher. All durations default per the
// external interface's documented defaults when zero.
type Config struct {
	Checks   ChecksClient
	Tokens   TokenMinter
	Checkout Checkout
	Jobs     JobRunner

	WorkDir         string   // scratch root; defaults to os.TempDir()
	JobArgv         []string // configured job command
	JobName         string   // display name; becomes JOB_NAME and the check run's title
	JobTimeout      time.Duration
	CheckoutTimeout time.Duration
	CheckoutDepth   int
	PassthroughEnv  []string // "KEY=VALUE" pairs forwarded to every job unconditionally

	Logger *slog.Logger
}

const (
	defaultJobTimeout      = 10 * time.Minute
	defaultCheckoutTimeout = 10 * time.Minute
)

// Dispatcher runs the per-request dispatch algorithm.
type Dispatcher struct {
	config Config
	logger *slog.Logger
}

// New creates a Dispatcher.
func New(config Config) *Dispatcher {
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaultJobTimeout
	}
	if config.CheckoutTimeout <= 0 {
		config.CheckoutTimeout = defaultCheckoutTimeout
	}
	if config.WorkDir == "" {
		config.WorkDir = os.TempDir()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{config: config, logger: logger}
}

// HardError is returned by Dispatch only when the check run could not
// be opened at all — the one case where the runner's HTTP handler
// must answer with a 5xx instead of 200, per the rule that once a
// check run exists the runner always attempts a terminal update and
// always returns 200.
type HardError struct {
	err error
}

func (h *HardError) Error() string { return h.err.Error() }
func (h *HardError) Unwrap() error { return h.err }

// Dispatch runs the full per-request algorithm for one CheckRequest.
// A non-nil error is always a HardError: the check run could not be
// opened, and the caller should answer the inbound HTTP request with
// a 5xx. Every other failure mode is absorbed into a closed check run
// with conclusion "failure" and Dispatch returns nil.
func (dispatcher *Dispatcher) Dispatch(ctx context.Context, request *events.CheckRequest) error {
	owner, repo := request.Repository.Owner, request.Repository.Name
	logger := dispatcher.logger.With("repo", request.Repository.FullName, "sha", request.Head.SHA, "delivery_id", request.DeliveryID)

	startedAt := time.Now()
	checkRun, err := dispatcher.config.Checks.CreateCheckRun(ctx, owner, repo, github.CreateCheckRunRequest{
		Name:      dispatcher.config.JobName,
		HeadSHA:   request.Head.SHA,
		Status:    "queued",
		StartedAt: &startedAt,
	})
	if err != nil {
		logger.Error("opening check run failed", "error", err)
		return &HardError{err: fmt.Errorf("dispatcher: creating check run: %w", err)}
	}
	logger = logger.With("check_run_id", checkRun.ID)

	if _, err := dispatcher.config.Checks.UpdateCheckRun(ctx, owner, repo, checkRun.ID, github.UpdateCheckRunRequest{
		Status:    "in_progress",
		StartedAt: &startedAt,
	}); err != nil {
		logger.Warn("transitioning check run to in_progress failed, proceeding anyway", "error", err)
	}

	stage, outcome, summary := dispatcher.run(ctx, request, logger)

	conclusion, title, body := renderResult(dispatcher.config.JobName, stage, outcome, summary, time.Since(startedAt))
	completedAt := time.Now()
	if _, err := dispatcher.config.Checks.UpdateCheckRun(ctx, owner, repo, checkRun.ID, github.UpdateCheckRunRequest{
		Status:      "completed",
		Conclusion:  conclusion,
		CompletedAt: &completedAt,
		Output:      &github.CheckRunOutput{Title: title, Summary: body},
	}); err != nil {
		logger.Error("closing check run failed", "error", err, "conclusion", conclusion)
	}
	return nil
}

// stage identifies which part of the algorithm produced the final
// outcome, purely for rendering the check-run summary.
type stage int

const (
	stageMintToken stage = iota
	stageCheckout
	stageJob
)

// run performs steps 3-6 of the algorithm (mint, checkout, spawn,
// supervise) and always cleans up the scratch directory before
// returning, regardless of which step failed.
func (dispatcher *Dispatcher) run(ctx context.Context, request *events.CheckRequest, logger *slog.Logger) (stage, jobexec.Outcome, string) {
	token, err := dispatcher.config.Tokens.Token(ctx, request.InstallationID)
	if err != nil {
		logger.Error("minting installation token failed", "error", err)
		return stageMintToken, jobexec.Outcome{}, fmt.Sprintf("minting installation token failed: %v", err)
	}

	scratchDir, err := os.MkdirTemp(dispatcher.config.WorkDir, "orgu-checkout-")
	if err != nil {
		logger.Error("creating scratch directory failed", "error", err)
		return stageCheckout, jobexec.Outcome{}, fmt.Sprintf("creating scratch directory failed: %v", err)
	}
	defer os.RemoveAll(scratchDir)

	checkoutCtx, cancel := context.WithTimeout(ctx, dispatcher.config.CheckoutTimeout)
	err = dispatcher.config.Checkout.Checkout(checkoutCtx, checkout.Input{
		Owner:   request.Repository.Owner,
		Repo:    request.Repository.Name,
		HeadSHA: request.Head.SHA,
		BaseSHA: baseSHA(request),
		Token:   token,
		Dest:    scratchDir,
		Depth:   dispatcher.config.CheckoutDepth,
		Timeout: dispatcher.config.CheckoutTimeout,
	})
	cancel()
	if err != nil {
		logger.Error("checkout failed", "error", err)
		if errors.Is(err, checkout.ErrCheckoutTimeout) {
			return stageCheckout, jobexec.Outcome{}, fmt.Sprintf("checkout timed out after %s", formatTimeout(dispatcher.config.CheckoutTimeout))
		}
		return stageCheckout, jobexec.Outcome{}, fmt.Sprintf("checkout failed: %v", err)
	}

	if len(dispatcher.config.JobArgv) == 0 {
		return stageJob, jobexec.Outcome{}, "no job command configured"
	}

	outcome := dispatcher.config.Jobs.Run(ctx, jobexec.Spec{
		Argv:    dispatcher.config.JobArgv,
		WorkDir: scratchDir,
		Env:     jobEnv(request, token, dispatcher.config.JobName, dispatcher.config.PassthroughEnv),
		Timeout: dispatcher.config.JobTimeout,
	})
	if outcome.SpawnErr != nil {
		logger.Error("spawning job failed", "error", outcome.SpawnErr)
		return stageJob, outcome, fmt.Sprintf("spawning job failed: %v", outcome.SpawnErr)
	}
	return stageJob, outcome, ""
}

// formatTimeout renders a whole-minute duration as "10m" rather than
// time.Duration's own "10m0s", matching how timeouts are phrased in
// check-run summaries. Falls back to the standard formatting for any
// duration that isn't a whole number of minutes.
func formatTimeout(d time.Duration) string {
	if d > 0 && d%time.Minute == 0 {
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	return d.String()
}

func baseSHA(request *events.CheckRequest) string {
	if request.Base == nil {
		return ""
	}
	return request.Base.SHA
}

// jobEnv builds the environment variables passed to the job process,
// in addition to the current process environment (jobexec.Executor
// appends onto os.Environ() itself).
func jobEnv(request *events.CheckRequest, token, jobName string, passthrough []string) []string {
	env := []string{
		"GITHUB_TOKEN=" + token,
		"ORGU_EVENT_NAME=" + request.EventName,
		"ORGU_ACTION=" + request.Action,
		"ORGU_REPO=" + request.Repository.FullName,
		"ORGU_HEAD_SHA=" + request.Head.SHA,
		"JOB_NAME=" + jobName,
	}
	if request.Base != nil {
		env = append(env, "ORGU_BASE_SHA="+request.Base.SHA)
	}
	if request.PullRequest != nil {
		env = append(env, "ORGU_PR_NUMBER="+strconv.Itoa(request.PullRequest.Number))
	}

	keys := make([]string, 0, len(request.Repository.CustomProperties))
	for key := range request.Repository.CustomProperties {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, "CUSTOM_PROP_"+strings.ToUpper(key)+"="+request.Repository.CustomProperties[key])
	}

	env = append(env, passthrough...)
	return env
}

// renderResult maps a dispatch outcome onto a check-run conclusion and
// a Markdown output body, per the exit-status-to-conclusion mapping.
func renderResult(jobName string, failedStage stage, outcome jobexec.Outcome, failureSummary string, duration time.Duration) (conclusion, title, body string) {
	title = jobName
	if failureSummary != "" {
		return "failure", title, fmt.Sprintf("**%s failed**\n\n%s\n\nduration: %s", stageName(failedStage), failureSummary, duration.Round(time.Second))
	}

	var summary strings.Builder
	switch {
	case outcome.TimedOut:
		conclusion = "failure"
		fmt.Fprintf(&summary, "**job timed out after %s**\n\n", duration.Round(time.Second))
	case outcome.ExitCode == 0:
		conclusion = "success"
		fmt.Fprintf(&summary, "**job succeeded** in %s\n\n", duration.Round(time.Second))
	default:
		conclusion = "failure"
		if outcome.Signaled {
			fmt.Fprintf(&summary, "**job was killed by signal** (exit status: %d) after %s\n\n", outcome.ExitCode, duration.Round(time.Second))
		} else {
			fmt.Fprintf(&summary, "**job exited** (exit status: %d) after %s\n\n", outcome.ExitCode, duration.Round(time.Second))
		}
	}

	if outcome.Tail != "" {
		fmt.Fprintf(&summary, "```\n%s\n```\n", truncateForOutput(outcome.Tail))
	}
	return conclusion, title, summary.String()
}

func stageName(s stage) string {
	switch s {
	case stageMintToken:
		return "token minting"
	case stageCheckout:
		return "checkout"
	default:
		return "job"
	}
}

// maxOutputTextLength caps the job output tail embedded in a check-run
// summary. It sits below GitHub's 65535-character limit on check-run
// output fields so the tail plus the surrounding summary text still
// fits and update_check_run is not rejected for length.
const maxOutputTextLength = 65000

func truncateForOutput(text string) string {
	if len(text) <= maxOutputTextLength {
		return text
	}
	cut := len(text) - maxOutputTextLength
	for cut < len(text) && !utf8StartsRune(text[cut]) {
		cut++
	}
	return "... (truncated)\n" + text[cut:]
}

func utf8StartsRune(b byte) bool {
	return b&0xC0 != 0x80
}
