// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Finatext/orgu/lib/checkout"
	"github.com/Finatext/orgu/lib/events"
	"github.com/Finatext/orgu/lib/github"
	"github.com/Finatext/orgu/lib/jobexec"
)

type fakeChecks struct {
	createErr error
	updates   []github.UpdateCheckRunRequest
	updateErr error
	nextID    int64
}

func (f *fakeChecks) CreateCheckRun(ctx context.Context, owner, repo string, request github.CreateCheckRunRequest) (*github.CheckRun, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID = 1
	return &github.CheckRun{ID: f.nextID, Name: request.Name, HeadSHA: request.HeadSHA}, nil
}

func (f *fakeChecks) UpdateCheckRun(ctx context.Context, owner, repo string, checkRunID int64, request github.UpdateCheckRunRequest) (*github.CheckRun, error) {
	f.updates = append(f.updates, request)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &github.CheckRun{ID: checkRunID}, nil
}

type fakeTokens struct {
	token string
	err   error
}

func (f *fakeTokens) Token(ctx context.Context, installationID int64) (string, error) {
	return f.token, f.err
}

type fakeCheckout struct {
	err error
}

func (f *fakeCheckout) Checkout(ctx context.Context, input checkout.Input) error {
	return f.err
}

// capturingCheckout records the scratch directory it was asked to
// check out into, so tests can assert on its lifecycle after Dispatch
// returns.
type capturingCheckout struct {
	err  error
	dest string
}

func (c *capturingCheckout) Checkout(ctx context.Context, input checkout.Input) error {
	c.dest = input.Dest
	return c.err
}

type fakeJobs struct {
	outcome jobexec.Outcome
}

func (f *fakeJobs) Run(ctx context.Context, spec jobexec.Spec) jobexec.Outcome {
	return f.outcome
}

func sampleCheckRequest() *events.CheckRequest {
	return &events.CheckRequest{
		EventName:      "pull_request",
		Action:         "opened",
		InstallationID: 42,
		Repository: events.Repository{
			Owner:            "acme",
			Name:             "widgets",
			FullName:         "acme/widgets",
			CustomProperties: map[string]string{"team": "platform"},
		},
		Head: events.HeadRef{SHA: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
		Base: &events.BaseRef{SHA: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"},
	}
}

func TestDispatch_SuccessfulJobClosesWithSuccess(t *testing.T) {
	checks := &fakeChecks{}
	dispatcher := New(Config{
		Checks:   checks,
		Tokens:   &fakeTokens{token: "ghs_test"},
		Checkout: &fakeCheckout{},
		Jobs:     &fakeJobs{outcome: jobexec.Outcome{ExitCode: 0}},
		JobArgv:  []string{"true"},
		JobName:  "orgu-ci",
		WorkDir:  t.TempDir(),
	})

	err := dispatcher.Dispatch(context.Background(), sampleCheckRequest())
	require.NoError(t, err)
	require.Len(t, checks.updates, 2)
	assert.Equal(t, "in_progress", checks.updates[0].Status)
	assert.Equal(t, "completed", checks.updates[1].Status)
	assert.Equal(t, "success", checks.updates[1].Conclusion)
}

func TestDispatch_CreateCheckRunFailureIsHardError(t *testing.T) {
	checks := &fakeChecks{createErr: errors.New("platform unavailable")}
	dispatcher := New(Config{
		Checks: checks,
		Tokens: &fakeTokens{token: "ghs_test"},
	})

	err := dispatcher.Dispatch(context.Background(), sampleCheckRequest())
	require.Error(t, err)
	var hardErr *HardError
	assert.ErrorAs(t, err, &hardErr)
}

func TestDispatch_UpdateToInProgressFailureDoesNotAbort(t *testing.T) {
	checks := &fakeChecks{}
	updateCallCount := 0
	checks2 := &trackingChecks{fakeChecks: checks, failFirstUpdate: true, calls: &updateCallCount}
	dispatcher := New(Config{
		Checks:   checks2,
		Tokens:   &fakeTokens{token: "ghs_test"},
		Checkout: &fakeCheckout{},
		Jobs:     &fakeJobs{outcome: jobexec.Outcome{ExitCode: 0}},
		JobArgv:  []string{"true"},
		WorkDir:  t.TempDir(),
	})

	err := dispatcher.Dispatch(context.Background(), sampleCheckRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, updateCallCount)
}

type trackingChecks struct {
	*fakeChecks
	failFirstUpdate bool
	calls           *int
}

func (t *trackingChecks) UpdateCheckRun(ctx context.Context, owner, repo string, checkRunID int64, request github.UpdateCheckRunRequest) (*github.CheckRun, error) {
	*t.calls++
	if t.failFirstUpdate && *t.calls == 1 {
		return nil, errors.New("transient failure")
	}
	return t.fakeChecks.UpdateCheckRun(ctx, owner, repo, checkRunID, request)
}

func TestDispatch_TokenMintFailureClosesWithFailure(t *testing.T) {
	checks := &fakeChecks{}
	dispatcher := New(Config{
		Checks: checks,
		Tokens: &fakeTokens{err: errors.New("no installation")},
	})

	err := dispatcher.Dispatch(context.Background(), sampleCheckRequest())
	require.NoError(t, err)
	last := checks.updates[len(checks.updates)-1]
	assert.Equal(t, "failure", last.Conclusion)
	assert.Contains(t, last.Output.Summary, "minting installation token failed")
}

func TestDispatch_CheckoutFailureClosesWithFailure(t *testing.T) {
	checks := &fakeChecks{}
	dispatcher := New(Config{
		Checks:   checks,
		Tokens:   &fakeTokens{token: "ghs_test"},
		Checkout: &fakeCheckout{err: checkout.ErrCheckoutTimeout},
		WorkDir:  t.TempDir(),
	})

	err := dispatcher.Dispatch(context.Background(), sampleCheckRequest())
	require.NoError(t, err)
	last := checks.updates[len(checks.updates)-1]
	assert.Equal(t, "failure", last.Conclusion)
	assert.Contains(t, last.Output.Summary, "checkout timed out after 10m")
}

func TestDispatch_JobTimeoutClosesWithFailureAndNote(t *testing.T) {
	checks := &fakeChecks{}
	dispatcher := New(Config{
		Checks:   checks,
		Tokens:   &fakeTokens{token: "ghs_test"},
		Checkout: &fakeCheckout{},
		Jobs:     &fakeJobs{outcome: jobexec.Outcome{TimedOut: true, ExitCode: -1}},
		JobArgv:  []string{"true"},
		WorkDir:  t.TempDir(),
	})

	err := dispatcher.Dispatch(context.Background(), sampleCheckRequest())
	require.NoError(t, err)
	last := checks.updates[len(checks.updates)-1]
	assert.Equal(t, "failure", last.Conclusion)
	assert.Contains(t, last.Output.Summary, "timed out")
}

func TestDispatch_NonZeroExitClosesWithFailure(t *testing.T) {
	checks := &fakeChecks{}
	dispatcher := New(Config{
		Checks:   checks,
		Tokens:   &fakeTokens{token: "ghs_test"},
		Checkout: &fakeCheckout{},
		Jobs:     &fakeJobs{outcome: jobexec.Outcome{ExitCode: 1, Tail: "assertion failed\n"}},
		JobArgv:  []string{"true"},
		WorkDir:  t.TempDir(),
	})

	err := dispatcher.Dispatch(context.Background(), sampleCheckRequest())
	require.NoError(t, err)
	last := checks.updates[len(checks.updates)-1]
	assert.Equal(t, "failure", last.Conclusion)
	assert.Contains(t, last.Output.Summary, "exit status: 1")
	assert.Contains(t, last.Output.Summary, "assertion failed")
}

func TestDispatch_ScratchDirRemovedAfterSuccessfulDispatch(t *testing.T) {
	checks := &fakeChecks{}
	capture := &capturingCheckout{}
	dispatcher := New(Config{
		Checks:   checks,
		Tokens:   &fakeTokens{token: "ghs_test"},
		Checkout: capture,
		Jobs:     &fakeJobs{outcome: jobexec.Outcome{ExitCode: 0}},
		JobArgv:  []string{"true"},
		WorkDir:  t.TempDir(),
	})

	err := dispatcher.Dispatch(context.Background(), sampleCheckRequest())
	require.NoError(t, err)
	require.NotEmpty(t, capture.dest)

	_, statErr := os.Stat(capture.dest)
	assert.True(t, os.IsNotExist(statErr), "scratch directory %q should have been removed", capture.dest)
}

func TestDispatch_ScratchDirRemovedAfterCheckoutFailure(t *testing.T) {
	checks := &fakeChecks{}
	capture := &capturingCheckout{err: checkout.ErrCheckoutFetch}
	dispatcher := New(Config{
		Checks:   checks,
		Tokens:   &fakeTokens{token: "ghs_test"},
		Checkout: capture,
		WorkDir:  t.TempDir(),
	})

	err := dispatcher.Dispatch(context.Background(), sampleCheckRequest())
	require.NoError(t, err)
	require.NotEmpty(t, capture.dest)

	_, statErr := os.Stat(capture.dest)
	assert.True(t, os.IsNotExist(statErr), "scratch directory %q should have been removed", capture.dest)
}

func TestJobEnv_IncludesRecognizedCustomPropertiesAndContextVars(t *testing.T) {
	request := sampleCheckRequest()
	request.PullRequest = &events.PullRequest{Number: 17}

	env := jobEnv(request, "ghs_test", "orgu-ci", []string{"EXTRA=1"})
	assert.Contains(t, env, "GITHUB_TOKEN=ghs_test")
	assert.Contains(t, env, "ORGU_REPO=acme/widgets")
	assert.Contains(t, env, "ORGU_PR_NUMBER=17")
	assert.Contains(t, env, "CUSTOM_PROP_TEAM=platform")
	assert.Contains(t, env, "EXTRA=1")
}

func TestRenderResult_DurationIsIncludedOnFailure(t *testing.T) {
	conclusion, title, body := renderResult("orgu-ci", stageCheckout, jobexec.Outcome{}, "checkout failed: boom", 3*time.Second)
	assert.Equal(t, "failure", conclusion)
	assert.Equal(t, "orgu-ci", title)
	assert.Contains(t, body, "checkout failed")
	assert.Contains(t, body, "duration: 3s")
}
