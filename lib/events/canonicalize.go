// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Finatext/orgu/lib/clock"
)

// zeroSHA is the all-zero git object ID GitHub can send in a before
// field instead of omitting it. The check_suite and check_run paths
// treat it as absent rather than a real SHA; the pull_request path
// never reads before at all.
const zeroSHA = "0000000000000000000000000000000000000000"

// pullRequestActions is the allow-set for pull_request events.
var pullRequestActions = map[string]bool{
	"opened":           true,
	"synchronize":      true,
	"reopened":         true,
	"ready_for_review": true,
}

// checkSuiteActions and checkRunActions are the allow-sets for the two
// check_* event types. Both currently admit only reruns; the runner
// only cares about being told to redo work, not about every suite/run
// status transition GitHub emits.
var checkSuiteActions = map[string]bool{"rerequested": true}
var checkRunActions = map[string]bool{"rerequested": true}

// IgnoredError is returned when an event type is not handled, or when
// a handled event is filtered out by the allow-set or installation
// check. It is not a failure —
// callers map it to front's "200 ignored" response, never a 4xx/5xx.
type IgnoredError struct {
	Reason string
}

func (err *IgnoredError) Error() string {
	return "ignored: " + err.Reason
}

// ErrMalformedPayload is returned when the payload cannot be parsed or
// a required field is missing or invalid. Unhandled event types yield
// IgnoredError instead.
var ErrMalformedPayload = errors.New("events: malformed payload")

// PropertiesFetcher fetches a repository's custom properties. A
// *github.Client authenticated with an installation token satisfies
// this interface structurally — the events package does not import
// lib/github to keep canonicalization decoupled from transport
// concerns.
type PropertiesFetcher interface {
	RepositoryCustomProperties(ctx context.Context, owner, repo string) (map[string]string, error)
}

// Canonicalizer normalizes GitHub webhook payloads into CheckRequest
// envelopes, applying the action allow-set and installation filters.
type Canonicalizer struct {
	// configuredInstallationID is the installation the runner is
	// configured to serve. check_suite/check_run rerequested events
	// for any other installation are dropped to prevent cross-app
	// rerun storms.
	configuredInstallationID int64
	clock                    clock.Clock
	logger                   *slog.Logger
}

// New creates a Canonicalizer scoped to a single installation.
func New(configuredInstallationID int64, clk clock.Clock, logger *slog.Logger) *Canonicalizer {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Canonicalizer{
		configuredInstallationID: configuredInstallationID,
		clock:                    clk,
		logger:                   logger,
	}
}

// Canonicalize parses a raw webhook body for the given event name,
// applies filtering, fetches custom properties (non-fatally), and
// returns a populated CheckRequest. deliveryID is GitHub's
// X-GitHub-Delivery header value, carried through for log
// correlation.
//
// properties may be nil, in which case the custom-properties fetch is
// skipped entirely (used by tests that don't exercise that path).
func (c *Canonicalizer) Canonicalize(ctx context.Context, eventName string, raw []byte, deliveryID string, properties PropertiesFetcher) (*CheckRequest, error) {
	var request *CheckRequest
	var err error

	switch eventName {
	case "pull_request":
		request, err = c.canonicalizePullRequest(raw)
	case "check_suite":
		request, err = c.canonicalizeCheckSuite(raw)
	case "check_run":
		request, err = c.canonicalizeCheckRun(raw)
	default:
		return nil, &IgnoredError{Reason: fmt.Sprintf("event type %q not handled", eventName)}
	}
	if err != nil {
		return nil, err
	}

	request.DeliveryID = deliveryID
	request.ReceivedAt = c.clock.Now().UTC().Truncate(time.Millisecond)

	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	if properties != nil {
		fetched, fetchErr := properties.RepositoryCustomProperties(ctx, request.Repository.Owner, request.Repository.Name)
		if fetchErr != nil {
			c.logger.Warn("fetching repository custom properties failed, proceeding with empty properties",
				"owner", request.Repository.Owner,
				"repo", request.Repository.Name,
				"error", fetchErr,
			)
		} else {
			request.Repository.CustomProperties = sanitizeCustomProperties(fetched)
		}
	}

	return request, nil
}

// canonicalizePullRequest builds a CheckRequest from a pull_request
// payload. GitHub's top-level before/after fields are unreliable on
// this event — before is sometimes the all-zero SHA instead of being
// omitted, in particular when a PR is marked ready for review without
// a new push — so the head and base commits are read from the nested
// pull_request object rather than from before/after directly.
func (c *Canonicalizer) canonicalizePullRequest(raw []byte) (*CheckRequest, error) {
	var payload wirePullRequestPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: parsing pull_request payload: %w", ErrMalformedPayload, err)
	}
	if !pullRequestActions[payload.Action] {
		return nil, &IgnoredError{Reason: fmt.Sprintf("action %q not in allow-set for pull_request", payload.Action)}
	}

	request := &CheckRequest{
		EventName:      "pull_request",
		Action:         payload.Action,
		InstallationID: payload.Installation.ID,
		Sender:         payload.Sender.toSender(),
		Repository:     payload.Repository.toRepository(),
		Head: HeadRef{
			SHA:     payload.PullRequest.Head.SHA,
			Ref:     payload.PullRequest.Head.Ref,
			RefType: "branch",
		},
		Base: &BaseRef{
			SHA: payload.PullRequest.Base.SHA,
			Ref: payload.PullRequest.Base.Ref,
		},
		PullRequest: &PullRequest{
			Number:  payload.Number,
			Title:   payload.PullRequest.Title,
			HTMLURL: payload.PullRequest.HTMLURL,
			User:    PRUser{Login: payload.PullRequest.User.Login},
		},
	}
	return request, nil
}

func (c *Canonicalizer) canonicalizeCheckSuite(raw []byte) (*CheckRequest, error) {
	var payload wireCheckSuitePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: parsing check_suite payload: %w", ErrMalformedPayload, err)
	}
	if !checkSuiteActions[payload.Action] {
		return nil, &IgnoredError{Reason: fmt.Sprintf("action %q not in allow-set for check_suite", payload.Action)}
	}
	if payload.Installation.ID != c.configuredInstallationID {
		return nil, &IgnoredError{Reason: fmt.Sprintf("installation %d does not match configured installation %d", payload.Installation.ID, c.configuredInstallationID)}
	}

	request := &CheckRequest{
		EventName:      "check_suite",
		Action:         payload.Action,
		InstallationID: payload.Installation.ID,
		Sender:         payload.Sender.toSender(),
		Repository:     payload.Repository.toRepository(),
		Head: HeadRef{
			SHA:     payload.CheckSuite.HeadSHA,
			RefType: "branch",
		},
	}
	// check_suite events carry "before" as the closest analog to a
	// base SHA; unlike pull_request events there is no base ref.
	if before := payload.CheckSuite.Before; before != "" && before != zeroSHA {
		request.Base = &BaseRef{SHA: before}
	}
	if pr := firstPR(payload.CheckSuite.PullRequests); pr != nil {
		request.PullRequest = &PullRequest{Number: pr.Number}
	}
	return request, nil
}

func (c *Canonicalizer) canonicalizeCheckRun(raw []byte) (*CheckRequest, error) {
	var payload wireCheckRunPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: parsing check_run payload: %w", ErrMalformedPayload, err)
	}
	if !checkRunActions[payload.Action] {
		return nil, &IgnoredError{Reason: fmt.Sprintf("action %q not in allow-set for check_run", payload.Action)}
	}
	if payload.Installation.ID != c.configuredInstallationID {
		return nil, &IgnoredError{Reason: fmt.Sprintf("installation %d does not match configured installation %d", payload.Installation.ID, c.configuredInstallationID)}
	}

	request := &CheckRequest{
		EventName:      "check_run",
		Action:         payload.Action,
		InstallationID: payload.Installation.ID,
		Sender:         payload.Sender.toSender(),
		Repository:     payload.Repository.toRepository(),
		Head: HeadRef{
			SHA:     payload.CheckRun.HeadSHA,
			RefType: "branch",
		},
	}
	if before := payload.CheckRun.CheckSuite.Before; before != "" && before != zeroSHA {
		request.Base = &BaseRef{SHA: before}
	}
	if pr := firstPR(payload.CheckRun.CheckSuite.PullRequests); pr != nil {
		request.PullRequest = &PullRequest{Number: pr.Number}
	}
	return request, nil
}

func firstPR(prs []wireCheckSuitePR) *wireCheckSuitePR {
	if len(prs) == 0 {
		return nil
	}
	return &prs[0]
}
