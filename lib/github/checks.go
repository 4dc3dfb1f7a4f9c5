// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
	"time"
)

// maxCheckRunTextLength is GitHub's documented limit on the length of
// a check run's output.summary and output.text fields.
const maxCheckRunTextLength = 65535

// CheckRun is a GitHub check run, the record of a single CI job's
// status attached to a commit.
type CheckRun struct {
	ID          int64             `json:"id"`
	HeadSHA     string            `json:"head_sha"`
	Name        string            `json:"name"`
	Status      string            `json:"status"`     // "queued", "in_progress", "completed"
	Conclusion  string            `json:"conclusion"`  // "success", "failure", "neutral", "cancelled", "timed_out", ""
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	HTMLURL     string            `json:"html_url"`
	DetailsURL  string            `json:"details_url,omitempty"`
	ExternalID  string            `json:"external_id,omitempty"`
	Output      CheckRunOutput    `json:"output"`
}

// CheckRunOutput is the Markdown-formatted body shown on a check run.
type CheckRunOutput struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Text    string `json:"text,omitempty"`
}

// CreateCheckRunRequest is the body of a check-run creation call.
// Status defaults to "queued" server-side when omitted; callers set it
// explicitly for clarity.
type CreateCheckRunRequest struct {
	Name       string          `json:"name"`
	HeadSHA    string          `json:"head_sha"`
	Status     string          `json:"status,omitempty"`
	DetailsURL string          `json:"details_url,omitempty"`
	ExternalID string          `json:"external_id,omitempty"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	Output     *CheckRunOutput `json:"output,omitempty"`
}

// UpdateCheckRunRequest is the body of a check-run update call.
type UpdateCheckRunRequest struct {
	Status      string          `json:"status,omitempty"`
	Conclusion  string          `json:"conclusion,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Output      *CheckRunOutput `json:"output,omitempty"`
}

// CreateCheckRun opens a new check run on the given commit. owner and
// repo identify the repository; the returned CheckRun's ID is used for
// subsequent UpdateCheckRun calls.
func (client *Client) CreateCheckRun(ctx context.Context, owner, repo string, request CreateCheckRunRequest) (*CheckRun, error) {
	if err := validateOutputTextLength(request.Output); err != nil {
		return nil, err
	}

	client.logger.Info("creating check run", "owner", owner, "repo", repo, "head_sha", request.HeadSHA)

	var result CheckRun
	path := fmt.Sprintf("/repos/%s/%s/check-runs", owner, repo)
	if err := client.post(ctx, path, request, &result); err != nil {
		return nil, fmt.Errorf("github: creating check run for %s/%s@%s: %w", owner, repo, request.HeadSHA, err)
	}
	return &result, nil
}

// UpdateCheckRun transitions an existing check run, e.g. to in_progress
// or to a terminal completed state with a conclusion.
func (client *Client) UpdateCheckRun(ctx context.Context, owner, repo string, checkRunID int64, request UpdateCheckRunRequest) (*CheckRun, error) {
	if err := validateOutputTextLength(request.Output); err != nil {
		return nil, err
	}

	client.logger.Info("updating check run", "owner", owner, "repo", repo, "check_run_id", checkRunID, "status", request.Status)

	var result CheckRun
	path := fmt.Sprintf("/repos/%s/%s/check-runs/%d", owner, repo, checkRunID)
	if err := client.patch(ctx, path, request, &result); err != nil {
		return nil, fmt.Errorf("github: updating check run %s/%s#%d: %w", owner, repo, checkRunID, err)
	}
	return &result, nil
}

// validateOutputTextLength rejects output fields that exceed GitHub's
// documented limit before making the request, surfacing a clear error
// instead of a confusing 422 from the API.
func validateOutputTextLength(output *CheckRunOutput) error {
	if output == nil {
		return nil
	}
	if len(output.Summary) > maxCheckRunTextLength {
		return fmt.Errorf("github: check run output.summary length %d exceeds limit %d", len(output.Summary), maxCheckRunTextLength)
	}
	if len(output.Text) > maxCheckRunTextLength {
		return fmt.Errorf("github: check run output.text length %d exceeds limit %d", len(output.Text), maxCheckRunTextLength)
	}
	return nil
}

// RepositoryCustomProperties fetches the custom properties configured
// on a repository, keyed by property name with string values. GitHub's
// octokit-generation clients lag the REST API here, so this issues a
// plain GET against the repository resource's custom_properties field
// directly rather than going through a dedicated properties endpoint
// wrapper.
func (client *Client) RepositoryCustomProperties(ctx context.Context, owner, repo string) (map[string]string, error) {
	var result struct {
		CustomProperties map[string]string `json:"custom_properties"`
	}
	path := fmt.Sprintf("/repos/%s/%s", owner, repo)
	if err := client.get(ctx, path, &result); err != nil {
		return nil, fmt.Errorf("github: fetching custom properties for %s/%s: %w", owner, repo, err)
	}
	if result.CustomProperties == nil {
		return map[string]string{}, nil
	}
	return result.CustomProperties, nil
}
