// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

// Package events canonicalizes GitHub webhook payloads into the
// CheckRequest envelope that front publishes and runner consumes.
package events

import (
	"fmt"
	"regexp"
	"time"
)

// CheckRequest is the sole envelope passed from front to runner. Its
// JSON encoding uses the exact snake_case field names below; runner
// tolerates unknown keys but front must emit exactly these.
type CheckRequest struct {
	EventName      string       `json:"event_name"`
	Action         string       `json:"action"`
	InstallationID int64        `json:"installation_id"`
	Sender         Sender       `json:"sender"`
	Repository     Repository   `json:"repository"`
	Head           HeadRef      `json:"head"`
	Base           *BaseRef     `json:"base,omitempty"`
	PullRequest    *PullRequest `json:"pull_request,omitempty"`
	ReceivedAt     time.Time    `json:"received_at"`

	// DeliveryID carries GitHub's X-GitHub-Delivery header through for
	// log correlation. It is not used for deduplication (see the open
	// question in the design notes) but is useful when tracing a
	// specific redelivery through front and runner logs.
	DeliveryID string `json:"delivery_id,omitempty"`
}

// Sender is the GitHub user or bot that triggered the event.
type Sender struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

// Repository identifies the target repository and carries any
// organization-defined custom properties relevant to the job.
type Repository struct {
	ID               int64             `json:"id"`
	Owner            string            `json:"owner"`
	Name             string            `json:"name"`
	DefaultBranch    string            `json:"default_branch"`
	FullName         string            `json:"full_name"`
	CustomProperties map[string]string `json:"custom_properties"`
}

// HeadRef is the commit the check run targets.
type HeadRef struct {
	SHA     string `json:"sha"`
	Ref     string `json:"ref"`
	RefType string `json:"ref_type"` // "branch" or "tag"
}

// BaseRef is the comparison point for diff-based jobs. Absent on
// non-pull-request events.
type BaseRef struct {
	SHA string `json:"sha"`
	Ref string `json:"ref"`
}

// PullRequest carries the originating PR's identity. Present only on
// pull_request events.
type PullRequest struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	HTMLURL string `json:"html_url"`
	User    PRUser `json:"user"`
}

// PRUser is the author of a pull request.
type PRUser struct {
	Login string `json:"login"`
}

// customPropertyKeyPattern matches the allowed shape of a custom
// property key. Keys that don't match are dropped during
// canonicalization rather than treated as an error.
var customPropertyKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// headSHAPattern matches a 40-character lowercase or uppercase hex
// git object ID.
var headSHAPattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// Validate checks the invariants from the data model: head.sha is a
// 40-hex string, installation_id is positive, and full_name matches
// owner/name. It does not re-validate custom property keys — those
// are sanitized during canonicalization, not rejected.
func (request *CheckRequest) Validate() error {
	if !headSHAPattern.MatchString(request.Head.SHA) {
		return fmt.Errorf("events: head.sha %q is not a 40-character hex string", request.Head.SHA)
	}
	if request.InstallationID <= 0 {
		return fmt.Errorf("events: installation_id %d must be positive", request.InstallationID)
	}
	expected := request.Repository.Owner + "/" + request.Repository.Name
	if request.Repository.FullName != expected {
		return fmt.Errorf("events: repository.full_name %q does not match owner/name %q", request.Repository.FullName, expected)
	}
	return nil
}

// sanitizeCustomProperties drops any key that doesn't match the
// allowed identifier shape. This is not an error per the data model —
// unrecognized keys are silently dropped.
func sanitizeCustomProperties(properties map[string]string) map[string]string {
	clean := make(map[string]string, len(properties))
	for key, value := range properties {
		if customPropertyKeyPattern.MatchString(key) {
			clean[key] = value
		}
	}
	return clean
}
