// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

package events

// wireRepository mirrors the "repository" object GitHub includes on
// every webhook payload this package handles.
type wireRepository struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// wireSender mirrors the "sender" object on every webhook payload.
type wireSender struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

// wirePullRequestPayload is the body of a pull_request webhook event.
type wirePullRequestPayload struct {
	Action         string         `json:"action"`
	Installation   wireInstall    `json:"installation"`
	Repository     wireRepository `json:"repository"`
	Sender         wireSender     `json:"sender"`
	Number         int            `json:"number"`
	Before         string         `json:"before"`
	After          string         `json:"after"`
	PullRequest    wirePullRequest `json:"pull_request"`
}

type wireInstall struct {
	ID int64 `json:"id"`
}

type wirePullRequest struct {
	Title   string    `json:"title"`
	HTMLURL string    `json:"html_url"`
	Draft   bool      `json:"draft"`
	User    wireSender `json:"user"`
	Head    wireBranch `json:"head"`
	Base    wireBranch `json:"base"`
}

type wireBranch struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// wireCheckSuitePayload is the body of a check_suite webhook event.
type wireCheckSuitePayload struct {
	Action       string         `json:"action"`
	Installation wireInstall    `json:"installation"`
	Repository   wireRepository `json:"repository"`
	Sender       wireSender     `json:"sender"`
	CheckSuite   wireCheckSuite `json:"check_suite"`
}

type wireCheckSuite struct {
	HeadSHA      string                    `json:"head_sha"`
	Before       string                    `json:"before"`
	After        string                    `json:"after"`
	PullRequests []wireCheckSuitePR        `json:"pull_requests"`
}

type wireCheckSuitePR struct {
	Number int `json:"number"`
}

// wireCheckRunPayload is the body of a check_run webhook event. GitHub
// sends a narrower shape than check_suite — the run carries its own
// check_suite sub-object with the same pull_requests association.
type wireCheckRunPayload struct {
	Action       string         `json:"action"`
	Installation wireInstall    `json:"installation"`
	Repository   wireRepository `json:"repository"`
	Sender       wireSender     `json:"sender"`
	CheckRun     wireCheckRun   `json:"check_run"`
}

type wireCheckRun struct {
	HeadSHA    string                  `json:"head_sha"`
	CheckSuite wireCheckRunSuiteRef    `json:"check_suite"`
}

type wireCheckRunSuiteRef struct {
	Before       string             `json:"before"`
	After        string             `json:"after"`
	PullRequests []wireCheckSuitePR `json:"pull_requests"`
}

func (r wireRepository) toRepository() Repository {
	return Repository{
		ID:               r.ID,
		Owner:            r.Owner.Login,
		Name:             r.Name,
		DefaultBranch:    r.DefaultBranch,
		FullName:         r.FullName,
		CustomProperties: map[string]string{},
	}
}

func (s wireSender) toSender() Sender {
	return Sender{Login: s.Login, ID: s.ID}
}
