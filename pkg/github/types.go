package github

import "time"

// PullRequestInfo is an immutable snapshot of a pull request, fetched once
// per run and never mutated.
type PullRequestInfo struct {
	Number    int
	Title     string
	HeadRef   string
	HeadSHA   string
	BaseRef   string
	Author    string
	Mergeable bool
	Checks    string
	CreatedAt time.Time
}

// ReviewThread is a read-only view of an unresolved review comment thread.
// The only mutation is marking it resolved through the platform API.
type ReviewThread struct {
	ID         string
	Path       string
	Body       string
	Author     string
	IsResolved bool
}
