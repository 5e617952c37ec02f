package github

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/go-github/v68/github"
)

const (
	// HardCap bounds the number of PRs one run may process regardless of the
	// requested limit.
	HardCap = 50

	// listPageSize is the maximum candidate pool fetched before truncation.
	listPageSize = 100
)

// ListCandidates fetches up to 100 open PRs, sorts them oldest-first (the
// churner clears the oldest backlog first), and truncates to
// min(limit, HardCap). The returned snapshots are never mutated.
func (c *Client) ListCandidates(ctx context.Context, limit int) ([]PullRequestInfo, error) {
	// Processed count is min(limit, HardCap); a non-positive limit selects
	// nothing.
	if limit <= 0 {
		return nil, nil
	}
	if limit > HardCap {
		limit = HardCap
	}

	opts := &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: listPageSize},
	}

	prs, _, err := c.rest.PullRequests.List(ctx, c.owner, c.repo, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list open PRs: %w", err)
	}

	infos := make([]PullRequestInfo, 0, len(prs))
	for _, pr := range prs {
		infos = append(infos, convertPR(pr))
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})

	if len(infos) > limit {
		infos = infos[:limit]
	}

	for i := range infos {
		infos[i].Checks = c.statusSummary(ctx, infos[i].HeadSHA)
	}

	return infos, nil
}

// SingleCandidate fetches exactly one PR by number, bypassing selection and
// sorting. It feeds the same downstream pipeline as ListCandidates.
func (c *Client) SingleCandidate(ctx context.Context, number int) ([]PullRequestInfo, error) {
	pr, _, err := c.rest.PullRequests.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch PR #%d: %w", number, err)
	}

	info := convertPR(pr)
	info.Checks = c.statusSummary(ctx, info.HeadSHA)
	return []PullRequestInfo{info}, nil
}

// convertPR converts a github.PullRequest to our immutable snapshot type.
func convertPR(pr *github.PullRequest) PullRequestInfo {
	var headRef, headSHA, baseRef string
	if head := pr.GetHead(); head != nil {
		headRef = head.GetRef()
		headSHA = head.GetSHA()
	}
	if base := pr.GetBase(); base != nil {
		baseRef = base.GetRef()
	}

	author := ""
	if user := pr.GetUser(); user != nil {
		author = user.GetLogin()
	}

	return PullRequestInfo{
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		HeadRef:   headRef,
		HeadSHA:   headSHA,
		BaseRef:   baseRef,
		Author:    author,
		Mergeable: pr.GetMergeable(),
		CreatedAt: pr.GetCreatedAt().Time,
	}
}

// statusSummary fetches the combined commit status for the PR head. A lookup
// failure yields an empty summary rather than an error; status text is
// diagnostic only.
func (c *Client) statusSummary(ctx context.Context, headSHA string) string {
	if headSHA == "" {
		return ""
	}

	status, _, err := c.rest.Repositories.GetCombinedStatus(ctx, c.owner, c.repo, headSHA, &github.ListOptions{PerPage: listPageSize})
	if err != nil || status == nil {
		return ""
	}
	return status.GetState()
}
