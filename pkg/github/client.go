// Package github wraps the source-control platform APIs used by the churner:
// REST for PR selection and summary comments, GraphQL for review threads.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v68/github"
	"github.com/shurcooL/githubv4"
)

// Client provides the platform operations for one owner/repo pair.
type Client struct {
	rest  *github.Client
	gql   *githubv4.Client
	owner string
	repo  string
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	baseURL string
}

// WithBaseURL points both the REST and GraphQL clients at an alternate API
// root (for testing).
func WithBaseURL(baseURL string) Option {
	return func(o *clientOptions) {
		o.baseURL = baseURL
	}
}

// NewClient creates a platform client. httpClient must carry authentication
// (see AppAuth.HTTPClient).
func NewClient(httpClient *http.Client, owner, repo string, opts ...Option) (*Client, error) {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	rest := github.NewClient(httpClient)
	var gql *githubv4.Client

	if o.baseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(o.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		rest.BaseURL = base
		gql = githubv4.NewEnterpriseClient(strings.TrimSuffix(o.baseURL, "/")+"/graphql", httpClient)
	} else {
		gql = githubv4.NewClient(httpClient)
	}

	return &Client{
		rest:  rest,
		gql:   gql,
		owner: owner,
		repo:  repo,
	}, nil
}

// Owner returns the repository owner this client is bound to.
func (c *Client) Owner() string { return c.owner }

// Repo returns the repository name this client is bound to.
func (c *Client) Repo() string { return c.repo }

// PostComment creates an issue comment on the PR. Used by the reporter for
// the run summary.
func (c *Client) PostComment(ctx context.Context, prNumber int, body string) error {
	_, _, err := c.rest.Issues.CreateComment(ctx, c.owner, c.repo, prNumber, &github.IssueComment{Body: &body})
	if err != nil {
		return fmt.Errorf("failed to create PR comment: %w", err)
	}
	return nil
}
