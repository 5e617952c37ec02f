package github

import (
	"context"
	"fmt"

	"github.com/shurcooL/githubv4"

	"github.com/churn-run/churn/pkg/log"
)

// threadQuery mirrors the GraphQL shape for unresolved review threads: id,
// resolved flag, file path, and the last comment's body and author.
type threadQuery struct {
	Repository struct {
		PullRequest struct {
			ReviewThreads struct {
				Nodes []struct {
					ID         githubv4.ID
					IsResolved githubv4.Boolean
					Path       githubv4.String
					Comments   struct {
						Nodes []struct {
							Body   githubv4.String
							Author struct {
								Login githubv4.String
							}
						}
					} `graphql:"comments(last: 1)"`
				}
			} `graphql:"reviewThreads(first: 100)"`
		} `graphql:"pullRequest(number: $number)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// FetchUnresolved queries review threads for the PR and returns the
// unresolved ones. Fail-open: a query failure returns an empty list so a
// harvesting hiccup never aborts the whole PR.
func (c *Client) FetchUnresolved(ctx context.Context, prNumber int) []ReviewThread {
	var q threadQuery
	variables := map[string]interface{}{
		"owner":  githubv4.String(c.owner),
		"name":   githubv4.String(c.repo),
		"number": githubv4.Int(prNumber),
	}

	if err := c.gql.Query(ctx, &q, variables); err != nil {
		log.Warnf("Review thread query failed for PR #%d, continuing with none: %v", prNumber, err)
		return nil
	}

	var threads []ReviewThread
	for _, node := range q.Repository.PullRequest.ReviewThreads.Nodes {
		if bool(node.IsResolved) {
			continue
		}

		thread := ReviewThread{
			ID:   fmt.Sprintf("%v", node.ID),
			Path: string(node.Path),
		}
		if len(node.Comments.Nodes) > 0 {
			last := node.Comments.Nodes[len(node.Comments.Nodes)-1]
			thread.Body = string(last.Body)
			thread.Author = string(last.Author.Login)
		}
		threads = append(threads, thread)
	}

	return threads
}

// ResolveThread marks a review thread resolved. Best-effort and independent
// of ReplyToThread.
func (c *Client) ResolveThread(ctx context.Context, threadID string) error {
	var m struct {
		ResolveReviewThread struct {
			Thread struct {
				ID githubv4.ID
			}
		} `graphql:"resolveReviewThread(input: $input)"`
	}

	input := githubv4.ResolveReviewThreadInput{
		ThreadID: githubv4.ID(threadID),
	}

	if err := c.gql.Mutate(ctx, &m, input, nil); err != nil {
		return fmt.Errorf("failed to resolve thread %s: %w", threadID, err)
	}
	return nil
}

// ReplyToThread posts a reply comment on a review thread. Best-effort: a
// failure here must not prevent resolution, and vice versa.
func (c *Client) ReplyToThread(ctx context.Context, threadID, body string) error {
	var m struct {
		AddPullRequestReviewThreadReply struct {
			Comment struct {
				ID githubv4.ID
			}
		} `graphql:"addPullRequestReviewThreadReply(input: $input)"`
	}

	input := githubv4.AddPullRequestReviewThreadReplyInput{
		PullRequestReviewThreadID: githubv4.NewID(githubv4.ID(threadID)),
		Body:                      githubv4.String(body),
	}

	if err := c.gql.Mutate(ctx, &m, input, nil); err != nil {
		return fmt.Errorf("failed to reply to thread %s: %w", threadID, err)
	}
	return nil
}
