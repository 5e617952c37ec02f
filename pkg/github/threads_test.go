package github

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func graphqlServer(t *testing.T, response string, capture *string) *Client {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /graphql", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if capture != nil {
			*capture = string(raw)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(response))
	})
	return newTestClient(t, mux)
}

func TestFetchUnresolvedFiltersResolved(t *testing.T) {
	c := graphqlServer(t, `{"data":{"repository":{"pullRequest":{"reviewThreads":{"nodes":[
		{"id":"T1","isResolved":false,"path":"src/app.js","comments":{"nodes":[{"body":"use const","author":{"login":"reviewer"}}]}},
		{"id":"T2","isResolved":true,"path":"src/other.js","comments":{"nodes":[{"body":"done","author":{"login":"reviewer"}}]}},
		{"id":"T3","isResolved":false,"path":"","comments":{"nodes":[]}}
	]}}}}}`, nil)

	threads := c.FetchUnresolved(context.Background(), 7)

	require.Len(t, threads, 2)
	assert.Equal(t, "T1", threads[0].ID)
	assert.Equal(t, "src/app.js", threads[0].Path)
	assert.Equal(t, "use const", threads[0].Body)
	assert.Equal(t, "reviewer", threads[0].Author)
	// Commentless thread survives with empty body/author.
	assert.Equal(t, "T3", threads[1].ID)
	assert.Empty(t, threads[1].Author)
}

func TestFetchUnresolvedFailOpen(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := newTestClient(t, mux)

	threads := c.FetchUnresolved(context.Background(), 7)

	assert.Empty(t, threads, "a harvest failure yields an empty list, not an error")
}

func TestResolveThread(t *testing.T) {
	var body string
	c := graphqlServer(t, `{"data":{"resolveReviewThread":{"thread":{"id":"T1"}}}}`, &body)

	err := c.ResolveThread(context.Background(), "T1")

	require.NoError(t, err)
	assert.Contains(t, body, "resolveReviewThread")
	assert.Contains(t, body, "T1")
}

func TestReplyToThread(t *testing.T) {
	var body string
	c := graphqlServer(t, `{"data":{"addPullRequestReviewThreadReply":{"comment":{"id":"C1"}}}}`, &body)

	err := c.ReplyToThread(context.Background(), "T1", "fixed in next push")

	require.NoError(t, err)
	assert.Contains(t, body, "addPullRequestReviewThreadReply")
	assert.Contains(t, body, "fixed in next push")
}

func TestResolveThreadError(t *testing.T) {
	c := graphqlServer(t, `{"errors":[{"message":"thread not found"}]}`, nil)

	assert.Error(t, c.ResolveThread(context.Background(), "T404"))
}
