package github

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prJSON(number int, createdAt time.Time) map[string]interface{} {
	return map[string]interface{}{
		"number":     number,
		"title":      fmt.Sprintf("PR %d", number),
		"created_at": createdAt.Format(time.RFC3339),
		"user":       map[string]interface{}{"login": "author"},
		"head":       map[string]interface{}{"ref": fmt.Sprintf("feature/%d", number), "sha": fmt.Sprintf("sha%d", number)},
		"base":       map[string]interface{}{"ref": "main"},
		"mergeable":  true,
	}
}

func listServer(t *testing.T, prs []map[string]interface{}) *Client {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/website/pulls", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, prs)
	})
	mux.HandleFunc("GET /repos/acme/website/commits/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"state": "success"})
	})
	return newTestClient(t, mux)
}

func TestListCandidatesOldestFirst(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := listServer(t, []map[string]interface{}{
		prJSON(30, base.AddDate(0, 2, 0)),
		prJSON(10, base),
		prJSON(20, base.AddDate(0, 1, 0)),
	})

	infos, err := c.ListCandidates(context.Background(), 2)

	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, 10, infos[0].Number)
	assert.Equal(t, 20, infos[1].Number)
	assert.Equal(t, "feature/10", infos[0].HeadRef)
	assert.Equal(t, "success", infos[0].Checks)
}

func TestListCandidatesHardCap(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var prs []map[string]interface{}
	for i := 1; i <= 60; i++ {
		prs = append(prs, prJSON(i, base.Add(time.Duration(i)*time.Hour)))
	}
	c := listServer(t, prs)

	infos, err := c.ListCandidates(context.Background(), 1000)

	require.NoError(t, err)
	assert.Len(t, infos, HardCap)
}

func TestListCandidatesNonPositiveLimitSelectsNone(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := listServer(t, []map[string]interface{}{prJSON(1, base), prJSON(2, base.Add(time.Hour))})

	for _, limit := range []int{0, -1} {
		infos, err := c.ListCandidates(context.Background(), limit)

		require.NoError(t, err)
		assert.Empty(t, infos, "limit %d must process min(limit, 50) = 0 PRs", limit)
	}
}

func TestListCandidatesError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c := newTestClient(t, mux)

	_, err := c.ListCandidates(context.Background(), 5)
	assert.Error(t, err)
}

func TestSingleCandidate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/website/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, prJSON(7, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
	})
	mux.HandleFunc("GET /repos/acme/website/commits/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"state": "pending"})
	})
	c := newTestClient(t, mux)

	infos, err := c.SingleCandidate(context.Background(), 7)

	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 7, infos[0].Number)
	assert.Equal(t, "pending", infos[0].Checks)
}

func TestStatusSummaryFailureIsEmpty(t *testing.T) {
	// No commits handler registered: the status lookup 404s and the summary
	// degrades to empty instead of erroring.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/website/pulls", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]interface{}{prJSON(1, time.Now())})
	})
	c := newTestClient(t, mux)

	infos, err := c.ListCandidates(context.Background(), 5)

	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Empty(t, infos[0].Checks)
}
